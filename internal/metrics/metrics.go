// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "engagement"

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route template, method and status code.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route template.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	AccessResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "access_resolutions_total",
		Help:      "Profile access decisions by unlock reason.",
	}, []string{"reason"})

	UnlockGrants = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unlock_grants_total",
		Help:      "Profile unlock grants by source.",
	}, []string{"source"})

	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "purchase_redemptions_total",
		Help:      "Purchase redemption attempts by sku and result.",
	}, []string{"sku", "result"})

	Charges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_charges_total",
		Help:      "Payment processor charge attempts by sku and result.",
	}, []string{"sku", "result"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_webhook_events_total",
		Help:      "Payment webhook deliveries by status and whether they were replays.",
	}, []string{"status", "idempotent"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Like events by kind and outcome (sent, suppressed, failed, ignored).",
	}, []string{"kind", "outcome"})

	Spins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reward_spins_total",
		Help:      "Reward spins by spin type and reward.",
	}, []string{"spin_type", "reward"})

	SpinRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reward_spin_rejections_total",
		Help:      "Free spins rejected by cooldown, by where the cooldown was detected.",
	}, []string{"by"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
