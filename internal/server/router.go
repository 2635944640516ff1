package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	svcErr "github.com/oggyb/muzz-engagement/internal/errors"
	"github.com/oggyb/muzz-engagement/internal/metrics"
)

// NewRouter builds the root router with the shared middleware chain and JSON
// 404/405 handlers, then lets every registrar attach its routes.
func NewRouter(log *slog.Logger, auth mux.MiddlewareFunc, registrars ...Registrar) *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = chain(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, svcErr.NotFound("not_found", "route not found"))
	}))
	r.MethodNotAllowedHandler = chain(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, svcErr.MethodNotAllowed())
	}))
	r.Use(WithRequestID(log), WithRecover, WithRequestLogging)

	for _, reg := range registrars {
		reg.Register(r, auth)
	}
	return r
}

// chain applies the middleware that mux skips for its fallback handlers.
func chain(log *slog.Logger, h http.Handler) http.Handler {
	return WithRequestID(log)(WithRecover(WithRequestLogging(h)))
}

// Check is one readiness probe.
type Check func(ctx context.Context) error

// Health serves /healthz, /readyz and /metrics.
//
// Required checks gate readiness. Optional checks are reported as degraded
// without failing it.
type Health struct {
	checks   map[string]Check
	optional map[string]Check
}

var _ Registrar = (*Health)(nil)

func NewHealth(checks map[string]Check) *Health {
	return &Health{checks: checks, optional: map[string]Check{}}
}

// WithOptional adds a check that never fails readiness.
func (h *Health) WithOptional(name string, check Check) *Health {
	h.optional[name] = check
	return h
}

func (h *Health) Register(r *mux.Router, _ mux.MiddlewareFunc) {
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

// Ready runs the required checks and returns the failures by name.
func (h *Health) Ready(ctx context.Context) map[string]string {
	return run(ctx, h.checks)
}

// Degraded runs the optional checks and returns the failures by name.
func (h *Health) Degraded(ctx context.Context) map[string]string {
	return run(ctx, h.optional)
}

func run(ctx context.Context, checks map[string]Check) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	return failed
}

func (h *Health) handleReady(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"ok": true}
	if degraded := h.Degraded(r.Context()); len(degraded) > 0 {
		body["degraded"] = degraded
	}
	if failed := h.Ready(r.Context()); len(failed) > 0 {
		body["ok"] = false
		body["failed"] = failed
		WriteJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	WriteJSON(w, http.StatusOK, body)
}
