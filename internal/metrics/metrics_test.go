package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-engagement/internal/metrics"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(metrics.Redemptions.WithLabelValues("big_heart", "ok"))
	metrics.Redemptions.WithLabelValues("big_heart", "ok").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Redemptions.WithLabelValues("big_heart", "ok")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	metrics.Spins.WithLabelValues("free", "boost").Inc()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `engagement_reward_spins_total{reward="boost",spin_type="free"}`)
}
