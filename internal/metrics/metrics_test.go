package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersAndHandler(t *testing.T) {
	m := New()

	m.Redemptions.WithLabelValues(OutcomeSuccess).Inc()
	m.Redemptions.WithLabelValues(OutcomeSuccess).Inc()
	m.Redemptions.WithLabelValues(OutcomeLimitReached).Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `promotion_engine_redemptions_total{outcome="success"} 2`)
	assert.Contains(t, string(body), `promotion_engine_redemptions_total{outcome="limit_reached"} 1`)
}
