package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveAdapter(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAdapter("Amazon", OutcomeOK, 5, 3*time.Second)
	m.ObserveAdapter("Amazon", OutcomeError, 0, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterRuns.WithLabelValues("Amazon", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterRuns.WithLabelValues("Amazon", OutcomeError)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ListingsScraped.WithLabelValues("Amazon")))
}

func TestObserveAnalysis(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAnalysis("yoga mat", "High Potential", 0.53, time.Minute)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesCompleted.WithLabelValues("High Potential")))
	assert.Equal(t, 0.53, testutil.ToFloat64(m.GrossMargin.WithLabelValues("yoga mat")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAdapter("Temu", OutcomeOK, 1, time.Second)
		m.ObserveAnalysis("x", "y", 0, time.Second)
		m.ObserveLLM(OutcomeOK)
	})
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveLLM(OutcomeError)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `market_scout_llm_requests_total{outcome="error"} 1`)
}
