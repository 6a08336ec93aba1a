// Package metrics holds the Prometheus collectors for adapter runs, analyses,
// LLM calls and the outbox relay.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "market_scout"

const (
	OutcomeOK      = "ok"
	OutcomeWarning = "warning"
	OutcomeError   = "error"
)

type Metrics struct {
	// Adapter metrics
	AdapterRuns     *prometheus.CounterVec
	AdapterDuration *prometheus.HistogramVec
	ListingsScraped *prometheus.CounterVec

	// Analysis metrics
	AnalysesCompleted *prometheus.CounterVec
	AnalysisDuration  prometheus.Histogram
	GrossMargin       *prometheus.GaugeVec

	// LLM metrics
	LLMRequests *prometheus.CounterVec

	// Job and outbox metrics
	QueueDepth      prometheus.Gauge
	OutboxPublished prometheus.Counter
	OutboxFailed    prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers every collector with reg. Tests pass a fresh registry;
// binaries pass prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		AdapterRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_runs_total",
			Help:      "Adapter runs by source and outcome (ok, warning, error)",
		}, []string{"source", "outcome"}),
		AdapterDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "adapter_duration_seconds",
			Help:      "Time spent in one adapter search",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"source"}),
		ListingsScraped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_scraped_total",
			Help:      "Listings returned by each source",
		}, []string{"source"}),
		AnalysesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_completed_total",
			Help:      "Completed analyses by recommendation",
		}, []string{"recommendation"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "End-to-end duration of one keyword analysis",
			Buckets:   []float64{10, 30, 60, 120, 300, 600},
		}),
		GrossMargin: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gross_margin_ratio",
			Help:      "Gross margin of the latest analysis per keyword",
		}, []string{"keyword"}),
		LLMRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "LLM completion calls by outcome",
		}, []string{"outcome"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_queue_depth",
			Help:      "Analysis jobs waiting to run",
		}),
		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox events published to the stream",
		}),
		OutboxFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_failed_total",
			Help:      "Outbox publish attempts that failed",
		}),
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// ObserveAdapter records one finished adapter run.
func (m *Metrics) ObserveAdapter(source, outcome string, listings int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AdapterRuns.WithLabelValues(source, outcome).Inc()
	m.AdapterDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	m.ListingsScraped.WithLabelValues(source).Add(float64(listings))
}

func (m *Metrics) ObserveAnalysis(keyword, recommendation string, margin float64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AnalysesCompleted.WithLabelValues(recommendation).Inc()
	m.AnalysisDuration.Observe(elapsed.Seconds())
	m.GrossMargin.WithLabelValues(keyword).Set(margin)
}

func (m *Metrics) ObserveLLM(outcome string) {
	if m == nil {
		return
	}
	m.LLMRequests.WithLabelValues(outcome).Inc()
}

// Handler serves the registry m was created with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
