package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one process. Each instance owns its own
// registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	rowsIngested     *prometheus.CounterVec
	rowsDropped      *prometheus.CounterVec
	analyzerDuration *prometheus.HistogramVec
	analyzerFailures *prometheus.CounterVec
	fallbacks        *prometheus.CounterVec
	trainingDuration prometheus.Histogram
	ingestions       prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by method, path and status.",
			},
			[]string{"method", "path", "status_code"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		rowsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resale_ingest_rows_total",
				Help: "Rows kept after normalization.",
			},
			[]string{"domain"},
		),
		rowsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resale_ingest_rows_dropped_total",
				Help: "Rows dropped during normalization.",
			},
			[]string{"domain", "reason"},
		),
		analyzerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resale_analyzer_duration_seconds",
				Help:    "Wall time of one analyzer run.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"analyzer"},
		),
		analyzerFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resale_analyzer_failures_total",
				Help: "Analyzer runs that ended in an error.",
			},
			[]string{"analyzer", "code"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resale_fallbacks_total",
				Help: "Named fallback branches taken.",
			},
			[]string{"component", "fallback"},
		),
		trainingDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "resale_model_training_duration_seconds",
				Help:    "Time spent fitting the viability model set.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		ingestions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "resale_ingestions_total",
				Help: "Completed ingestion runs.",
			},
		),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, path, status string, d time.Duration) {
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func (m *Metrics) RowsIngested(domain string, n int) {
	m.rowsIngested.WithLabelValues(domain).Add(float64(n))
}

func (m *Metrics) RowsDropped(domain, reason string, n int) {
	if n > 0 {
		m.rowsDropped.WithLabelValues(domain, reason).Add(float64(n))
	}
}

func (m *Metrics) AnalyzerRun(analyzer string, d time.Duration) {
	m.analyzerDuration.WithLabelValues(analyzer).Observe(d.Seconds())
}

func (m *Metrics) AnalyzerFailed(analyzer, code string) {
	m.analyzerFailures.WithLabelValues(analyzer, code).Inc()
}

func (m *Metrics) Fallback(component, name string) {
	m.fallbacks.WithLabelValues(component, name).Inc()
}

func (m *Metrics) Training(d time.Duration) {
	m.trainingDuration.Observe(d.Seconds())
}

func (m *Metrics) Ingested() {
	m.ingestions.Inc()
}
