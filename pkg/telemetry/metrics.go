package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for evaluations.
type Metrics struct {
	config MetricsConfig

	// Evaluation metrics
	evaluations        *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	activeEvaluations  prometheus.Gauge

	// Transform metrics
	transformInvocations *prometheus.CounterVec
	transformDuration    *prometheus.HistogramVec
	inputHits            *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// HTTP metrics
	httpRequests *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of top-level evaluations",
			},
			[]string{"output", "status"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of top-level evaluations in seconds",
				Buckets:   buckets,
			},
			[]string{"output"},
		),
		activeEvaluations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_evaluations",
				Help:      "Current number of evaluations in progress",
			},
		),

		transformInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transform_invocations_total",
				Help:      "Total number of transform invocations",
			},
			[]string{"transform", "status"},
		),
		transformDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transform_duration_seconds",
				Help:      "Duration of transform invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"transform"},
		),
		inputHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "input_hits_total",
				Help:      "Total number of names served from the inputs map",
			},
			[]string{"name"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of failed evaluations by error kind",
			},
			[]string{"kind"},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"route", "code"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.evaluations,
		m.evaluationDuration,
		m.activeEvaluations,
		m.transformInvocations,
		m.transformDuration,
		m.inputHits,
		m.errorsByKind,
		m.httpRequests,
	)

	return m, nil
}

// Evaluation Metrics

// RecordEvaluationStarted increments the active evaluations gauge.
func (m *Metrics) RecordEvaluationStarted() {
	if m.activeEvaluations == nil {
		return
	}
	m.activeEvaluations.Inc()
}

// RecordEvaluationCompleted records a finished evaluation with its status and duration.
func (m *Metrics) RecordEvaluationCompleted(output, status string, duration time.Duration) {
	if m.evaluations == nil {
		return
	}
	m.evaluations.WithLabelValues(output, status).Inc()
	m.evaluationDuration.WithLabelValues(output).Observe(duration.Seconds())
	m.activeEvaluations.Dec()
}

// Transform Metrics

// RecordTransformInvocation records one transform invocation.
func (m *Metrics) RecordTransformInvocation(transform, status string, duration time.Duration) {
	if m.transformInvocations == nil {
		return
	}
	m.transformInvocations.WithLabelValues(transform, status).Inc()
	m.transformDuration.WithLabelValues(transform).Observe(duration.Seconds())
}

// RecordInputHit records a name served from the inputs map.
func (m *Metrics) RecordInputHit(name string) {
	if m.inputHits == nil {
		return
	}
	m.inputHits.WithLabelValues(name).Inc()
}

// Error Metrics

// RecordError records a failed evaluation by error kind.
func (m *Metrics) RecordError(kind string) {
	if m.errorsByKind == nil {
		return
	}
	if kind == "" {
		kind = "unclassified"
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// HTTP Metrics

// RecordHTTPRequest records an API request by route pattern and status code.
func (m *Metrics) RecordHTTPRequest(route string, code int) {
	if m.httpRequests == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
