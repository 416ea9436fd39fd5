// Package metrics exports learning and suggestion metrics in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/rhythm/store"
)

const namespace = "rhythm"

// PrometheusExporter records learning cycles, suggestion lifecycle events
// and HTTP requests on a private registry.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Learning metrics
	cycles         *prometheus.CounterVec
	cycleLatency   prometheus.Histogram
	analyzerErrors *prometheus.CounterVec
	activeLearners prometheus.Gauge

	// Suggestion metrics
	generated *prometheus.CounterVec
	applied   *prometheus.CounterVec
	dismissed prometheus.Counter

	// HTTP metrics
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64

	// RuntimeCollectors adds the Go runtime and process collectors.
	RuntimeCollectors bool
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets:    []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		RuntimeCollectors: true,
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "cycles_total",
			Help:      "Total number of learning cycles by outcome",
		},
		[]string{"status"},
	)

	e.cycleLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "cycle_duration_seconds",
			Help:      "Learning cycle duration in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.analyzerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "analyzer_failures_total",
			Help:      "Total number of failed analysis passes",
		},
		[]string{"analyzer"},
	)

	e.activeLearners = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "learning",
			Name:      "active_users",
			Help:      "Number of users with periodic learning enabled",
		},
	)

	e.generated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "suggestion",
			Name:      "generated_total",
			Help:      "Total number of generated suggestions",
		},
		[]string{"type"},
	)

	e.applied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "suggestion",
			Name:      "applied_total",
			Help:      "Total number of suggestion applies by outcome",
		},
		[]string{"type", "outcome"},
	)

	e.dismissed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "suggestion",
			Name:      "dismissed_total",
			Help:      "Total number of dismissed suggestions",
		},
	)

	e.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)

	e.httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(
		e.cycles,
		e.cycleLatency,
		e.analyzerErrors,
		e.activeLearners,
		e.generated,
		e.applied,
		e.dismissed,
		e.httpRequests,
		e.httpLatency,
	)
	if cfg.RuntimeCollectors {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return e
}

// CycleFinished records a finished learning cycle.
func (e *PrometheusExporter) CycleFinished(status string, elapsed time.Duration) {
	e.cycles.WithLabelValues(status).Inc()
	e.cycleLatency.Observe(elapsed.Seconds())
}

// AnalyzerFailed records a failed analysis pass.
func (e *PrometheusExporter) AnalyzerFailed(pass string) {
	e.analyzerErrors.WithLabelValues(pass).Inc()
}

// ActiveLearners sets the number of learning users.
func (e *PrometheusExporter) ActiveLearners(n int) {
	e.activeLearners.Set(float64(n))
}

// SuggestionGenerated records a generated suggestion.
func (e *PrometheusExporter) SuggestionGenerated(suggestionType store.SuggestionType) {
	e.generated.WithLabelValues(string(suggestionType)).Inc()
}

// SuggestionApplied records an apply and its outcome.
func (e *PrometheusExporter) SuggestionApplied(suggestionType store.SuggestionType, outcome string) {
	e.applied.WithLabelValues(string(suggestionType), outcome).Inc()
}

// SuggestionDismissed records a dismissal.
func (e *PrometheusExporter) SuggestionDismissed() {
	e.dismissed.Inc()
}

// RecordHTTPRequest records a served request. route is the matched route
// pattern, not the raw path.
func (e *PrometheusExporter) RecordHTTPRequest(method, route string, code int, latency time.Duration) {
	e.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	e.httpLatency.WithLabelValues(method, route).Observe(latency.Seconds())
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

// GetRegistry returns the Prometheus registry.
func (e *PrometheusExporter) GetRegistry() *prometheus.Registry {
	return e.registry
}
