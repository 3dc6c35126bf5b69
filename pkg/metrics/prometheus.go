// Package metrics provides Prometheus metrics for the sonder scoring service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	// Pipeline metrics
	finalizations     *prometheus.CounterVec
	stageLatency      *prometheus.HistogramVec
	stageRetries      prometheus.Counter
	staleVersionLoss  prometheus.Counter
	calibrationFallbk prometheus.Counter

	// Batch metrics
	batchRuns        *prometheus.CounterVec
	batchSessions    *prometheus.CounterVec
	batchHalts       prometheus.Counter
	throttleWait     prometheus.Histogram

	// Results gateway metrics
	resultsRequests *prometheus.CounterVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System metrics
	systemMemory     prometheus.Gauge
	systemGoroutines prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager()
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "sonder",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.NewRegistry(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.finalizations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "finalizations_total",
		Help:      "Total finalization runs by outcome (success, noop, failed)",
	}, []string{"outcome"})

	m.stageLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stage_latency_milliseconds",
		Help:      "Histogram of per-stage latency in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"stage"})

	m.stageRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stage_retries_total",
		Help:      "Total transient-error retries across all stages",
	})

	m.staleVersionLoss = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stale_version_total",
		Help:      "Profile writes rejected because a newer results_version was already stored",
	})

	m.calibrationFallbk = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "calibration_fallback_total",
		Help:      "Finalizations that fell back to uncalibrated scores",
	})

	m.batchRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "batch",
		Name:      "runs_total",
		Help:      "Batch recompute runs by mode (dry_run, apply)",
	}, []string{"mode"})

	m.batchSessions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "batch",
		Name:      "sessions_total",
		Help:      "Sessions processed by batch runs, by outcome",
	}, []string{"outcome"})

	m.batchHalts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "batch",
		Name:      "halts_total",
		Help:      "Batch runs halted by the failure-rate circuit breaker",
	})

	m.throttleWait = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "batch",
		Name:      "throttle_wait_milliseconds",
		Help:      "Time spent waiting on the batch rate limiter",
		Buckets:   m.histogramBuckets,
	})

	m.resultsRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "results",
		Name:      "requests_total",
		Help:      "Results fetches by classification (ok plus the gateway error categories)",
	}, []string{"category"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint"})

	m.systemMemory = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "memory_bytes",
		Help:      "Current allocated heap bytes",
	})

	m.systemGoroutines = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "goroutines",
		Help:      "Current goroutine count",
	})
}

// Handler returns an http.Handler serving the manager's registry.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package-level helpers against the global manager.

func RecordFinalization(outcome string) {
	globalManager.finalizations.WithLabelValues(outcome).Inc()
}

func RecordStageLatency(stage string, ms float64) {
	globalManager.stageLatency.WithLabelValues(stage).Observe(ms)
}

func RecordStageRetry() { globalManager.stageRetries.Inc() }

func RecordStaleVersion() { globalManager.staleVersionLoss.Inc() }

func RecordCalibrationFallback() { globalManager.calibrationFallbk.Inc() }

func RecordBatchRun(mode string) { globalManager.batchRuns.WithLabelValues(mode).Inc() }

func RecordBatchSession(outcome string) {
	globalManager.batchSessions.WithLabelValues(outcome).Inc()
}

func RecordBatchHalt() { globalManager.batchHalts.Inc() }

func RecordThrottleWait(ms float64) { globalManager.throttleWait.Observe(ms) }

func RecordResultsRequest(category string) {
	globalManager.resultsRequests.WithLabelValues(category).Inc()
}

func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

func RecordHTTPRequestDuration(endpoint string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint).Observe(ms)
}

func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemory.Set(float64(bytes)) }

func UpdateSystemGoroutineCount(n int) { globalManager.systemGoroutines.Set(float64(n)) }

// Handler returns the global manager's metrics handler.
func Handler() http.Handler { return globalManager.Handler() }
