// Package metrics provides Prometheus metrics for the tierank service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Ranking flow
	sessionsStarted      *prometheus.CounterVec
	sessionsCommitted    *prometheus.CounterVec
	sessionsClosed       *prometheus.CounterVec
	comparisons          *prometheus.CounterVec
	undos                prometheus.Counter
	staleDecisions       prometheus.Counter
	duplicateDecisions   prometheus.Counter
	comparisonsPerInsert prometheus.Histogram
	activeSessions       prometheus.Gauge
	entriesTotal         *prometheus.GaugeVec

	// Store
	storeLatency   *prometheus.HistogramVec
	storeRollbacks *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process-wide registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tierank",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	return m.metricPrefix + n
}

// initializeMetrics creates all the Prometheus collectors.
func (m *Manager) initializeMetrics() { //nolint:funlen // one block per collector
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	m.sessionsStarted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("sessions_started_total"),
		Help: "Comparison sessions started, by media kind and purpose (insert or rerank)",
	}, []string{"media_kind", "purpose"})

	m.sessionsCommitted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("sessions_committed_total"),
		Help: "Comparison sessions whose result was written to the store",
	}, []string{"media_kind", "purpose"})

	m.sessionsClosed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("sessions_closed_total"),
		Help: "Comparison sessions dropped without a write, by reason",
	}, []string{"reason"})

	m.comparisons = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("comparisons_total"),
		Help: "Pairwise judgments applied, by outcome",
	}, []string{"outcome"})

	m.undos = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("undos_total"),
		Help: "Comparison undos applied",
	})

	m.staleDecisions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("stale_decisions_total"),
		Help: "Decisions rejected because they targeted an outdated or finished search",
	})

	m.duplicateDecisions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("duplicate_decisions_total"),
		Help: "Decisions ignored because their decision id was already applied",
	})

	m.comparisonsPerInsert = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("comparisons_per_commit"),
		Help:    "Judgments actually made per committed session",
		Buckets: prometheus.LinearBuckets(0, 1, 16),
	})

	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("active_sessions"),
		Help: "Comparison sessions currently open",
	})

	m.entriesTotal = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("entries"),
		Help: "Ranked entries per partition",
	}, []string{"media_kind"})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("store_operation_milliseconds"),
		Help:    "Store operation latency in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"driver", "operation"})

	m.storeRollbacks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("store_rollbacks_total"),
		Help: "Store mutations rolled back, by driver and operation",
	}, []string{"driver", "operation"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("http_requests_total"),
		Help: "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("http_request_duration_milliseconds"),
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("errors_by_component_total"),
		Help: "Errors by component and type",
	}, []string{"component", "error_type"})

	m.errorRateByType = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("errors_by_type_total"),
		Help: "Errors by type and severity",
	}, []string{"error_type", "severity"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("errors_by_endpoint_total"),
		Help: "Errors by endpoint, method and type",
	}, []string{"endpoint", "method", "error_type"})

	m.errorLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("error_latency_milliseconds"),
		Help:    "Latency of operations that ended in an error",
		Buckets: m.histogramBuckets,
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("system_memory_usage_bytes"),
		Help: "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("system_goroutine_count"),
		Help: "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("system_gc_pause_time_milliseconds"),
		Help:    "GC pause time in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Ranking flow.

// RecordSessionStarted counts a new comparison session.
func RecordSessionStarted(mediaKind, purpose string) {
	globalManager.sessionsStarted.WithLabelValues(mediaKind, purpose).Inc()
}

// RecordSessionCommitted counts a session whose result reached the store.
func RecordSessionCommitted(mediaKind, purpose string, comparisonsMade int) {
	globalManager.sessionsCommitted.WithLabelValues(mediaKind, purpose).Inc()
	globalManager.comparisonsPerInsert.Observe(float64(comparisonsMade))
}

// RecordSessionClosed counts a session dropped without a write.
func RecordSessionClosed(reason string) {
	globalManager.sessionsClosed.WithLabelValues(reason).Inc()
}

// RecordComparison counts one applied judgment.
func RecordComparison(outcome string) {
	globalManager.comparisons.WithLabelValues(outcome).Inc()
}

// RecordUndo counts one applied undo.
func RecordUndo() {
	globalManager.undos.Inc()
}

// RecordStaleDecision counts a rejected stale decision.
func RecordStaleDecision() {
	globalManager.staleDecisions.Inc()
}

// RecordDuplicateDecision counts a decision id seen twice.
func RecordDuplicateDecision() {
	globalManager.duplicateDecisions.Inc()
}

// UpdateActiveSessions sets the number of open sessions.
func UpdateActiveSessions(count int) {
	globalManager.activeSessions.Set(float64(count))
}

// UpdateEntriesTotal sets the entry count of one partition.
func UpdateEntriesTotal(mediaKind string, count int) {
	globalManager.entriesTotal.WithLabelValues(mediaKind).Set(float64(count))
}

// Store.

// RecordStoreLatency records the duration of one store operation.
func RecordStoreLatency(driver, operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(driver, operation).Observe(latencyMs)
}

// RecordStoreRollback counts a rolled back mutation.
func RecordStoreRollback(driver, operation string) {
	globalManager.storeRollbacks.WithLabelValues(driver, operation).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
