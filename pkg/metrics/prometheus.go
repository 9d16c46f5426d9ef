// Package metrics provides Prometheus metrics for the ridesafe telemetry service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Latencies are recorded in milliseconds.
var defaultLatencyBucketsMs = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// Manager manages all Prometheus metrics for the ridesafe service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ingest Metrics - raw samples entering the core
	samplesReceived  prometheus.Counter
	samplesSkipped   *prometheus.CounterVec
	samplesDuplicate prometheus.Counter
	readingsStored   prometheus.Counter
	normalizeLatency prometheus.Histogram

	// Reading Metrics - last derived values
	speedKmh      prometheus.Gauge
	accelerationG prometheus.Histogram
	rideMode      *prometheus.GaugeVec

	// History Metrics
	historySize     prometheus.Gauge
	historyCapacity prometheus.Gauge
	historyEvicted  prometheus.Counter

	// Crash / Emergency Metrics
	crashSignals        prometheus.Counter
	crashSignalsIgnored prometheus.Counter
	episodesStarted     prometheus.Counter
	episodesEnded       *prometheus.CounterVec
	countdownRemaining  prometheus.Gauge
	emergencyActive     prometheus.Gauge
	callPlacements      *prometheus.CounterVec

	// Positioning fallback
	fallbackLookups *prometheus.CounterVec
	fallbackLatency prometheus.Histogram

	// Source Metrics - transports delivering raw samples
	sourceReads  *prometheus.CounterVec
	sourceErrors *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics - ingest queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker Metrics
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ridesafe",
		subsystem:        "telemetry",
		histogramBuckets: defaultLatencyBucketsMs,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.samplesReceived = m.counter("samples_received_total", "Total number of raw samples handed to the coordinator")
	m.samplesSkipped = m.counterVec("samples_skipped_total", "Raw samples skipped before entering history", "reason")
	m.samplesDuplicate = m.counter("samples_duplicate_total", "Raw samples dropped because their device id was already seen")
	m.readingsStored = m.counter("readings_stored_total", "Canonical readings appended to history")
	m.normalizeLatency = m.histogram("sample_processing_latency_milliseconds", "End-to-end processing latency of one sample", m.histogramBuckets)

	m.speedKmh = m.gauge("speed_kmh", "Speed of the most recent reading in km/h")
	m.accelerationG = m.histogram("acceleration_g", "Distribution of acceleration magnitudes in g",
		[]float64{0.25, 0.5, 0.75, 1, 1.25, 1.5, 2, 2.5, 3, 3.5, 4, 5, 6, 8})
	m.rideMode = m.gaugeVec("ride_mode", "1 for the ride mode of the most recent reading, 0 otherwise", "mode")

	m.historySize = m.gauge("history_size", "Number of readings retained in history")
	m.historyCapacity = m.gauge("history_capacity", "Maximum number of readings retained in history")
	m.historyEvicted = m.counter("history_evicted_total", "Readings evicted from history on overflow")

	m.crashSignals = m.counter("crash_signals_total", "Readings matching the crash signature")
	m.crashSignalsIgnored = m.counter("crash_signals_ignored_total", "Crash signals received while a countdown was already active")
	m.episodesStarted = m.counter("emergency_episodes_started_total", "Emergency countdowns started")
	m.episodesEnded = m.counterVec("emergency_episodes_ended_total", "Emergency countdowns ended by outcome", "outcome")
	m.countdownRemaining = m.gauge("emergency_countdown_remaining_seconds", "Seconds remaining on the active countdown (0 when idle)")
	m.emergencyActive = m.gauge("emergency_active", "1 while an emergency countdown is active")
	m.callPlacements = m.counterVec("emergency_call_placements_total", "Emergency call placement attempts by result", "result")

	m.fallbackLookups = m.counterVec("fallback_position_lookups_total", "Fallback position lookups by result", "result")
	m.fallbackLatency = m.histogram("fallback_position_latency_milliseconds", "Fallback position lookup latency", m.histogramBuckets)

	m.sourceReads = m.counterVec("source_reads_total", "Raw samples read from a transport", "source")
	m.sourceErrors = m.counterVec("source_errors_total", "Transport read errors", "source")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.queueSize = m.gauge("queue_size", "Current size of the ingest queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum ingest queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of samples enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of samples dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Queue enqueue latency in milliseconds", m.histogramBuckets)

	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Ingest worker latency per sample", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of ingest worker errors")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Ingest Metrics Functions.

// RecordSampleReceived increments the received samples counter.
func RecordSampleReceived() {
	globalManager.samplesReceived.Inc()
}

// RecordSampleSkipped increments the skipped samples counter for reason.
func RecordSampleSkipped(reason string) {
	globalManager.samplesSkipped.WithLabelValues(reason).Inc()
}

// RecordSampleDuplicate increments the duplicate samples counter.
func RecordSampleDuplicate() {
	globalManager.samplesDuplicate.Inc()
}

// RecordReadingStored increments the stored readings counter.
func RecordReadingStored() {
	globalManager.readingsStored.Inc()
}

// RecordSampleProcessingLatency records per-sample processing latency in milliseconds.
func RecordSampleProcessingLatency(latencyMs float64) {
	globalManager.normalizeLatency.Observe(latencyMs)
}

// ObserveReading publishes the derived values of the most recent reading.
func ObserveReading(speedKmh, accelerationG float64, mode string, modes []string) {
	globalManager.speedKmh.Set(speedKmh)
	globalManager.accelerationG.Observe(accelerationG)
	for _, m := range modes {
		v := 0.0
		if m == mode {
			v = 1
		}
		globalManager.rideMode.WithLabelValues(m).Set(v)
	}
}

// History Metrics Functions.

// UpdateHistorySize sets the number of readings retained.
func UpdateHistorySize(size int) {
	globalManager.historySize.Set(float64(size))
}

// UpdateHistoryCapacity sets the history capacity.
func UpdateHistoryCapacity(capacity int) {
	globalManager.historyCapacity.Set(float64(capacity))
}

// RecordHistoryEviction increments the eviction counter.
func RecordHistoryEviction() {
	globalManager.historyEvicted.Inc()
}

// Crash / Emergency Metrics Functions.

// RecordCrashSignal increments the crash signal counter.
func RecordCrashSignal() {
	globalManager.crashSignals.Inc()
}

// RecordCrashSignalIgnored increments the counter of signals received mid-episode.
func RecordCrashSignalIgnored() {
	globalManager.crashSignalsIgnored.Inc()
}

// RecordEpisodeStarted increments the started episodes counter and marks the emergency active.
func RecordEpisodeStarted(seconds int) {
	globalManager.episodesStarted.Inc()
	globalManager.emergencyActive.Set(1)
	globalManager.countdownRemaining.Set(float64(seconds))
}

// RecordEpisodeEnded records the outcome of an episode and marks the emergency idle.
func RecordEpisodeEnded(outcome string) {
	globalManager.episodesEnded.WithLabelValues(outcome).Inc()
	globalManager.emergencyActive.Set(0)
	globalManager.countdownRemaining.Set(0)
}

// UpdateCountdownRemaining sets the seconds remaining on the active countdown.
func UpdateCountdownRemaining(seconds int) {
	globalManager.countdownRemaining.Set(float64(seconds))
}

// RecordCallPlacement records a call placement attempt by result ("ok" or "error").
func RecordCallPlacement(result string) {
	globalManager.callPlacements.WithLabelValues(result).Inc()
}

// Positioning Metrics Functions.

// RecordFallbackLookup records a fallback position lookup by result and latency.
func RecordFallbackLookup(result string, latencyMs float64) {
	globalManager.fallbackLookups.WithLabelValues(result).Inc()
	globalManager.fallbackLatency.Observe(latencyMs)
}

// Source Metrics Functions.

// RecordSourceRead increments the read counter for a transport.
func RecordSourceRead(source string) {
	globalManager.sourceReads.WithLabelValues(source).Inc()
}

// RecordSourceError increments the error counter for a transport.
func RecordSourceError(source string) {
	globalManager.sourceErrors.WithLabelValues(source).Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

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

// Configure replaces the global manager with one built from opts on a fresh
// registry. Call it once at startup, before handlers capture GetRegistry.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithRegistry(registry))...)
	customRegistry = registry
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Enabled reports whether the global manager was configured to collect metrics.
func Enabled() bool {
	return globalManager.enabled
}

// RefreshInterval returns the configured interval for periodic gauge refreshes.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}
