// Package metrics provides Prometheus metrics for the twinpot game service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the game session engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Session lifecycle metrics
	sessionsCreated   *prometheus.CounterVec
	sessionsSettled   prometheus.Counter
	sessionsCancelled prometheus.Counter
	sessionsLive      prometheus.Gauge

	// Move metrics
	movesProcessed prometheus.Counter
	movesRejected  *prometheus.CounterVec
	moveLatency    prometheus.Histogram

	// Anti-cheat metrics
	anticheatStrikes    prometheus.Counter
	anticheatRejections prometheus.Counter

	// Settlement and ledger metrics
	settlementDuration prometheus.Histogram
	settlementFailures prometheus.Counter
	ledgerCalls        *prometheus.CounterVec
	ledgerLatency      prometheus.Histogram

	// Task queue and worker metrics
	queueSize       prometheus.Gauge
	queueCapacity   prometheus.Gauge
	queueEnqueues   prometheus.Counter
	queueDequeues   prometheus.Counter
	queueRejections prometheus.Counter
	workerActive    prometheus.Gauge
	workerErrors    prometheus.Counter
	taskLatency     prometheus.Histogram

	// Durability and delivery metrics
	persistenceErrors prometheus.Counter
	notifyDropped     prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid the default Go collectors.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // singleton registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "twinpot",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.sessionsCreated = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "sessions_created_total",
			Help:      "Total number of game sessions created by mode",
		},
		[]string{"mode"},
	)

	m.sessionsSettled = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_settled_total",
		Help:      "Total number of staked sessions settled",
	})

	m.sessionsCancelled = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_cancelled_total",
		Help:      "Total number of sessions cancelled by the expiry sweep",
	})

	m.sessionsLive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_live",
		Help:      "Current number of sessions held in the runtime state store",
	})

	m.movesProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "moves_processed_total",
		Help:      "Total number of accepted move submissions",
	})

	m.movesRejected = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "moves_rejected_total",
			Help:      "Total number of rejected move submissions by reason",
		},
		[]string{"reason"},
	)

	m.moveLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "move_latency_milliseconds",
		Help:      "Histogram of move submission processing latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.anticheatStrikes = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "anticheat_strikes_total",
		Help:      "Total number of suspiciously fast moves observed",
	})

	m.anticheatRejections = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "anticheat_rejections_total",
		Help:      "Total number of moves rejected by the anti-cheat guard",
	})

	m.settlementDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "settlement_duration_milliseconds",
		Help:      "Histogram of settlement execution time in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.settlementFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "settlement_failures_total",
		Help:      "Total number of settlements left pending after a ledger failure",
	})

	m.ledgerCalls = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "ledger_calls_total",
			Help:      "Total number of ledger port calls by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	m.ledgerLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "ledger_latency_milliseconds",
		Help:      "Histogram of ledger port call latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "task_queue_size",
		Help:      "Current number of pending ledger follow-up tasks",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "task_queue_capacity",
		Help:      "Maximum task queue capacity",
	})

	m.queueEnqueues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "task_queue_enqueue_total",
		Help:      "Total number of tasks enqueued",
	})

	m.queueDequeues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "task_queue_dequeue_total",
		Help:      "Total number of tasks dequeued",
	})

	m.queueRejections = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "task_queue_rejections_total",
		Help:      "Total number of tasks rejected by a full or closed queue",
	})

	m.workerActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_active_count",
		Help:      "Number of running ledger task workers",
	})

	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_errors_total",
		Help:      "Total number of worker task failures",
	})

	m.taskLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_task_latency_milliseconds",
		Help:      "Histogram of ledger task processing latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.persistenceErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "persistence_errors_total",
		Help:      "Total number of non-fatal persistence port failures",
	})

	m.notifyDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notifications_dropped_total",
		Help:      "Total number of notifications dropped by slow subscribers",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// RecordSessionCreated increments the created counter for a session mode.
func RecordSessionCreated(mode string) {
	globalManager.sessionsCreated.WithLabelValues(mode).Inc()
}

// RecordSessionSettled increments the settled sessions counter.
func RecordSessionSettled() {
	globalManager.sessionsSettled.Inc()
}

// RecordSessionCancelled increments the cancelled sessions counter.
func RecordSessionCancelled() {
	globalManager.sessionsCancelled.Inc()
}

// UpdateLiveSessions sets the number of sessions in the runtime store.
func UpdateLiveSessions(count int) {
	globalManager.sessionsLive.Set(float64(count))
}

// RecordMoveProcessed increments the accepted moves counter.
func RecordMoveProcessed() {
	globalManager.movesProcessed.Inc()
}

// RecordMoveRejected increments the rejected moves counter for a reason.
func RecordMoveRejected(reason string) {
	globalManager.movesRejected.WithLabelValues(reason).Inc()
}

// RecordMoveLatency records move processing latency in milliseconds.
func RecordMoveLatency(latencyMs float64) {
	globalManager.moveLatency.Observe(latencyMs)
}

// RecordAnticheatStrike increments the suspicious move counter.
func RecordAnticheatStrike() {
	globalManager.anticheatStrikes.Inc()
}

// RecordAnticheatRejection increments the anti-cheat rejection counter.
func RecordAnticheatRejection() {
	globalManager.anticheatRejections.Inc()
}

// RecordSettlementDuration records settlement execution time in milliseconds.
func RecordSettlementDuration(latencyMs float64) {
	globalManager.settlementDuration.Observe(latencyMs)
}

// RecordSettlementFailure increments the settlement failure counter.
func RecordSettlementFailure() {
	globalManager.settlementFailures.Inc()
}

// RecordLedgerCall increments the ledger call counter for an operation.
func RecordLedgerCall(op, outcome string) {
	globalManager.ledgerCalls.WithLabelValues(op, outcome).Inc()
}

// RecordLedgerLatency records ledger call latency in milliseconds.
func RecordLedgerLatency(latencyMs float64) {
	globalManager.ledgerLatency.Observe(latencyMs)
}

// UpdateQueueSize sets the current task queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum task queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueues.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeues.Inc()
}

// RecordQueueRejection increments the queue rejection counter.
func RecordQueueRejection() {
	globalManager.queueRejections.Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordTaskLatency records worker task latency in milliseconds.
func RecordTaskLatency(latencyMs float64) {
	globalManager.taskLatency.Observe(latencyMs)
}

// RecordPersistenceError increments the persistence failure counter.
func RecordPersistenceError() {
	globalManager.persistenceErrors.Inc()
}

// RecordNotificationDropped increments the dropped notification counter.
func RecordNotificationDropped() {
	globalManager.notifyDropped.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
