// Package metrics provides Prometheus metrics for the mudra gesture service.
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

// Manager manages all Prometheus metrics for the mudra service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Gateway Metrics - Outcome of every identity-checked call
	gatewayCalls *prometheus.CounterVec
	rateLimited  *prometheus.CounterVec
	xpGranted    prometheus.Counter
	runsAccepted prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Store Metrics - Backing storage performance
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// Pipeline Metrics - Client-side recognition pipeline (simulator)
	framesProcessed prometheus.Counter
	framesOccluded  prometheus.Counter
	stableGestures  *prometheus.CounterVec
	runsCompleted   *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "mudra",
		subsystem:        "gateway",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.gatewayCalls = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "calls_total",
			Help:      "Total gateway calls by operation and outcome reason",
		},
		[]string{"op", "reason"},
	)

	m.rateLimited = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "rate_limited_total",
			Help:      "Total calls rejected by the fixed-window rate limiter, by bucket",
		},
		[]string{"bucket"},
	)

	m.xpGranted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "xp_granted_total",
		Help:      "Total XP granted across all reconciled submissions",
	})

	m.runsAccepted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_accepted_total",
		Help:      "Total rank runs accepted after token and identity checks",
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

	m.storeLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "store_latency_milliseconds",
			Help:      "Backing store operation latency in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"op"},
	)

	m.storeErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "store_errors_total",
			Help:      "Total backing store errors by operation",
		},
		[]string{"op"},
	)

	m.framesProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "pipeline",
		Name:      "frames_processed_total",
		Help:      "Total landmark frames pushed through the recognition pipeline",
	})

	m.framesOccluded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "pipeline",
		Name:      "frames_occluded_total",
		Help:      "Total frames where at least one tracked hand was occluded",
	})

	m.stableGestures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "pipeline",
			Name:      "stable_gestures_total",
			Help:      "Total gestures that passed vote smoothing, by label",
		},
		[]string{"label"},
	)

	m.runsCompleted = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "pipeline",
			Name:      "runs_completed_total",
			Help:      "Total runs driven to completion, by mode",
		},
		[]string{"mode"},
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

// RecordGatewayCall records one gateway call outcome.
func RecordGatewayCall(op, reason string) {
	globalManager.gatewayCalls.WithLabelValues(op, reason).Inc()
}

// RecordRateLimited increments the rate-limited counter for a bucket.
func RecordRateLimited(bucket string) {
	globalManager.rateLimited.WithLabelValues(bucket).Inc()
}

// RecordXPGranted adds a granted XP amount to the running total.
func RecordXPGranted(amount float64) {
	if amount > 0 {
		globalManager.xpGranted.Add(amount)
	}
}

// RecordRunAccepted increments the accepted-runs counter.
func RecordRunAccepted() {
	globalManager.runsAccepted.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordStoreLatency records a backing store operation latency.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordStoreError increments the store error counter for an operation.
func RecordStoreError(op string) {
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// RecordFrameProcessed increments the processed-frames counter.
func RecordFrameProcessed() {
	globalManager.framesProcessed.Inc()
}

// RecordFrameOccluded increments the occluded-frames counter.
func RecordFrameOccluded() {
	globalManager.framesOccluded.Inc()
}

// RecordStableGesture counts a gesture that survived vote smoothing.
func RecordStableGesture(label string) {
	globalManager.stableGestures.WithLabelValues(label).Inc()
}

// RecordRunCompleted counts a run driven to completion.
func RecordRunCompleted(mode string) {
	globalManager.runsCompleted.WithLabelValues(mode).Inc()
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
