package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the application metrics
type Metrics struct {
	// HTTP request metrics
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Admission gate metrics
	GateDecisionTotal      *prometheus.CounterVec
	GateDistanceMeters     *prometheus.HistogramVec
	CheckinRecordedTotal   *prometheus.CounterVec
	ReviewSavedTotal       *prometheus.CounterVec
	ShareConfirmedTotal    prometheus.Counter
	BadgeEvaluationSeconds prometheus.Histogram

	// Storage operation metrics
	StorageOperationTotal    *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Event publishing metrics
	EventPublishTotal    *prometheus.CounterVec
	EventPublishDuration *prometheus.HistogramVec
}

// Global metrics instance with mutex for thread safety
var (
	globalMetrics *Metrics
	metricsMutex  sync.Mutex
)

// NewMetrics creates a new Metrics instance with all required metrics
func NewMetrics() *Metrics {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	// Return existing instance if already created
	if globalMetrics != nil {
		return globalMetrics
	}

	m := &Metrics{
		// HTTP request metrics
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		// Admission gate metrics. decision is admitted|rejected; reason is
		// the gate's failure reason or "ok".
		GateDecisionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_decisions_total",
			Help: "Total number of admission gate evaluations",
		}, []string{"decision", "reason"}),

		GateDistanceMeters: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gate_distance_meters",
			Help:    "Distance to nearest checkpoint at gate evaluation",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}, []string{"decision"}),

		CheckinRecordedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkins_recorded_total",
			Help: "Total number of completion records written",
		}, []string{"outcome"}), // created|replayed

		ReviewSavedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviews_saved_total",
			Help: "Total number of reviews saved",
		}, []string{"outcome"}), // created|updated

		ShareConfirmedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shares_confirmed_total",
			Help: "Total number of share bonuses confirmed",
		}),

		BadgeEvaluationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "badge_evaluation_duration_seconds",
			Help:    "Badge catalog evaluation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		// Storage operation metrics
		StorageOperationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Total number of storage operations",
		}, []string{"operation", "status"}),

		StorageOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),

		// Event publishing metrics
		EventPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "event_publish_total",
			Help: "Total number of event publish operations",
		}, []string{"event_type", "status"}),

		EventPublishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "event_publish_duration_seconds",
			Help:    "Event publish duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"event_type", "status"}),
	}

	// Register metrics with the default registry
	registerMetrics(m)

	// Store as global instance
	globalMetrics = m

	return m
}

// registerMetrics registers all metrics with the default registry
func registerMetrics(m *Metrics) {
	// Try to register each metric, ignore if already registered
	registerOrGet(m.HTTPRequestTotal)
	registerOrGet(m.HTTPRequestDuration)
	registerOrGet(m.GateDecisionTotal)
	registerOrGet(m.GateDistanceMeters)
	registerOrGet(m.CheckinRecordedTotal)
	registerOrGet(m.ReviewSavedTotal)
	registerOrGet(m.ShareConfirmedTotal)
	registerOrGet(m.BadgeEvaluationSeconds)
	registerOrGet(m.StorageOperationTotal)
	registerOrGet(m.StorageOperationDuration)
	registerOrGet(m.EventPublishTotal)
	registerOrGet(m.EventPublishDuration)
}

// registerOrGet tries to register a metric, returns the existing one if already registered
func registerOrGet(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		// If already registered, return the existing collector
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}
