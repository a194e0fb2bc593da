package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// HTTP metrics
	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec
	ErrorTotal      *prometheus.CounterVec

	// Appointment lifecycle metrics
	AppointmentOperations *prometheus.CounterVec

	// Dashboard metrics
	DashboardQueryDuration *prometheus.HistogramVec
	CacheRequests          *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec

	// Redis metrics
	RedisOperations *prometheus.CounterVec
	RedisLatency    *prometheus.HistogramVec

	// Audit retention metrics
	AuditLogsPurged prometheus.Counter
}

// New creates all application metrics and registers them with reg. Tests
// pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		RequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		ErrorTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Total number of HTTP errors",
		}, []string{"method", "path", "type"}),

		AppointmentOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_operations_total",
			Help:      "Total number of appointment lifecycle operations",
		}, []string{"operation", "status"}),

		DashboardQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dashboard_query_duration_seconds",
			Help:      "Duration of dashboard aggregations",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"query"}),
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_cache_requests_total",
			Help:      "Dashboard cache lookups by result",
		}, []string{"result"}),

		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of database operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),

		RedisOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redis_operations_total",
			Help:      "Total number of Redis operations",
		}, []string{"operation", "status"}),
		RedisLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "redis_operation_duration_seconds",
			Help:      "Duration of Redis operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"operation"}),

		AuditLogsPurged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_logs_purged_total",
			Help:      "Total number of audit rows removed by retention cleanup",
		}),
	}
}

// NewNop returns metrics registered on a private registry, for tests and tools.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry(), "test")
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveAppointment counts one lifecycle operation.
func (m *Metrics) ObserveAppointment(operation string, err error) {
	if m == nil {
		return
	}
	m.AppointmentOperations.WithLabelValues(operation, statusLabel(err)).Inc()
}

// ObserveDashboard records the latency of one aggregation.
func (m *Metrics) ObserveDashboard(query string, start time.Time) {
	if m == nil {
		return
	}
	m.DashboardQueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
}

// ObserveCache counts a cache lookup; result is hit, miss or error.
func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

// ObserveRedis records one redis round trip.
func (m *Metrics) ObserveRedis(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.RedisOperations.WithLabelValues(operation, statusLabel(err)).Inc()
	m.RedisLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveDatabase records one database round trip.
func (m *Metrics) ObserveDatabase(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.DatabaseOperations.WithLabelValues(operation, statusLabel(err)).Inc()
	m.DatabaseLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
