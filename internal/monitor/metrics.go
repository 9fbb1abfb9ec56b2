package monitor

import (
	"context"
	"database/sql"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector business and HTTP metrics. A nil collector is valid and
// records nothing, so services can be built without metrics in tests.
type MetricsCollector struct {
	// business
	orderCreationTotal    *prometheus.CounterVec
	orderTransitionTotal  *prometheus.CounterVec
	chatMessageTotal      *prometheus.CounterVec
	paymentEventTotal     *prometheus.CounterVec
	userRegistrationTotal *prometheus.CounterVec
	userLoginTotal        *prometheus.CounterVec

	// http
	httpRequestTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// database pool
	dbConnections *prometheus.GaugeVec

	// runtime
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
	gcDuration     prometheus.Gauge
}

// NewMetricsCollector registers all metrics on reg under namespace
func NewMetricsCollector(reg prometheus.Registerer, namespace string) *MetricsCollector {
	f := promauto.With(reg)
	return &MetricsCollector{
		orderCreationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_creation_total",
			Help:      "Total number of order creations",
		}, []string{"status"}),
		orderTransitionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transition_total",
			Help:      "Applied order status transitions",
		}, []string{"from", "to"}),
		chatMessageTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_message_total",
			Help:      "Chat messages sent",
		}, []string{"type"}),
		paymentEventTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_event_total",
			Help:      "Payment intent events",
		}, []string{"event"}),
		userRegistrationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_registration_total",
			Help:      "Total number of user registrations",
		}, []string{"status"}),
		userLoginTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_login_total",
			Help:      "Total number of user logins",
		}, []string{"status"}),

		httpRequestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpResponseSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "Size of HTTP responses",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		}, []string{"method", "path"}),

		dbConnections: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections",
			Help:      "Database pool connections by state",
		}, []string{"state"}),

		memoryUsage: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Allocated heap bytes",
		}),
		goroutineCount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines",
			Help:      "Number of goroutines",
		}),
		gcDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gc_pause_total_seconds",
			Help:      "Total GC pause time",
		}),
	}
}

// RecordOrderCreation records an order creation attempt
func (mc *MetricsCollector) RecordOrderCreation(status string) {
	if mc == nil {
		return
	}
	mc.orderCreationTotal.WithLabelValues(status).Inc()
}

// RecordOrderTransition records an applied status change
func (mc *MetricsCollector) RecordOrderTransition(from, to string) {
	if mc == nil {
		return
	}
	mc.orderTransitionTotal.WithLabelValues(from, to).Inc()
}

// RecordChatMessage records a sent message
func (mc *MetricsCollector) RecordChatMessage(messageType string) {
	if mc == nil {
		return
	}
	mc.chatMessageTotal.WithLabelValues(messageType).Inc()
}

// RecordPaymentEvent records intent_created, confirmed, duplicate or rejected
func (mc *MetricsCollector) RecordPaymentEvent(event string) {
	if mc == nil {
		return
	}
	mc.paymentEventTotal.WithLabelValues(event).Inc()
}

// RecordUserRegistration records a registration outcome
func (mc *MetricsCollector) RecordUserRegistration(status string) {
	if mc == nil {
		return
	}
	mc.userRegistrationTotal.WithLabelValues(status).Inc()
}

// RecordUserLogin records a login outcome
func (mc *MetricsCollector) RecordUserLogin(status string) {
	if mc == nil {
		return
	}
	mc.userLoginTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records one served request. path is the route template.
func (mc *MetricsCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration, size int) {
	if mc == nil {
		return
	}
	mc.httpRequestTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	mc.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	if size >= 0 {
		mc.httpResponseSize.WithLabelValues(method, path).Observe(float64(size))
	}
}

// UpdateDBStats copies pool statistics into gauges
func (mc *MetricsCollector) UpdateDBStats(stats sql.DBStats) {
	if mc == nil {
		return
	}
	mc.dbConnections.WithLabelValues("open").Set(float64(stats.OpenConnections))
	mc.dbConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	mc.dbConnections.WithLabelValues("idle").Set(float64(stats.Idle))
}

// UpdateSystemMetrics samples runtime statistics
func (mc *MetricsCollector) UpdateSystemMetrics() {
	if mc == nil {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mc.memoryUsage.Set(float64(m.Alloc))
	mc.goroutineCount.Set(float64(runtime.NumGoroutine()))
	mc.gcDuration.Set(float64(m.PauseTotalNs) / 1e9)
}

// StartSystemMetricsCollection samples runtime and pool statistics every
// interval until ctx is done. dbStats may be nil.
func (mc *MetricsCollector) StartSystemMetricsCollection(ctx context.Context, interval time.Duration, dbStats func() sql.DBStats) {
	if mc == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.UpdateSystemMetrics()
			if dbStats != nil {
				mc.UpdateDBStats(dbStats())
			}
		}
	}
}
