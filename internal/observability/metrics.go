package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Result label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// MetricsManager manages Prometheus metrics
type MetricsManager struct {
	logger   *zap.SugaredLogger
	registry *prometheus.Registry

	uptime       prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	// Supervisor metrics
	backendStatus     *prometheus.GaugeVec
	launches          *prometheus.CounterVec
	restarts          *prometheus.CounterVec
	healthChecks      *prometheus.CounterVec
	healthDuration    prometheus.Histogram
	portDiscovery     prometheus.Histogram
	statusTransitions *prometheus.CounterVec
}

// NewMetricsManager creates a new metrics manager
func NewMetricsManager(logger *zap.SugaredLogger) *MetricsManager {
	registry := prometheus.NewRegistry()

	mm := &MetricsManager{
		logger:   logger,
		registry: registry,
	}

	mm.initMetrics()
	mm.registerMetrics()

	return mm
}

// initMetrics initializes all Prometheus metrics
func (mm *MetricsManager) initMetrics() {
	mm.uptime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ninebox_shell_uptime_seconds",
		Help: "Time since the shell started",
	})

	// IPC metrics
	mm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ninebox_ipc_requests_total",
			Help: "Total number of IPC requests",
		},
		[]string{"method", "path", "status"},
	)

	mm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ninebox_ipc_request_duration_seconds",
			Help:    "IPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	mm.backendStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ninebox_backend_status",
			Help: "Current backend connection status (1 for the active status)",
		},
		[]string{"status"},
	)

	mm.launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ninebox_backend_launches_total",
			Help: "Total number of backend launches",
		},
		[]string{"result"}, // result: success, or the failure kind
	)

	mm.restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ninebox_backend_restarts_total",
			Help: "Total number of backend restart attempts",
		},
		[]string{"result"},
	)

	mm.healthChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ninebox_health_checks_total",
			Help: "Total number of health monitor checks",
		},
		[]string{"result"},
	)

	mm.healthDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ninebox_health_check_duration_seconds",
			Help:    "Duration of a single health check",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
	)

	mm.portDiscovery = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ninebox_port_discovery_duration_seconds",
			Help:    "Time from spawn until the backend reported its port",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15},
		},
	)

	mm.statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ninebox_backend_status_transitions_total",
			Help: "Total number of connection status transitions",
		},
		[]string{"from_status", "to_status"},
	)
}

// registerMetrics registers all metrics with the registry
func (mm *MetricsManager) registerMetrics() {
	mm.registry.MustRegister(
		mm.uptime,
		mm.httpRequests,
		mm.httpDuration,
		mm.backendStatus,
		mm.launches,
		mm.restarts,
		mm.healthChecks,
		mm.healthDuration,
		mm.portDiscovery,
		mm.statusTransitions,
	)

	// Also register Go runtime metrics
	mm.registry.MustRegister(collectors.NewGoCollector())
	mm.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler returns an HTTP handler for the /metrics endpoint
func (mm *MetricsManager) Handler() http.Handler {
	return promhttp.HandlerFor(mm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry for custom metrics
func (mm *MetricsManager) Registry() *prometheus.Registry {
	return mm.registry
}

// SetUptime sets the uptime metric
func (mm *MetricsManager) SetUptime(startTime time.Time) {
	mm.uptime.Set(time.Since(startTime).Seconds())
}

// RecordHTTPRequest records an IPC request
func (mm *MetricsManager) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	mm.httpRequests.WithLabelValues(method, path, status).Inc()
	mm.httpDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// SetBackendStatus marks status as the active one among all known statuses
func (mm *MetricsManager) SetBackendStatus(status string, known []string) {
	for _, s := range known {
		v := 0.0
		if s == status {
			v = 1
		}
		mm.backendStatus.WithLabelValues(s).Set(v)
	}
}

// RecordStatusTransition records a connection status change
func (mm *MetricsManager) RecordStatusTransition(from, to string) {
	mm.statusTransitions.WithLabelValues(from, to).Inc()
}

// RecordLaunch records a backend launch and, on success, how long port discovery took
func (mm *MetricsManager) RecordLaunch(result string, discovery time.Duration) {
	mm.launches.WithLabelValues(result).Inc()
	if result == ResultSuccess {
		mm.portDiscovery.Observe(discovery.Seconds())
	}
}

// RecordRestart records a restart attempt outcome
func (mm *MetricsManager) RecordRestart(success bool) {
	mm.restarts.WithLabelValues(resultLabel(success)).Inc()
}

// RecordHealthCheck records one health monitor check
func (mm *MetricsManager) RecordHealthCheck(healthy bool, duration time.Duration) {
	mm.healthChecks.WithLabelValues(resultLabel(healthy)).Inc()
	mm.healthDuration.Observe(duration.Seconds())
}

// HTTPMiddleware returns middleware that records IPC request metrics
func (mm *MetricsManager) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			mm.RecordHTTPRequest(r.Method, r.URL.Path, http.StatusText(ww.statusCode), time.Since(start))
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming handlers working behind the middleware
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func resultLabel(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}
