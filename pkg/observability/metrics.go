package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Analytics metrics
	SnapshotDuration *prometheus.HistogramVec
	RollupsGenerated *prometheus.CounterVec
	RecordsProcessed *prometheus.CounterVec

	// Cache metrics
	CacheRequestsTotal *prometheus.CounterVec

	// Storage metrics
	StoreErrorsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		SnapshotDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_snapshot_duration_seconds",
				Help:    "Time spent computing a live metrics snapshot",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"period"},
		),
		RollupsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_rollups_generated_total",
				Help: "Total number of rollup generations",
			},
			[]string{"period", "status"},
		),
		RecordsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_records_processed_total",
				Help: "Total number of raw records read or written",
			},
			[]string{"operation"},
		),

		CacheRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_cache_requests_total",
				Help: "Total number of result cache lookups",
			},
			[]string{"result"},
		),

		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_store_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"operation"},
		),

		DBConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tally_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tally_db_connections_in_use",
				Help: "Number of database connections in use",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.SnapshotDuration,
		m.RollupsGenerated,
		m.RecordsProcessed,
		m.CacheRequestsTotal,
		m.StoreErrorsTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
	)

	return m
}

// ObserveSnapshot records how long a snapshot for period took
func (m *Metrics) ObserveSnapshot(period string, d time.Duration) {
	if m == nil {
		return
	}
	m.SnapshotDuration.WithLabelValues(period).Observe(d.Seconds())
}

// RollupGenerated counts one rollup generation attempt
func (m *Metrics) RollupGenerated(period string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RollupsGenerated.WithLabelValues(period, status).Inc()
}

// RecordsTouched adds n to the records counter for operation ("read", "ingest")
func (m *Metrics) RecordsTouched(operation string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsProcessed.WithLabelValues(operation).Add(float64(n))
}

// CacheResult counts a cache lookup outcome ("hit", "miss", "error")
func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.CacheRequestsTotal.WithLabelValues(result).Inc()
}

// StoreError counts a failed storage operation
func (m *Metrics) StoreError(operation string) {
	if m == nil {
		return
	}
	m.StoreErrorsTotal.WithLabelValues(operation).Inc()
}

// DBStats publishes connection pool gauges
func (m *Metrics) DBStats(open, inUse int) {
	if m == nil {
		return
	}
	m.DBConnectionsOpen.Set(float64(open))
	m.DBConnectionsInUse.Set(float64(inUse))
}

// responseWriter wraps http.ResponseWriter to capture the status code and body size
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	return n, err
}

// HTTPMetricsMiddleware instruments requests. Routes are labelled by their mux
// path template so account-specific URLs do not explode label cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.written))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
