package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
	removedEntriesBuckets  = []float64{0, 1, 2, 5, 10, 50, 100, 500}
)

// breakerStateValues maps circuit breaker state names to gauge values.
var breakerStateValues = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// Metrics holds all Prometheus metric instruments for storedesk. It satisfies
// the recorder interfaces of the backend, querycache and resource packages.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Commerce API metrics
	BackendRequestsTotal       *prometheus.CounterVec
	BackendRequestDuration     *prometheus.HistogramVec
	BackendCircuitBreakerState prometheus.Gauge

	// Query cache metrics
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        *prometheus.CounterVec
	CacheSharedTotal        *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec
	CacheEntriesRemoved     *prometheus.HistogramVec

	// Mutation metrics
	MutationsTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storedesk_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storedesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storedesk_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storedesk_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Commerce API
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storedesk_backend_requests_total",
			Help: "Total number of commerce API requests.",
		}, []string{"method", "route", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storedesk_backend_request_duration_seconds",
			Help:    "Commerce API request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"method", "route"}),
		BackendCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storedesk_backend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),

		// Query cache
		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storedesk_query_cache_hits_total",
			Help: "Total query cache hits.",
		}, []string{"resource"}),
		CacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storedesk_query_cache_misses_total",
			Help: "Total query cache misses.",
		}, []string{"resource"}),
		CacheSharedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storedesk_query_cache_shared_total",
			Help: "Total reads served by joining an in-flight fetch.",
		}, []string{"resource"}),
		CacheInvalidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storedesk_query_cache_invalidations_total",
			Help: "Total prefix invalidations.",
		}, []string{"resource"}),
		CacheEntriesRemoved: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storedesk_query_cache_entries_removed",
			Help:    "Entries removed per prefix invalidation.",
			Buckets: removedEntriesBuckets,
		}, []string{"resource"}),

		// Mutations
		MutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storedesk_mutations_total",
			Help: "Total mutations by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendCircuitBreakerState,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheSharedTotal,
		m.CacheInvalidationsTotal,
		m.CacheEntriesRemoved,
		m.MutationsTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordBackendRequest records one commerce API attempt. Status is 0 when no
// response was received.
func (m *Metrics) RecordBackendRequest(method, route string, status int, duration time.Duration) {
	m.BackendRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordCircuitBreakerState sets the breaker gauge. Unknown names are ignored.
func (m *Metrics) RecordCircuitBreakerState(state string) {
	if v, ok := breakerStateValues[state]; ok {
		m.BackendCircuitBreakerState.Set(v)
	}
}

// RecordCacheHit records a query cache hit.
func (m *Metrics) RecordCacheHit(resource string) {
	m.CacheHitsTotal.WithLabelValues(resource).Inc()
}

// RecordCacheMiss records a query cache miss.
func (m *Metrics) RecordCacheMiss(resource string) {
	m.CacheMissesTotal.WithLabelValues(resource).Inc()
}

// RecordCacheShared records a read that joined an in-flight fetch.
func (m *Metrics) RecordCacheShared(resource string) {
	m.CacheSharedTotal.WithLabelValues(resource).Inc()
}

// RecordCacheInvalidation records a prefix invalidation and how many entries
// it removed.
func (m *Metrics) RecordCacheInvalidation(resource string, removed int) {
	m.CacheInvalidationsTotal.WithLabelValues(resource).Inc()
	m.CacheEntriesRemoved.WithLabelValues(resource).Observe(float64(removed))
}

// RecordMutation records a mutation outcome: ok, failed or invalid.
func (m *Metrics) RecordMutation(operation, outcome string) {
	m.MutationsTotal.WithLabelValues(operation, outcome).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
