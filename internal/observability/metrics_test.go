package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pitabwire/storedesk/internal/backend"
	"github.com/pitabwire/storedesk/internal/querycache"
	"github.com/pitabwire/storedesk/internal/resource"
)

var (
	_ backend.Recorder    = (*Metrics)(nil)
	_ querycache.Recorder = (*Metrics)(nil)
	_ resource.Recorder   = (*Metrics)(nil)
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	return m, reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)
	if m == nil {
		t.Fatal("InitMetrics returned nil")
	}

	expected := []string{
		"storedesk_http_requests_total",
		"storedesk_http_request_duration_seconds",
		"storedesk_http_request_size_bytes",
		"storedesk_http_response_size_bytes",
		"storedesk_backend_requests_total",
		"storedesk_backend_request_duration_seconds",
		"storedesk_backend_circuit_breaker_state",
		"storedesk_query_cache_hits_total",
		"storedesk_query_cache_misses_total",
		"storedesk_query_cache_shared_total",
		"storedesk_query_cache_invalidations_total",
		"storedesk_query_cache_entries_removed",
		"storedesk_mutations_total",
	}

	// Record a value for each vector so it appears in Gather.
	m.RecordHTTPRequest("GET", "/test", 200, time.Millisecond, 0, 100)
	m.RecordBackendRequest("GET", "/admin/products", 200, time.Millisecond)
	m.RecordCircuitBreakerState("closed")
	m.RecordCacheHit("products")
	m.RecordCacheMiss("products")
	m.RecordCacheShared("products")
	m.RecordCacheInvalidation("products", 3)
	m.RecordMutation("vendor_price.upsert", "ok")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordHTTPRequest("GET", "/ui/views/{viewId}/data", 200, 50*time.Millisecond, 0, 1024)
	m.RecordHTTPRequest("GET", "/ui/views/{viewId}/data", 200, 100*time.Millisecond, 0, 2048)
	m.RecordHTTPRequest("POST", "/ui/variants/prices/batch", 500, 200*time.Millisecond, 512, 256)

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/ui/views/{viewId}/data", "200"))
	if val != 2 {
		t.Errorf("GET requests = %v, want 2", val)
	}
	val = testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/ui/variants/prices/batch", "500"))
	if val != 1 {
		t.Errorf("POST requests = %v, want 1", val)
	}
}

func TestRecordBackendRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordBackendRequest("GET", "/admin/products", 200, 10*time.Millisecond)
	m.RecordBackendRequest("GET", "/admin/products", 0, 10*time.Millisecond)

	if val := testutil.ToFloat64(m.BackendRequestsTotal.WithLabelValues("GET", "/admin/products", "200")); val != 1 {
		t.Errorf("200 requests = %v, want 1", val)
	}
	if val := testutil.ToFloat64(m.BackendRequestsTotal.WithLabelValues("GET", "/admin/products", "0")); val != 1 {
		t.Errorf("transport failures = %v, want 1", val)
	}
}

func TestRecordCircuitBreakerState(t *testing.T) {
	m, _ := newTestMetrics(t)

	tests := []struct {
		state string
		want  float64
	}{
		{"open", 2},
		{"half-open", 1},
		{"closed", 0},
	}
	for _, tt := range tests {
		m.RecordCircuitBreakerState(tt.state)
		if got := testutil.ToFloat64(m.BackendCircuitBreakerState); got != tt.want {
			t.Errorf("state %q gauge = %v, want %v", tt.state, got, tt.want)
		}
	}

	m.RecordCircuitBreakerState("open")
	m.RecordCircuitBreakerState("bogus")
	if got := testutil.ToFloat64(m.BackendCircuitBreakerState); got != 2 {
		t.Errorf("unknown state changed gauge to %v, want 2", got)
	}
}

func TestRecordCacheEvents(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordCacheHit("products")
	m.RecordCacheHit("products")
	m.RecordCacheMiss("products")
	m.RecordCacheShared("customers")

	if val := testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("products")); val != 2 {
		t.Errorf("hits = %v, want 2", val)
	}
	if val := testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("products")); val != 1 {
		t.Errorf("misses = %v, want 1", val)
	}
	if val := testutil.ToFloat64(m.CacheSharedTotal.WithLabelValues("customers")); val != 1 {
		t.Errorf("shared = %v, want 1", val)
	}
}

func TestRecordCacheInvalidation(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordCacheInvalidation("vendor_variant_price", 4)
	m.RecordCacheInvalidation("vendor_variant_price", 0)

	if val := testutil.ToFloat64(m.CacheInvalidationsTotal.WithLabelValues("vendor_variant_price")); val != 2 {
		t.Errorf("invalidations = %v, want 2", val)
	}
	if count := testutil.CollectAndCount(m.CacheEntriesRemoved); count != 1 {
		t.Errorf("removed histogram series = %d, want 1", count)
	}
}

func TestRecordMutation(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordMutation("vendor_price.upsert", "ok")
	m.RecordMutation("vendor_price.upsert", "failed")
	m.RecordMutation("vendor_price.upsert", "ok")

	if val := testutil.ToFloat64(m.MutationsTotal.WithLabelValues("vendor_price.upsert", "ok")); val != 2 {
		t.Errorf("ok mutations = %v, want 2", val)
	}
	if val := testutil.ToFloat64(m.MutationsTotal.WithLabelValues("vendor_price.upsert", "failed")); val != 1 {
		t.Errorf("failed mutations = %v, want 1", val)
	}
}

func TestMetricsMiddleware_recordsRequestMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	// Build a chi router so route patterns are captured.
	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/ui/views/{viewId}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/ui/views/products", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	// Verify metrics were recorded with the route pattern, not the actual path.
	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/ui/views/{viewId}", "200"))
	if val != 1 {
		t.Errorf("requests total = %v, want 1", val)
	}
}

func TestMetricsMiddleware_capturesResponseSize(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("healthy"))
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	// Response size should have been recorded.
	count := testutil.CollectAndCount(m.HTTPResponseSizeBytes)
	if count == 0 {
		t.Error("expected response size histogram to have observations")
	}
}

func TestMetricsMiddleware_capturesStatusCode(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.MetricsMiddleware)
	r.Post("/ui/variants/{variantId}/inventory", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	req := httptest.NewRequest(http.MethodPost, "/ui/variants/var_1/inventory", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/ui/variants/{variantId}/inventory", "400"))
	if val != 1 {
		t.Errorf("400 requests = %v, want 1", val)
	}
}

func TestMetricsMiddleware_fallsBackToPath(t *testing.T) {
	m, _ := newTestMetrics(t)

	// Use middleware directly without chi router.
	handler := m.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/raw/path", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// Without chi, should fall back to raw path.
	val := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/raw/path", "200"))
	if val != 1 {
		t.Errorf("raw path requests = %v, want 1", val)
	}
}

func TestHandler_servesMetrics(t *testing.T) {
	handler := Handler()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	// Prometheus handler should return at least go runtime metrics.
	if !strings.Contains(body, "go_") {
		t.Error("metrics response should contain go runtime metrics")
	}
}

func TestHistogramBuckets(t *testing.T) {
	// Verify bucket configurations are correct.
	if len(httpDurationBuckets) != 11 {
		t.Errorf("httpDurationBuckets length = %d, want 11", len(httpDurationBuckets))
	}
	if len(backendDurationBuckets) != 9 {
		t.Errorf("backendDurationBuckets length = %d, want 9", len(backendDurationBuckets))
	}
	if len(bodySizeBuckets) != 5 {
		t.Errorf("bodySizeBuckets length = %d, want 5", len(bodySizeBuckets))
	}
	for i := 1; i < len(removedEntriesBuckets); i++ {
		if removedEntriesBuckets[i] <= removedEntriesBuckets[i-1] {
			t.Errorf("removedEntriesBuckets not sorted at index %d", i)
		}
	}

	// Verify buckets are sorted ascending.
	for i := 1; i < len(httpDurationBuckets); i++ {
		if httpDurationBuckets[i] <= httpDurationBuckets[i-1] {
			t.Errorf("httpDurationBuckets not sorted at index %d", i)
		}
	}
}
