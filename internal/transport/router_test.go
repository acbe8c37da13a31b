package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pitabwire/storedesk/internal/config"
	"github.com/pitabwire/storedesk/internal/observability"
	"github.com/pitabwire/storedesk/model"
)

// testDeps returns Dependencies with sensible defaults for testing.
func testDeps() Dependencies {
	cfg := config.Defaults()
	cfg.Server.CORS.AllowedOrigins = []string{"https://admin.example.com"}
	cfg.Server.HandlerTimeout = 5 * time.Second
	return Dependencies{
		Config: cfg,
		Readiness: observability.ReadinessChecks{
			CommerceAPI: observability.CheckFunc(func(context.Context) error { return nil }),
		},
		Authenticate:   testAuthenticator(),
		Views:          &stubViews{page: model.PageDescriptor{ID: "products"}},
		CustomerGroups: &stubGroups{},
		VendorPrices:   &stubPrices{},
		Inventory:      &stubInventory{},
		Pricing:        &stubPricing{},
	}
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// --- Router tests ---

func TestNewRouter_health(t *testing.T) {
	r := NewRouter(testDeps())
	w := serve(r, httptest.NewRequest("GET", "/ui/health", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestNewRouter_ready(t *testing.T) {
	r := NewRouter(testDeps())
	w := serve(r, httptest.NewRequest("GET", "/ui/ready", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestNewRouter_notReadyWhenBreakerOpen(t *testing.T) {
	deps := testDeps()
	deps.Readiness.CommerceAPI = observability.CheckFunc(func(context.Context) error {
		return errors.New("backend: circuit breaker is open")
	})
	w := serve(NewRouter(deps), httptest.NewRequest("GET", "/ui/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestNewRouter_metrics(t *testing.T) {
	r := NewRouter(testDeps())
	w := serve(r, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestNewRouter_metricsDisabled(t *testing.T) {
	deps := testDeps()
	deps.Config.Observability.Metrics.Enabled = false
	w := serve(NewRouter(deps), httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestNewRouter_authenticatedRoutes_areRegistered(t *testing.T) {
	// Without a bearer token every authenticated route returns 401,
	// confirming it is registered and not 404/405.
	r := NewRouter(testDeps())

	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/ui/views/products"},
		{"GET", "/ui/views/products/data"},
		{"POST", "/ui/views/customer-group-picker/selection"},
		{"GET", "/ui/customer-groups/cg_1"},
		{"GET", "/ui/variants/var_1/vendor-prices"},
		{"POST", "/ui/variants/var_1/vendor-prices"},
		{"GET", "/ui/variants/var_1/inventory"},
		{"POST", "/ui/variants/var_1/inventory"},
		{"GET", "/ui/variants/var_1/vendor-panel"},
		{"POST", "/ui/variants/prices/batch"},
		{"GET", "/ui/products/prod_1/pricing"},
		{"POST", "/ui/products/prod_1/pricing"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := serve(r, httptest.NewRequest(rt.method, rt.path, nil))
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestNewRouter_authenticatedRequest(t *testing.T) {
	r := NewRouter(testDeps())
	req := httptest.NewRequest("GET", "/ui/views/products", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{"sub": "user_01"}))
	w := serve(r, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var desc model.PageDescriptor
	json.NewDecoder(w.Body).Decode(&desc)
	if desc.ID != "products" {
		t.Errorf("id = %q, want products", desc.ID)
	}
}

func TestNewRouter_defaultAuthenticatorVerifiesTokens(t *testing.T) {
	deps := testDeps()
	deps.Authenticate = nil
	deps.Config.Identity = testIdentity
	deps.Config.Identity.JWKSURL = "http://127.0.0.1:1/jwks"

	req := httptest.NewRequest("GET", "/ui/views/products", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{"sub": "user_01"}))
	w := serve(NewRouter(deps), req)

	// No key can be fetched, so even a well-formed token is refused.
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestNewRouter_customAuthenticator(t *testing.T) {
	deps := testDeps()
	deps.Authenticate = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			WriteError(w, model.NewForbiddenError("rejected"))
		})
	}
	req := httptest.NewRequest("GET", "/ui/views/products", nil)
	req.Header.Set("Authorization", "Bearer opaque-token")
	w := serve(NewRouter(deps), req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestNewRouter_correlationID(t *testing.T) {
	r := NewRouter(testDeps())

	w := serve(r, httptest.NewRequest("GET", "/ui/health", nil))
	if w.Header().Get("X-Correlation-Id") == "" {
		t.Error("expected a generated X-Correlation-Id")
	}

	req := httptest.NewRequest("GET", "/ui/health", nil)
	req.Header.Set("X-Correlation-Id", "corr-given")
	w = serve(r, req)
	if got := w.Header().Get("X-Correlation-Id"); got != "corr-given" {
		t.Errorf("X-Correlation-Id = %q, want corr-given", got)
	}
}

func TestNewRouter_corsPreflight(t *testing.T) {
	r := NewRouter(testDeps())
	req := httptest.NewRequest("OPTIONS", "/ui/views/products/data", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	w := serve(r, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://admin.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestNewRouter_corsUnknownOrigin(t *testing.T) {
	r := NewRouter(testDeps())
	req := httptest.NewRequest("GET", "/ui/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := serve(r, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
}

func TestNewRouter_securityHeaders(t *testing.T) {
	w := serve(NewRouter(testDeps()), httptest.NewRequest("GET", "/ui/health", nil))

	for _, h := range []string{"Strict-Transport-Security", "X-Frame-Options", "Cache-Control"} {
		if w.Header().Get(h) == "" {
			t.Errorf("missing %s header", h)
		}
	}
}

func TestNewRouter_recordsMetricsByRoutePattern(t *testing.T) {
	deps := testDeps()
	deps.Metrics = observability.InitMetrics(prometheus.NewRegistry())
	r := NewRouter(deps)

	req := httptest.NewRequest("GET", "/ui/views/products", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{"sub": "user_01"}))
	serve(r, req)

	got := testutil.ToFloat64(deps.Metrics.HTTPRequestsTotal.WithLabelValues("GET", "/ui/views/{viewId}", "200"))
	if got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
}

func TestRecovery_returns500(t *testing.T) {
	h := Recovery(nopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := serve(h, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestHandlerTimeout_setsDeadline(t *testing.T) {
	var hasDeadline bool
	h := HandlerTimeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))
	serve(h, httptest.NewRequest("GET", "/", nil))

	if !hasDeadline {
		t.Error("expected a context deadline")
	}
}

func TestRequestLogging_storesRequestLogger(t *testing.T) {
	var got bool
	h := RequestLogging(nopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = observability.LoggerFrom(r.Context(), nil) != nil
		w.WriteHeader(http.StatusTeapot)
	}))
	w := serve(h, httptest.NewRequest("GET", "/", nil))

	if !got {
		t.Error("expected a logger in the request context")
	}
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", w.Code)
	}
}
