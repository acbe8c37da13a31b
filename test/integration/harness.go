// Package integration provides a reusable test harness for end-to-end
// testing of the storedesk server. It starts the full HTTP stack against a
// mock commerce API, optionally sharing cache invalidation over Redis.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/storedesk/internal/backend"
	"github.com/pitabwire/storedesk/internal/config"
	"github.com/pitabwire/storedesk/internal/observability"
	"github.com/pitabwire/storedesk/internal/pricing"
	"github.com/pitabwire/storedesk/internal/querycache"
	"github.com/pitabwire/storedesk/internal/resource"
	"github.com/pitabwire/storedesk/internal/transport"
	"github.com/pitabwire/storedesk/internal/views"
)

// TestHarness is a fully wired storedesk instance.
type TestHarness struct {
	t       *testing.T
	server  *httptest.Server
	api     *MockAPI
	client  *backend.Client
	cache   *querycache.Client
	metrics *observability.Metrics
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	api       *MockAPI
	redis     redis.UniversalClient
	configure []func(*config.Config)
}

// WithMockAPI points the instance at an existing mock, so several instances
// can share one commerce API.
func WithMockAPI(api *MockAPI) HarnessOption {
	return func(c *harnessConfig) {
		c.api = api
	}
}

// WithSharedInvalidation broadcasts cache invalidations over rdb and
// listens for those of other instances.
func WithSharedInvalidation(rdb redis.UniversalClient) HarnessOption {
	return func(c *harnessConfig) {
		c.redis = rdb
	}
}

// WithConfig adjusts the configuration before anything is built.
func WithConfig(fn func(*config.Config)) HarnessOption {
	return func(c *harnessConfig) {
		c.configure = append(c.configure, fn)
	}
}

// NewTestHarness creates and starts a storedesk instance. Everything it
// starts is stopped when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{}
	for _, opt := range opts {
		opt(hc)
	}
	if hc.api == nil {
		hc.api = NewMockAPI(t)
	}

	cfg := config.Defaults()
	cfg.API.BaseURL = hc.api.URL()
	cfg.API.Timeout = 2 * time.Second
	cfg.API.Retry.BackoffInitial = time.Millisecond
	cfg.API.Retry.BackoffMax = 5 * time.Millisecond
	cfg.Server.HandlerTimeout = 5 * time.Second
	cfg.Observability.Metrics.Enabled = true
	cfg.Identity = sharedIssuer().identity()
	for _, fn := range hc.configure {
		fn(cfg)
	}

	logger := zap.NewNop()
	metrics := observability.InitMetrics(prometheus.NewRegistry())

	client := backend.New(cfg.API,
		backend.WithLogger(logger),
		backend.WithRecorder(metrics),
	)

	cacheOpts := []querycache.Option{
		querycache.WithLogger(logger),
		querycache.WithRecorder(metrics),
	}
	var broadcaster *querycache.RedisBroadcaster
	if hc.redis != nil {
		broadcaster = querycache.NewRedisBroadcaster(hc.redis, querycache.WithChannel(cfg.Invalidation.Channel))
		cacheOpts = append(cacheOpts, querycache.WithPublisher(broadcaster))
	}

	cache, err := querycache.New(querycache.Config{
		Capacity:           cfg.Cache.Capacity,
		NumShards:          cfg.Cache.NumShards,
		TTL:                cfg.Cache.TTL,
		EvictionPercentage: cfg.Cache.EvictionPercentage,
	}, cacheOpts...)
	if err != nil {
		t.Fatalf("create query cache: %v", err)
	}

	readiness := observability.ReadinessChecks{CommerceAPI: client}
	if broadcaster != nil {
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		ready := make(chan struct{})
		go func() { _ = broadcaster.Listen(ctx, cache, ready) }()
		select {
		case <-ready:
		case <-time.After(5 * time.Second):
			t.Fatal("invalidation listener did not subscribe")
		}
		readiness.InvalidationBus = observability.CheckFunc(broadcaster.Ping)
	}

	services := resource.New(client, cache,
		resource.WithLogger(logger),
		resource.WithRecorder(metrics),
	)

	router := transport.NewRouter(transport.Dependencies{
		Config:         cfg,
		Logger:         logger,
		Metrics:        metrics,
		Readiness:      readiness,
		Views:          views.NewPageProvider(services),
		CustomerGroups: services.CustomerGroups,
		VendorPrices:   services.VendorPrices,
		Inventory:      services.VendorInventory,
		Pricing:        pricing.NewService(services.Products, services.VendorPrices, services.VendorInventory, logger),
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &TestHarness{
		t:       t,
		server:  server,
		api:     hc.api,
		client:  client,
		cache:   cache,
		metrics: metrics,
	}
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// API returns the mock commerce API behind the instance.
func (h *TestHarness) API() *MockAPI {
	return h.api
}

// Cache returns the instance's query cache.
func (h *TestHarness) Cache() *querycache.Client {
	return h.cache
}

// Breaker returns the commerce API circuit breaker.
func (h *TestHarness) Breaker() *backend.CircuitBreaker {
	return h.client.Breaker()
}

// Token returns a valid bearer token carrying claims.
func (h *TestHarness) Token(claims TestClaims) string {
	h.t.Helper()
	return generateToken(h.t, claims, time.Hour)
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, token, nil)
}

// GETWithHeaders performs an authenticated GET request with additional headers.
func (h *TestHarness) GETWithHeaders(path, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, token, headers)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, path, body, token, nil)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// AssertStatus checks the status code and closes the body.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != expected {
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// --- Fixtures ---

// ProductFixture returns a product as the commerce API lists it.
func ProductFixture(id, title, status string) map[string]any {
	return map[string]any{
		"id":         id,
		"title":      title,
		"handle":     strings.ToLower(strings.ReplaceAll(title, " ", "-")),
		"status":     status,
		"thumbnail":  nil,
		"variants":   []map[string]any{{"id": "variant_" + id}},
		"created_at": "2024-03-01T10:00:00Z",
		"updated_at": "2024-03-02T10:00:00Z",
	}
}

// ProductListFixture returns a /admin/products page.
func ProductListFixture(products []map[string]any, count, offset, limit int) map[string]any {
	return map[string]any{
		"products": products,
		"count":    count,
		"offset":   offset,
		"limit":    limit,
	}
}

// ProductsFixture returns n products with sequential ids.
func ProductsFixture(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = ProductFixture(fmt.Sprintf("prod_%02d", i+1), fmt.Sprintf("Product %02d", i+1), "published")
	}
	return out
}

// VendorPriceFixture returns one vendor price row.
func VendorPriceFixture(id, variantID, buyerType string, price float64) map[string]any {
	return map[string]any{
		"id":         id,
		"variant_id": variantID,
		"buyer_type": buyerType,
		"price":      price,
	}
}
