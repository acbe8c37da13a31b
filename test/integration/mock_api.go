package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

// RecordedRequest holds the details of a request received by the mock
// commerce API.
type RecordedRequest struct {
	Method     string
	Path       string
	Query      url.Values
	Headers    http.Header
	Body       map[string]any
	RawBody    []byte
	ReceivedAt time.Time
}

// mockResponse is one configured reply for a route.
type mockResponse struct {
	status    int
	body      any
	delay     time.Duration
	connError bool
}

type routeConfig struct {
	mu        sync.Mutex
	responses []*mockResponse
	current   int
}

// MockAPI is a programmable stand-in for the commerce API. Routes are keyed
// by "METHOD /path"; unknown routes answer 404.
type MockAPI struct {
	mu       sync.RWMutex
	server   *httptest.Server
	routes   map[string]*routeConfig
	received map[string][]*RecordedRequest
}

// NewMockAPI starts a mock commerce API that is closed when the test ends.
func NewMockAPI(t *testing.T) *MockAPI {
	t.Helper()
	m := &MockAPI{
		routes:   make(map[string]*routeConfig),
		received: make(map[string][]*RecordedRequest),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.server.Close)
	return m
}

// URL returns the base URL of the mock.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// RouteMock configures the replies of one route.
type RouteMock struct {
	api   *MockAPI
	route string
}

// On selects the route to configure, for example On("GET", "/admin/products").
func (m *MockAPI) On(method, path string) *RouteMock {
	return &RouteMock{api: m, route: routeKey(method, path)}
}

// RespondWith appends a reply. Replies are served in order and the last one
// repeats.
func (rm *RouteMock) RespondWith(status int, body any) *RouteMock {
	rm.api.addResponse(rm.route, &mockResponse{status: status, body: body})
	return rm
}

// RespondWithError appends an error reply in the commerce API error shape.
func (rm *RouteMock) RespondWithError(status int, message string) *RouteMock {
	rm.api.addResponse(rm.route, &mockResponse{
		status: status,
		body:   map[string]any{"type": "error", "message": message},
	})
	return rm
}

// RespondWithDelay appends a reply that is sent after delay.
func (rm *RouteMock) RespondWithDelay(delay time.Duration, status int, body any) *RouteMock {
	rm.api.addResponse(rm.route, &mockResponse{status: status, body: body, delay: delay})
	return rm
}

// RespondWithConnectionError appends a reply that drops the connection.
func (rm *RouteMock) RespondWithConnectionError() *RouteMock {
	rm.api.addResponse(rm.route, &mockResponse{connError: true})
	return rm
}

func (m *MockAPI) addResponse(route string, resp *mockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.routes[route]
	if !ok {
		cfg = &routeConfig{}
		m.routes[route] = cfg
	}
	cfg.responses = append(cfg.responses, resp)
}

func (m *MockAPI) serve(w http.ResponseWriter, r *http.Request) {
	route := routeKey(r.Method, r.URL.Path)

	rec := &RecordedRequest{
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      r.URL.Query(),
		Headers:    r.Header.Clone(),
		ReceivedAt: time.Now(),
	}
	if r.Body != nil {
		body, _ := io.ReadAll(r.Body)
		rec.RawBody = body
		if len(body) > 0 {
			var parsed map[string]any
			if err := json.Unmarshal(body, &parsed); err == nil {
				rec.Body = parsed
			}
		}
	}

	m.mu.Lock()
	m.received[route] = append(m.received[route], rec)
	m.mu.Unlock()

	resp := m.nextResponse(route)
	if resp == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"type": "not_found", "message": "no mock for " + route})
		return
	}

	if resp.connError {
		if hj, ok := w.(http.Hijacker); ok {
			conn, _, _ := hj.Hijack()
			if conn != nil {
				conn.Close()
			}
		}
		return
	}

	if resp.delay > 0 {
		select {
		case <-time.After(resp.delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	if resp.body != nil {
		json.NewEncoder(w).Encode(resp.body)
	}
}

func (m *MockAPI) nextResponse(route string) *mockResponse {
	m.mu.RLock()
	cfg, ok := m.routes[route]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	if len(cfg.responses) == 0 {
		return nil
	}
	idx := cfg.current
	if idx >= len(cfg.responses) {
		idx = len(cfg.responses) - 1
	} else {
		cfg.current++
	}
	return cfg.responses[idx]
}

// Calls returns how many requests the route received.
func (m *MockAPI) Calls(method, path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.received[routeKey(method, path)])
}

// AssertCalled verifies that the route was called the expected number of times.
func (m *MockAPI) AssertCalled(t *testing.T, method, path string, want int) {
	t.Helper()
	if got := m.Calls(method, path); got != want {
		t.Errorf("mock API: %s %s called %d times, want %d", method, path, got, want)
	}
}

// LastRequest returns the last request received on the route, or nil.
func (m *MockAPI) LastRequest(method, path string) *RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reqs := m.received[routeKey(method, path)]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// Reset clears recorded requests and configured replies.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = make(map[string]*routeConfig)
	m.received = make(map[string][]*RecordedRequest)
}

func routeKey(method, path string) string {
	return method + " " + path
}
