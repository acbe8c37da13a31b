// Package backend is the HTTP client of the remote commerce API. It forwards
// the caller's bearer token, retries idempotent requests on transient
// failures, guards the API with a circuit breaker and maps failures to
// error envelopes.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pitabwire/storedesk/internal/config"
	"github.com/pitabwire/storedesk/model"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 10 << 20

// Request describes one call to the commerce API. Path may contain {name}
// placeholders filled from PathParams.
type Request struct {
	Method     string
	Path       string
	PathParams map[string]string
	Query      url.Values
	Body       any
}

// Recorder receives request outcomes. observability.Metrics implements it.
type Recorder interface {
	RecordBackendRequest(method, route string, status int, duration time.Duration)
	RecordCircuitBreakerState(state string)
}

type nopRecorder struct{}

func (nopRecorder) RecordBackendRequest(string, string, int, time.Duration) {}
func (nopRecorder) RecordCircuitBreakerState(string)                        {}

// Client calls the commerce API.
type Client struct {
	baseURL  string
	http     *http.Client
	breaker  *CircuitBreaker
	retry    config.RetryConfig
	logger   *zap.Logger
	recorder Recorder
	tracer   trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a Client for cfg.
func New(cfg config.APIConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retry:    cfg.Retry,
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
		tracer:   otel.Tracer("storedesk/backend"),
	}
	for _, opt := range opts {
		opt(c)
	}

	cb := cfg.CircuitBreaker
	c.breaker = NewCircuitBreaker(BreakerSettings{
		FailureThreshold:   cb.FailureThreshold,
		SuccessThreshold:   cb.SuccessThreshold,
		OpenTimeout:        cb.Timeout,
		ErrorRateThreshold: cb.ErrorRateThreshold,
		ErrorRateWindow:    cb.ErrorRateWindow,
		OnStateChange: func(from, to BreakerState) {
			c.recorder.RecordCircuitBreakerState(to.String())
			c.logger.Warn("commerce API circuit breaker changed state",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// Breaker exposes the circuit breaker for readiness checks.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// HealthCheck reports ErrCircuitOpen while the breaker rejects requests.
func (c *Client) HealthCheck(context.Context) error {
	if c.breaker.State() == BreakerOpen {
		return ErrCircuitOpen
	}
	return nil
}

// Get performs a GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post performs a POST with a JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Do performs req and decodes the JSON response into out, which may be nil.
// Non-2xx responses and transport failures are returned as
// *model.ErrorEnvelope.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	ctx, span := c.tracer.Start(ctx, "backend "+req.Method+" "+req.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("storedesk.api_route", req.Path),
		),
	)
	defer span.End()

	err := c.do(ctx, req, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) do(ctx context.Context, req Request, out any) error {
	reqURL := c.buildURL(req)

	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("backend: marshal body: %w", err)
		}
	}

	status, respBody, err := c.executeWithRetry(ctx, req, reqURL, body)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return errorFromResponse(status, respBody)
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("backend: decode %s %s response: %w", req.Method, req.Path, err)
	}
	return nil
}

// executeWithRetry wraps executeOnce with retry and exponential backoff.
func (c *Client) executeWithRetry(ctx context.Context, req Request, reqURL string, body []byte) (int, []byte, error) {
	maxAttempts := c.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	canRetry := isIdempotentMethod(req.Method) || !c.retry.IdempotentOnly

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, nil, model.NewBackendTimeoutError()
			case <-time.After(calculateBackoff(c.retry, attempt)):
			}
		}

		status, respBody, err := c.executeOnce(ctx, req, reqURL, body)
		if err != nil {
			lastErr = err
			if !canRetry || !isRetryableError(err) {
				return 0, nil, err
			}
			c.logger.Debug("retrying commerce API request after error",
				zap.Int("attempt", attempt+1),
				zap.Int("max", maxAttempts),
				zap.Error(err),
			)
			continue
		}

		if isRetryableStatus(status) && canRetry && attempt < maxAttempts-1 {
			c.logger.Debug("retrying commerce API request after status",
				zap.Int("attempt", attempt+1),
				zap.Int("max", maxAttempts),
				zap.Int("status", status),
			)
			continue
		}
		return status, respBody, nil
	}
	return 0, nil, lastErr
}

// executeOnce performs a single request behind the circuit breaker.
func (c *Client) executeOnce(ctx context.Context, req Request, reqURL string, body []byte) (int, []byte, error) {
	if err := c.breaker.Allow(); err != nil {
		return 0, nil, model.NewBackendUnavailableError()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, reqURL, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("backend: build request: %w", err)
	}
	httpReq.Header = buildHeaders(model.RequestContextFrom(ctx), req.Method)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.breaker.RecordFailure()
		c.recorder.RecordBackendRequest(req.Method, req.Path, 0, time.Since(start))
		if ctx.Err() != nil {
			return 0, nil, model.NewBackendTimeoutError()
		}
		if isConnectionError(err) {
			return 0, nil, model.NewBackendUnavailableError()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, nil, model.NewBackendTimeoutError()
		}
		return 0, nil, fmt.Errorf("backend: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.recorder.RecordBackendRequest(req.Method, req.Path, resp.StatusCode, time.Since(start))
	if err != nil {
		c.breaker.RecordFailure()
		return 0, nil, fmt.Errorf("backend: read response: %w", err)
	}

	// 4xx responses say nothing about the API's health.
	if isServerError(resp.StatusCode) {
		c.breaker.RecordFailure()
	} else if !isClientError(resp.StatusCode) {
		c.breaker.RecordSuccess()
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) buildURL(req Request) string {
	path := req.Path
	for name, value := range req.PathParams {
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(value))
	}
	u := c.baseURL + path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

func buildHeaders(rctx *model.RequestContext, method string) http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/json")
	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		h.Set("Content-Type", "application/json")
	}
	if rctx != nil {
		if rctx.Token != "" {
			h.Set("Authorization", "Bearer "+sanitizeHeader(rctx.Token))
		}
		if rctx.CorrelationID != "" {
			h.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
		}
		if rctx.Locale != "" {
			h.Set("Accept-Language", sanitizeHeader(rctx.Locale))
		}
	}
	return h
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

// remoteError is the error body shape of the commerce API.
type remoteError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func errorFromResponse(status int, body []byte) *model.ErrorEnvelope {
	var re remoteError
	_ = json.Unmarshal(body, &re)
	msg := re.Message

	switch status {
	case http.StatusBadRequest:
		if msg == "" {
			msg = "The commerce API rejected the request"
		}
		return model.NewBadRequestError(msg)
	case http.StatusUnauthorized:
		if msg == "" {
			msg = "Authentication required"
		}
		return model.NewUnauthorizedError(msg)
	case http.StatusForbidden:
		if msg == "" {
			msg = "Access denied"
		}
		return model.NewForbiddenError(msg)
	case http.StatusNotFound:
		if msg == "" {
			msg = "Resource not found"
		}
		return model.NewNotFoundError(msg)
	case http.StatusConflict:
		if msg == "" {
			msg = "The resource was modified concurrently"
		}
		return model.NewConflictError(msg)
	case http.StatusUnprocessableEntity:
		env := model.NewValidationError(nil)
		if msg != "" {
			env.Message = msg
		}
		return env
	case http.StatusTooManyRequests:
		return model.NewRateLimitedError()
	case http.StatusServiceUnavailable:
		return model.NewBackendUnavailableError()
	case http.StatusGatewayTimeout:
		return model.NewBackendTimeoutError()
	}
	return model.NewBackendError(status, msg)
}

// --- classification helpers ---

func isIdempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete,
		http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func isServerError(code int) bool {
	return code >= 500
}

func isClientError(code int) bool {
	return code >= 400 && code < 500
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// Envelopes are final outcomes.
	var env *model.ErrorEnvelope
	return !errors.As(err, &env)
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func calculateBackoff(cfg config.RetryConfig, attempt int) time.Duration {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 100 * time.Millisecond
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 2 * time.Second
	}

	delay := cfg.BackoffInitial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
		if delay > cfg.BackoffMax {
			return cfg.BackoffMax
		}
	}
	return delay
}
