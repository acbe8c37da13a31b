package transport

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pitabwire/storedesk/internal/config"
	"github.com/pitabwire/storedesk/model"
)

// --- test helpers ---

const testKeyID = "test-key-1"

var testIdentity = config.IdentityConfig{
	Issuer:     "https://auth.test.storedesk.dev",
	Audience:   "storedesk-test",
	Algorithms: []string{"RS256", "ES256"},
}

var testRSAKey = sync.OnceValue(func() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic("generate RSA key: " + err.Error())
	}
	return key
})

type staticKeys map[string]crypto.PublicKey

func (k staticKeys) Key(_ context.Context, kid string) (crypto.PublicKey, error) {
	key, ok := k[kid]
	if !ok {
		return nil, fmt.Errorf("jwks: unknown signing key %q", kid)
	}
	return key, nil
}

func testAuthenticator() func(http.Handler) http.Handler {
	return VerifyBearer(testIdentity, staticKeys{testKeyID: &testRSAKey().PublicKey}, nil)
}

// signedToken signs claims with the test RSA key. Issuer, audience and a
// one hour expiry are filled in unless claims sets them.
func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	full := jwt.MapClaims{
		"iss": testIdentity.Issuer,
		"aud": testIdentity.Audience,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		full[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, full)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(testRSAKey())
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

// captureRequestContext runs VerifyBearer and BuildRequestContext and
// returns the RequestContext the handler saw, or nil when the chain rejected.
func captureRequestContext(t *testing.T, authHeader string) (*httptest.ResponseRecorder, *model.RequestContext) {
	t.Helper()
	var got *model.RequestContext
	h := RequestID(testAuthenticator()(BuildRequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = model.RequestContextFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))))

	req := httptest.NewRequest(http.MethodGet, "/ui/views/products", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	req.Header.Set("X-Correlation-Id", "corr-1")
	req.Header.Set("Accept-Language", "en-GB")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w, got
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error.Message
}

// --- VerifyBearer tests ---

func TestVerifyBearer_missingHeader(t *testing.T) {
	w, rctx := captureRequestContext(t, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if rctx != nil {
		t.Error("handler should not run without a token")
	}
}

func TestVerifyBearer_wrongScheme(t *testing.T) {
	w, _ := captureRequestContext(t, "Basic dXNlcjpwYXNz")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestVerifyBearer_emptyToken(t *testing.T) {
	w, _ := captureRequestContext(t, "Bearer   ")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestVerifyBearer_claimsEnrichContext(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"actor_id":   "user_01",
		"actor_type": "user",
		"email":      "admin@example.com",
	})

	w, rctx := captureRequestContext(t, "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if rctx == nil {
		t.Fatal("RequestContext not set")
	}
	if rctx.SubjectID != "user_01" {
		t.Errorf("SubjectID = %q, want user_01", rctx.SubjectID)
	}
	if rctx.ActorType != "user" {
		t.Errorf("ActorType = %q, want user", rctx.ActorType)
	}
	if rctx.Email != "admin@example.com" {
		t.Errorf("Email = %q, want admin@example.com", rctx.Email)
	}
	if rctx.Token != token {
		t.Error("Token should be the raw bearer token")
	}
	if rctx.CorrelationID != "corr-1" {
		t.Errorf("CorrelationID = %q, want corr-1", rctx.CorrelationID)
	}
	if rctx.Locale != "en-GB" {
		t.Errorf("Locale = %q, want en-GB", rctx.Locale)
	}
}

func TestVerifyBearer_subFallback(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "subject-9"})

	_, rctx := captureRequestContext(t, "Bearer "+token)
	if rctx == nil || rctx.SubjectID != "subject-9" {
		t.Errorf("SubjectID = %v, want subject-9", rctx)
	}
}

func TestVerifyBearer_rejectsInvalidTokens(t *testing.T) {
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	forged := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "user_01",
		"iss": testIdentity.Issuer,
		"aud": testIdentity.Audience,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	forged.Header["kid"] = testKeyID
	forgedToken, err := forged.SignedString(otherKey)
	if err != nil {
		t.Fatal(err)
	}

	hmac, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user_01",
		"iss": testIdentity.Issuer,
		"aud": testIdentity.Audience,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatal(err)
	}

	unknownKid := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "user_01",
		"iss": testIdentity.Issuer,
		"aud": testIdentity.Audience,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	unknownKid.Header["kid"] = "rotated-away"
	unknownKidToken, err := unknownKid.SignedString(testRSAKey())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		token   string
		wantMsg string
	}{
		{"opaque", "sk_opaque_session_token", "Malformed token"},
		{"expired", signedToken(t, jwt.MapClaims{"sub": "user_01", "exp": time.Now().Add(-time.Hour).Unix()}), "Token expired"},
		{"no expiry", signedToken(t, jwt.MapClaims{"sub": "user_01", "exp": nil}), "Invalid token"},
		{"wrong issuer", signedToken(t, jwt.MapClaims{"sub": "user_01", "iss": "https://evil.example.com"}), "Invalid token issuer"},
		{"wrong audience", signedToken(t, jwt.MapClaims{"sub": "user_01", "aud": "another-app"}), "Invalid token audience"},
		{"forged signature", forgedToken, "Invalid token signature"},
		{"disallowed algorithm", hmac, "Invalid token signature"},
		{"unknown kid", unknownKidToken, "Unknown signing key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, rctx := captureRequestContext(t, "Bearer "+tt.token)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if rctx != nil {
				t.Error("handler should not run for a rejected token")
			}
			if got := errorMessage(t, w); got != tt.wantMsg {
				t.Errorf("message = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestBuildRequestContext_withoutToken(t *testing.T) {
	h := BuildRequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// --- KeySet tests ---

func rsaJWK(kid string, key *rsa.PublicKey) map[string]any {
	return map[string]any{
		"kid": kid,
		"kty": "RSA",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}

func jwksServer(t *testing.T, status *atomic.Int32, keys ...map[string]any) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if code := status.Load(); code != 0 {
			w.WriteHeader(int(code))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"keys": keys})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestKeySet_fetchesAndCaches(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	var status atomic.Int32
	srv, hits := jwksServer(t, &status,
		rsaJWK("rsa-1", &testRSAKey().PublicKey),
		map[string]any{
			"kid": "ec-1",
			"kty": "EC",
			"crv": "P-256",
			"x":   base64.RawURLEncoding.EncodeToString(ecKey.X.Bytes()),
			"y":   base64.RawURLEncoding.EncodeToString(ecKey.Y.Bytes()),
		},
		map[string]any{"kid": "enc-1", "kty": "RSA", "use": "enc", "n": "AQAB", "e": "AQAB"},
	)

	ks := NewKeySet(config.IdentityConfig{JWKSURL: srv.URL, JWKSCacheTTL: time.Hour}, nil)

	key, err := ks.Key(context.Background(), "rsa-1")
	if err != nil {
		t.Fatalf("Key(rsa-1) error = %v", err)
	}
	if pub, ok := key.(*rsa.PublicKey); !ok || pub.N.Cmp(testRSAKey().N) != 0 {
		t.Errorf("Key(rsa-1) = %T, want the served RSA key", key)
	}
	if _, err := ks.Key(context.Background(), "ec-1"); err != nil {
		t.Errorf("Key(ec-1) error = %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("JWKS fetches = %d, want 1", got)
	}

	if _, err := ks.Key(context.Background(), "enc-1"); err == nil {
		t.Error("encryption keys must not be used for signatures")
	}
}

func TestKeySet_usesCachedKeyWhenRefreshFails(t *testing.T) {
	var status atomic.Int32
	srv, _ := jwksServer(t, &status, rsaJWK("rsa-1", &testRSAKey().PublicKey))

	ks := NewKeySet(config.IdentityConfig{JWKSURL: srv.URL, JWKSCacheTTL: time.Hour}, nil)
	if _, err := ks.Key(context.Background(), "rsa-1"); err != nil {
		t.Fatalf("Key() error = %v", err)
	}

	ks.mu.Lock()
	ks.fetchedAt = time.Now().Add(-2 * time.Hour)
	ks.mu.Unlock()
	status.Store(http.StatusServiceUnavailable)

	if _, err := ks.Key(context.Background(), "rsa-1"); err != nil {
		t.Errorf("Key() error = %v, want the cached key", err)
	}
	if _, err := ks.Key(context.Background(), "rsa-2"); err == nil {
		t.Error("Key() for an unknown kid should fail while the provider is down")
	}
}

func TestKeySet_verifiesTokensEndToEnd(t *testing.T) {
	var status atomic.Int32
	srv, _ := jwksServer(t, &status, rsaJWK(testKeyID, &testRSAKey().PublicKey))
	cfg := testIdentity
	cfg.JWKSURL = srv.URL

	var reached bool
	h := VerifyBearer(cfg, NewKeySet(cfg, nil), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = TokenFrom(r.Context()) != ""
	}))
	req := httptest.NewRequest(http.MethodGet, "/ui/views/products", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{"sub": "user_01"}))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !reached {
		t.Error("a token signed by a served key should pass")
	}
}
