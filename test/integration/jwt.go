package integration

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"maps"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pitabwire/storedesk/internal/config"
)

const testKeyID = "test-key-1"

// TestClaims holds the configurable claims of a test token.
type TestClaims struct {
	ActorID   string
	ActorType string
	Email     string
	Extra     map[string]any
}

// AdminClaims returns the claims of a store administrator.
func AdminClaims() TestClaims {
	return TestClaims{
		ActorID:   "user_admin",
		ActorType: "user",
		Email:     "admin@store.example.com",
	}
}

// tokenIssuer signs tokens with an RSA key and serves the public half as a
// JWKS document. One issuer is shared by every harness in the test binary,
// so a token minted by one instance is valid on another.
type tokenIssuer struct {
	key      *rsa.PrivateKey
	jwks     *httptest.Server
	issuer   string
	audience string
}

var sharedIssuer = sync.OnceValue(func() *tokenIssuer {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic("generate RSA key: " + err.Error())
	}
	jwk := map[string]any{
		"kid": testKeyID,
		"kty": "RSA",
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]any{jwk}})
	}))
	return &tokenIssuer{
		key:      key,
		jwks:     srv,
		issuer:   "https://auth.test.storedesk.dev",
		audience: "storedesk-test",
	}
})

// identity returns the config that verifies this issuer's tokens.
func (ti *tokenIssuer) identity() config.IdentityConfig {
	return config.IdentityConfig{
		Issuer:       ti.issuer,
		Audience:     ti.audience,
		JWKSURL:      ti.jwks.URL,
		JWKSCacheTTL: time.Hour,
		Algorithms:   []string{"RS256"},
	}
}

// generateToken signs a token carrying claims that expires after ttl.
func generateToken(t *testing.T, claims TestClaims, ttl time.Duration) string {
	t.Helper()
	ti := sharedIssuer()

	now := time.Now()
	mc := jwt.MapClaims{
		"iss": ti.issuer,
		"aud": ti.audience,
		"sub": claims.ActorID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if claims.ActorID != "" {
		mc["actor_id"] = claims.ActorID
	}
	if claims.ActorType != "" {
		mc["actor_type"] = claims.ActorType
	}
	if claims.Email != "" {
		mc["email"] = claims.Email
	}
	maps.Copy(mc, claims.Extra)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, mc)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(ti.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
