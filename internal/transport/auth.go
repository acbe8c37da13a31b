package transport

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pitabwire/storedesk/internal/config"
	"github.com/pitabwire/storedesk/model"
)

type tokenKey struct{}

// TokenFrom returns the verified bearer token stored by VerifyBearer.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// KeyResolver returns the public key for a token's kid header.
type KeyResolver interface {
	Key(ctx context.Context, kid string) (crypto.PublicKey, error)
}

// KeySet fetches the identity provider's JSON Web Key Set and caches the
// keys for the configured TTL. Concurrent refreshes share one request.
type KeySet struct {
	mu         sync.RWMutex
	url        string
	keys       map[string]crypto.PublicKey
	fetchedAt  time.Time
	ttl        time.Duration
	minRefresh time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	refreshing singleflight.Group
}

// NewKeySet creates a KeySet for cfg.JWKSURL. No request is made until the
// first token needs a key.
func NewKeySet(cfg config.IdentityConfig, logger *zap.Logger) *KeySet {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.JWKSCacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &KeySet{
		url:        cfg.JWKSURL,
		keys:       make(map[string]crypto.PublicKey),
		ttl:        ttl,
		minRefresh: min(ttl, time.Minute),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Key returns the key for kid, refreshing the set when kid is unknown or
// the cached set has expired. A failed refresh falls back to a cached key.
func (s *KeySet) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	s.mu.RLock()
	key, ok := s.keys[kid]
	expired := time.Since(s.fetchedAt) > s.ttl
	s.mu.RUnlock()
	if ok && !expired {
		return key, nil
	}

	_, err, _ := s.refreshing.Do("jwks", func() (any, error) {
		return nil, s.refresh(ctx)
	})

	s.mu.RLock()
	key, ok = s.keys[kid]
	s.mu.RUnlock()
	switch {
	case ok && err != nil:
		s.logger.Warn("jwks refresh failed, using cached key", zap.String("kid", kid), zap.Error(err))
		return key, nil
	case ok:
		return key, nil
	case err != nil:
		return nil, fmt.Errorf("jwks: fetch failed: %w", err)
	default:
		return nil, fmt.Errorf("jwks: unknown signing key %q", kid)
	}
}

func (s *KeySet) refresh(ctx context.Context) error {
	s.mu.RLock()
	tooSoon := len(s.keys) > 0 && time.Since(s.fetchedAt) < s.minRefresh
	s.mu.RUnlock()
	if tooSoon {
		return nil
	}

	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks: unexpected status %d", resp.StatusCode)
	}

	var set struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&set); err != nil {
		return fmt.Errorf("jwks: parse error: %w", err)
	}

	keys := make(map[string]crypto.PublicKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.Kid == "" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		key, err := jwk.publicKey()
		if err != nil {
			s.logger.Warn("jwks key skipped", zap.String("kid", jwk.Kid), zap.Error(err))
			continue
		}
		if key != nil {
			keys[jwk.Kid] = key
		}
	}

	s.mu.Lock()
	s.keys = keys
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	s.logger.Debug("jwks refreshed", zap.Int("keys", len(keys)))
	return nil
}

type jsonWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// publicKey returns nil, nil for key types that cannot sign tokens here.
func (k jsonWebKey) publicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		n, err := decodeBigInt(k.N, "n")
		if err != nil {
			return nil, err
		}
		e, err := decodeBigInt(k.E, "e")
		if err != nil {
			return nil, err
		}
		return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
	case "EC":
		var curve elliptic.Curve
		switch k.Crv {
		case "P-256":
			curve = elliptic.P256()
		case "P-384":
			curve = elliptic.P384()
		case "P-521":
			curve = elliptic.P521()
		default:
			return nil, fmt.Errorf("unsupported curve %q", k.Crv)
		}
		x, err := decodeBigInt(k.X, "x")
		if err != nil {
			return nil, err
		}
		y, err := decodeBigInt(k.Y, "y")
		if err != nil {
			return nil, err
		}
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
	default:
		return nil, nil
	}
}

func decodeBigInt(s, name string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing %s", name)
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return new(big.Int).SetBytes(b), nil
}

// VerifyBearer returns middleware that requires a bearer JWT signed by a key
// from keys and valid for cfg's issuer and audience. The verified token and
// its claims are stored in the request context; nothing downstream, cached
// responses included, is reachable with a token that fails verification.
// The token is still forwarded to the commerce API, which applies its own
// permissions.
func VerifyBearer(cfg config.IdentityConfig, keys KeyResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if len(cfg.Algorithms) > 0 {
		opts = append(opts, jwt.WithValidMethods(cfg.Algorithms))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				WriteError(w, model.NewUnauthorizedError("Missing authorization header"))
				return
			}
			if !strings.HasPrefix(auth, "Bearer ") {
				WriteError(w, model.NewUnauthorizedError("Invalid authorization header format"))
				return
			}
			raw := strings.TrimSpace(auth[len("Bearer "):])
			if raw == "" {
				WriteError(w, model.NewUnauthorizedError("Empty bearer token"))
				return
			}

			claims := jwt.MapClaims{}
			token, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				kid, _ := t.Header["kid"].(string)
				if kid == "" {
					return nil, errMissingKid
				}
				return keys.Key(r.Context(), kid)
			})
			if err != nil || !token.Valid {
				logger.Debug("bearer token rejected",
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				WriteError(w, model.NewUnauthorizedError(classifyJWTError(err)))
				return
			}

			ctx := context.WithValue(r.Context(), tokenKey{}, raw)
			ctx = WithClaims(ctx, map[string]any(claims))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

var errMissingKid = errors.New("missing kid in token header")

func classifyJWTError(err error) string {
	switch {
	case err == nil:
		return "Invalid token"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "Token expired"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "Invalid token issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "Invalid token audience"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "Invalid token signature"
	case errors.Is(err, errMissingKid), strings.Contains(err.Error(), "signing key"):
		return "Unknown signing key"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "Malformed token"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "Unverifiable token"
	default:
		return "Invalid token"
	}
}
