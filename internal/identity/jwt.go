package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/redforge/riskscan/internal/errors"
)

// JWTConfig holds settings for bearer-token validation.
type JWTConfig struct {
	JWKSURL  string        `yaml:"jwks_url" json:"jwks_url"`
	Issuer   string        `yaml:"issuer" json:"issuer"`
	Audience string        `yaml:"audience" json:"audience"`
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// JWTResolver validates RS256 bearer tokens against a JWKS endpoint and
// maps the subject claim to the principal id.
type JWTResolver struct {
	cfg    JWTConfig
	client *http.Client

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewJWTResolver creates a resolver for the given JWKS configuration.
func NewJWTResolver(cfg JWTConfig) *JWTResolver {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &JWTResolver{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		keys:   make(map[string]*rsa.PublicKey),
	}
}

// Resolve validates the Authorization bearer token and returns its subject.
func (r *JWTResolver) Resolve(ctx context.Context, req *http.Request) (*Principal, error) {
	header := req.Header.Get("Authorization")
	if header == "" {
		return nil, errors.ErrUnauthenticated("missing authorization header")
	}
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, errors.ErrUnauthenticated("authorization header is not a bearer token")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256"})}
	if r.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.cfg.Issuer))
	}
	if r.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(r.cfg.Audience))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		return r.keyForID(ctx, kid)
	}, opts...)
	if err != nil {
		return nil, errors.ErrUnauthenticated("token validation failed")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return nil, errors.ErrUnauthenticated("token has no subject")
	}
	return &Principal{ID: subject, Method: "jwt"}, nil
}

// keyForID returns the cached key for kid, refreshing the JWKS when the
// cache is stale or the key is unknown.
func (r *JWTResolver) keyForID(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	r.mu.RLock()
	key, ok := r.keys[kid]
	fresh := time.Since(r.fetchedAt) < r.cfg.CacheTTL
	r.mu.RUnlock()

	if ok && fresh {
		return key, nil
	}

	if err := r.refreshKeys(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok = r.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return key, nil
}

type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		Use string `json:"use"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// refreshKeys fetches the JWKS document and rebuilds the key cache.
func (r *JWTResolver) refreshKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.JWKSURL, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks fetch returned status %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return fmt.Errorf("jwks document contained no usable RSA keys")
	}

	r.mu.Lock()
	r.keys = keys
	r.fetchedAt = time.Now()
	r.mu.Unlock()
	return nil
}

// parseRSAKey builds an RSA public key from base64url modulus and exponent.
func parseRSAKey(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, err
	}

	exponent := 0
	for _, b := range eBytes {
		exponent = exponent<<8 | int(b)
	}
	if exponent <= 0 {
		return nil, fmt.Errorf("invalid RSA exponent")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: exponent,
	}, nil
}
