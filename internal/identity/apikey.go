package identity

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/redforge/riskscan/internal/errors"
)

const (
	// APIKeyHeader is the header carrying the API key.
	APIKeyHeader = "X-API-Key"

	// apiKeyPrefix marks generated riskscan keys.
	apiKeyPrefix = "rk_"

	// apiKeyBytes is the entropy of a generated key.
	apiKeyBytes = 32
)

// APIKeyEntry pairs a principal with the bcrypt hash of its key.
type APIKeyEntry struct {
	Principal string `yaml:"principal" json:"principal"`
	Hash      string `yaml:"hash" json:"hash"`
}

// APIKeyResolver authenticates requests via the X-API-Key header against
// a static set of bcrypt-hashed keys.
type APIKeyResolver struct {
	entries []APIKeyEntry
}

// NewAPIKeyResolver creates a resolver over the configured key entries.
func NewAPIKeyResolver(entries []APIKeyEntry) *APIKeyResolver {
	return &APIKeyResolver{entries: entries}
}

// Resolve checks the presented key against every configured hash.
func (r *APIKeyResolver) Resolve(_ context.Context, req *http.Request) (*Principal, error) {
	key := strings.TrimSpace(req.Header.Get(APIKeyHeader))
	if key == "" {
		return nil, errors.ErrUnauthenticated("missing API key")
	}

	for _, entry := range r.entries {
		if bcrypt.CompareHashAndPassword([]byte(entry.Hash), []byte(key)) == nil {
			return &Principal{ID: entry.Principal, Method: "api_key"}, nil
		}
	}
	return nil, errors.ErrUnauthenticated("invalid API key")
}

// GenerateAPIKey creates a new random API key and its bcrypt hash. The
// plaintext key is shown once; only the hash is stored.
func GenerateAPIKey() (key, hash string, err error) {
	raw := make([]byte, apiKeyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}

	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	key = apiKeyPrefix + strings.ToLower(encoded)

	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return key, string(hashed), nil
}
