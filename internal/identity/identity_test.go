package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scanerrors "github.com/redforge/riskscan/internal/errors"
)

func TestAPIKeyResolver(t *testing.T) {
	key, hash, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.Contains(t, key, "rk_")

	resolver := NewAPIKeyResolver([]APIKeyEntry{
		{Principal: "service-account-1", Hash: hash},
	})

	t.Run("valid key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(APIKeyHeader, key)

		principal, err := resolver.Resolve(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "service-account-1", principal.ID)
		assert.Equal(t, "api_key", principal.Method)
	})

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(APIKeyHeader, "rk_bogus")

		_, err := resolver.Resolve(context.Background(), req)
		assert.True(t, scanerrors.IsCode(err, scanerrors.CodeUnauthenticated))
	})

	t.Run("missing key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		_, err := resolver.Resolve(context.Background(), req)
		assert.True(t, scanerrors.IsCode(err, scanerrors.CodeUnauthenticated))
	})
}

func TestJWTResolver(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := map[string]interface{}{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "test-key",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(privateKey.N.Bytes()),
			"e":   "AQAB",
		}},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	defer server.Close()

	resolver := NewJWTResolver(JWTConfig{
		JWKSURL: server.URL,
		Issuer:  "https://issuer.example.com",
	})

	signToken := func(claims jwt.MapClaims) string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		token.Header["kid"] = "test-key"
		signed, err := token.SignedString(privateKey)
		require.NoError(t, err)
		return signed
	}

	t.Run("valid token", func(t *testing.T) {
		signed := signToken(jwt.MapClaims{
			"sub": "user-42",
			"iss": "https://issuer.example.com",
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signed)

		principal, err := resolver.Resolve(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "user-42", principal.ID)
		assert.Equal(t, "jwt", principal.Method)
	})

	t.Run("expired token", func(t *testing.T) {
		signed := signToken(jwt.MapClaims{
			"sub": "user-42",
			"iss": "https://issuer.example.com",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signed)

		_, err := resolver.Resolve(context.Background(), req)
		assert.True(t, scanerrors.IsCode(err, scanerrors.CodeUnauthenticated))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		signed := signToken(jwt.MapClaims{
			"sub": "user-42",
			"iss": "https://other.example.com",
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signed)

		_, err := resolver.Resolve(context.Background(), req)
		assert.True(t, scanerrors.IsCode(err, scanerrors.CodeUnauthenticated))
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		_, err := resolver.Resolve(context.Background(), req)
		assert.True(t, scanerrors.IsCode(err, scanerrors.CodeUnauthenticated))
	})
}

func TestChainResolver(t *testing.T) {
	key, hash, err := GenerateAPIKey()
	require.NoError(t, err)

	chain := NewChainResolver(
		NewAPIKeyResolver([]APIKeyEntry{{Principal: "svc", Hash: hash}}),
	)

	t.Run("first match wins", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(APIKeyHeader, key)

		principal, err := chain.Resolve(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "svc", principal.ID)
	})

	t.Run("no resolver matches", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		_, err := chain.Resolve(context.Background(), req)
		assert.True(t, scanerrors.IsCode(err, scanerrors.CodeUnauthenticated))
	})
}

func TestPrincipalContext(t *testing.T) {
	ctx := WithPrincipal(context.Background(), &Principal{ID: "user-1", Method: "jwt"})

	principal, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "user-1", principal.ID)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
