// Package identity resolves the requesting principal for API calls. A
// principal id is an opaque string used for scan ownership checks. Two
// resolvers are provided: bearer-token JWT validation against a JWKS
// endpoint, and static API keys hashed with bcrypt.
package identity

import (
	"context"
	"net/http"

	"github.com/redforge/riskscan/internal/errors"
)

// Principal identifies an authenticated requester.
type Principal struct {
	ID     string
	Method string
}

// Resolver extracts a principal from an incoming request.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (*Principal, error)
}

// ChainResolver tries each resolver in order and returns the first success.
type ChainResolver struct {
	resolvers []Resolver
}

// NewChainResolver creates a resolver that consults the given resolvers in order.
func NewChainResolver(resolvers ...Resolver) *ChainResolver {
	return &ChainResolver{resolvers: resolvers}
}

// Resolve returns the first principal any resolver yields. A request no
// resolver can authenticate gets an UNAUTHENTICATED error.
func (c *ChainResolver) Resolve(ctx context.Context, r *http.Request) (*Principal, error) {
	for _, resolver := range c.resolvers {
		principal, err := resolver.Resolve(ctx, r)
		if err == nil && principal != nil {
			return principal, nil
		}
	}
	return nil, errors.ErrUnauthenticated("no valid credentials presented")
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal stores the principal in the request context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext retrieves the principal from the request context.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}
