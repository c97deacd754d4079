// Package tenant resolves the shop and its Admin API access token from an
// inbound request.
package tenant

import (
	"context"
	"net/http"
	"strings"
)

// Request inputs consulted by the resolver.
const (
	ShopQueryParam    = "shop"
	ShopHeader        = "X-Shopify-Shop-Domain"
	ShopCookie        = "shopOrigin"
	AccessTokenHeader = "X-Shopify-Access-Token"
	AccessTokenCookie = "shopifyAccessToken"
)

type contextKey struct {
	name string
}

var (
	tenantKey     = contextKey{"tenant"}
	credentialKey = contextKey{"credential"}
)

// Identity is the resolved shop and access token. Empty fields are unresolved.
type Identity struct {
	Tenant     string
	Credential string
}

// HasTenant reports whether a shop was resolved.
func (i Identity) HasTenant() bool { return i.Tenant != "" }

// HasCredential reports whether the remote path is available.
func (i Identity) HasCredential() bool { return i.Credential != "" }

// WithTenant stores a verified shop on the context for the resolver to pick up.
func WithTenant(ctx context.Context, shop string) context.Context {
	return context.WithValue(ctx, tenantKey, shop)
}

// WithCredential stores an access token on the context for the resolver to pick up.
func WithCredential(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, credentialKey, token)
}

// FromContext returns the values stored by upstream middleware.
func FromContext(ctx context.Context) Identity {
	shop, _ := ctx.Value(tenantKey).(string)
	token, _ := ctx.Value(credentialKey).(string)
	return Identity{Tenant: shop, Credential: token}
}

// Resolve extracts the shop and access token from r. It performs no I/O.
//
// Shop: query parameter, then the context value, then the header, then the cookie.
// Token: header, then the context value, then the cookie.
func Resolve(r *http.Request) Identity {
	scoped := FromContext(r.Context())

	return Identity{
		Tenant: firstNonEmpty(
			r.URL.Query().Get(ShopQueryParam),
			scoped.Tenant,
			r.Header.Get(ShopHeader),
			cookieValue(r, ShopCookie),
		),
		Credential: firstNonEmpty(
			r.Header.Get(AccessTokenHeader),
			scoped.Credential,
			cookieValue(r, AccessTokenCookie),
		),
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
