// Package auth validates the session tokens an embedded Shopify app receives
// from App Bridge.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMissingToken     = errors.New("missing authentication token")
	ErrInvalidClaims    = errors.New("invalid token claims")
)

// Claims represents the claims of a Shopify session token.
type Claims struct {
	// Dest is the shop origin, e.g. https://demo.myshopify.com
	Dest      string `json:"dest"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Shop returns the bare shop domain carried by dest.
func (c *Claims) Shop() string {
	return shopFromURL(c.Dest)
}

// SessionValidator validates HS256 session tokens signed with the app secret.
type SessionValidator struct {
	secretKey []byte
	apiKey    string
	leeway    time.Duration
}

// SessionConfig holds session token configuration
type SessionConfig struct {
	APISecret string        // app secret, the HMAC key
	APIKey    string        // expected audience
	Leeway    time.Duration // clock skew tolerated on exp/nbf
}

// NewSessionValidator creates a new session token validator
func NewSessionValidator(config SessionConfig) (*SessionValidator, error) {
	if config.APISecret == "" {
		return nil, errors.New("api secret required for session tokens")
	}
	if config.Leeway == 0 {
		config.Leeway = 5 * time.Second
	}
	return &SessionValidator{
		secretKey: []byte(config.APISecret),
		apiKey:    config.APIKey,
		leeway:    config.Leeway,
	}, nil
}

// ValidateToken validates a session token and returns the claims
func (v *SessionValidator) ValidateToken(tokenString string) (*Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	tokenString = strings.TrimSpace(tokenString)

	if tokenString == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
	}
	if v.apiKey != "" {
		opts = append(opts, jwt.WithAudience(v.apiKey))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		if errors.Is(err, jwt.ErrTokenInvalidAudience) {
			return nil, fmt.Errorf("%w: invalid audience", ErrInvalidClaims)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}

	shop := claims.Shop()
	if shop == "" {
		return nil, fmt.Errorf("%w: missing dest", ErrInvalidClaims)
	}
	// iss is the shop admin URL and must name the same shop as dest.
	if claims.Issuer != "" && shopFromURL(claims.Issuer) != shop {
		return nil, fmt.Errorf("%w: issuer does not match dest", ErrInvalidClaims)
	}

	return claims, nil
}

// SessionGenerator signs session tokens. Production tokens come from App
// Bridge; this is used by local tooling and tests.
type SessionGenerator struct {
	secretKey []byte
	apiKey    string
	ttl       time.Duration
}

// NewSessionGenerator creates a new session token generator
func NewSessionGenerator(apiSecret, apiKey string, ttl time.Duration) *SessionGenerator {
	if ttl == 0 {
		ttl = time.Minute
	}
	return &SessionGenerator{secretKey: []byte(apiSecret), apiKey: apiKey, ttl: ttl}
}

// GenerateToken signs a token for shop on behalf of userID.
func (g *SessionGenerator) GenerateToken(shop, userID string) (string, error) {
	now := time.Now()
	dest := "https://" + shop
	claims := &Claims{
		Dest: dest,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    dest + "/admin",
			Subject:   userID,
			Audience:  jwt.ClaimStrings{g.apiKey},
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        fmt.Sprintf("%d", now.UnixNano()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secretKey)
}

// SessionContext is the verified identity carried on the request context.
type SessionContext struct {
	Shop   string
	UserID string
}

type contextKey string

const SessionContextKey contextKey = "shopify_session"

// GetSessionFromContext extracts the session from context
func GetSessionFromContext(ctx context.Context) (*SessionContext, error) {
	session, ok := ctx.Value(SessionContextKey).(*SessionContext)
	if !ok || session == nil {
		return nil, errors.New("session not found in context")
	}
	return session, nil
}

// SetSessionInContext adds the session to context
func SetSessionInContext(ctx context.Context, session *SessionContext) context.Context {
	return context.WithValue(ctx, SessionContextKey, session)
}

func shopFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}
