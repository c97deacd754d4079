package shopify

import (
	"errors"
	"fmt"
)

// ErrMissingCredential is returned without any I/O when no access token is supplied.
var ErrMissingCredential = errors.New("shopify: no access token available for this shop")

// ErrInvalidShopDomain is returned without any I/O when the shop is not a
// myshopify.com domain and would otherwise become the request host.
var ErrInvalidShopDomain = errors.New("shopify: shop is not a myshopify.com domain")

// RemoteAPIError is a non-2xx response from the Admin API.
type RemoteAPIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("shopify: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, truncate(e.Body, 256))
}

// RemoteUnavailableError is a transport failure, a timeout or an open circuit.
type RemoteUnavailableError struct {
	Op  string
	Err error
}

func (e *RemoteUnavailableError) Error() string {
	return fmt.Sprintf("shopify: %s unavailable: %v", e.Op, e.Err)
}

func (e *RemoteUnavailableError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a 404 from the Admin API.
func IsNotFound(err error) bool {
	var apiErr *RemoteAPIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

// IsUnavailable reports whether err is a RemoteUnavailableError.
func IsUnavailable(err error) bool {
	var unavailable *RemoteUnavailableError
	return errors.As(err, &unavailable)
}

// countsAsFailure decides whether err should trip the circuit breaker.
// Client errors (4xx), missing credentials and rejected shop domains say
// nothing about remote health.
func countsAsFailure(err error) bool {
	if err == nil || errors.Is(err, ErrMissingCredential) || errors.Is(err, ErrInvalidShopDomain) {
		return false
	}
	var apiErr *RemoteAPIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == 429
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
