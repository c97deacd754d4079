package middleware

import "net/http"

// ContentSecurityPolicy lets the Shopify admin embed the app and loads
// scripts from the Shopify CDN only.
const ContentSecurityPolicy = "frame-ancestors 'self' https://*.myshopify.com https://*.shopify.com; script-src 'self' 'unsafe-inline' https://cdn.shopify.com;"

// SecurityHeaders sets the headers an embedded app needs.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", ContentSecurityPolicy)
		// Legacy browsers ignore frame-ancestors.
		h.Set("X-Frame-Options", "ALLOW-FROM https://*.myshopify.com https://*.shopify.com")
		h.Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}
