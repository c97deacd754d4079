package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/shopify"
	"github.com/raimediatech/kingsbuilder/internal/tenant"
	"github.com/raimediatech/kingsbuilder/pkg/api"
	"github.com/raimediatech/kingsbuilder/pkg/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, api.Envelope{"status": "ok"})
})

func TestRequestIDMiddleware(t *testing.T) {
	t.Run("Should generate request ID when not provided", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()

		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.NotEmpty(t, GetRequestIDFromRequest(r))
			w.WriteHeader(http.StatusOK)
		}))
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	})

	t.Run("Should use provided request ID", func(t *testing.T) {
		expectedID := "test-request-id"
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, expectedID)
		w := httptest.NewRecorder()

		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, expectedID, GetRequestIDFromRequest(r))
		}))
		handler.ServeHTTP(w, req)

		assert.Equal(t, expectedID, w.Header().Get(RequestIDHeader))
	})

	t.Run("Should return empty string when no request ID in context", func(t *testing.T) {
		assert.Empty(t, GetRequestID(context.Background()))
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)

	t.Run("Should handle panic gracefully", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler := Recovery(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"success":false,"message":"Internal server error"}`, w.Body.String())
		assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
	})

	t.Run("Should pass through normal requests", func(t *testing.T) {
		w := httptest.NewRecorder()
		Recovery(nil)(okHandler).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Run("Should allow normal requests to complete", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler := Timeout(5*time.Second, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Custom", "1")
			api.Success(w, http.StatusCreated, api.Envelope{"status": "ok"})
		}))
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "1", w.Header().Get("X-Custom"))
		assert.Contains(t, w.Body.String(), `"status":"ok"`)
	})

	t.Run("Should answer 503 when the handler is too slow", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler := Timeout(20*time.Millisecond, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
			time.Sleep(10 * time.Millisecond)
			api.Success(w, http.StatusOK, nil)
		}))
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "Request timeout")
	})

	t.Run("Should hand panics to Recovery", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler := Recovery(nil)(Timeout(time.Second, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})))
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestCircuitBreakerMiddleware(t *testing.T) {
	t.Run("Should pass through successful requests", func(t *testing.T) {
		w := httptest.NewRecorder()
		CircuitBreaker(DefaultCircuitBreakerConfig("test"), nil)(okHandler).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Should open after repeated 5xx", func(t *testing.T) {
		config := DefaultCircuitBreakerConfig("test-failure")
		config.MinRequests = 2
		config.FailureThreshold = 0.5

		calls := 0
		handler := CircuitBreaker(config, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			api.Error(w, http.StatusInternalServerError, "store down")
		}))

		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
			assert.Equal(t, http.StatusInternalServerError, w.Code)
		}

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, 2, calls)
	})
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(okHandler).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "frame-ancestors 'self' https://*.myshopify.com https://*.shopify.com")
	assert.NotEmpty(t, w.Header().Get("X-Frame-Options"))
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := RequestID(Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.Error(w, http.StatusNotFound, "Page not found")
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/pages/x", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.EqualValues(t, http.StatusNotFound, entry.ContextMap()["status"])
	assert.NotEmpty(t, entry.ContextMap()["requestId"])
}

func TestVerifyShopifyHMAC(t *testing.T) {
	const secret = "hush"
	signed := url.Values{"shop": {"demo.myshopify.com"}, "timestamp": {"1700000000"}}
	signed.Set("hmac", shopify.SignQuery(signed, secret))

	tests := []struct {
		name   string
		secret string
		query  string
		want   int
	}{
		{"valid signature", secret, signed.Encode(), http.StatusOK},
		{"tampered query", secret, signed.Encode() + "&extra=1", http.StatusUnauthorized},
		{"no hmac", secret, "shop=demo.myshopify.com", http.StatusOK},
		{"no secret configured", "", "shop=demo.myshopify.com&hmac=bad", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			VerifyShopifyHMAC(tt.secret, nil)(okHandler).ServeHTTP(w, httptest.NewRequest("GET", "/?"+tt.query, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestSessionToken(t *testing.T) {
	validator, err := auth.NewSessionValidator(auth.SessionConfig{APISecret: "app-secret", APIKey: "app-key"})
	require.NoError(t, err)
	token, err := auth.NewSessionGenerator("app-secret", "app-key", time.Minute).GenerateToken("demo.myshopify.com", "42")
	require.NoError(t, err)

	var seen tenant.Identity
	handler := SessionToken(validator, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = tenant.Resolve(r)
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("bearer token sets the tenant", func(t *testing.T) {
		seen = tenant.Identity{}
		req := httptest.NewRequest("GET", "/api/pages", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "demo.myshopify.com", seen.Tenant)
	})

	t.Run("id_token query parameter", func(t *testing.T) {
		seen = tenant.Identity{}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/pages?id_token="+token, nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "demo.myshopify.com", seen.Tenant)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/pages", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("no token passes", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/pages?shop=other.myshopify.com", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
