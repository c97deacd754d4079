package di

import (
	"github.com/raimediatech/kingsbuilder/internal/config"
	"github.com/raimediatech/kingsbuilder/internal/handlers"
	"github.com/raimediatech/kingsbuilder/internal/middleware"
	"github.com/raimediatech/kingsbuilder/internal/observability"
	"github.com/raimediatech/kingsbuilder/pkg/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// setupRouter provides the HTTP router with all handlers.
func setupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	metrics *observability.Collector,
	validator *auth.SessionValidator,
	pageHandler *handlers.PageHandler,
	analyticsHandler *handlers.AnalyticsHandler,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(observability.TracingMiddleware())
	if metrics != nil {
		r.Use(observability.MetricsMiddleware(metrics))
	}
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout, logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Shopify-Access-Token", "X-Shopify-Shop-Domain", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Get("/health", handlers.Health)
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.CircuitBreaker(middleware.DefaultCircuitBreakerConfig("api-routes"), logger))
		r.Use(middleware.VerifyShopifyHMAC(cfg.Shopify.APISecret, logger))
		r.Use(middleware.SessionToken(validator, logger))

		r.Route("/pages", pageHandler.Routes)
		r.Route("/analytics", analyticsHandler.Routes)
	})

	r.NotFound(handlers.NotFound)

	return r
}
