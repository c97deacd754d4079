//go:build wireinject
// +build wireinject

package di

import (
	"context"
	"net/http"

	"github.com/raimediatech/kingsbuilder/internal/config"
	"github.com/raimediatech/kingsbuilder/internal/handlers"
	"github.com/raimediatech/kingsbuilder/internal/service/pagesync"

	"github.com/go-chi/chi/v5"
	"github.com/google/wire"
)

// ObservabilityProviders provides logging, metrics and tracing.
var ObservabilityProviders = wire.NewSet(
	provideLogger,
	provideMetrics,
	provideTracer,
)

// InfrastructureProviders provides the store, the Shopify client and the event bus.
var InfrastructureProviders = wire.NewSet(
	provideStoreBackend,
	provideStore,
	provideShopifyClient,
	provideEventBus,
)

// ServiceProviders provides the page synchronization and analytics services.
var ServiceProviders = wire.NewSet(
	provideSyncPolicy,
	provideSyncService,
	provideAnalyticsService,
	provideWatcher,
)

// InterfaceProviders provides the HTTP layer.
var InterfaceProviders = wire.NewSet(
	provideSessionValidator,
	providePageHandler,
	provideAnalyticsHandler,
	setupRouter,
	wire.Bind(new(handlers.PageService), new(*pagesync.Service)),
	wire.Bind(new(http.Handler), new(*chi.Mux)),
)

// SuperSet combines all provider sets.
var SuperSet = wire.NewSet(
	ObservabilityProviders,
	InfrastructureProviders,
	ServiceProviders,
	InterfaceProviders,
	provideContainer,
)

// NewContainer is the Wire injector for the container.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil
}
