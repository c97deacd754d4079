//go:build !wireinject
// +build !wireinject

package di

import (
	"context"
	"fmt"

	"github.com/raimediatech/kingsbuilder/internal/config"
)

// NewContainer builds the dependency graph for cfg. The store is not
// connected until Start.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	c, err := buildContainer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize container: %w", err)
	}
	return c, nil
}

// buildContainer mirrors the provider graph declared in wire.go.
func buildContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	// 1. Cross-cutting concerns
	logger, err := provideLogger(cfg)
	if err != nil {
		return nil, err
	}
	metrics := provideMetrics(cfg)
	tracer, err := provideTracer(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// 2. Infrastructure
	backend, err := provideStoreBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	store := provideStore(backend, cfg, logger, metrics)
	remote := provideShopifyClient(cfg, logger)
	bus, err := provideEventBus(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// 3. Services
	pages := provideSyncService(remote, store, bus, metrics, logger, provideSyncPolicy(cfg))
	analyticsSvc := provideAnalyticsService(store, metrics, logger)

	// 4. HTTP
	validator, err := provideSessionValidator(cfg, logger)
	if err != nil {
		return nil, err
	}
	router := setupRouter(cfg, logger, metrics, validator,
		providePageHandler(pages, logger),
		provideAnalyticsHandler(analyticsSvc, logger),
	)

	watcher := provideWatcher(cfg, pages, logger)
	return provideContainer(cfg, logger, metrics, tracer, store, remote, bus, pages, analyticsSvc, router, watcher), nil
}
