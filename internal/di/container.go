package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/raimediatech/kingsbuilder/internal/config"
	"github.com/raimediatech/kingsbuilder/internal/events"
	"github.com/raimediatech/kingsbuilder/internal/observability"
	"github.com/raimediatech/kingsbuilder/internal/repository"
	"github.com/raimediatech/kingsbuilder/internal/service/analytics"
	"github.com/raimediatech/kingsbuilder/internal/service/pagesync"
	"github.com/raimediatech/kingsbuilder/internal/shopify"

	"go.uber.org/zap"
)

// Container holds every long-lived dependency of the service. Built by
// NewContainer, either hand-wired (container_build.go) or by Wire (wire.go).
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Collector
	Tracer  *observability.TracerProvider

	Store  repository.Store
	Remote shopify.Client
	Bus    events.Bus

	Pages     *pagesync.Service
	Analytics analytics.Service

	Router  http.Handler
	Watcher *config.Watcher

	shutdownOnce sync.Once
	shutdownErr  error
}

// Start connects the store. A store that cannot be reached leaves the
// service running in degraded mode rather than failing startup.
func (c *Container) Start(ctx context.Context) error {
	return c.Store.Connect(ctx)
}

// Shutdown releases resources in reverse order of creation. Safe to call
// more than once.
func (c *Container) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		var errs []error
		if c.Watcher != nil {
			c.Watcher.Stop()
		}
		if err := c.Store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
		if err := c.Tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer: %w", err))
		}
		_ = c.Logger.Sync()
		c.shutdownErr = errors.Join(errs...)
	})
	return c.shutdownErr
}
