// Package repository defines the local page store that backs the
// synchronization service when the Shopify Admin API cannot be used.
package repository

import (
	"context"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/domain"
)

// Lifecycle is implemented by stores that hold a connection.
type Lifecycle interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
}

// PageStore persists pages per tenant. Single-record operations address a
// page by id or handle.
type PageStore interface {
	// Create stamps CreatedAt/UpdatedAt and persists the page.
	Create(ctx context.Context, page *domain.Page) (*domain.Page, error)
	// List returns every page of the tenant, most recently updated first.
	List(ctx context.Context, tenant string) ([]*domain.Page, error)
	// Get returns ErrNotFound when no page matches key.
	Get(ctx context.Context, tenant, key string) (*domain.Page, error)
	// Update applies u and reports whether a page matched.
	Update(ctx context.Context, tenant, key string, u domain.PageUpdate) (bool, error)
	// Delete reports whether a page was removed.
	Delete(ctx context.Context, tenant, key string) (bool, error)
	Publish(ctx context.Context, tenant, key string) (bool, error)
	Unpublish(ctx context.Context, tenant, key string) (bool, error)
}

// AnalyticsStore records storefront page views and aggregates them.
type AnalyticsStore interface {
	RecordPageView(ctx context.Context, view domain.PageView) error
	// PageStats aggregates the views of one page since the given instant.
	PageStats(ctx context.Context, tenant, handle string, since time.Time) (*domain.PageStats, error)
	// ShopStats fills TotalViews and TopPages (handle and views only, at most
	// limit entries). Titles and TotalPages are resolved by the caller.
	ShopStats(ctx context.Context, tenant string, since time.Time, limit int) (*domain.ShopStats, error)
}

// Store is a backend providing both stores plus a connection lifecycle.
type Store interface {
	Lifecycle
	PageStore
	AnalyticsStore
}

// Config holds backend settings shared by the store implementations.
type Config struct {
	// Mongo
	URI      string
	Database string

	// DynamoDB
	TableName string
	Region    string

	PagesCollection     string
	AnalyticsCollection string

	// OperationTimeout bounds every individual store call.
	OperationTimeout time.Duration
}

// WithDefaults returns a new Config with default values applied for optional fields.
func (c Config) WithDefaults() Config {
	config := c
	if config.Database == "" {
		config.Database = "kingsbuilder"
	}
	if config.PagesCollection == "" {
		config.PagesCollection = "pages"
	}
	if config.AnalyticsCollection == "" {
		config.AnalyticsCollection = "analytics"
	}
	if config.TableName == "" {
		config.TableName = "kingsbuilder-pages"
	}
	if config.OperationTimeout == 0 {
		config.OperationTimeout = 5 * time.Second
	}
	return config
}
