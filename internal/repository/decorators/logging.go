// Package decorators wraps a repository.Store with cross-cutting concerns
// (logging, metrics) without touching the backends.
package decorators

import (
	"context"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/domain"
	"github.com/raimediatech/kingsbuilder/internal/repository"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingConfig controls what information is logged
type LoggingConfig struct {
	LogLevel      zapcore.Level // Level for successful operations
	SlowThreshold time.Duration // Log warning for operations slower than this
}

// DefaultLoggingConfig returns sensible defaults for logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:      zapcore.DebugLevel,
		SlowThreshold: time.Second,
	}
}

// LoggingStore logs every store call with its duration and outcome.
type LoggingStore struct {
	inner  repository.Store
	logger *zap.Logger
	config LoggingConfig
}

var _ repository.Store = (*LoggingStore)(nil)

// NewLoggingStore creates a new logging decorator.
func NewLoggingStore(inner repository.Store, logger *zap.Logger, config LoggingConfig) *LoggingStore {
	return &LoggingStore{
		inner:  inner,
		logger: logger.Named("page_store"),
		config: config,
	}
}

func (l *LoggingStore) Connect(ctx context.Context) error {
	start := time.Now()
	err := l.inner.Connect(ctx)
	l.log("connect", start, err)
	return err
}

func (l *LoggingStore) Close(ctx context.Context) error {
	start := time.Now()
	err := l.inner.Close(ctx)
	l.log("close", start, err)
	return err
}

func (l *LoggingStore) Create(ctx context.Context, page *domain.Page) (*domain.Page, error) {
	start := time.Now()
	created, err := l.inner.Create(ctx, page)
	l.log("create", start, err, zap.String("shop", page.Tenant), zap.String("handle", page.Handle))
	return created, err
}

func (l *LoggingStore) List(ctx context.Context, tenant string) ([]*domain.Page, error) {
	start := time.Now()
	pages, err := l.inner.List(ctx, tenant)
	l.log("list", start, err, zap.String("shop", tenant), zap.Int("count", len(pages)))
	return pages, err
}

func (l *LoggingStore) Get(ctx context.Context, tenant, key string) (*domain.Page, error) {
	start := time.Now()
	page, err := l.inner.Get(ctx, tenant, key)
	if repository.IsNotFound(err) {
		l.log("get", start, nil, zap.String("shop", tenant), zap.String("key", key), zap.Bool("found", false))
		return page, err
	}
	l.log("get", start, err, zap.String("shop", tenant), zap.String("key", key))
	return page, err
}

func (l *LoggingStore) Update(ctx context.Context, tenant, key string, u domain.PageUpdate) (bool, error) {
	start := time.Now()
	ok, err := l.inner.Update(ctx, tenant, key, u)
	l.log("update", start, err, zap.String("shop", tenant), zap.String("key", key), zap.Bool("matched", ok))
	return ok, err
}

func (l *LoggingStore) Delete(ctx context.Context, tenant, key string) (bool, error) {
	start := time.Now()
	ok, err := l.inner.Delete(ctx, tenant, key)
	l.log("delete", start, err, zap.String("shop", tenant), zap.String("key", key), zap.Bool("matched", ok))
	return ok, err
}

func (l *LoggingStore) Publish(ctx context.Context, tenant, key string) (bool, error) {
	start := time.Now()
	ok, err := l.inner.Publish(ctx, tenant, key)
	l.log("publish", start, err, zap.String("shop", tenant), zap.String("key", key), zap.Bool("matched", ok))
	return ok, err
}

func (l *LoggingStore) Unpublish(ctx context.Context, tenant, key string) (bool, error) {
	start := time.Now()
	ok, err := l.inner.Unpublish(ctx, tenant, key)
	l.log("unpublish", start, err, zap.String("shop", tenant), zap.String("key", key), zap.Bool("matched", ok))
	return ok, err
}

func (l *LoggingStore) RecordPageView(ctx context.Context, view domain.PageView) error {
	start := time.Now()
	err := l.inner.RecordPageView(ctx, view)
	l.log("record_page_view", start, err, zap.String("shop", view.Tenant), zap.String("handle", view.Handle))
	return err
}

func (l *LoggingStore) PageStats(ctx context.Context, tenant, handle string, since time.Time) (*domain.PageStats, error) {
	start := time.Now()
	stats, err := l.inner.PageStats(ctx, tenant, handle, since)
	l.log("page_stats", start, err, zap.String("shop", tenant), zap.String("handle", handle))
	return stats, err
}

func (l *LoggingStore) ShopStats(ctx context.Context, tenant string, since time.Time, limit int) (*domain.ShopStats, error) {
	start := time.Now()
	stats, err := l.inner.ShopStats(ctx, tenant, since, limit)
	l.log("shop_stats", start, err, zap.String("shop", tenant))
	return stats, err
}

func (l *LoggingStore) log(op string, start time.Time, err error, fields ...zap.Field) {
	duration := time.Since(start)
	fields = append(fields, zap.String("operation", op), zap.Duration("duration", duration))

	switch {
	case err != nil:
		l.logger.Error("store operation failed", append(fields, zap.Error(err))...)
	case l.config.SlowThreshold > 0 && duration > l.config.SlowThreshold:
		l.logger.Warn("slow store operation", fields...)
	default:
		if ce := l.logger.Check(l.config.LogLevel, "store operation"); ce != nil {
			ce.Write(fields...)
		}
	}
}
