package decorators

import (
	"context"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/domain"
	"github.com/raimediatech/kingsbuilder/internal/observability"
	"github.com/raimediatech/kingsbuilder/internal/repository"
)

// MetricsStore counts store calls and their latency.
type MetricsStore struct {
	inner     repository.Store
	collector *observability.Collector
}

var _ repository.Store = (*MetricsStore)(nil)

// NewMetricsStore creates a new metrics decorator.
func NewMetricsStore(inner repository.Store, collector *observability.Collector) *MetricsStore {
	return &MetricsStore{inner: inner, collector: collector}
}

func (m *MetricsStore) observe(op string, start time.Time, err error) {
	// A miss is an answer, not a failure.
	if repository.IsNotFound(err) {
		err = nil
	}
	m.collector.RecordStore(op, err, time.Since(start))
}

func (m *MetricsStore) Connect(ctx context.Context) error {
	start := time.Now()
	err := m.inner.Connect(ctx)
	m.observe("connect", start, err)
	return err
}

func (m *MetricsStore) Close(ctx context.Context) error {
	return m.inner.Close(ctx)
}

func (m *MetricsStore) Create(ctx context.Context, page *domain.Page) (*domain.Page, error) {
	start := time.Now()
	created, err := m.inner.Create(ctx, page)
	m.observe("create", start, err)
	return created, err
}

func (m *MetricsStore) List(ctx context.Context, tenant string) ([]*domain.Page, error) {
	start := time.Now()
	pages, err := m.inner.List(ctx, tenant)
	m.observe("list", start, err)
	return pages, err
}

func (m *MetricsStore) Get(ctx context.Context, tenant, key string) (*domain.Page, error) {
	start := time.Now()
	page, err := m.inner.Get(ctx, tenant, key)
	m.observe("get", start, err)
	return page, err
}

func (m *MetricsStore) Update(ctx context.Context, tenant, key string, u domain.PageUpdate) (bool, error) {
	start := time.Now()
	ok, err := m.inner.Update(ctx, tenant, key, u)
	m.observe("update", start, err)
	return ok, err
}

func (m *MetricsStore) Delete(ctx context.Context, tenant, key string) (bool, error) {
	start := time.Now()
	ok, err := m.inner.Delete(ctx, tenant, key)
	m.observe("delete", start, err)
	return ok, err
}

func (m *MetricsStore) Publish(ctx context.Context, tenant, key string) (bool, error) {
	start := time.Now()
	ok, err := m.inner.Publish(ctx, tenant, key)
	m.observe("publish", start, err)
	return ok, err
}

func (m *MetricsStore) Unpublish(ctx context.Context, tenant, key string) (bool, error) {
	start := time.Now()
	ok, err := m.inner.Unpublish(ctx, tenant, key)
	m.observe("unpublish", start, err)
	return ok, err
}

func (m *MetricsStore) RecordPageView(ctx context.Context, view domain.PageView) error {
	start := time.Now()
	err := m.inner.RecordPageView(ctx, view)
	m.observe("record_page_view", start, err)
	return err
}

func (m *MetricsStore) PageStats(ctx context.Context, tenant, handle string, since time.Time) (*domain.PageStats, error) {
	start := time.Now()
	stats, err := m.inner.PageStats(ctx, tenant, handle, since)
	m.observe("page_stats", start, err)
	return stats, err
}

func (m *MetricsStore) ShopStats(ctx context.Context, tenant string, since time.Time, limit int) (*domain.ShopStats, error) {
	start := time.Now()
	stats, err := m.inner.ShopStats(ctx, tenant, since, limit)
	m.observe("shop_stats", start, err)
	return stats, err
}
