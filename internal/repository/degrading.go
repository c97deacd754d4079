package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/domain"

	"go.uber.org/zap"
)

// DegradingStore keeps the service answering while its backend is
// unreachable. Calls that fail with ErrUnavailable are converted:
//
//   - Create returns the record it was given, stamped, with a timestamp id if it had none
//   - Update, Delete, Publish and Unpublish report a match
//   - List returns an empty slice and Get reports not found
//   - RecordPageView is dropped and stats are zero-valued
//
// Any other error is returned unchanged.
type DegradingStore struct {
	inner  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewDegradingStore wraps inner.
func NewDegradingStore(inner Store, logger *zap.Logger) *DegradingStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DegradingStore{
		inner:  inner,
		logger: logger.Named("degrading_store"),
		now:    time.Now,
	}
}

// Connect never fails: a store that cannot connect serves in degraded mode.
func (s *DegradingStore) Connect(ctx context.Context) error {
	if err := s.inner.Connect(ctx); err != nil {
		s.logger.Warn("local store connection failed, continuing in degraded mode", zap.Error(err))
	}
	return nil
}

func (s *DegradingStore) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}

func (s *DegradingStore) Create(ctx context.Context, page *domain.Page) (*domain.Page, error) {
	created, err := s.inner.Create(ctx, page)
	if !s.degraded("create", page.Tenant, err) {
		return created, err
	}

	now := s.now()
	synthesized := page.Clone()
	if synthesized.ID == "" {
		synthesized.ID = strconv.FormatInt(now.UnixMilli(), 10)
	}
	synthesized.CreatedAt = now
	synthesized.UpdatedAt = now
	return synthesized, nil
}

func (s *DegradingStore) List(ctx context.Context, tenant string) ([]*domain.Page, error) {
	pages, err := s.inner.List(ctx, tenant)
	if s.degraded("list", tenant, err) {
		return []*domain.Page{}, nil
	}
	return pages, err
}

func (s *DegradingStore) Get(ctx context.Context, tenant, key string) (*domain.Page, error) {
	page, err := s.inner.Get(ctx, tenant, key)
	if s.degraded("get", tenant, err) {
		return nil, NewPageNotFound(tenant, key)
	}
	return page, err
}

func (s *DegradingStore) Update(ctx context.Context, tenant, key string, u domain.PageUpdate) (bool, error) {
	return s.matched("update", tenant)(s.inner.Update(ctx, tenant, key, u))
}

func (s *DegradingStore) Delete(ctx context.Context, tenant, key string) (bool, error) {
	return s.matched("delete", tenant)(s.inner.Delete(ctx, tenant, key))
}

func (s *DegradingStore) Publish(ctx context.Context, tenant, key string) (bool, error) {
	return s.matched("publish", tenant)(s.inner.Publish(ctx, tenant, key))
}

func (s *DegradingStore) Unpublish(ctx context.Context, tenant, key string) (bool, error) {
	return s.matched("unpublish", tenant)(s.inner.Unpublish(ctx, tenant, key))
}

func (s *DegradingStore) RecordPageView(ctx context.Context, view domain.PageView) error {
	err := s.inner.RecordPageView(ctx, view)
	if s.degraded("record_page_view", view.Tenant, err) {
		return nil
	}
	return err
}

func (s *DegradingStore) PageStats(ctx context.Context, tenant, handle string, since time.Time) (*domain.PageStats, error) {
	stats, err := s.inner.PageStats(ctx, tenant, handle, since)
	if s.degraded("page_stats", tenant, err) {
		return &domain.PageStats{DailyViews: []domain.DailyViews{}}, nil
	}
	return stats, err
}

func (s *DegradingStore) ShopStats(ctx context.Context, tenant string, since time.Time, limit int) (*domain.ShopStats, error) {
	stats, err := s.inner.ShopStats(ctx, tenant, since, limit)
	if s.degraded("shop_stats", tenant, err) {
		return &domain.ShopStats{TopPages: []domain.TopPage{}}, nil
	}
	return stats, err
}

func (s *DegradingStore) matched(op, tenant string) func(bool, error) (bool, error) {
	return func(ok bool, err error) (bool, error) {
		if s.degraded(op, tenant, err) {
			return true, nil
		}
		return ok, err
	}
}

func (s *DegradingStore) degraded(op, tenant string, err error) bool {
	if err == nil || !IsUnavailable(err) {
		return false
	}
	s.logger.Warn("local store unavailable, serving degraded result",
		zap.String("operation", op),
		zap.String("shop", tenant),
		zap.Error(err),
	)
	return true
}
