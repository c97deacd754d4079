// Package analytics records storefront page views and reports on them.
package analytics

import (
	"context"
	"strings"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/domain"
	"github.com/raimediatech/kingsbuilder/internal/observability"
	"github.com/raimediatech/kingsbuilder/internal/repository"
	appErrors "github.com/raimediatech/kingsbuilder/pkg/errors"

	"go.uber.org/zap"
)

// TopPagesLimit is the number of pages ranked in shop stats.
const TopPagesLimit = 5

// MaxWindowDays caps the reporting window.
const MaxWindowDays = 365

// Service defines the analytics operations.
type Service interface {
	// RecordView appends a view. Timestamp defaults to now.
	RecordView(ctx context.Context, view domain.PageView) error

	// PageStats aggregates the views of one page over the last days.
	PageStats(ctx context.Context, shop, handle string, days int) (*domain.PageStats, error)

	// ShopStats aggregates all views of a shop over the last days, with the
	// top pages' titles resolved from the page store.
	ShopStats(ctx context.Context, shop string, days int) (*domain.ShopStats, error)
}

type service struct {
	views   repository.AnalyticsStore
	pages   repository.PageStore
	metrics *observability.Collector
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates the analytics service.
func NewService(views repository.AnalyticsStore, pages repository.PageStore, metrics *observability.Collector, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		views:   views,
		pages:   pages,
		metrics: metrics,
		logger:  logger.Named("analytics"),
		now:     time.Now,
	}
}

func (s *service) RecordView(ctx context.Context, view domain.PageView) error {
	if view.Tenant == "" {
		return appErrors.NewMissingTenant()
	}
	view.Handle = strings.TrimSpace(view.Handle)
	if view.Handle == "" {
		return appErrors.NewValidation("Page handle is required")
	}
	if view.Timestamp.IsZero() {
		view.Timestamp = s.now()
	}

	err := s.views.RecordPageView(ctx, view)
	s.metrics.RecordPageView(err)
	if err != nil {
		return appErrors.NewLocalStore("failed to record page view", err)
	}
	return nil
}

func (s *service) PageStats(ctx context.Context, shop, handle string, days int) (*domain.PageStats, error) {
	if shop == "" {
		return nil, appErrors.NewMissingTenant()
	}
	if handle == "" {
		return nil, appErrors.NewValidation("Page handle is required")
	}
	days, err := window(days)
	if err != nil {
		return nil, err
	}

	stats, err := s.views.PageStats(ctx, shop, handle, domain.WindowStart(s.now(), days))
	if err != nil {
		return nil, appErrors.NewLocalStore("failed to load page stats", err)
	}
	if stats.DailyViews == nil {
		stats.DailyViews = []domain.DailyViews{}
	}
	return stats, nil
}

func (s *service) ShopStats(ctx context.Context, shop string, days int) (*domain.ShopStats, error) {
	if shop == "" {
		return nil, appErrors.NewMissingTenant()
	}
	days, err := window(days)
	if err != nil {
		return nil, err
	}

	stats, err := s.views.ShopStats(ctx, shop, domain.WindowStart(s.now(), days), TopPagesLimit)
	if err != nil {
		return nil, appErrors.NewLocalStore("failed to load shop stats", err)
	}

	pages, err := s.pages.List(ctx, shop)
	if err != nil {
		return nil, appErrors.NewLocalStore("failed to list pages", err)
	}
	stats.TotalPages = int64(len(pages))

	titles := make(map[string]string, len(pages))
	for _, p := range pages {
		titles[p.Handle] = p.Title
	}
	for i := range stats.TopPages {
		title, ok := titles[stats.TopPages[i].Handle]
		if !ok {
			s.logger.Debug("viewed page not in store", zap.String("shop", shop), zap.String("handle", stats.TopPages[i].Handle))
			title = stats.TopPages[i].Handle
		}
		stats.TopPages[i].Title = title
	}
	if stats.TopPages == nil {
		stats.TopPages = []domain.TopPage{}
	}
	return stats, nil
}

func window(days int) (int, error) {
	switch {
	case days == 0:
		return domain.DefaultStatsWindowDays, nil
	case days < 0:
		return 0, appErrors.NewValidation("days must be positive")
	case days > MaxWindowDays:
		return MaxWindowDays, nil
	}
	return days, nil
}
