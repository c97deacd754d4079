// Package memory provides a process-local implementation of the repository
// stores. It backs the tests and the demo mode.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/domain"
	"github.com/raimediatech/kingsbuilder/internal/repository"
)

// Store is an in-memory repository.Store.
type Store struct {
	mu sync.RWMutex

	pages map[string][]*domain.Page     // tenant -> pages
	views map[string][]domain.PageView // tenant -> views

	now func() time.Time

	// For testing error scenarios
	shouldFailOn map[string]error
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		pages:        make(map[string][]*domain.Page),
		views:        make(map[string][]domain.PageView),
		now:          time.Now,
		shouldFailOn: make(map[string]error),
	}
}

// WithClock replaces the time source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// SetError configures the store to return an error for a specific method.
func (s *Store) SetError(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shouldFailOn[method] = err
}

// ClearErrors removes all configured errors.
func (s *Store) ClearErrors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shouldFailOn = make(map[string]error)
}

func (s *Store) checkError(method string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shouldFailOn[method]
}

func (s *Store) Connect(ctx context.Context) error { return s.checkError("Connect") }

func (s *Store) Close(ctx context.Context) error { return nil }

func (s *Store) Create(ctx context.Context, page *domain.Page) (*domain.Page, error) {
	if err := s.checkError("Create"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.pages[page.Tenant] {
		if existing.ID == page.ID {
			return nil, repository.NewIDConflict(page.ID)
		}
		if existing.Handle == page.Handle {
			return nil, repository.NewHandleConflict(page.Handle)
		}
	}

	now := s.now()
	stored := page.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.pages[page.Tenant] = append(s.pages[page.Tenant], stored)
	return stored.Clone(), nil
}

func (s *Store) List(ctx context.Context, tenant string) ([]*domain.Page, error) {
	if err := s.checkError("List"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	pages := make([]*domain.Page, 0, len(s.pages[tenant]))
	for _, p := range s.pages[tenant] {
		pages = append(pages, p.Clone())
	}
	repository.SortByUpdated(pages)
	return pages, nil
}

func (s *Store) Get(ctx context.Context, tenant, key string) (*domain.Page, error) {
	if err := s.checkError("Get"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if p := s.find(tenant, key); p != nil {
		return p.Clone(), nil
	}
	return nil, repository.NewPageNotFound(tenant, key)
}

func (s *Store) Update(ctx context.Context, tenant, key string, u domain.PageUpdate) (bool, error) {
	if err := s.checkError("Update"); err != nil {
		return false, err
	}
	return s.mutate(tenant, key, func(p *domain.Page, now time.Time) { p.Apply(u, now) })
}

func (s *Store) Publish(ctx context.Context, tenant, key string) (bool, error) {
	if err := s.checkError("Publish"); err != nil {
		return false, err
	}
	return s.mutate(tenant, key, func(p *domain.Page, now time.Time) {
		// Publish always restamps publishedAt, unlike an update of the flag.
		p.PublishedAt = nil
		p.SetPublished(true, now)
		p.UpdatedAt = now
	})
}

func (s *Store) Unpublish(ctx context.Context, tenant, key string) (bool, error) {
	if err := s.checkError("Unpublish"); err != nil {
		return false, err
	}
	return s.mutate(tenant, key, func(p *domain.Page, now time.Time) {
		p.SetPublished(false, now)
		p.UpdatedAt = now
	})
}

func (s *Store) Delete(ctx context.Context, tenant, key string) (bool, error) {
	if err := s.checkError("Delete"); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.find(tenant, key)
	if target == nil {
		return false, nil
	}
	pages := s.pages[tenant]
	for i, p := range pages {
		if p == target {
			s.pages[tenant] = append(pages[:i:i], pages[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *Store) RecordPageView(ctx context.Context, view domain.PageView) error {
	if err := s.checkError("RecordPageView"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if view.Timestamp.IsZero() {
		view.Timestamp = s.now()
	}
	s.views[view.Tenant] = append(s.views[view.Tenant], view)
	return nil
}

func (s *Store) PageStats(ctx context.Context, tenant, handle string, since time.Time) (*domain.PageStats, error) {
	if err := s.checkError("PageStats"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.PageView
	for _, v := range s.views[tenant] {
		if v.Handle == handle && !v.Timestamp.Before(since) {
			matched = append(matched, v)
		}
	}
	return repository.AggregatePageStats(matched), nil
}

func (s *Store) ShopStats(ctx context.Context, tenant string, since time.Time, limit int) (*domain.ShopStats, error) {
	if err := s.checkError("ShopStats"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.ShopStats{}
	counts := make(map[string]int64)
	for _, v := range s.views[tenant] {
		if v.Timestamp.Before(since) {
			continue
		}
		stats.TotalViews++
		counts[v.Handle]++
	}
	stats.TopPages = repository.RankPages(counts, limit)
	return stats, nil
}

// find returns the stored page addressed by key, preferring an id match.
// Callers must hold the lock.
func (s *Store) find(tenant, key string) *domain.Page {
	var byHandle *domain.Page
	for _, p := range s.pages[tenant] {
		if p.ID == key {
			return p
		}
		if byHandle == nil && p.Handle == key {
			byHandle = p
		}
	}
	return byHandle
}

func (s *Store) mutate(tenant, key string, fn func(p *domain.Page, now time.Time)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.find(tenant, key)
	if p == nil {
		return false, nil
	}
	next := p.Clone()
	fn(next, s.now())
	if next.Handle != p.Handle {
		for _, other := range s.pages[tenant] {
			if other != p && other.Handle == next.Handle {
				return false, repository.NewHandleConflict(next.Handle)
			}
		}
	}
	*p = *next
	return true, nil
}
