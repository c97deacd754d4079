package pagesync

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/domain"
	"github.com/raimediatech/kingsbuilder/internal/events"
	"github.com/raimediatech/kingsbuilder/internal/observability"
	"github.com/raimediatech/kingsbuilder/internal/repository/memory"
	"github.com/raimediatech/kingsbuilder/internal/shopify"
	"github.com/raimediatech/kingsbuilder/internal/tenant"
	appErrors "github.com/raimediatech/kingsbuilder/pkg/errors"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testShop = "demo.myshopify.com"

// fakeRemote is an in-memory Admin API. When down is set every call fails
// as unavailable.
type fakeRemote struct {
	mu      sync.Mutex
	pages   map[string]*domain.Page
	nextID  int
	down    bool
	updates []domain.PageUpdate
	calls   int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{pages: map[string]*domain.Page{}, nextID: 1000}
}

func (f *fakeRemote) fail(op string) error {
	f.calls++
	if f.down {
		return &shopify.RemoteUnavailableError{Op: op, Err: errors.New("connection refused")}
	}
	return nil
}

func (f *fakeRemote) Create(ctx context.Context, shop, token string, in domain.NewPageInput) (*domain.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("create"); err != nil {
		return nil, err
	}
	f.nextID++
	now := time.Now()
	p := &domain.Page{
		ID: strconv.Itoa(f.nextID), Tenant: shop, Handle: in.Handle, Title: in.Title, Body: in.Body,
		Source: domain.SourceRemote, CreatedAt: now, UpdatedAt: now,
		RemoteSnapshot: []byte(`{"id":` + strconv.Itoa(f.nextID) + `}`),
	}
	p.SetPublished(in.Published, now)
	f.pages[p.ID] = p
	return p.Clone(), nil
}

func (f *fakeRemote) List(ctx context.Context, shop, token string) ([]*domain.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("list"); err != nil {
		return nil, err
	}
	var out []*domain.Page
	for _, p := range f.pages {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (f *fakeRemote) Get(ctx context.Context, shop, token, id string) (*domain.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("get"); err != nil {
		return nil, err
	}
	p, ok := f.pages[id]
	if !ok {
		return nil, &shopify.RemoteAPIError{Method: "GET", Path: "/pages/" + id + ".json", StatusCode: 404}
	}
	return p.Clone(), nil
}

func (f *fakeRemote) Update(ctx context.Context, shop, token, id string, u domain.PageUpdate) (*domain.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("update"); err != nil {
		return nil, err
	}
	p, ok := f.pages[id]
	if !ok {
		return nil, &shopify.RemoteAPIError{Method: "PUT", Path: "/pages/" + id + ".json", StatusCode: 404}
	}
	f.updates = append(f.updates, u)
	p.Apply(u, time.Now())
	return p.Clone(), nil
}

func (f *fakeRemote) Delete(ctx context.Context, shop, token, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("delete"); err != nil {
		return err
	}
	if _, ok := f.pages[id]; !ok {
		return &shopify.RemoteAPIError{Method: "DELETE", Path: "/pages/" + id + ".json", StatusCode: 404}
	}
	delete(f.pages, id)
	return nil
}

type fixture struct {
	svc     *Service
	remote  *fakeRemote
	store   *memory.Store
	bus     *events.RecordingBus
	metrics *observability.Collector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		remote:  newFakeRemote(),
		store:   memory.NewStore(),
		bus:     &events.RecordingBus{},
		metrics: observability.NewCollector("test"),
	}
	f.svc = NewService(f.remote, f.store, f.bus, f.metrics, zap.NewNop(), DefaultPolicy())
	return f
}

func strPtr(s string) *string { return &s }

var (
	anonymous = tenant.Identity{Tenant: testShop}
	connected = tenant.Identity{Tenant: testShop, Credential: "shpat_test"}
)

func TestMissingTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, tenant.Identity{}, domain.NewPageInput{Title: "About"})
	assert.True(t, appErrors.IsMissingTenant(err))

	_, err = f.svc.List(ctx, tenant.Identity{Credential: "x"})
	assert.True(t, appErrors.IsMissingTenant(err))

	assert.True(t, appErrors.IsMissingTenant(f.svc.Delete(ctx, tenant.Identity{}, "about")))
	assert.True(t, appErrors.IsMissingTenant(f.svc.Publish(ctx, tenant.Identity{}, "about")))
	assert.Zero(t, f.remote.calls)
}

func TestCreateWithoutCredentialIsLocalDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	page, err := f.svc.Create(ctx, anonymous, domain.NewPageInput{Title: "About Us"})
	require.NoError(t, err)

	assert.True(t, domain.IsLocalID(page.ID))
	assert.Equal(t, domain.SourceLocal, page.Source)
	assert.Equal(t, domain.StatusDraft, page.Status)
	assert.False(t, page.Published)
	assert.Nil(t, page.PublishedAt)
	assert.Equal(t, domain.DefaultBody, page.Body)
	assert.NotEmpty(t, page.Handle)
	assert.Zero(t, f.remote.calls)

	got, err := f.svc.Get(ctx, anonymous, page.ID)
	require.NoError(t, err)
	assert.Equal(t, page.Title, got.Title)

	byHandle, err := f.svc.Get(ctx, anonymous, page.Handle)
	require.NoError(t, err)
	assert.Equal(t, page.ID, byHandle.ID)

	require.Len(t, f.bus.Events(), 1)
	assert.Equal(t, events.PageCreated, f.bus.Events()[0].Type)
	assert.Equal(t, domain.SourceLocal, f.bus.Events()[0].Source)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), anonymous, domain.NewPageInput{Title: "   "})
	assert.True(t, appErrors.IsValidation(err))
}

func TestCreateLocalHandleConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, anonymous, domain.NewPageInput{Title: "About", Handle: "about"})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, anonymous, domain.NewPageInput{Title: "About again", Handle: "about"})
	assert.True(t, appErrors.IsValidation(err))
}

func TestCreateBackToBackMintsDistinctLocalIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	frozen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return frozen }

	first, err := f.svc.Create(ctx, anonymous, domain.NewPageInput{Title: "Page 0"})
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, anonymous, domain.NewPageInput{Title: "Page 1"})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)

	for i, page := range []*domain.Page{first, second} {
		got, err := f.svc.Get(ctx, anonymous, page.ID)
		require.NoError(t, err)
		assert.Equal(t, page.ID, got.ID)
		assert.Equal(t, "Page "+strconv.Itoa(i), got.Title)
	}

	pages, err := f.svc.List(ctx, anonymous)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestCreateForeignShopDomainFallsBackLocally(t *testing.T) {
	store := memory.NewStore()
	client := shopify.NewRESTClient(shopify.Config{}, zap.NewNop())
	svc := NewService(client, store, &events.RecordingBus{}, observability.NewCollector("test"), zap.NewNop(), DefaultPolicy())
	id := tenant.Identity{Tenant: "attacker.example", Credential: "shpat_test"}

	page, err := svc.Create(context.Background(), id, domain.NewPageInput{Title: "About"})
	require.NoError(t, err)
	assert.True(t, domain.IsLocalID(page.ID))
	assert.Equal(t, domain.SourceLocal, page.Source)

	stored, err := store.Get(context.Background(), "attacker.example", page.ID)
	require.NoError(t, err)
	assert.Equal(t, "About", stored.Title)
}

func TestCreateRemoteMirrorsLocally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	page, err := f.svc.Create(ctx, connected, domain.NewPageInput{Title: "Contact", Handle: "contact"})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceRemote, page.Source)
	assert.False(t, domain.IsLocalID(page.ID))

	mirrored, err := f.store.Get(ctx, testShop, page.ID)
	require.NoError(t, err)
	assert.Equal(t, "contact", mirrored.Handle)
	assert.NotEmpty(t, mirrored.RemoteSnapshot)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SyncOperations.WithLabelValues("create", PathRemote)))
}

func TestCreateMirrorFailureDoesNotSurface(t *testing.T) {
	f := newFixture(t)
	f.store.SetError("Create", errors.New("disk full"))

	page, err := f.svc.Create(context.Background(), connected, domain.NewPageInput{Title: "Contact"})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceRemote, page.Source)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SyncOperations.WithLabelValues("create", PathMirrorFailed)))
}

func TestCreateFallsBackWhenRemoteUnavailable(t *testing.T) {
	f := newFixture(t)
	f.remote.down = true

	page, err := f.svc.Create(context.Background(), connected, domain.NewPageInput{Title: "FAQ", Published: true})
	require.NoError(t, err)
	assert.True(t, domain.IsLocalID(page.ID))
	assert.True(t, page.Published)
	require.NotNil(t, page.PublishedAt)
}

func TestCreateLocalStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.SetError("Create", errors.New("disk full"))

	_, err := f.svc.Create(context.Background(), anonymous, domain.NewPageInput{Title: "FAQ"})
	assert.True(t, appErrors.IsLocalStore(err))
}

func TestListPrefersRemote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, anonymous, domain.NewPageInput{Title: "Local only"})
	require.NoError(t, err)
	_, err = f.remote.Create(ctx, testShop, "", domain.NewPageInput{Title: "Remote", Handle: "remote"})
	require.NoError(t, err)

	pages, err := f.svc.List(ctx, connected)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "remote", pages[0].Handle)
}

func TestListFallsBackWhenRemoteUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, anonymous, domain.NewPageInput{Title: "Local only"})
	require.NoError(t, err)
	f.remote.down = true

	pages, err := f.svc.List(ctx, connected)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Local only", pages[0].Title)
}

func TestListEmptyRemotePolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, anonymous, domain.NewPageInput{Title: "Local only"})
	require.NoError(t, err)

	t.Run("falls back by default", func(t *testing.T) {
		pages, err := f.svc.List(ctx, connected)
		require.NoError(t, err)
		assert.Len(t, pages, 1)
	})

	t.Run("returns empty remote list when disabled", func(t *testing.T) {
		f.svc.SetPolicy(Policy{EmptyRemoteFallback: false})
		assert.Equal(t, DefaultRemoteTimeout, f.svc.Policy().RemoteTimeout)

		pages, err := f.svc.List(ctx, connected)
		require.NoError(t, err)
		assert.NotNil(t, pages)
		assert.Empty(t, pages)
	})
}

func TestListEmptyIsNotNil(t *testing.T) {
	f := newFixture(t)

	pages, err := f.svc.List(context.Background(), anonymous)
	require.NoError(t, err)
	assert.NotNil(t, pages)
	assert.Empty(t, pages)
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("remote 404 falls back to local", func(t *testing.T) {
		local, err := f.svc.Create(ctx, anonymous, domain.NewPageInput{Title: "Shipping", Handle: "shipping"})
		require.NoError(t, err)

		got, err := f.svc.Get(ctx, connected, "shipping")
		require.NoError(t, err)
		assert.Equal(t, local.ID, got.ID)
	})

	t.Run("local ids skip the remote", func(t *testing.T) {
		local, err := f.svc.Create(ctx, anonymous, domain.NewPageInput{Title: "Returns"})
		require.NoError(t, err)

		before := f.remote.calls
		_, err = f.svc.Get(ctx, connected, local.ID)
		require.NoError(t, err)
		assert.Equal(t, before, f.remote.calls)
	})

	t.Run("missing everywhere", func(t *testing.T) {
		_, err := f.svc.Get(ctx, connected, "nope")
		require.Error(t, err)
		var appErr *appErrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, appErrors.ErrorTypeNotFound, appErr.Type)
		assert.Equal(t, PageNotFoundMessage, appErr.Message)
	})

	t.Run("local store failure", func(t *testing.T) {
		f.store.SetError("Get", errors.New("boom"))
		defer f.store.ClearErrors()

		_, err := f.svc.Get(ctx, anonymous, "shipping")
		assert.True(t, appErrors.IsLocalStore(err))
	})
}

func TestUpdateIsPartial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	page, err := f.svc.Create(ctx, connected, domain.NewPageInput{Title: "Old", Handle: "keep-me", Body: "<p>body</p>"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Update(ctx, connected, page.ID, domain.PageUpdate{Title: strPtr("New")}))

	require.Len(t, f.remote.updates, 1)
	sent := f.remote.updates[0]
	assert.Equal(t, "New", *sent.Title)
	assert.Nil(t, sent.Handle)
	assert.Nil(t, sent.Body)
	assert.Nil(t, sent.Published)

	mirrored, err := f.store.Get(ctx, testShop, page.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", mirrored.Title)
	assert.Equal(t, "keep-me", mirrored.Handle)
	assert.Equal(t, "<p>body</p>", mirrored.Body)
}

func TestUpdateLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	page, err := f.svc.Create(ctx, anonymous, domain.NewPageInput{Title: "Old", Handle: "old"})
	require.NoError(t, err)

	t.Run("changes only given fields", func(t *testing.T) {
		require.NoError(t, f.svc.Update(ctx, anonymous, "old", domain.PageUpdate{Body: strPtr("<p>x</p>")}))
		got, err := f.svc.Get(ctx, anonymous, page.ID)
		require.NoError(t, err)
		assert.Equal(t, "Old", got.Title)
		assert.Equal(t, "<p>x</p>", got.Body)
	})

	t.Run("empty title rejected", func(t *testing.T) {
		err := f.svc.Update(ctx, anonymous, page.ID, domain.PageUpdate{Title: strPtr(" ")})
		assert.True(t, appErrors.IsValidation(err))
	})

	t.Run("unknown page", func(t *testing.T) {
		err := f.svc.Update(ctx, anonymous, "missing", domain.PageUpdate{Title: strPtr("x")})
		assert.True(t, appErrors.IsNotFound(err))
	})
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	page, err := f.svc.Create(ctx, connected, domain.NewPageInput{Title: "Gone soon"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, connected, page.ID))
	_, err = f.store.Get(ctx, testShop, page.ID)
	assert.Error(t, err)

	err = f.svc.Delete(ctx, connected, page.ID)
	assert.True(t, appErrors.IsNotFound(err))

	types := []string{}
	for _, e := range f.bus.Events() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{events.PageCreated, events.PageDeleted}, types)
}

func TestDeleteLocalWhenRemoteDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	page, err := f.svc.Create(ctx, anonymous, domain.NewPageInput{Title: "Local"})
	require.NoError(t, err)
	f.remote.down = true

	require.NoError(t, f.svc.Delete(ctx, connected, page.Handle))
	assert.True(t, appErrors.IsNotFound(f.svc.Delete(ctx, connected, page.Handle)))
}

func TestPublishUnpublishKeepsStatusConsistent(t *testing.T) {
	ctx := context.Background()

	check := func(t *testing.T, p *domain.Page, published bool) {
		t.Helper()
		assert.Equal(t, published, p.Published)
		assert.Equal(t, domain.StatusFor(published), p.Status)
		assert.Equal(t, published, p.PublishedAt != nil)
	}

	t.Run("local", func(t *testing.T) {
		f := newFixture(t)
		page, err := f.svc.Create(ctx, anonymous, domain.NewPageInput{Title: "Sale"})
		require.NoError(t, err)
		check(t, page, false)

		require.NoError(t, f.svc.Publish(ctx, anonymous, page.ID))
		got, err := f.svc.Get(ctx, anonymous, page.ID)
		require.NoError(t, err)
		check(t, got, true)

		require.NoError(t, f.svc.Unpublish(ctx, anonymous, page.ID))
		got, err = f.svc.Get(ctx, anonymous, page.ID)
		require.NoError(t, err)
		check(t, got, false)
	})

	t.Run("remote mirrors into local", func(t *testing.T) {
		f := newFixture(t)
		page, err := f.svc.Create(ctx, connected, domain.NewPageInput{Title: "Sale"})
		require.NoError(t, err)

		require.NoError(t, f.svc.Publish(ctx, connected, page.ID))
		require.Len(t, f.remote.updates, 1)
		require.NotNil(t, f.remote.updates[0].Published)
		assert.True(t, *f.remote.updates[0].Published)

		local, err := f.store.Get(ctx, testShop, page.ID)
		require.NoError(t, err)
		check(t, local, true)

		last := f.bus.Events()[len(f.bus.Events())-1]
		assert.Equal(t, events.PagePublished, last.Type)
	})

	t.Run("unknown page", func(t *testing.T) {
		f := newFixture(t)
		assert.True(t, appErrors.IsNotFound(f.svc.Publish(ctx, anonymous, "missing")))
	})
}

func TestRemoteTimeoutCountsAsFailure(t *testing.T) {
	f := newFixture(t)
	slow := &slowRemote{fakeRemote: f.remote}
	svc := NewService(slow, f.store, nil, nil, nil, Policy{EmptyRemoteFallback: true, RemoteTimeout: 20 * time.Millisecond})

	page, err := svc.Create(context.Background(), connected, domain.NewPageInput{Title: "Slow"})
	require.NoError(t, err)
	assert.True(t, domain.IsLocalID(page.ID))
}

type slowRemote struct {
	*fakeRemote
}

func (s *slowRemote) Create(ctx context.Context, shop, token string, in domain.NewPageInput) (*domain.Page, error) {
	<-ctx.Done()
	return nil, &shopify.RemoteUnavailableError{Op: "create", Err: ctx.Err()}
}
