package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/domain"
	"github.com/raimediatech/kingsbuilder/internal/repository"
	"github.com/raimediatech/kingsbuilder/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const shop = "demo.myshopify.com"

var allMethods = []string{
	"Connect", "Create", "List", "Get", "Update", "Delete", "Publish", "Unpublish",
	"RecordPageView", "PageStats", "ShopStats",
}

func unavailableStore() *memory.Store {
	inner := memory.NewStore()
	for _, m := range allMethods {
		inner.SetError(m, repository.ErrUnavailable)
	}
	return inner
}

func TestDegradingStoreServesDegradedResults(t *testing.T) {
	ctx := context.Background()
	store := repository.NewDegradingStore(unavailableStore(), zap.NewNop())

	t.Run("Should connect even when the backend cannot", func(t *testing.T) {
		assert.NoError(t, store.Connect(ctx))
	})

	t.Run("Should synthesize a created record", func(t *testing.T) {
		p, err := store.Create(ctx, &domain.Page{Tenant: shop, Handle: "about", Title: "About"})
		require.NoError(t, err)
		assert.NotEmpty(t, p.ID)
		assert.False(t, domain.IsLocalID(p.ID))
		assert.Equal(t, "About", p.Title)
		assert.False(t, p.CreatedAt.IsZero())
	})

	t.Run("Should keep a supplied id", func(t *testing.T) {
		p, err := store.Create(ctx, &domain.Page{ID: "local_5", Tenant: shop, Handle: "about"})
		require.NoError(t, err)
		assert.Equal(t, "local_5", p.ID)
	})

	t.Run("Should list nothing", func(t *testing.T) {
		pages, err := store.List(ctx, shop)
		require.NoError(t, err)
		assert.NotNil(t, pages)
		assert.Empty(t, pages)
	})

	t.Run("Should report not found on get", func(t *testing.T) {
		_, err := store.Get(ctx, shop, "about")
		assert.True(t, repository.IsNotFound(err))
	})

	t.Run("Should report writes as matched", func(t *testing.T) {
		title := "x"
		ok, err := store.Update(ctx, shop, "about", domain.PageUpdate{Title: &title})
		require.NoError(t, err)
		assert.True(t, ok)

		for _, fn := range []func(context.Context, string, string) (bool, error){store.Delete, store.Publish, store.Unpublish} {
			ok, err := fn(ctx, shop, "about")
			require.NoError(t, err)
			assert.True(t, ok)
		}
	})

	t.Run("Should turn analytics into no-ops", func(t *testing.T) {
		require.NoError(t, store.RecordPageView(ctx, domain.PageView{Tenant: shop, Handle: "about"}))

		stats, err := store.PageStats(ctx, shop, "about", time.Now().AddDate(0, 0, -30))
		require.NoError(t, err)
		assert.Zero(t, stats.TotalViews)
		assert.Empty(t, stats.DailyViews)

		shopStats, err := store.ShopStats(ctx, shop, time.Now().AddDate(0, 0, -30), 5)
		require.NoError(t, err)
		assert.Zero(t, shopStats.TotalViews)
		assert.Empty(t, shopStats.TopPages)
	})
}

func TestDegradingStorePropagatesOtherErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("write conflict")
	inner := memory.NewStore()
	inner.SetError("Update", boom)
	inner.SetError("Create", boom)
	store := repository.NewDegradingStore(inner, zap.NewNop())

	_, err := store.Create(ctx, &domain.Page{Tenant: shop, Handle: "about"})
	assert.ErrorIs(t, err, boom)

	title := "x"
	ok, err := store.Update(ctx, shop, "about", domain.PageUpdate{Title: &title})
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)
}

func TestDegradingStorePassesThroughWhenHealthy(t *testing.T) {
	ctx := context.Background()
	store := repository.NewDegradingStore(memory.NewStore(), zap.NewNop())

	_, err := store.Create(ctx, &domain.Page{ID: "local_1", Tenant: shop, Handle: "about"})
	require.NoError(t, err)

	ok, err := store.Delete(ctx, shop, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	p, err := store.Get(ctx, shop, "about")
	require.NoError(t, err)
	assert.Equal(t, "local_1", p.ID)
}
