package mongo

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/domain"
	"github.com/raimediatech/kingsbuilder/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func TestUnconnectedStoreIsUnavailable(t *testing.T) {
	ctx := context.Background()
	s := NewStore(repository.Config{}, zap.NewNop())

	err := s.Connect(ctx)
	assert.ErrorIs(t, err, repository.ErrUnavailable)

	_, err = s.List(ctx, "demo.myshopify.com")
	assert.ErrorIs(t, err, repository.ErrUnavailable)

	_, err = s.Publish(ctx, "demo.myshopify.com", "about")
	assert.ErrorIs(t, err, repository.ErrUnavailable)

	err = s.RecordPageView(ctx, domain.PageView{Tenant: "demo.myshopify.com", Handle: "about"})
	assert.ErrorIs(t, err, repository.ErrUnavailable)

	assert.NoError(t, s.Close(ctx))
}

func TestDocumentRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	page := &domain.Page{
		ID:             "101",
		Tenant:         "demo.myshopify.com",
		Handle:         "about",
		Title:          "About",
		Body:           "<p>x</p>",
		Source:         domain.SourceRemote,
		CreatedAt:      now,
		UpdatedAt:      now,
		RemoteSnapshot: json.RawMessage(`{"id":101}`),
	}
	page.SetPublished(true, now)

	doc := toDocument(page)
	assert.Equal(t, domain.StatusPublished, doc.Status)
	assert.Equal(t, `{"id":101}`, doc.ShopifyData)

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var decoded pageDocument
	require.NoError(t, bson.Unmarshal(raw, &decoded))

	back := fromDocument(&decoded)
	assert.Equal(t, page.ID, back.ID)
	assert.Equal(t, page.Handle, back.Handle)
	assert.Equal(t, domain.StatusPublished, back.Status)
	require.NotNil(t, back.PublishedAt)
	assert.True(t, now.Equal(*back.PublishedAt))
	assert.JSONEq(t, `{"id":101}`, string(back.RemoteSnapshot))
}

func TestFromDocumentLegacyRecords(t *testing.T) {
	t.Run("Should fall back to the object id", func(t *testing.T) {
		oid := primitive.NewObjectID()
		p := fromDocument(&pageDocument{ObjectID: oid, Shop: "s", Handle: "h", Status: domain.StatusDraft})
		assert.Equal(t, oid.Hex(), p.ID)
	})

	t.Run("Should derive published from status", func(t *testing.T) {
		at := time.Now()
		p := fromDocument(&pageDocument{PageID: "1", Status: domain.StatusPublished, PublishedAt: &at})
		assert.True(t, p.Published)
		assert.NotNil(t, p.PublishedAt)
	})

	t.Run("Should drop a stale publishedAt on drafts", func(t *testing.T) {
		at := time.Now()
		p := fromDocument(&pageDocument{PageID: "1", Status: domain.StatusDraft, PublishedAt: &at})
		assert.False(t, p.Published)
		assert.Nil(t, p.PublishedAt)
	})
}

func TestKeyFiltersPreferID(t *testing.T) {
	filters := keyFilters("demo.myshopify.com", "about")
	require.Len(t, filters, 2)
	assert.Equal(t, "about", filters[0]["id"])
	assert.Equal(t, "about", filters[1]["handle"])
	for _, f := range filters {
		assert.Equal(t, "demo.myshopify.com", f["shop"])
	}
}

func TestPageIndexesAreUnique(t *testing.T) {
	models := pageIndexes()
	require.Len(t, models, 2)

	names := make([]string, 0, len(models))
	for _, m := range models {
		require.NotNil(t, m.Options)
		require.NotNil(t, m.Options.Unique)
		assert.True(t, *m.Options.Unique)
		names = append(names, *m.Options.Name)
	}
	assert.ElementsMatch(t, []string{handleIndex, idIndex}, names)
	assert.Equal(t, bson.D{{Key: "shop", Value: 1}, {Key: "id", Value: 1}}, models[1].Keys)
}

func TestDuplicateConflictNamesTheIndex(t *testing.T) {
	page := &domain.Page{ID: "local_1", Handle: "about"}
	dup := func(index string) error {
		return mongo.WriteException{WriteErrors: mongo.WriteErrors{{
			Code:    11000,
			Message: "E11000 duplicate key error collection: kingsbuilder.pages index: " + index + " dup key",
		}}}
	}

	t.Run("Should map the id index to an id conflict", func(t *testing.T) {
		err := dup(idIndex)
		require.True(t, mongo.IsDuplicateKeyError(err))
		conflict := duplicateConflict(err, page)
		assert.True(t, repository.IsConflict(conflict))
		assert.False(t, repository.IsHandleConflict(conflict))
	})

	t.Run("Should map the handle index to a handle conflict", func(t *testing.T) {
		assert.True(t, repository.IsHandleConflict(duplicateConflict(dup(handleIndex), page)))
	})
}
