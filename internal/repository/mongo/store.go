// Package mongo implements the repository stores on MongoDB. Pages live in
// the pages collection keyed by (shop, handle) and (shop, id); views in analytics.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/domain"
	"github.com/raimediatech/kingsbuilder/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// pageDocument is the stored shape of a page.
type pageDocument struct {
	ObjectID    primitive.ObjectID `bson:"_id,omitempty"`
	PageID      string             `bson:"id"`
	Shop        string             `bson:"shop"`
	Handle      string             `bson:"handle"`
	Title       string             `bson:"title"`
	Content     string             `bson:"content"`
	Published   bool               `bson:"published"`
	Status      string             `bson:"status"`
	Source      string             `bson:"source,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
	PublishedAt *time.Time         `bson:"publishedAt,omitempty"`
	ShopifyData string             `bson:"shopifyData,omitempty"`
}

type viewDocument struct {
	Shop      string    `bson:"shop"`
	Handle    string    `bson:"handle"`
	Timestamp time.Time `bson:"timestamp"`
	IP        string    `bson:"ip,omitempty"`
	Referrer  string    `bson:"referrer,omitempty"`
	UserAgent string    `bson:"userAgent,omitempty"`
}

// Store is a repository.Store backed by MongoDB.
type Store struct {
	config repository.Config
	logger *zap.Logger

	client    *mongo.Client
	pages     *mongo.Collection
	analytics *mongo.Collection

	now func() time.Time
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an unconnected store. Call Connect before use; until then
// every operation fails with repository.ErrUnavailable.
func NewStore(config repository.Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		config: config.WithDefaults(),
		logger: logger.Named("mongo_store"),
		now:    time.Now,
	}
}

// Connect dials the cluster, pings it and ensures the indexes.
func (s *Store) Connect(ctx context.Context) error {
	if s.config.URI == "" {
		return fmt.Errorf("%w: no mongo uri configured", repository.ErrUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(s.config.URI).
		SetServerSelectionTimeout(s.config.OperationTimeout))
	if err != nil {
		return fmt.Errorf("%w: connect: %v", repository.ErrUnavailable, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("%w: ping: %v", repository.ErrUnavailable, err)
	}

	db := client.Database(s.config.Database)
	s.client = client
	s.pages = db.Collection(s.config.PagesCollection)
	s.analytics = db.Collection(s.config.AnalyticsCollection)

	if err := s.ensureIndexes(ctx); err != nil {
		s.logger.Warn("failed to ensure indexes", zap.Error(err))
	}

	s.logger.Info("connected to mongodb", zap.String("database", s.config.Database))
	return nil
}

const (
	handleIndex = "shop_handle_unique"
	idIndex     = "shop_id_unique"
)

// pageIndexes keeps both (shop, handle) and (shop, id) unique.
func pageIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "shop", Value: 1}, {Key: "handle", Value: 1}}, Options: options.Index().SetName(handleIndex).SetUnique(true)},
		{Keys: bson.D{{Key: "shop", Value: 1}, {Key: "id", Value: 1}}, Options: options.Index().SetName(idIndex).SetUnique(true)},
	}
}

// duplicateConflict maps a duplicate key error onto the index it violated.
func duplicateConflict(err error, page *domain.Page) error {
	if strings.Contains(err.Error(), idIndex) {
		return repository.NewIDConflict(page.ID)
	}
	return repository.NewHandleConflict(page.Handle)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.pages.Indexes().CreateMany(ctx, pageIndexes())
	if err != nil {
		return fmt.Errorf("pages indexes: %w", err)
	}
	_, err = s.analytics.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "shop", Value: 1}, {Key: "handle", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("analytics indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.client = nil
	return err
}

func (s *Store) Create(ctx context.Context, page *domain.Page) (*domain.Page, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	now := s.now()
	stored := page.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	doc := toDocument(stored)
	if _, err := s.pages.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, duplicateConflict(err, stored)
		}
		return nil, s.translate("insert page", err)
	}
	return stored, nil
}

func (s *Store) List(ctx context.Context, tenant string) ([]*domain.Page, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	cursor, err := s.pages.Find(ctx, bson.M{"shop": tenant},
		options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}}))
	if err != nil {
		return nil, s.translate("find pages", err)
	}
	defer cursor.Close(ctx)

	var docs []pageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, s.translate("decode pages", err)
	}

	pages := make([]*domain.Page, 0, len(docs))
	for i := range docs {
		pages = append(pages, fromDocument(&docs[i]))
	}
	return pages, nil
}

func (s *Store) Get(ctx context.Context, tenant, key string) (*domain.Page, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	doc, err := s.findDocument(ctx, tenant, key)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, repository.NewPageNotFound(tenant, key)
	}
	return fromDocument(doc), nil
}

// Update reads the page, applies u in memory and replaces the document, so
// the publishedAt rules of domain.Page hold here too. Last write wins.
func (s *Store) Update(ctx context.Context, tenant, key string, u domain.PageUpdate) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	doc, err := s.findDocument(ctx, tenant, key)
	if err != nil || doc == nil {
		return false, err
	}

	page := fromDocument(doc)
	page.Apply(u, s.now())

	replacement := toDocument(page)
	replacement.ObjectID = doc.ObjectID
	res, err := s.pages.ReplaceOne(ctx, bson.M{"_id": doc.ObjectID}, replacement)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, duplicateConflict(err, page)
		}
		return false, s.translate("replace page", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *Store) Delete(ctx context.Context, tenant, key string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	for _, filter := range keyFilters(tenant, key) {
		res, err := s.pages.DeleteOne(ctx, filter)
		if err != nil {
			return false, s.translate("delete page", err)
		}
		if res.DeletedCount > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) Publish(ctx context.Context, tenant, key string) (bool, error) {
	now := s.now()
	return s.updateOne(ctx, tenant, key, bson.M{
		"$set": bson.M{
			"status":      domain.StatusPublished,
			"published":   true,
			"publishedAt": now,
			"updatedAt":   now,
		},
	})
}

func (s *Store) Unpublish(ctx context.Context, tenant, key string) (bool, error) {
	return s.updateOne(ctx, tenant, key, bson.M{
		"$set": bson.M{
			"status":    domain.StatusDraft,
			"published": false,
			"updatedAt": s.now(),
		},
		"$unset": bson.M{"publishedAt": 1},
	})
}

func (s *Store) updateOne(ctx context.Context, tenant, key string, update bson.M) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	for _, filter := range keyFilters(tenant, key) {
		res, err := s.pages.UpdateOne(ctx, filter, update)
		if err != nil {
			return false, s.translate("update page", err)
		}
		if res.MatchedCount > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) findDocument(ctx context.Context, tenant, key string) (*pageDocument, error) {
	for _, filter := range keyFilters(tenant, key) {
		var doc pageDocument
		err := s.pages.FindOne(ctx, filter).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return nil, s.translate("find page", err)
		}
		return &doc, nil
	}
	return nil, nil
}

// keyFilters addresses a page by id first, then by handle.
func keyFilters(tenant, key string) []bson.M {
	return []bson.M{
		{"shop": tenant, "id": key},
		{"shop": tenant, "handle": key},
	}
}

func (s *Store) ready() error {
	if s.client == nil {
		return fmt.Errorf("%w: not connected", repository.ErrUnavailable)
	}
	return nil
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.OperationTimeout)
}

// translate maps driver connectivity failures onto repository.ErrUnavailable.
func (s *Store) translate(op string, err error) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%w: %s: %v", repository.ErrUnavailable, op, err)
	}
	return fmt.Errorf("mongo: %s: %w", op, err)
}

func toDocument(p *domain.Page) *pageDocument {
	doc := &pageDocument{
		PageID:      p.ID,
		Shop:        p.Tenant,
		Handle:      p.Handle,
		Title:       p.Title,
		Content:     p.Body,
		Published:   p.Published,
		Status:      domain.StatusFor(p.Published),
		Source:      p.Source,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		PublishedAt: p.PublishedAt,
	}
	if len(p.RemoteSnapshot) > 0 {
		doc.ShopifyData = string(p.RemoteSnapshot)
	}
	return doc
}

func fromDocument(doc *pageDocument) *domain.Page {
	p := &domain.Page{
		ID:          doc.PageID,
		Tenant:      doc.Shop,
		Handle:      doc.Handle,
		Title:       doc.Title,
		Body:        doc.Content,
		Published:   doc.Published || doc.Status == domain.StatusPublished,
		Source:      doc.Source,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
		PublishedAt: doc.PublishedAt,
	}
	if p.ID == "" {
		p.ID = doc.ObjectID.Hex()
	}
	p.Status = domain.StatusFor(p.Published)
	if !p.Published {
		p.PublishedAt = nil
	}
	if doc.ShopifyData != "" {
		p.RemoteSnapshot = json.RawMessage(doc.ShopifyData)
	}
	return p
}
