package mongo

import (
	"context"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const defaultTopPages = 5

func (s *Store) RecordPageView(ctx context.Context, view domain.PageView) error {
	if err := s.ready(); err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if view.Timestamp.IsZero() {
		view.Timestamp = s.now()
	}
	_, err := s.analytics.InsertOne(ctx, viewDocument{
		Shop:      view.Tenant,
		Handle:    view.Handle,
		Timestamp: view.Timestamp,
		IP:        view.IP,
		Referrer:  view.Referrer,
		UserAgent: view.UserAgent,
	})
	if err != nil {
		return s.translate("insert view", err)
	}
	return nil
}

func (s *Store) PageStats(ctx context.Context, tenant, handle string, since time.Time) (*domain.PageStats, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	match := bson.D{{Key: "$match", Value: bson.M{
		"shop":      tenant,
		"handle":    handle,
		"timestamp": bson.M{"$gte": since},
	}}}

	var totals []struct {
		TotalViews  int64 `bson:"totalViews"`
		UniqueViews int64 `bson:"uniqueViews"`
	}
	if err := s.aggregate(ctx, mongo.Pipeline{
		match,
		{{Key: "$group", Value: bson.M{
			"_id":         nil,
			"totalViews":  bson.M{"$sum": 1},
			"uniqueViews": bson.M{"$addToSet": "$ip"},
		}}},
		{{Key: "$project", Value: bson.M{
			"totalViews":  1,
			"uniqueViews": bson.M{"$size": "$uniqueViews"},
		}}},
	}, &totals); err != nil {
		return nil, err
	}

	var daily []struct {
		Date  string `bson:"_id"`
		Views int64  `bson:"views"`
	}
	if err := s.aggregate(ctx, mongo.Pipeline{
		match,
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$timestamp"}},
			"views": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}, &daily); err != nil {
		return nil, err
	}

	stats := &domain.PageStats{DailyViews: make([]domain.DailyViews, 0, len(daily))}
	if len(totals) > 0 {
		stats.TotalViews = totals[0].TotalViews
		stats.UniqueViews = totals[0].UniqueViews
	}
	for _, d := range daily {
		stats.DailyViews = append(stats.DailyViews, domain.DailyViews{Date: d.Date, Views: d.Views})
	}
	return stats, nil
}

func (s *Store) ShopStats(ctx context.Context, tenant string, since time.Time, limit int) (*domain.ShopStats, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = defaultTopPages
	}

	filter := bson.M{"shop": tenant, "timestamp": bson.M{"$gte": since}}
	total, err := s.analytics.CountDocuments(ctx, filter)
	if err != nil {
		return nil, s.translate("count views", err)
	}

	var top []struct {
		Handle string `bson:"_id"`
		Views  int64  `bson:"views"`
	}
	if err := s.aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$group", Value: bson.M{"_id": "$handle", "views": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "views", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}, &top); err != nil {
		return nil, err
	}

	stats := &domain.ShopStats{TotalViews: total, TopPages: make([]domain.TopPage, 0, len(top))}
	for _, t := range top {
		stats.TopPages = append(stats.TopPages, domain.TopPage{Handle: t.Handle, Views: t.Views})
	}
	return stats, nil
}

func (s *Store) aggregate(ctx context.Context, pipeline mongo.Pipeline, out interface{}) error {
	cursor, err := s.analytics.Aggregate(ctx, pipeline)
	if err != nil {
		return s.translate("aggregate views", err)
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, out); err != nil {
		return s.translate("decode aggregate", err)
	}
	return nil
}
