package ddb

import (
	"context"
	"fmt"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/domain"
	"github.com/raimediatech/kingsbuilder/internal/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
)

func newViewID() string { return uuid.NewString() }

func (s *Store) RecordPageView(ctx context.Context, view domain.PageView) error {
	if err := s.ready(); err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if view.Timestamp.IsZero() {
		view.Timestamp = s.now()
	}
	av, err := attributevalue.MarshalMap(ddbView{
		PK:        viewsPK(view.Tenant),
		SK:        viewSK(view.Timestamp, s.newID()),
		Handle:    view.Handle,
		Timestamp: view.Timestamp,
		IP:        view.IP,
		Referrer:  view.Referrer,
		UserAgent: view.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("marshal view: %w", err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.TableName),
		Item:      av,
	}); err != nil {
		return translate("put view", err)
	}
	return nil
}

func (s *Store) PageStats(ctx context.Context, tenant, handle string, since time.Time) (*domain.PageStats, error) {
	filter := expression.Name("Handle").Equal(expression.Value(handle))
	views, err := s.queryViews(ctx, tenant, since, &filter)
	if err != nil {
		return nil, err
	}
	return repository.AggregatePageStats(views), nil
}

func (s *Store) ShopStats(ctx context.Context, tenant string, since time.Time, limit int) (*domain.ShopStats, error) {
	views, err := s.queryViews(ctx, tenant, since, nil)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for _, v := range views {
		counts[v.Handle]++
	}
	return &domain.ShopStats{
		TotalViews: int64(len(views)),
		TopPages:   repository.RankPages(counts, limit),
	}, nil
}

// queryViews reads the views of the shop recorded at or after since. The
// sort key starts with the timestamp, so the window is a key condition.
func (s *Store) queryViews(ctx context.Context, tenant string, since time.Time, filter *expression.ConditionBuilder) ([]domain.PageView, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	keyExpr := expression.Key("PK").Equal(expression.Value(viewsPK(tenant))).
		And(expression.Key("SK").GreaterThanEqual(expression.Value("VIEW#" + since.UTC().Format(time.RFC3339Nano))))
	builder := expression.NewBuilder().WithKeyCondition(keyExpr)
	if filter != nil {
		builder = builder.WithFilter(*filter)
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TableName),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var views []domain.PageView
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, translate("query views", err)
		}
		var items []ddbView
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to parse view items: %w", err)
		}
		for _, it := range items {
			views = append(views, domain.PageView{
				Tenant:    tenant,
				Handle:    it.Handle,
				Timestamp: it.Timestamp,
				IP:        it.IP,
				Referrer:  it.Referrer,
				UserAgent: it.UserAgent,
			})
		}
	}
	return views, nil
}
