package ddb

import (
	"context"
	"fmt"

	"github.com/raimediatech/kingsbuilder/internal/domain"
	"github.com/raimediatech/kingsbuilder/internal/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// Create transactionally writes the page and reserves its handle.
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

	pagePut, err := marshalPut(toItem(stored), notExists(), s.config.TableName)
	if err != nil {
		return nil, err
	}
	handlePut, err := marshalPut(ddbHandle{
		PK: shopPK(stored.Tenant), SK: handleSK(stored.Handle), PageID: stored.ID,
	}, notExists(), s.config.TableName)
	if err != nil {
		return nil, err
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{{Put: pagePut}, {Put: handlePut}},
	})
	switch {
	case err == nil:
	case failedAt(err, 0):
		return nil, repository.NewIDConflict(stored.ID)
	case failedAt(err, 1):
		return nil, repository.NewHandleConflict(stored.Handle)
	default:
		return nil, translate("create page", err)
	}
	return stored, nil
}

// List queries the page items of the shop partition.
func (s *Store) List(ctx context.Context, tenant string) ([]*domain.Page, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	keyExpr := expression.Key("PK").Equal(expression.Value(shopPK(tenant))).
		And(expression.Key("SK").BeginsWith("PAGE#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	pages := []*domain.Page{}
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, translate("query pages", err)
		}
		for _, av := range out.Items {
			var item ddbPage
			if err := attributevalue.UnmarshalMap(av, &item); err != nil {
				s.logger.Warn("failed to parse page item", zap.Error(err))
				continue
			}
			pages = append(pages, fromItem(item))
		}
	}
	repository.SortByUpdated(pages)
	return pages, nil
}

func (s *Store) Get(ctx context.Context, tenant, key string) (*domain.Page, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	item, err := s.resolve(ctx, tenant, key)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, repository.NewPageNotFound(tenant, key)
	}
	return fromItem(*item), nil
}

func (s *Store) Update(ctx context.Context, tenant, key string, u domain.PageUpdate) (bool, error) {
	return s.mutate(ctx, tenant, key, func(p *domain.Page) { p.Apply(u, s.now()) })
}

func (s *Store) Publish(ctx context.Context, tenant, key string) (bool, error) {
	return s.mutate(ctx, tenant, key, func(p *domain.Page) {
		now := s.now()
		p.PublishedAt = nil
		p.SetPublished(true, now)
		p.UpdatedAt = now
	})
}

func (s *Store) Unpublish(ctx context.Context, tenant, key string) (bool, error) {
	return s.mutate(ctx, tenant, key, func(p *domain.Page) {
		now := s.now()
		p.SetPublished(false, now)
		p.UpdatedAt = now
	})
}

// Delete removes the page and its handle reservation in one transaction.
func (s *Store) Delete(ctx context.Context, tenant, key string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	item, err := s.resolve(ctx, tenant, key)
	if err != nil || item == nil {
		return false, err
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{TableName: aws.String(s.config.TableName), Key: itemKey(item.PK, item.SK)}},
			{Delete: &types.Delete{TableName: aws.String(s.config.TableName), Key: itemKey(item.PK, handleSK(item.Handle))}},
		},
	})
	if err != nil {
		return false, translate("delete page", err)
	}
	return true, nil
}

// mutate reads the page, applies fn and writes it back. A handle change moves
// the reservation in the same transaction. Last write wins.
func (s *Store) mutate(ctx context.Context, tenant, key string, fn func(p *domain.Page)) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	item, err := s.resolve(ctx, tenant, key)
	if err != nil || item == nil {
		return false, err
	}

	page := fromItem(*item)
	oldHandle := page.Handle
	fn(page)

	pagePut, err := marshalPut(toItem(page), exists(), s.config.TableName)
	if err != nil {
		return false, err
	}
	writes := []types.TransactWriteItem{{Put: pagePut}}

	if page.Handle != oldHandle {
		handlePut, err := marshalPut(ddbHandle{
			PK: shopPK(tenant), SK: handleSK(page.Handle), PageID: page.ID,
		}, notExists(), s.config.TableName)
		if err != nil {
			return false, err
		}
		writes = append(writes,
			types.TransactWriteItem{Put: handlePut},
			types.TransactWriteItem{Delete: &types.Delete{
				TableName: aws.String(s.config.TableName),
				Key:       itemKey(shopPK(tenant), handleSK(oldHandle)),
			}},
		)
	}

	if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes}); err != nil {
		if page.Handle != oldHandle && failedAt(err, 1) {
			return false, repository.NewHandleConflict(page.Handle)
		}
		return false, translate("update page", err)
	}
	return true, nil
}

// resolve finds a page item by id, then through the handle reservation.
func (s *Store) resolve(ctx context.Context, tenant, key string) (*ddbPage, error) {
	item, err := s.getPage(ctx, tenant, key)
	if err != nil || item != nil {
		return item, err
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.TableName),
		Key:       itemKey(shopPK(tenant), handleSK(key)),
	})
	if err != nil {
		return nil, translate("get handle", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var h ddbHandle
	if err := attributevalue.UnmarshalMap(out.Item, &h); err != nil {
		return nil, fmt.Errorf("failed to parse handle item: %w", err)
	}
	return s.getPage(ctx, tenant, h.PageID)
}

func (s *Store) getPage(ctx context.Context, tenant, id string) (*ddbPage, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.TableName),
		Key:       itemKey(shopPK(tenant), pageSK(id)),
	})
	if err != nil {
		return nil, translate("get page", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var item ddbPage
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to parse page item: %w", err)
	}
	return &item, nil
}
