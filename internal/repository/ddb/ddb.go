// Package ddb implements the repository stores using AWS DynamoDB.
// This is the only layer that should have knowledge of DynamoDB specifics.
//
// Single-table layout:
//
//	PK=SHOP#<shop>        SK=PAGE#<id>       page item
//	PK=SHOP#<shop>        SK=HANDLE#<handle> handle reservation pointing at the page id
//	PK=SHOP#<shop>#VIEWS  SK=VIEW#<ts>#<uuid> page view
package ddb

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/domain"
	"github.com/raimediatech/kingsbuilder/internal/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// API is the subset of the DynamoDB client used by the store.
type API interface {
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// ddbPage represents the structure of a page item in DynamoDB.
type ddbPage struct {
	PK          string     `dynamodbav:"PK"`
	SK          string     `dynamodbav:"SK"`
	EntityType  string     `dynamodbav:"EntityType"`
	PageID      string     `dynamodbav:"PageID"`
	Shop        string     `dynamodbav:"Shop"`
	Handle      string     `dynamodbav:"Handle"`
	Title       string     `dynamodbav:"Title"`
	Content     string     `dynamodbav:"Content"`
	Published   bool       `dynamodbav:"Published"`
	Status      string     `dynamodbav:"Status"`
	Source      string     `dynamodbav:"Source,omitempty"`
	CreatedAt   time.Time  `dynamodbav:"CreatedAt"`
	UpdatedAt   time.Time  `dynamodbav:"UpdatedAt"`
	PublishedAt *time.Time `dynamodbav:"PublishedAt,omitempty"`
	ShopifyData string     `dynamodbav:"ShopifyData,omitempty"`
}

// ddbHandle reserves a handle within a shop.
type ddbHandle struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	PageID string `dynamodbav:"PageID"`
}

// ddbView represents a page view item.
type ddbView struct {
	PK        string    `dynamodbav:"PK"`
	SK        string    `dynamodbav:"SK"`
	Handle    string    `dynamodbav:"Handle"`
	Timestamp time.Time `dynamodbav:"Timestamp"`
	IP        string    `dynamodbav:"IP,omitempty"`
	Referrer  string    `dynamodbav:"Referrer,omitempty"`
	UserAgent string    `dynamodbav:"UserAgent,omitempty"`
}

const entityTypePage = "PAGE"

func shopPK(tenant string) string       { return fmt.Sprintf("SHOP#%s", tenant) }
func viewsPK(tenant string) string      { return fmt.Sprintf("SHOP#%s#VIEWS", tenant) }
func pageSK(id string) string           { return fmt.Sprintf("PAGE#%s", id) }
func handleSK(handle string) string     { return fmt.Sprintf("HANDLE#%s", handle) }
func viewSK(ts time.Time, id string) string {
	return fmt.Sprintf("VIEW#%s#%s", ts.UTC().Format(time.RFC3339Nano), id)
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// LoadClient builds a DynamoDB client from the default AWS credential chain.
// A non-empty endpoint targets DynamoDB Local.
func LoadClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// Store is a repository.Store backed by a single DynamoDB table.
type Store struct {
	client    API
	config    repository.Config
	logger    *zap.Logger
	connected bool
	now       func() time.Time
	newID     func() string
}

var _ repository.Store = (*Store)(nil)

// NewStore creates a new DynamoDB store. Call Connect before use.
func NewStore(client API, config repository.Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client: client,
		config: config.WithDefaults(),
		logger: logger.Named("dynamodb_store"),
		now:    time.Now,
		newID:  newViewID,
	}
}

// Connect verifies that the table is reachable.
func (s *Store) Connect(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("%w: no dynamodb client", repository.ErrUnavailable)
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.config.TableName),
	}); err != nil {
		return translate("describe table", err)
	}
	s.connected = true
	s.logger.Info("connected to dynamodb", zap.String("table", s.config.TableName))
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	s.connected = false
	return nil
}

func (s *Store) ready() error {
	if !s.connected {
		return fmt.Errorf("%w: not connected", repository.ErrUnavailable)
	}
	return nil
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.OperationTimeout)
}

// failedConditions returns the positions of the transaction items whose
// condition check failed, or nil when err is not a canceled transaction.
func failedConditions(err error) []int {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil
	}
	var idx []int
	for i, reason := range tce.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			idx = append(idx, i)
		}
	}
	return idx
}

func failedAt(err error, pos int) bool {
	for _, i := range failedConditions(err) {
		if i == pos {
			return true
		}
	}
	return false
}

// translate maps DynamoDB failures onto repository errors. API errors that
// mean the table cannot be reached, and any transport error, become
// repository.ErrUnavailable.
func translate(op string, err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return repository.ErrConflict{Resource: "page", Reason: op + ": conditional check failed"}
	}
	if len(failedConditions(err)) > 0 {
		return repository.ErrConflict{Resource: "page", Reason: op + ": conditional check failed"}
	}

	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "ResourceNotFoundException", "ServiceUnavailable", "InternalServerError", "RequestLimitExceeded":
			return fmt.Errorf("%w: %s: %v", repository.ErrUnavailable, op, err)
		}
		return fmt.Errorf("dynamodb: %s: %w", op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", repository.ErrUnavailable, op, err)
	}
	return fmt.Errorf("dynamodb: %s: %w", op, err)
}

func toItem(p *domain.Page) ddbPage {
	item := ddbPage{
		PK:          shopPK(p.Tenant),
		SK:          pageSK(p.ID),
		EntityType:  entityTypePage,
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
		item.ShopifyData = string(p.RemoteSnapshot)
	}
	return item
}

func fromItem(item ddbPage) *domain.Page {
	p := &domain.Page{
		ID:          item.PageID,
		Tenant:      item.Shop,
		Handle:      item.Handle,
		Title:       item.Title,
		Body:        item.Content,
		Published:   item.Published,
		Status:      domain.StatusFor(item.Published),
		Source:      item.Source,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
		PublishedAt: item.PublishedAt,
	}
	if !p.Published {
		p.PublishedAt = nil
	}
	if item.ShopifyData != "" {
		p.RemoteSnapshot = []byte(item.ShopifyData)
	}
	return p
}

func marshalPut(v interface{}, condition *expression.ConditionBuilder, table string) (*types.Put, error) {
	av, err := attributevalue.MarshalMap(v)
	if err != nil {
		return nil, fmt.Errorf("marshal item: %w", err)
	}
	put := &types.Put{TableName: aws.String(table), Item: av}
	if condition != nil {
		expr, err := expression.NewBuilder().WithCondition(*condition).Build()
		if err != nil {
			return nil, fmt.Errorf("build condition: %w", err)
		}
		put.ConditionExpression = expr.Condition()
		put.ExpressionAttributeNames = expr.Names()
		put.ExpressionAttributeValues = expr.Values()
	}
	return put, nil
}

func notExists() *expression.ConditionBuilder {
	c := expression.Name("PK").AttributeNotExists()
	return &c
}

func exists() *expression.ConditionBuilder {
	c := expression.Name("PK").AttributeExists()
	return &c
}
