package shopify

import (
	"context"
	"time"

	"github.com/raimediatech/kingsbuilder/internal/domain"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig holds configuration for the Admin API circuit breaker
type BreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// FailureThreshold is the failure ratio that trips the breaker once MinRequests is reached
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns a default configuration for the breaker
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "shopify-admin-api",
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// BreakerClient decorates a Client with a circuit breaker. While the breaker
// is open calls fail fast with RemoteUnavailableError.
type BreakerClient struct {
	inner  Client
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewBreakerClient wraps inner.
func NewBreakerClient(inner Client, cfg BreakerConfig, logger *zap.Logger) *BreakerClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("shopify_breaker")

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return !countsAsFailure(err)
		},
	})

	return &BreakerClient{inner: inner, cb: cb, logger: logger}
}

// State exposes the breaker state for health reporting.
func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerClient) Create(ctx context.Context, shop, token string, in domain.NewPageInput) (*domain.Page, error) {
	return executePage(b, "create", func() (*domain.Page, error) {
		return b.inner.Create(ctx, shop, token, in)
	})
}

func (b *BreakerClient) List(ctx context.Context, shop, token string) ([]*domain.Page, error) {
	res, err := b.execute("list", func() (interface{}, error) {
		return b.inner.List(ctx, shop, token)
	})
	if err != nil {
		return nil, err
	}
	pages, _ := res.([]*domain.Page)
	return pages, nil
}

func (b *BreakerClient) Get(ctx context.Context, shop, token, id string) (*domain.Page, error) {
	return executePage(b, "get", func() (*domain.Page, error) {
		return b.inner.Get(ctx, shop, token, id)
	})
}

func (b *BreakerClient) Update(ctx context.Context, shop, token, id string, u domain.PageUpdate) (*domain.Page, error) {
	return executePage(b, "update", func() (*domain.Page, error) {
		return b.inner.Update(ctx, shop, token, id, u)
	})
}

func (b *BreakerClient) Delete(ctx context.Context, shop, token, id string) error {
	_, err := b.execute("delete", func() (interface{}, error) {
		return nil, b.inner.Delete(ctx, shop, token, id)
	})
	return err
}

func executePage(b *BreakerClient, op string, fn func() (*domain.Page, error)) (*domain.Page, error) {
	res, err := b.execute(op, func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	page, _ := res.(*domain.Page)
	return page, nil
}

func (b *BreakerClient) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	res, err := b.cb.Execute(fn)
	switch err {
	case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
		b.logger.Debug("admin api call rejected by breaker", zap.String("operation", op), zap.Error(err))
		return nil, &RemoteUnavailableError{Op: op, Err: err}
	}
	return res, err
}
