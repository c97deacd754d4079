// Package di wires the service together. The injector lives in wire.go and
// its hand-written counterpart in container_build.go.
package di

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/raimediatech/kingsbuilder/internal/config"
	"github.com/raimediatech/kingsbuilder/internal/events"
	"github.com/raimediatech/kingsbuilder/internal/handlers"
	"github.com/raimediatech/kingsbuilder/internal/observability"
	"github.com/raimediatech/kingsbuilder/internal/repository"
	"github.com/raimediatech/kingsbuilder/internal/repository/ddb"
	"github.com/raimediatech/kingsbuilder/internal/repository/decorators"
	"github.com/raimediatech/kingsbuilder/internal/repository/memory"
	"github.com/raimediatech/kingsbuilder/internal/repository/mongo"
	"github.com/raimediatech/kingsbuilder/internal/service/analytics"
	"github.com/raimediatech/kingsbuilder/internal/service/pagesync"
	"github.com/raimediatech/kingsbuilder/internal/shopify"
	"github.com/raimediatech/kingsbuilder/pkg/auth"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	awsEventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// provideLogger builds the production JSON logger in production and the
// development console logger otherwise.
func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.Logging.Level != "" {
		level, err := zapcore.ParseLevel(strings.ToLower(cfg.Logging.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger.With(
		zap.String("service", cfg.ServiceName),
		zap.String("environment", string(cfg.Environment)),
	), nil
}

// provideMetrics returns nil when metrics are disabled; every Collector
// method accepts a nil receiver.
func provideMetrics(cfg *config.Config) *observability.Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return observability.NewCollector(cfg.Metrics.Namespace)
}

// provideTracer installs the OTLP exporter when tracing is enabled.
func provideTracer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, error) {
	if !cfg.Tracing.Enabled {
		return nil, nil
	}
	tp, err := observability.InitTracing(ctx, cfg.ServiceName, string(cfg.Environment), cfg.Tracing.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	logger.Info("tracing enabled", zap.String("endpoint", cfg.Tracing.Endpoint))
	return tp, nil
}

func repositoryConfig(cfg *config.Config) repository.Config {
	return repository.Config{
		URI:              cfg.Store.MongoURI,
		Database:         cfg.Store.Database,
		TableName:        cfg.Store.TableName,
		Region:           cfg.Store.Region,
		OperationTimeout: cfg.Store.OperationTimeout,
	}.WithDefaults()
}

// provideBackend builds the raw store selected by STORE_BACKEND.
func provideBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendMongo:
		return mongo.NewStore(repositoryConfig(cfg), logger), nil
	case config.BackendDynamoDB:
		client, err := ddb.LoadClient(ctx, cfg.Store.Region, cfg.Store.Endpoint)
		if err != nil {
			return nil, err
		}
		return ddb.NewStore(client, repositoryConfig(cfg), logger), nil
	case config.BackendMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// StoreBackend is the undecorated store, kept apart from the decorated one
// for the injector.
type StoreBackend struct {
	repository.Store
}

func provideStoreBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (StoreBackend, error) {
	store, err := provideBackend(ctx, cfg, logger)
	if err != nil {
		return StoreBackend{}, err
	}
	return StoreBackend{Store: store}, nil
}

// provideStore decorates the backend. From the outside in: degraded-mode
// conversion, logging, metrics.
func provideStore(backend StoreBackend, cfg *config.Config, logger *zap.Logger, metrics *observability.Collector) repository.Store {
	var store repository.Store = backend.Store
	store = decorators.NewMetricsStore(store, metrics)

	logCfg := decorators.DefaultLoggingConfig()
	if cfg.Store.SlowThreshold > 0 {
		logCfg.SlowThreshold = cfg.Store.SlowThreshold
	}
	store = decorators.NewLoggingStore(store, logger, logCfg)

	return repository.NewDegradingStore(store, logger)
}

// provideShopifyClient builds the Admin API client, behind a circuit
// breaker when enabled.
func provideShopifyClient(cfg *config.Config, logger *zap.Logger) shopify.Client {
	client := shopify.NewRESTClient(shopify.Config{
		APIVersion: cfg.Shopify.APIVersion,
		BaseURL:    cfg.Shopify.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.Shopify.Timeout},
	}, logger)

	if !cfg.Shopify.Breaker.Enabled {
		return client
	}
	breaker := shopify.DefaultBreakerConfig()
	breaker.FailureThreshold = cfg.Shopify.Breaker.FailureThreshold
	breaker.MinRequests = cfg.Shopify.Breaker.MinRequests
	breaker.Timeout = cfg.Shopify.Breaker.OpenTimeout
	return shopify.NewBreakerClient(client, breaker, logger)
}

// provideEventBus publishes to EventBridge when events are enabled.
func provideEventBus(ctx context.Context, cfg *config.Config, logger *zap.Logger) (events.Bus, error) {
	if !cfg.Events.Enabled {
		return events.NoopBus{}, nil
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, awsConfig.WithRegion(cfg.Store.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return events.NewEventBridgePublisher(awsEventbridge.NewFromConfig(awsCfg), cfg.Events.BusName, logger), nil
}

func provideSyncPolicy(cfg *config.Config) pagesync.Policy {
	return policyFromConfig(cfg)
}

func policyFromConfig(cfg *config.Config) pagesync.Policy {
	return pagesync.Policy{
		EmptyRemoteFallback: cfg.Sync.EmptyRemoteFallback,
		RemoteTimeout:       cfg.Shopify.Timeout,
	}
}

func provideSyncService(
	client shopify.Client,
	store repository.Store,
	bus events.Bus,
	metrics *observability.Collector,
	logger *zap.Logger,
	policy pagesync.Policy,
) *pagesync.Service {
	return pagesync.NewService(client, store, bus, metrics, logger, policy)
}

func provideAnalyticsService(store repository.Store, metrics *observability.Collector, logger *zap.Logger) analytics.Service {
	return analytics.NewService(store, store, metrics, logger)
}

// provideSessionValidator returns nil when the app secret is not configured,
// which disables session token verification.
func provideSessionValidator(cfg *config.Config, logger *zap.Logger) (*auth.SessionValidator, error) {
	if cfg.Shopify.APISecret == "" {
		logger.Warn("SHOPIFY_API_SECRET not set, session tokens and HMAC signatures are not verified")
		return nil, nil
	}
	return auth.NewSessionValidator(auth.SessionConfig{
		APISecret: cfg.Shopify.APISecret,
		APIKey:    cfg.Shopify.APIKey,
	})
}

func providePageHandler(svc handlers.PageService, logger *zap.Logger) *handlers.PageHandler {
	return handlers.NewPageHandler(svc, logger)
}

func provideAnalyticsHandler(svc analytics.Service, logger *zap.Logger) *handlers.AnalyticsHandler {
	return handlers.NewAnalyticsHandler(svc, logger)
}

// provideWatcher reloads the sync policy from the config file in
// development. Returns nil when there is nothing to watch.
func provideWatcher(cfg *config.Config, svc *pagesync.Service, logger *zap.Logger) *config.Watcher {
	if cfg.Environment != config.Development || cfg.ConfigFile == "" {
		return nil
	}
	w, err := config.NewWatcher(cfg, logger)
	if err != nil {
		logger.Warn("config hot reload disabled", zap.Error(err))
		return nil
	}
	w.OnChange(func(next *config.Config) {
		svc.SetPolicy(policyFromConfig(next))
	})
	return w
}

func provideContainer(
	cfg *config.Config,
	logger *zap.Logger,
	metrics *observability.Collector,
	tracer *observability.TracerProvider,
	store repository.Store,
	remote shopify.Client,
	bus events.Bus,
	pages *pagesync.Service,
	analyticsSvc analytics.Service,
	router http.Handler,
	watcher *config.Watcher,
) *Container {
	return &Container{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Tracer:    tracer,
		Store:     store,
		Remote:    remote,
		Bus:       bus,
		Pages:     pages,
		Analytics: analyticsSvc,
		Router:    router,
		Watcher:   watcher,
	}
}
