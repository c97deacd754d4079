// Package config loads the service configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Store backends.
const (
	BackendMongo    = "mongo"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// Config is the complete service configuration.
type Config struct {
	Environment Environment `yaml:"environment"`
	ServiceName string      `yaml:"serviceName"`

	Server  Server  `yaml:"server"`
	Shopify Shopify `yaml:"shopify"`
	Store   Store   `yaml:"store"`
	Sync    Sync    `yaml:"sync"`
	Events  Events  `yaml:"events"`
	Logging Logging `yaml:"logging"`
	Metrics Metrics `yaml:"metrics"`
	Tracing Tracing `yaml:"tracing"`
	CORS    CORS    `yaml:"cors"`

	// ConfigFile is the YAML overlay this configuration was read from, if any.
	ConfigFile string `yaml:"-"`
}

// Server holds HTTP server settings.
type Server struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
}

// Shopify holds the app credentials and Admin API settings.
type Shopify struct {
	APIKey     string        `yaml:"apiKey"`
	APISecret  string        `yaml:"apiSecret"`
	APIVersion string        `yaml:"apiVersion"`
	BaseURL    string        `yaml:"baseURL"`
	Timeout    time.Duration `yaml:"timeout"`
	Breaker    Breaker       `yaml:"breaker"`
}

// Breaker configures the circuit breaker in front of the Admin API.
type Breaker struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold float64       `yaml:"failureThreshold"`
	MinRequests      uint32        `yaml:"minRequests"`
	OpenTimeout      time.Duration `yaml:"openTimeout"`
}

// Store selects and configures the local page store.
type Store struct {
	Backend          string        `yaml:"backend"`
	MongoURI         string        `yaml:"mongoURI"`
	Database         string        `yaml:"database"`
	TableName        string        `yaml:"tableName"`
	Region           string        `yaml:"region"`
	Endpoint         string        `yaml:"endpoint"`
	OperationTimeout time.Duration `yaml:"operationTimeout"`
	SlowThreshold    time.Duration `yaml:"slowThreshold"`
}

// Sync holds the orchestrator policy. It can change at runtime.
type Sync struct {
	EmptyRemoteFallback bool `yaml:"emptyRemoteFallback"`
}

// Events configures page lifecycle event publishing.
type Events struct {
	Enabled bool   `yaml:"enabled"`
	BusName string `yaml:"busName"`
}

// Logging configures zap.
type Logging struct {
	Level string `yaml:"level"`
}

// Metrics configures the prometheus collector.
type Metrics struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Tracing configures the OTLP exporter.
type Tracing struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// CORS lists the origins allowed to call the API from a browser.
type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Environment: Development,
		ServiceName: "kingsbuilder",
		Server: Server{
			Port:            3000,
			Host:            "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  30 * time.Second,
		},
		Shopify: Shopify{
			APIVersion: "2023-10",
			Timeout:    10 * time.Second,
			Breaker: Breaker{
				Enabled:          true,
				FailureThreshold: 0.6,
				MinRequests:      5,
				OpenTimeout:      30 * time.Second,
			},
		},
		Store: Store{
			Backend:          BackendMongo,
			MongoURI:         "mongodb://localhost:27017",
			Database:         "kingsbuilder",
			TableName:        "kingsbuilder-pages",
			Region:           "us-east-1",
			OperationTimeout: 5 * time.Second,
			SlowThreshold:    500 * time.Millisecond,
		},
		Sync:    Sync{EmptyRemoteFallback: true},
		Events:  Events{BusName: "default"},
		Logging: Logging{Level: "info"},
		Metrics: Metrics{Enabled: true, Namespace: "kingsbuilder"},
		CORS:    CORS{AllowedOrigins: []string{"*"}},
	}
}

// LoadConfig builds the configuration from defaults and the environment only.
func LoadConfig() Config {
	cfg := Default()
	applyEnv(&cfg)
	return cfg
}

// Addr is the listen address of the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return c.Environment == Production
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	var problems []string

	switch c.Environment {
	case Development, Staging, Production:
	default:
		problems = append(problems, fmt.Sprintf("unknown environment %q", c.Environment))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid server port %d", c.Server.Port))
	}

	switch c.Store.Backend {
	case BackendMongo:
		if c.Store.MongoURI == "" {
			problems = append(problems, "DATABASE_URL is required for the mongo backend")
		}
	case BackendDynamoDB:
		if c.Store.TableName == "" {
			problems = append(problems, "TABLE_NAME is required for the dynamodb backend")
		}
	case BackendMemory:
		if c.IsProduction() {
			problems = append(problems, "the memory backend cannot be used in production")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store backend %q", c.Store.Backend))
	}

	if c.IsProduction() && c.Shopify.APISecret == "" {
		problems = append(problems, "SHOPIFY_API_SECRET is required in production")
	}
	if c.Shopify.Timeout <= 0 {
		problems = append(problems, "shopify timeout must be positive")
	}
	if t := c.Shopify.Breaker.FailureThreshold; c.Shopify.Breaker.Enabled && (t <= 0 || t > 1) {
		problems = append(problems, fmt.Sprintf("breaker failure threshold %v must be in (0, 1]", t))
	}
	if c.Events.Enabled && c.Events.BusName == "" {
		problems = append(problems, "EVENT_BUS_NAME is required when events are enabled")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		problems = append(problems, "OTEL_EXPORTER_OTLP_ENDPOINT is required when tracing is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// applyEnv overlays environment variables. Unset variables leave the
// current value alone.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = Environment(strings.ToLower(v))
	} else if os.Getenv("NODE_ENV") == "production" {
		cfg.Environment = Production
	}
	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)

	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("HOST", cfg.Server.Host)
	cfg.Server.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", cfg.Server.RequestTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Shopify.APIKey = getEnv("SHOPIFY_API_KEY", cfg.Shopify.APIKey)
	cfg.Shopify.APISecret = getEnv("SHOPIFY_API_SECRET", cfg.Shopify.APISecret)
	cfg.Shopify.APIVersion = getEnv("SHOPIFY_API_VERSION", cfg.Shopify.APIVersion)
	cfg.Shopify.BaseURL = getEnv("SHOPIFY_BASE_URL", cfg.Shopify.BaseURL)
	cfg.Shopify.Timeout = getEnvDuration("SHOPIFY_TIMEOUT", cfg.Shopify.Timeout)
	cfg.Shopify.Breaker.Enabled = getEnvBool("SHOPIFY_BREAKER_ENABLED", cfg.Shopify.Breaker.Enabled)

	cfg.Store.Backend = strings.ToLower(getEnv("STORE_BACKEND", cfg.Store.Backend))
	cfg.Store.MongoURI = getEnv("DATABASE_URL", cfg.Store.MongoURI)
	cfg.Store.Database = getEnv("DATABASE_NAME", cfg.Store.Database)
	cfg.Store.TableName = getEnv("TABLE_NAME", cfg.Store.TableName)
	cfg.Store.Region = getEnv("AWS_REGION", cfg.Store.Region)
	cfg.Store.Endpoint = getEnv("DYNAMODB_ENDPOINT", cfg.Store.Endpoint)
	cfg.Store.OperationTimeout = getEnvDuration("STORE_TIMEOUT", cfg.Store.OperationTimeout)

	cfg.Sync.EmptyRemoteFallback = getEnvBool("SYNC_EMPTY_REMOTE_FALLBACK", cfg.Sync.EmptyRemoteFallback)

	cfg.Events.Enabled = getEnvBool("ENABLE_EVENTS", cfg.Events.Enabled)
	cfg.Events.BusName = getEnv("EVENT_BUS_NAME", cfg.Events.BusName)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)

	cfg.Metrics.Enabled = getEnvBool("ENABLE_METRICS", cfg.Metrics.Enabled)
	cfg.Metrics.Namespace = getEnv("METRICS_NAMESPACE", cfg.Metrics.Namespace)

	cfg.Tracing.Enabled = getEnvBool("ENABLE_TRACING", cfg.Tracing.Enabled)
	cfg.Tracing.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = splitList(v)
	}
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("750ms") or a plain number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
