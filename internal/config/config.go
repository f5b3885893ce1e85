// Package config loads the catalog proxy configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/Sternrassler/catalog-cache/pkg/aggregator"
	"github.com/Sternrassler/catalog-cache/pkg/client"
	"github.com/Sternrassler/catalog-cache/pkg/logging"
	"github.com/Sternrassler/catalog-cache/pkg/server"
	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

// Store backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the process configuration.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	StoreBackend  string `env:"STORE_BACKEND" envDefault:"redis"`
	RedisURL      string `env:"REDIS_URL" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"catalog:"`

	UpstreamBaseURL     string        `env:"UPSTREAM_BASE_URL,required,notEmpty"`
	UserAgent           string        `env:"USER_AGENT" envDefault:"catalog-cache/0.1.0"`
	UpstreamTimeout     time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`
	UpstreamMaxAttempts int           `env:"UPSTREAM_MAX_ATTEMPTS" envDefault:"1"`

	ExtendConcurrency   int           `env:"EXTEND_CONCURRENCY" envDefault:"5"`
	PrefetchConcurrency int64         `env:"PREFETCH_CONCURRENCY" envDefault:"8"`
	PrefetchTimeout     time.Duration `env:"PREFETCH_TIMEOUT" envDefault:"30s"`

	// ProductsMaxFill caps the products appended to a category per upstream
	// fetch. Deeper pages are served uncached while the cache fills in.
	ProductsMaxFill int `env:"PRODUCTS_MAX_FILL" envDefault:"50"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Load parses and validates the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the parser cannot.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q (got %q)", BackendRedis, BackendMemory, c.StoreBackend)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive (got %s)", c.UpstreamTimeout)
	}
	if c.UpstreamMaxAttempts < 1 {
		return fmt.Errorf("UPSTREAM_MAX_ATTEMPTS must be at least 1 (got %d)", c.UpstreamMaxAttempts)
	}
	if c.ExtendConcurrency < 1 {
		return fmt.Errorf("EXTEND_CONCURRENCY must be at least 1 (got %d)", c.ExtendConcurrency)
	}
	if c.PrefetchConcurrency < 1 {
		return fmt.Errorf("PREFETCH_CONCURRENCY must be at least 1 (got %d)", c.PrefetchConcurrency)
	}
	if c.PrefetchTimeout <= 0 {
		return fmt.Errorf("PREFETCH_TIMEOUT must be positive (got %s)", c.PrefetchTimeout)
	}
	if c.ProductsMaxFill < server.DefaultConfig().PageSize {
		return fmt.Errorf("PRODUCTS_MAX_FILL must be at least the page size %d (got %d)", server.DefaultConfig().PageSize, c.ProductsMaxFill)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level, _ = logging.ParseLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

// Redis returns the Redis client options.
func (c Config) Redis() *redis.Options {
	return &redis.Options{
		Addr:     c.RedisURL,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// Client returns the upstream client configuration.
func (c Config) Client() client.Config {
	cfg := client.DefaultConfig(c.UpstreamBaseURL)
	cfg.UserAgent = c.UserAgent
	cfg.Timeout = c.UpstreamTimeout
	return cfg
}

// Retry returns the upstream retry configuration.
func (c Config) Retry() client.RetryConfig {
	cfg := client.DefaultRetryConfig()
	cfg.MaxAttempts = c.UpstreamMaxAttempts
	return cfg
}

// Aggregator returns the aggregator options.
func (c Config) Aggregator() aggregator.Options {
	opts := aggregator.DefaultOptions()
	opts.Concurrency = c.ExtendConcurrency
	// A category extension makes two sequential rounds of upstream calls.
	opts.Timeout = 2 * c.UpstreamTimeout
	return opts
}

// Server returns the page server configuration.
func (c Config) Server() server.Config {
	cfg := server.DefaultConfig()
	cfg.PrefetchConcurrency = c.PrefetchConcurrency
	cfg.PrefetchTimeout = c.PrefetchTimeout
	cfg.MaxFill = c.ProductsMaxFill
	// Matches the HTTP request timeout.
	cfg.FetchTimeout = 3 * c.UpstreamTimeout
	return cfg
}
