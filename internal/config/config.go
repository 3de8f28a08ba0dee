package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/Sternrassler/lrn-resolver/pkg/batch"
	"github.com/Sternrassler/lrn-resolver/pkg/logging"
	"github.com/Sternrassler/lrn-resolver/pkg/resolver"
)

// Cache backends selectable through CACHE_BACKEND.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	EndpointURL    string        `env:"LRN_ENDPOINT_URL,default=https://api-dev.ringer.tel/v1/telique/lrn/"`
	APIKey         string        `env:"LRN_API_KEY"`
	UserAgent      string        `env:"LRN_USER_AGENT,default=NumberAudit/1.0"`
	Timeout        time.Duration `env:"LRN_TIMEOUT,default=10s"`
	MaxRetries     int           `env:"LRN_MAX_RETRIES,default=5"`
	RateLimit      float64       `env:"LRN_RATE_LIMIT,default=0"`
	MajorBatchSize int           `env:"LRN_MAJOR_BATCH_SIZE,default=500"`
	MaxConcurrent  int           `env:"LRN_MAX_CONCURRENT,default=10"`

	CacheBackend    string `env:"CACHE_BACKEND,default=file"`
	CacheFile       string `env:"CACHE_FILE,default=lrn_cache.json"`
	RedisURL        string `env:"REDIS_URL,default=localhost:6379"`
	CacheRedisKey   string `env:"CACHE_REDIS_KEY,default=lrn:cache"`
	DatabaseDSN     string `env:"DATABASE_DSN"`
	ThrottlePublish bool   `env:"THROTTLE_PUBLISH,default=false"`

	Port      int    `env:"PORT,default=8080"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogPretty bool   `env:"LOG_PRETTY,default=false"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and backend-specific requirements.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.EndpointURL) == "" {
		errs = append(errs, errors.New("LRN_ENDPOINT_URL is required"))
	}
	if c.UserAgent == "" {
		errs = append(errs, errors.New("LRN_USER_AGENT is required"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("LRN_TIMEOUT must be > 0 (got %s)", c.Timeout))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("LRN_MAX_RETRIES must be >= 1 (got %d)", c.MaxRetries))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("LRN_RATE_LIMIT must be >= 0 (got %v)", c.RateLimit))
	}
	if c.MajorBatchSize < 1 {
		errs = append(errs, fmt.Errorf("LRN_MAJOR_BATCH_SIZE must be >= 1 (got %d)", c.MajorBatchSize))
	}
	if c.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("LRN_MAX_CONCURRENT must be >= 1 (got %d)", c.MaxConcurrent))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range (got %d)", c.Port))
	}

	switch c.CacheBackend {
	case BackendFile:
		if c.CacheFile == "" {
			errs = append(errs, errors.New("CACHE_FILE is required for the file backend"))
		}
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
	case BackendPostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN is required for the postgres backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend))
	}
	if c.ThrottlePublish && c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required when THROTTLE_PUBLISH is set"))
	}

	return errors.Join(errs...)
}

// NeedsRedis reports whether a Redis client has to be created.
func (c *Config) NeedsRedis() bool {
	return c.CacheBackend == BackendRedis || c.ThrottlePublish
}

// HTTP returns the endpoint configuration.
func (c *Config) HTTP() resolver.HTTPConfig {
	cfg := resolver.DefaultHTTPConfig()
	cfg.BaseURL = c.EndpointURL
	cfg.UserAgent = c.UserAgent
	cfg.APIKey = c.APIKey
	cfg.RateLimit = c.RateLimit
	if c.RateLimit > 0 {
		cfg.Burst = max(1, int(c.RateLimit))
	}
	return cfg
}

// Resolver returns the single-number resolution configuration.
func (c *Config) Resolver() resolver.Config {
	cfg := resolver.DefaultConfig()
	cfg.MaxRetries = c.MaxRetries
	cfg.AttemptTimeout = c.Timeout
	return cfg
}

// Batch returns the orchestrator configuration.
func (c *Config) Batch() batch.Config {
	cfg := batch.DefaultConfig()
	cfg.MajorBatchSize = c.MajorBatchSize
	cfg.MaxConcurrent = c.MaxConcurrent
	return cfg
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}
