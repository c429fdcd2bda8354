// Package config loads the collector configuration: built-in defaults, an
// optional YAML file, then environment overrides. Command-line flags are
// applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/yubol-bobo/Smart-AI-Conference/pkg/cache"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/client"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/collector"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/logging"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/openreview"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/ratelimit"
	"github.com/yubol-bobo/Smart-AI-Conference/pkg/retry"
)

// Environment variables.
const (
	ConfigPathEnv = "REVIEW_COLLECTOR_CONFIG"
	BaseURLEnv    = "OPENREVIEW_BASE_URL"
	TokenEnv      = "OPENREVIEW_TOKEN"
	UserAgentEnv  = "OPENREVIEW_USER_AGENT"
	RedisURLEnv   = "REDIS_URL"
	LogLevelEnv   = "LOG_LEVEL"
	OutputDirEnv  = "REVIEW_COLLECTOR_OUTPUT"
	MetricsEnv    = "METRICS_ADDR"
)

// MaxPageSize is the largest page the notes API serves.
const MaxPageSize = 1000

// Config holds every setting of a collection run.
type Config struct {
	OpenReview OpenReviewConfig `yaml:"openreview"`
	Retry      RetryConfig      `yaml:"retry"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Cache      CacheConfig      `yaml:"cache"`
	Collection CollectionConfig `yaml:"collection"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// OpenReviewConfig describes how to reach the API.
type OpenReviewConfig struct {
	BaseURL     string        `yaml:"baseUrl"`
	Token       string        `yaml:"token"`
	UserAgent   string        `yaml:"userAgent"`
	Timeout     time.Duration `yaml:"timeout"`
	MinInterval time.Duration `yaml:"minInterval"`
	PageSize    int           `yaml:"pageSize"`
}

// RetryConfig is the retry budget of every remote call.
type RetryConfig struct {
	MaxRetries int           `yaml:"maxRetries"`
	BaseDelay  time.Duration `yaml:"baseDelay"`
	MaxDelay   time.Duration `yaml:"maxDelay"`
	Jitter     float64       `yaml:"jitter"`
}

// BreakerConfig tunes the transport circuit breaker.
type BreakerConfig struct {
	Failures    uint32        `yaml:"failures"`
	OpenTimeout time.Duration `yaml:"openTimeout"`
}

// CacheConfig enables the Redis response cache when RedisURL is set.
type CacheConfig struct {
	RedisURL string        `yaml:"redisUrl"`
	TTL      time.Duration `yaml:"ttl"`
}

// CollectionConfig describes the run itself.
type CollectionConfig struct {
	Venue                  string `yaml:"venue"`
	OutputDir              string `yaml:"outputDir"`
	Decisions              bool   `yaml:"decisions"`
	ProgressEvery          int    `yaml:"progressEvery"`
	MaxConsecutiveFailures int    `yaml:"maxConsecutiveFailures"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig enables the /metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	rc := retry.DefaultConfig()
	cc := client.DefaultConfig()
	return Config{
		OpenReview: OpenReviewConfig{
			BaseURL:     cc.BaseURL,
			UserAgent:   cc.UserAgent,
			Timeout:     cc.Timeout,
			MinInterval: ratelimit.DefaultMinInterval,
			PageSize:    openreview.DefaultPageSize,
		},
		Retry: RetryConfig{
			MaxRetries: rc.MaxRetries,
			BaseDelay:  rc.BaseDelay,
			MaxDelay:   rc.MaxDelay,
			Jitter:     rc.Jitter,
		},
		Breaker: BreakerConfig{
			Failures:    cc.BreakerFailures,
			OpenTimeout: cc.BreakerOpenTimeout,
		},
		Cache: CacheConfig{TTL: cache.DefaultTTL},
		Collection: CollectionConfig{
			OutputDir:              "data",
			Decisions:              true,
			ProgressEvery:          collector.DefaultProgressEvery,
			MaxConsecutiveFailures: collector.DefaultMaxConsecutiveFailures,
		},
		Logging: LoggingConfig{Level: string(logging.LevelInfo)},
	}
}

// Load returns the defaults overlaid with the YAML file at path (or at
// $REVIEW_COLLECTOR_CONFIG when path is empty; no file is fine) and then
// with environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		// Decoding onto the defaults keeps every key the file leaves out.
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse YAML %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(BaseURLEnv); v != "" {
		c.OpenReview.BaseURL = v
	}
	if v := os.Getenv(TokenEnv); v != "" {
		c.OpenReview.Token = v
	}
	if v := os.Getenv(UserAgentEnv); v != "" {
		c.OpenReview.UserAgent = v
	}
	if v := os.Getenv(RedisURLEnv); v != "" {
		c.Cache.RedisURL = v
	}
	if v := os.Getenv(LogLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(OutputDirEnv); v != "" {
		c.Collection.OutputDir = v
	}
	if v := os.Getenv(MetricsEnv); v != "" {
		c.Metrics.Addr = v
	}
}

// Validate reports every nonsensical setting at once.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if u, err := url.Parse(c.OpenReview.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("openreview.baseUrl: invalid url %q", c.OpenReview.BaseURL)
	}
	if strings.TrimSpace(c.OpenReview.UserAgent) == "" {
		add("openreview.userAgent: required")
	}
	if c.OpenReview.Timeout <= 0 {
		add("openreview.timeout: must be positive (got %s)", c.OpenReview.Timeout)
	}
	if c.OpenReview.MinInterval < 0 {
		add("openreview.minInterval: must be >= 0 (got %s)", c.OpenReview.MinInterval)
	}
	if c.OpenReview.PageSize < 1 || c.OpenReview.PageSize > MaxPageSize {
		add("openreview.pageSize: must be between 1 and %d (got %d)", MaxPageSize, c.OpenReview.PageSize)
	}

	if c.Retry.MaxRetries < 0 {
		add("retry.maxRetries: must be >= 0 (got %d)", c.Retry.MaxRetries)
	}
	if c.Retry.BaseDelay <= 0 {
		add("retry.baseDelay: must be positive (got %s)", c.Retry.BaseDelay)
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		add("retry.maxDelay: must be >= baseDelay (got %s < %s)", c.Retry.MaxDelay, c.Retry.BaseDelay)
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		add("retry.jitter: must be within [0, 1] (got %g)", c.Retry.Jitter)
	}

	if c.Breaker.Failures == 0 {
		add("breaker.failures: must be >= 1")
	}
	if c.Breaker.OpenTimeout <= 0 {
		add("breaker.openTimeout: must be positive (got %s)", c.Breaker.OpenTimeout)
	}

	if c.Cache.RedisURL != "" {
		if _, err := redis.ParseURL(c.Cache.RedisURL); err != nil {
			add("cache.redisUrl: %v", err)
		}
	}
	if c.Cache.TTL <= 0 {
		add("cache.ttl: must be positive (got %s)", c.Cache.TTL)
	}

	if strings.TrimSpace(c.Collection.OutputDir) == "" {
		add("collection.outputDir: required")
	}
	if c.Collection.ProgressEvery < 1 {
		add("collection.progressEvery: must be >= 1 (got %d)", c.Collection.ProgressEvery)
	}
	if c.Collection.MaxConsecutiveFailures < 1 {
		add("collection.maxConsecutiveFailures: must be >= 1 (got %d)", c.Collection.MaxConsecutiveFailures)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level: %v", err)
	}

	return errors.Join(errs...)
}

// ClientConfig returns the transport configuration. The Redis client is
// attached by the caller (see RedisClient).
func (c Config) ClientConfig() client.Config {
	return client.Config{
		BaseURL:            c.OpenReview.BaseURL,
		Token:              c.OpenReview.Token,
		UserAgent:          c.OpenReview.UserAgent,
		Timeout:            c.OpenReview.Timeout,
		MinInterval:        c.OpenReview.MinInterval,
		BreakerFailures:    c.Breaker.Failures,
		BreakerOpenTimeout: c.Breaker.OpenTimeout,
		CacheTTL:           c.Cache.TTL,
	}
}

// RetryPolicyConfig returns the retry policy configuration.
func (c Config) RetryPolicyConfig() retry.Config {
	return retry.Config{
		MaxRetries: c.Retry.MaxRetries,
		BaseDelay:  c.Retry.BaseDelay,
		MaxDelay:   c.Retry.MaxDelay,
		Jitter:     c.Retry.Jitter,
	}
}

// RedisClient returns a client for the cache, or nil when the cache is
// disabled.
func (c Config) RedisClient() (redis.UniversalClient, error) {
	if c.Cache.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(c.Cache.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}
