package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{ConfigPathEnv, BaseURLEnv, TokenEnv, UserAgentEnv, RedisURLEnv, LogLevelEnv, OutputDirEnv, MetricsEnv} {
		t.Setenv(key, "")
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://api2.openreview.net", cfg.OpenReview.BaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.OpenReview.MinInterval)
	assert.Equal(t, 500, cfg.OpenReview.PageSize)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.True(t, cfg.Collection.Decisions)
	assert.Empty(t, cfg.Cache.RedisURL, "cache disabled by default")
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ValidConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "collector.yml")

	content := `openreview:
  minInterval: 2s
  pageSize: 100
retry:
  maxRetries: 3
  baseDelay: 1m
  maxDelay: 5m
collection:
  venue: ICLR.cc/2024/Conference
  decisions: false
logging:
  level: debug
  pretty: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2*time.Second, cfg.OpenReview.MinInterval)
	assert.Equal(t, 100, cfg.OpenReview.PageSize)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Minute, cfg.Retry.BaseDelay)
	assert.Equal(t, "ICLR.cc/2024/Conference", cfg.Collection.Venue)
	assert.False(t, cfg.Collection.Decisions)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Pretty)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, "https://api2.openreview.net", cfg.OpenReview.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.OpenReview.Timeout)
	assert.Equal(t, "data", cfg.Collection.OutputDir)
}

func TestLoad_PathFromEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "collector.yml")
	require.NoError(t, os.WriteFile(path, []byte("collection:\n  outputDir: from-file\n"), 0o644))
	t.Setenv(ConfigPathEnv, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Collection.OutputDir)
}

func TestLoad_FileNotFound(t *testing.T) {
	clearEnv(t)

	_, err := Load("/nonexistent/collector.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "collector.yml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  - not\n    a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "collector.yml")
	require.NoError(t, os.WriteFile(path, []byte("openreview:\n  token: file-token\n"), 0o644))

	t.Setenv(BaseURLEnv, "http://localhost:3000")
	t.Setenv(TokenEnv, "env-token")
	t.Setenv(RedisURLEnv, "redis://localhost:6379/2")
	t.Setenv(LogLevelEnv, "warn")
	t.Setenv(OutputDirEnv, "/tmp/reviews")
	t.Setenv(MetricsEnv, ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", cfg.OpenReview.BaseURL)
	assert.Equal(t, "env-token", cfg.OpenReview.Token, "environment wins over the file")
	assert.Equal(t, "redis://localhost:6379/2", cfg.Cache.RedisURL)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/tmp/reviews", cfg.Collection.OutputDir)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		contains string
	}{
		{"bad base url", func(c *Config) { c.OpenReview.BaseURL = "not a url" }, "openreview.baseUrl"},
		{"no user agent", func(c *Config) { c.OpenReview.UserAgent = " " }, "openreview.userAgent"},
		{"zero timeout", func(c *Config) { c.OpenReview.Timeout = 0 }, "openreview.timeout"},
		{"negative interval", func(c *Config) { c.OpenReview.MinInterval = -time.Second }, "openreview.minInterval"},
		{"page too large", func(c *Config) { c.OpenReview.PageSize = 5000 }, "openreview.pageSize"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "retry.maxRetries"},
		{"max below base", func(c *Config) { c.Retry.MaxDelay = time.Millisecond }, "retry.maxDelay"},
		{"jitter above one", func(c *Config) { c.Retry.Jitter = 1.5 }, "retry.jitter"},
		{"breaker failures", func(c *Config) { c.Breaker.Failures = 0 }, "breaker.failures"},
		{"bad redis url", func(c *Config) { c.Cache.RedisURL = "http://localhost" }, "cache.redisUrl"},
		{"no output dir", func(c *Config) { c.Collection.OutputDir = "" }, "collection.outputDir"},
		{"zero failure limit", func(c *Config) { c.Collection.MaxConsecutiveFailures = 0 }, "collection.maxConsecutiveFailures"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.OpenReview.PageSize = 0
	cfg.Retry.Jitter = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openreview.pageSize")
	assert.Contains(t, err.Error(), "retry.jitter")
}

func TestDerivedConfigs(t *testing.T) {
	cfg := Default()
	cfg.OpenReview.Token = "secret"

	cc := cfg.ClientConfig()
	assert.Equal(t, "secret", cc.Token)
	assert.Equal(t, cfg.OpenReview.MinInterval, cc.MinInterval)
	assert.Equal(t, cfg.Breaker.Failures, cc.BreakerFailures)
	assert.Nil(t, cc.Redis)

	rc := cfg.RetryPolicyConfig()
	assert.Equal(t, cfg.Retry.MaxRetries, rc.MaxRetries)
	assert.Equal(t, cfg.Retry.MaxDelay, rc.MaxDelay)

	rdb, err := cfg.RedisClient()
	require.NoError(t, err)
	assert.Nil(t, rdb)

	cfg.Cache.RedisURL = "redis://localhost:6379/0"
	rdb, err = cfg.RedisClient()
	require.NoError(t, err)
	require.NotNil(t, rdb)
	assert.NoError(t, rdb.Close())
}
