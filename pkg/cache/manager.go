package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrCacheMiss is returned for absent and expired entries.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry is returned when a stored entry cannot be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultTTL is the fallback lifetime when a response carries no caching
// headers.
const DefaultTTL = 10 * time.Minute

// Manager stores OpenReview response bodies in Redis.
type Manager struct {
	redis      redis.UniversalClient
	defaultTTL time.Duration
	logger     zerolog.Logger
}

// NewManager creates a manager over redisClient. A non-positive defaultTTL
// selects DefaultTTL.
func NewManager(redisClient redis.UniversalClient, defaultTTL time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Manager{
		redis:      redisClient,
		defaultTTL: defaultTTL,
		logger:     log.With().Str("component", "cache").Logger(),
	}
}

// DefaultTTL returns the fallback lifetime for new entries.
func (m *Manager) DefaultTTL() time.Duration {
	return m.defaultTTL
}

// Get returns the entry stored for key. Absent and expired entries yield
// ErrCacheMiss; an undecodable entry is dropped and yields ErrInvalidEntry.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	kind := key.Kind()
	raw, err := m.redis.Get(ctx, key.String()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		CacheMisses.WithLabelValues(kind).Inc()
		return nil, ErrCacheMiss
	case err != nil:
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get %s: %w", kind, err)
	}

	entry := &CacheEntry{}
	if err := json.Unmarshal(raw, entry); err != nil {
		CacheErrors.WithLabelValues("decode").Inc()
		m.drop(ctx, key)
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if entry.IsExpired() {
		CacheMisses.WithLabelValues(kind).Inc()
		m.drop(ctx, key)
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(kind).Inc()
	m.logger.Debug().
		Str("key", key.String()).
		Dur("ttl", entry.TTL()).
		Msg("Cache hit")
	return entry, nil
}

// Set stores entry until its Expires time. Entries that are already
// expired, such as responses marked no-store, are not written.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	ttl := entry.TTL()
	if ttl <= 0 {
		m.logger.Debug().Str("key", key.String()).Msg("Response not cacheable")
		return nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("encode").Inc()
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := m.redis.Set(ctx, key.String(), raw, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set %s: %w", key.Kind(), err)
	}

	CacheStoredBytes.Add(float64(len(raw)))
	m.logger.Debug().
		Str("key", key.String()).
		Dur("ttl", ttl).
		Int("bytes", len(raw)).
		Msg("Cached response")
	return nil
}

// Delete removes the entry stored for key.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del %s: %w", key.Kind(), err)
	}
	return nil
}

// drop deletes key on a best-effort basis.
func (m *Manager) drop(ctx context.Context, key CacheKey) {
	if err := m.Delete(ctx, key); err != nil {
		m.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to drop cache entry")
	}
}
