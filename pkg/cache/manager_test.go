package cache

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis starts an in-memory Redis for the test.
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, client
}

func forumKey(id string) CacheKey {
	return CacheKey{Endpoint: "/notes", QueryParams: url.Values{"forum": []string{id}}}
}

func TestNewManager(t *testing.T) {
	_, client := setupTestRedis(t)

	manager := NewManager(client, 0)
	require.NotNil(t, manager)
	assert.Equal(t, DefaultTTL, manager.DefaultTTL())

	manager = NewManager(client, time.Minute)
	assert.Equal(t, time.Minute, manager.DefaultTTL())
}

func TestNewManager_Panic(t *testing.T) {
	assert.Panics(t, func() { NewManager(nil, 0) })
}

func TestManager_SetAndGet(t *testing.T) {
	mr, client := setupTestRedis(t)
	manager := NewManager(client, time.Minute)
	ctx := context.Background()

	key := forumKey("abc123")
	entry := &CacheEntry{
		Data:     []byte(`{"notes":[]}`),
		ETag:     `"abc"`,
		Expires:  time.Now().Add(5 * time.Minute),
		CachedAt: time.Now(),
	}

	require.NoError(t, manager.Set(ctx, key, entry))
	assert.True(t, mr.Exists(key.String()), "entry should be stored under the derived key")

	ttl := mr.TTL(key.String())
	assert.InDelta(t, (5 * time.Minute).Seconds(), ttl.Seconds(), 2, "redis TTL should follow Expires")

	retrieved, err := manager.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, entry.Data, retrieved.Data)
	assert.Equal(t, entry.ETag, retrieved.ETag)
}

func TestManager_Get_CacheMiss(t *testing.T) {
	_, client := setupTestRedis(t)
	manager := NewManager(client, 0)

	_, err := manager.Get(context.Background(), forumKey("missing"))
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_Get_ExpiredByRedis(t *testing.T) {
	mr, client := setupTestRedis(t)
	manager := NewManager(client, 0)
	ctx := context.Background()

	key := forumKey("short")
	require.NoError(t, manager.Set(ctx, key, &CacheEntry{
		Data:    []byte(`{}`),
		Expires: time.Now().Add(30 * time.Second),
	}))

	mr.FastForward(time.Minute)

	_, err := manager.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_Set_ExpiredEntryNotStored(t *testing.T) {
	mr, client := setupTestRedis(t)
	manager := NewManager(client, 0)
	ctx := context.Background()

	key := forumKey("stale")
	require.NoError(t, manager.Set(ctx, key, &CacheEntry{
		Data:    []byte(`{}`),
		Expires: time.Now().Add(-time.Hour),
	}))

	assert.False(t, mr.Exists(key.String()))
}

func TestManager_Get_InvalidEntry(t *testing.T) {
	mr, client := setupTestRedis(t)
	manager := NewManager(client, 0)

	key := forumKey("corrupt")
	require.NoError(t, mr.Set(key.String(), "not json"))

	_, err := manager.Get(context.Background(), key)
	assert.ErrorIs(t, err, ErrInvalidEntry)
	assert.False(t, mr.Exists(key.String()), "undecodable entry should be dropped")
}

func TestManager_Delete(t *testing.T) {
	_, client := setupTestRedis(t)
	manager := NewManager(client, 0)
	ctx := context.Background()

	key := forumKey("gone")
	require.NoError(t, manager.Set(ctx, key, &CacheEntry{
		Data:    []byte(`{}`),
		Expires: time.Now().Add(5 * time.Minute),
	}))

	_, err := manager.Get(ctx, key)
	require.NoError(t, err)

	require.NoError(t, manager.Delete(ctx, key))

	_, err = manager.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_Set_NilEntry(t *testing.T) {
	_, client := setupTestRedis(t)
	manager := NewManager(client, 0)

	assert.Error(t, manager.Set(context.Background(), forumKey("x"), nil))
}

func TestCacheKey_Kind(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{"forum", forumKey("abc"), KindForum},
		{"listing", CacheKey{Endpoint: "/notes", QueryParams: url.Values{"invitation": []string{"ICLR.cc/2025/Conference/-/Submission"}}}, KindListing},
		{"other", CacheKey{Endpoint: "/notes"}, KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.Kind())
		})
	}
}

func TestManager_RedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	manager := NewManager(client, 0)
	mr.Close()

	_, err := manager.Get(context.Background(), forumKey("x"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}
