//go:build integration

package client

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/yubol-bobo/Smart-AI-Conference/internal/testutil"
)

// startRedis runs a disposable Redis container and returns a client for it.
func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	endpoint, err := ctr.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	require.NoError(t, rdb.Ping(ctx).Err())
	return rdb
}

func TestIntegration_ForumServedFromRedis(t *testing.T) {
	rdb := startRedis(t)
	mock := testutil.NewMockOpenReview()
	defer mock.Close()

	const venue = "ICLR.cc/2025/Conference"
	mock.SetForum("abc", testutil.SubmissionNote(venue, "abc", 1, "Cached Paper", ""))

	c := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.Redis = rdb
		cfg.CacheTTL = time.Minute
	})
	ctx := context.Background()

	first, err := c.Call(ctx, "/notes", forumParams("abc"))
	require.NoError(t, err)
	second, err := c.Call(ctx, "/notes", forumParams("abc"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, mock.Requests(testutil.ForumKey("abc")), "second call should come from Redis")

	keys, err := rdb.Keys(ctx, "orc:*").Result()
	require.NoError(t, err)
	require.Len(t, keys, 1)

	ttl, err := rdb.TTL(ctx, keys[0]).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute, "ttl %v should follow the fallback lifetime", ttl)
}

func TestIntegration_ErrorsAreNotCached(t *testing.T) {
	rdb := startRedis(t)
	mock := testutil.NewMockOpenReview()
	defer mock.Close()

	c := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.Redis = rdb })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.Call(ctx, "/notes", forumParams("missing"))
		require.Error(t, err)
		assert.True(t, IsClientError(err))
	}
	assert.Equal(t, 2, mock.Requests(testutil.ForumKey("missing")))
}
