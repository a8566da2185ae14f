package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}

	return client, cleanup
}

func newTestRedisLimiter(t *testing.T) (*RedisLimiter, *redis.Client, *clock) {
	t.Helper()

	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	limiter := NewRedisLimiter(client, testLogger()).(*RedisLimiter)
	limiter.now = c.now
	return limiter, client, c
}

func TestRedisLimiterAllowsWithinLimit(t *testing.T) {
	limiter, _, _ := newTestRedisLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "user:1:price", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 4-i, result.Remaining)
	}
}

func TestRedisLimiterRejectedRequestsAreNotCounted(t *testing.T) {
	limiter, client, c := newTestRedisLimiter(t)
	ctx := context.Background()
	start := c.t

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "user:1:swap", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		c.advance(10 * time.Second)
	}

	for i := 0; i < 5; i++ {
		result, err := limiter.Check(ctx, "user:1:swap", 2, time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, 0, result.Remaining)
		assert.Equal(t, start.Add(time.Minute), result.ResetAt)
	}
	assert.Equal(t, int64(2), client.ZCard(ctx, "ratelimit:user:1:swap").Val())

	c.t = start.Add(time.Minute + time.Millisecond)
	result, err := limiter.Check(ctx, "user:1:swap", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestRedisLimiterKeysAreIndependent(t *testing.T) {
	limiter, _, _ := newTestRedisLimiter(t)
	ctx := context.Background()

	result, err := limiter.Check(ctx, UserKey(1, "send"), 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.Check(ctx, UserKey(1, "send"), 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	result, err = limiter.Check(ctx, UserKey(2, "send"), 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestRedisLimiterZeroLimitRejects(t *testing.T) {
	limiter, client, _ := newTestRedisLimiter(t)

	result, err := limiter.Check(context.Background(), "user:1:swap", 0, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(0), client.Exists(context.Background(), "ratelimit:user:1:swap").Val())
}

func TestRedisLimiterReportsConnectionErrors(t *testing.T) {
	limiter, client, _ := newTestRedisLimiter(t)
	require.NoError(t, client.Close())

	_, err := limiter.Check(context.Background(), "user:1:swap", 1, time.Minute)
	assert.Error(t, err)
}

func TestResultRetryAfter(t *testing.T) {
	now := time.Unix(100, 0)
	assert.Equal(t, 30, (&Result{ResetAt: now.Add(29500 * time.Millisecond)}).RetryAfter(now))
	assert.Equal(t, 1, (&Result{ResetAt: now.Add(-time.Second)}).RetryAfter(now))
	assert.Equal(t, 1, (*Result)(nil).RetryAfter(now))
	assert.Equal(t, "user:42:swap", UserKey(42, "swap"))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCleanerRemovesExpiredRedisWindows(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	stale := float64(time.Now().Add(-time.Hour).UnixMilli())
	fresh := float64(time.Now().UnixMilli())
	assert.NoError(t, client.ZAdd(ctx, "ratelimit:user:1:default", redis.Z{Score: stale, Member: "a"}).Err())
	assert.NoError(t, client.ZAdd(ctx, "ratelimit:user:2:default", redis.Z{Score: stale, Member: "b"}, redis.Z{Score: fresh, Member: "c"}).Err())

	cleaner := NewCleaner(client, nil, 5*time.Minute, time.Minute, testLogger())
	assert.Equal(t, 1, cleaner.Cleanup(ctx))

	assert.Equal(t, int64(0), client.Exists(ctx, "ratelimit:user:1:default").Val())
	assert.Equal(t, int64(1), client.ZCard(ctx, "ratelimit:user:2:default").Val())
}
