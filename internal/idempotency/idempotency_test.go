package idempotency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func stores(t *testing.T) map[string]Store {
	client, _ := newRedis(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client, quietLogger()),
	}
}

func TestExecuteRunsOncePerKey(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			m := NewManager(store, time.Minute, quietLogger())
			ctx := context.Background()
			calls := 0
			fn := func(context.Context) (interface{}, error) {
				calls++
				return "done", nil
			}

			first, err := m.Execute(ctx, "update-1", time.Hour, fn)
			require.NoError(t, err)
			assert.False(t, first.FromCache)
			assert.Equal(t, "done", first.Response)

			second, err := m.Execute(ctx, "update-1", time.Hour, fn)
			require.NoError(t, err)
			assert.True(t, second.FromCache)
			assert.Equal(t, "done", second.Response)

			_, err = m.Execute(ctx, "update-2", time.Hour, fn)
			require.NoError(t, err)
			assert.Equal(t, 2, calls)
		})
	}
}

func TestExecuteFailureAllowsRetry(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			m := NewManager(store, time.Minute, quietLogger())
			ctx := context.Background()
			boom := errors.New("boom")

			_, err := m.Execute(ctx, "k", time.Hour, func(context.Context) (interface{}, error) { return nil, boom })
			require.ErrorIs(t, err, boom)

			res, err := m.Execute(ctx, "k", time.Hour, func(context.Context) (interface{}, error) { return 1, nil })
			require.NoError(t, err)
			assert.False(t, res.FromCache)
		})
	}
}

func TestExecuteInProgress(t *testing.T) {
	m := NewManager(NewMemoryStore(), time.Minute, quietLogger())
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = m.Execute(ctx, "k", time.Hour, func(context.Context) (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()

	<-started
	_, err := m.Execute(ctx, "k", time.Hour, func(context.Context) (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrRequestInProgress)

	close(release)
	wg.Wait()

	_, err = m.Execute(ctx, "k", time.Hour, nil)
	require.Error(t, err)
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := s.Lock(ctx, "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, rec.Status)

	require.NoError(t, s.Set(ctx, "b", &Record{Status: StatusCompleted}, time.Hour))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, s.Sweep())

	ok, err = s.Lock(ctx, "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreKeepsRecordAfterLockExpires(t *testing.T) {
	client, mr := newRedis(t)
	s := NewRedisStore(client, quietLogger())
	ctx := context.Background()

	ok, err := s.Lock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Set(ctx, "k", &Record{Status: StatusCompleted, Response: []byte(`"x"`)}, time.Hour))

	mr.FastForward(2 * time.Second)

	ok, err = s.Lock(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, `"x"`, string(rec.Response))

	missing, err := s.Get(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRedisStoreReleaseKeepsCompletedRecord(t *testing.T) {
	client, mr := newRedis(t)
	s := NewRedisStore(client, quietLogger())
	ctx := context.Background()

	ok, err := s.Lock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.ReleaseLock(ctx, "k"))
	assert.False(t, mr.Exists(keyPrefix+"k"))

	require.NoError(t, s.Set(ctx, "k", &Record{Status: StatusCompleted}, time.Hour))
	require.NoError(t, s.ReleaseLock(ctx, "k"))

	rec, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
}

func TestCleanerRemovesKeysWithoutExpiry(t *testing.T) {
	client, mr := newRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(keyPrefix+"orphan", "x"))
	require.NoError(t, client.Set(ctx, keyPrefix+"live", "x", time.Hour).Err())
	require.NoError(t, client.Set(ctx, "unrelated", "x", 0).Err())

	memory := NewMemoryStore()
	require.NoError(t, memory.Set(ctx, "gone", &Record{}, -time.Second))

	c := NewCleaner(client, memory, quietLogger(), time.Minute)
	assert.Equal(t, 2, c.Cleanup(ctx))
	assert.False(t, mr.Exists(keyPrefix+"orphan"))
	assert.True(t, mr.Exists(keyPrefix+"live"))
	assert.True(t, mr.Exists("unrelated"))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "update:10", UpdateKey(10))
	assert.Equal(t, "message:-100:7", MessageKey(-100, 7))

	key := CallbackKey("4385139572341")
	assert.Equal(t, key, CallbackKey("4385139572341"))
	assert.NotEqual(t, key, CallbackKey("4385139572342"))
	assert.Len(t, key, len("callback:")+32)
}
