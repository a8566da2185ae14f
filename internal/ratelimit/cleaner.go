package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPattern = redisKeyPrefix + "*"
	scanCount  = 100
)

// Cleaner periodically removes expired request entries from Redis windows and
// idle keys from the in-memory limiter. Either backend may be nil.
type Cleaner struct {
	client   redis.UniversalClient
	memory   *MemoryLimiter
	maxAge   time.Duration
	interval time.Duration
	log      *slog.Logger
}

// NewCleaner builds a Cleaner. maxAge must cover the longest configured window.
func NewCleaner(client redis.UniversalClient, memory *MemoryLimiter, maxAge, interval time.Duration, log *slog.Logger) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		client:   client,
		memory:   memory,
		maxAge:   maxAge,
		interval: interval,
		log:      log,
	}
}

// Run cleans on every tick until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c.interval <= 0 || (c.client == nil && c.memory == nil) {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("rate limit cleaner stopped")
			return
		case <-ticker.C:
			if n := c.Cleanup(ctx); n > 0 {
				c.log.Info("rate limit keys cleaned", slog.Int("keys_removed", n))
			}
		}
	}
}

// Cleanup runs one pass and returns the number of keys removed.
func (c *Cleaner) Cleanup(ctx context.Context) int {
	removed := 0
	if c.memory != nil {
		removed += c.memory.Cleanup(c.maxAge)
	}
	if c.client != nil {
		removed += c.cleanRedis(ctx)
	}
	return removed
}

func (c *Cleaner) cleanRedis(ctx context.Context) int {
	// Members are scored in milliseconds; see RedisLimiter.Check.
	cutoff := time.Now().Add(-c.maxAge).UnixMilli()

	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPattern, scanCount).Result()
		if err != nil {
			c.log.Error("rate limit scan failed", slog.Any("error", err))
			return removed
		}

		for _, key := range keys {
			pipe := c.client.TxPipeline()
			pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", cutoff))
			card := pipe.ZCard(ctx, key)
			if _, err := pipe.Exec(ctx); err != nil {
				c.log.Warn("cleanup pipeline failed", slog.String("key", key), slog.Any("error", err))
				continue
			}

			if card.Val() == 0 {
				if err := c.client.Del(ctx, key).Err(); err != nil {
					c.log.Warn("failed to delete empty rate limit key", slog.String("key", key), slog.Any("error", err))
					continue
				}
				removed++
			}
		}

		if next == 0 {
			return removed
		}
		cursor = next
	}
}
