package idempotency

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cleaner removes idempotency keys that lost their expiry, and sweeps the
// in-memory store when that is in use.
type Cleaner struct {
	client   redis.UniversalClient
	memory   *MemoryStore
	log      *slog.Logger
	interval time.Duration
}

// NewCleaner accepts either backend; a nil one is skipped.
func NewCleaner(client redis.UniversalClient, memory *MemoryStore, log *slog.Logger, interval time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		client:   client,
		memory:   memory,
		log:      log,
		interval: interval,
	}
}

func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.interval <= 0 || (c.client == nil && c.memory == nil) {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup(ctx)
		}
	}
}

// Cleanup runs one pass and returns the number of removed entries.
func (c *Cleaner) Cleanup(ctx context.Context) int {
	removed := 0
	if c.memory != nil {
		removed += c.memory.Sweep()
	}
	if c.client != nil {
		removed += c.sweepRedis(ctx)
	}

	if removed > 0 {
		c.log.Info("idempotency keys cleaned", slog.Int("keys_removed", removed))
	}
	return removed
}

const scanBatch = 100

// sweepRedis unlinks keys that carry no expiry, one SCAN batch at a time.
func (c *Cleaner) sweepRedis(ctx context.Context) int {
	removed := 0
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)

	flush := func() {
		n, err := c.unlinkPersistent(ctx, batch)
		if err != nil {
			c.log.Warn("idempotency cleaner batch failed", slog.Int("keys", len(batch)), slog.Any("error", err))
		}
		removed += n
		batch = batch[:0]
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			flush()
		}
	}
	if len(batch) > 0 {
		flush()
	}
	if err := iter.Err(); err != nil {
		c.log.Error("idempotency cleaner scan failed", slog.Any("error", err))
	}
	return removed
}

func (c *Cleaner) unlinkPersistent(ctx context.Context, keys []string) (int, error) {
	pipe := c.client.Pipeline()
	ttls := make([]*redis.DurationCmd, len(keys))
	for i, key := range keys {
		ttls[i] = pipe.TTL(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}

	var stale []string
	for i, cmd := range ttls {
		// -1 means no expiry was ever set.
		if cmd.Err() == nil && cmd.Val() == -1 {
			stale = append(stale, keys[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	n, err := c.client.Unlink(ctx, stale...).Result()
	return int(n), err
}
