package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// slidingWindow trims the window, records the request only when it fits and
// returns {allowed, count, reset_ms}. Scores are unix milliseconds.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	count = count + 1
	allowed = 1
end
redis.call('PEXPIRE', key, window * 2)

local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
	reset = tonumber(oldest[2]) + window
end
return {allowed, count, reset}
`)

// RedisLimiter keeps one sorted set per key, shared by every bot replica.
type RedisLimiter struct {
	client redis.UniversalClient
	log    *slog.Logger
	now    func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client redis.UniversalClient, log *slog.Logger) Limiter {
	if log == nil {
		log = slog.Default()
	}

	return &RedisLimiter{
		client: client,
		log:    log,
		now:    time.Now,
	}
}

// Check counts a request against key. A rejected request is not recorded, so a
// user hammering a command is let through again once the window slides.
func (l *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if l.client == nil {
		return nil, errors.New("redis client is not configured for rate limiting")
	}

	now := l.now()
	if limit <= 0 {
		return &Result{ResetAt: now.Add(window)}, nil
	}

	reply, err := slidingWindow.Run(ctx, l.client,
		[]string{redisKeyPrefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		l.log.ErrorContext(ctx, "rate limiter script failed", slog.String("key", key), slog.Any("error", err))
		return nil, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(reply) != 3 {
		return nil, fmt.Errorf("rate limit %s: unexpected reply %v", key, reply)
	}

	return &Result{
		Allowed:   reply[0] == 1,
		Remaining: max(0, limit-int(reply[1])),
		ResetAt:   time.UnixMilli(reply[2]),
	}, nil
}
