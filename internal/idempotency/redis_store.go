package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

const keyPrefix = "idempotency:"

type Record struct {
	Status   string `json:"status"`
	Response []byte `json:"response,omitempty"`
}

type Store interface {
	// Lock claims key; false means another caller holds it or it already completed.
	Lock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	Get(ctx context.Context, key string) (*Record, error)
	Set(ctx context.Context, key string, record *Record, ttl time.Duration) error
	ReleaseLock(ctx context.Context, key string) error
}

// releaseIfProcessing deletes the key only while it still holds the lock
// marker, so a completed record is never dropped by a late release.
var releaseIfProcessing = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

var processingValue = mustEncode(&Record{Status: StatusProcessing})

// RedisStore keeps one key per unit of work. The key holds the processing
// marker while a handler runs and the completed record afterwards, so claiming
// is a single SETNX.
type RedisStore struct {
	client redis.UniversalClient
	log    *slog.Logger
}

func NewRedisStore(client redis.UniversalClient, log *slog.Logger) Store {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{
		client: client,
		log:    log,
	}
}

func (s *RedisStore) Lock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	acquired, err := s.client.SetNX(ctx, keyPrefix+key, processingValue, lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency lock %s: %w", key, err)
	}
	return acquired, nil
}

// Get returns nil when nothing is stored for key.
func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency get %s: %w", key, err)
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		s.log.WarnContext(ctx, "undecodable idempotency record", slog.String("key", key), slog.Any("error", err))
		return &Record{Status: StatusProcessing}, nil
	}
	return &record, nil
}

// Set replaces the lock marker with record, which then lives for ttl.
func (s *RedisStore) Set(ctx context.Context, key string, record *Record, ttl time.Duration) error {
	if record == nil {
		return nil
	}

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("idempotency encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ReleaseLock(ctx context.Context, key string) error {
	return releaseIfProcessing.Run(ctx, s.client, []string{keyPrefix + key}, processingValue).Err()
}

func mustEncode(record *Record) string {
	b, err := json.Marshal(record)
	if err != nil {
		panic(err)
	}
	return string(b)
}
