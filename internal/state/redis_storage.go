package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "swap:session:"
	scanBatch        = 100

	defaultSessionTTL = 24 * time.Hour
)

// RedisStorage keeps one JSON document per user under swap:session:<id>.
// Quotes survive a restart until the session TTL runs out.
type RedisStorage struct {
	client redis.UniversalClient
	log    *slog.Logger
	ttl    time.Duration
}

var _ Storage = (*RedisStorage)(nil)

// NewRedisStorage initializes a Redis-backed Storage. Sessions expire after ttl (24h when zero).
func NewRedisStorage(client redis.UniversalClient, log *slog.Logger, ttl time.Duration) *RedisStorage {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	return &RedisStorage{
		client: client,
		log:    log,
		ttl:    ttl,
	}
}

func (s *RedisStorage) GetState(ctx context.Context, userID int64) (*UserState, error) {
	data, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", userID, err)
	}

	var st UserState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode session %d: %w", userID, err)
	}
	return &st, nil
}

// SetState stamps UpdatedAt and refreshes the TTL.
func (s *RedisStorage) SetState(ctx context.Context, userID int64, st *UserState) error {
	st.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", userID, err)
	}
	if err := s.client.Set(ctx, sessionKey(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session %d: %w", userID, err)
	}
	return nil
}

func (s *RedisStorage) ClearState(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear session %d: %w", userID, err)
	}
	return nil
}

// GetAllStates scans every session, fetching each batch of keys with one MGET.
// Entries that expire mid-scan or fail to decode are skipped.
func (s *RedisStorage) GetAllStates(ctx context.Context) ([]*UserState, error) {
	var (
		cursor uint64
		result []*UserState
	)

	for {
		keys, next, err := s.client.Scan(ctx, cursor, sessionKeyPrefix+"*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("scan sessions: %w", err)
		}

		if len(keys) > 0 {
			values, err := s.client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, fmt.Errorf("fetch sessions: %w", err)
			}
			for i, value := range values {
				raw, ok := value.(string)
				if !ok {
					continue
				}
				var st UserState
				if err := json.Unmarshal([]byte(raw), &st); err != nil {
					s.log.WarnContext(ctx, "skipping undecodable session", slog.String("key", keys[i]), slog.Any("error", err))
					continue
				}
				result = append(result, &st)
			}
		}

		cursor = next
		if cursor == 0 {
			return result, nil
		}
	}
}

func sessionKey(userID int64) string {
	return sessionKeyPrefix + strconv.FormatInt(userID, 10)
}
