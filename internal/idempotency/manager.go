// Package idempotency makes sure a Telegram update is handled at most once,
// even when Telegram redelivers it or several bot replicas receive it.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

var ErrRequestInProgress = errors.New("request with this key is already in progress")

type Operation func(ctx context.Context) (interface{}, error)

type Result struct {
	Response  interface{}
	FromCache bool
}

type Manager interface {
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error)
}

type manager struct {
	store   Store
	lockTTL time.Duration
	log     *slog.Logger
}

// NewManager builds a Manager. lockTTL bounds how long a crashed handler can
// block redeliveries of its update.
func NewManager(store Store, lockTTL time.Duration, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}

	return &manager{
		store:   store,
		lockTTL: lockTTL,
		log:     log,
	}
}

// Execute runs fn once per key. A concurrent call for a key being processed gets
// ErrRequestInProgress; a later call gets the stored response with FromCache set.
// A failed fn leaves no record so a redelivery runs it again.
func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	locked, err := m.store.Lock(ctx, key, m.lockTTL)
	if err != nil {
		return nil, err
	}

	if !locked {
		record, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if record == nil || record.Status != StatusCompleted {
			return nil, ErrRequestInProgress
		}

		var response interface{}
		if len(record.Response) > 0 {
			if err := json.Unmarshal(record.Response, &response); err != nil {
				return nil, err
			}
		}
		return &Result{Response: response, FromCache: true}, nil
	}

	result, err := fn(ctx)
	if err != nil {
		if releaseErr := m.store.ReleaseLock(context.WithoutCancel(ctx), key); releaseErr != nil {
			m.log.Warn("failed to release idempotency lock", slog.String("key", key), slog.Any("error", releaseErr))
		}
		return nil, err
	}

	responseBytes, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	// The completed record outlives the lock; the lock expires on its own.
	if err := m.store.Set(context.WithoutCancel(ctx), key, &Record{
		Status:   StatusCompleted,
		Response: responseBytes,
	}, ttl); err != nil {
		return nil, err
	}

	return &Result{Response: result}, nil
}
