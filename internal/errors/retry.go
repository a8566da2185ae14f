package errors

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	MaxRetries     = 3
	InitialBackoff = 200 * time.Millisecond
	MaxBackoff     = 5 * time.Second
)

// RetryPolicy bounds a retried operation.
type RetryPolicy struct {
	Attempts        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Notify is called before each wait; optional.
	Notify func(err error, next time.Duration)
}

// DefaultRetryPolicy mirrors the package constants.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:        MaxRetries,
		InitialInterval: InitialBackoff,
		MaxInterval:     MaxBackoff,
	}
}

// Retry runs op with exponential backoff while it fails with a retryable error.
// Non-retryable errors stop immediately and are returned unwrapped.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func() (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if policy.Attempts == 0 {
		policy.Attempts = 1
	}

	expo := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		expo.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		expo.MaxInterval = policy.MaxInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(policy.Attempts),
	}
	if policy.Notify != nil {
		opts = append(opts, backoff.WithNotify(policy.Notify))
	}

	result, err := backoff.Retry(ctx, func() (T, error) {
		value, err := op()
		if err != nil && !IsRetryable(err) {
			return value, backoff.Permanent(err)
		}
		return value, err
	}, opts...)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return result, permanent.Unwrap()
	}
	return result, err
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Retryable
	}

	return false
}
