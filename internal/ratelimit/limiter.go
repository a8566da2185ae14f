// Package ratelimit counts chat commands per user over sliding windows.
package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"
)

// ErrLimitExceeded is returned by limiters that report rejection as an error.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Limiter counts one request against key and reports whether it fits in limit per window.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

type Result struct {
	Allowed   bool
	Remaining int
	// ResetAt is when the oldest counted request leaves the window.
	ResetAt time.Time
}

// RetryAfter is the whole number of seconds until ResetAt, at least one.
func (r *Result) RetryAfter(now time.Time) int {
	if r == nil {
		return 1
	}
	return max(1, int(math.Ceil(r.ResetAt.Sub(now).Seconds())))
}

// UserKey names the counter a user's command bucket is tracked under.
func UserKey(userID int64, bucket string) string {
	return "user:" + strconv.FormatInt(userID, 10) + ":" + bucket
}
