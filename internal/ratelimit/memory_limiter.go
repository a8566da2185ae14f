package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryLimiter keeps a sliding window of request times per key in process.
// It backs single-instance deployments and the Redis fallback path.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
	log     *slog.Logger
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(log *slog.Logger) *MemoryLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &MemoryLimiter{
		windows: make(map[string][]time.Time),
		now:     time.Now,
		log:     log,
	}
}

// Check records a request for key when it fits in the window. A rejected
// request is not recorded and returns ErrLimitExceeded.
func (m *MemoryLimiter) Check(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	reqs := keepRecent(m.windows[key], now.Add(-window))
	allowed := len(reqs) < limit
	if allowed {
		reqs = append(reqs, now)
	}
	m.windows[key] = reqs

	resetAt := now.Add(window)
	if len(reqs) > 0 {
		resetAt = reqs[0].Add(window)
	}

	result := &Result{
		Allowed:   allowed,
		Remaining: max(0, limit-len(reqs)),
		ResetAt:   resetAt,
	}
	if !allowed {
		return result, ErrLimitExceeded
	}
	return result, nil
}

// Cleanup drops keys with no request newer than maxAge and returns how many were removed.
func (m *MemoryLimiter) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, reqs := range m.windows {
		if len(reqs) == 0 || reqs[len(reqs)-1].Before(cutoff) {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}

func keepRecent(reqs []time.Time, windowStart time.Time) []time.Time {
	first := 0
	for first < len(reqs) && !reqs[first].After(windowStart) {
		first++
	}
	if first == 0 {
		return reqs
	}
	return append(reqs[:0], reqs[first:]...)
}
