package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	checksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_checks_total",
		Help: "Rate limit checks by backend and result.",
	}, []string{"backend", "result"})

	backendErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratelimit_backend_errors_total",
		Help: "Redis errors that forced the in-memory fallback.",
	})
)

func init() {
	prometheus.MustRegister(checksTotal, backendErrorsTotal)
}

// AdaptiveLimiter delegates to a primary (Redis) limiter and falls back to
// the in-memory limiter at half the limit while the primary is failing.
type AdaptiveLimiter struct {
	primary  Limiter
	fallback Limiter
	log      *slog.Logger
}

var _ Limiter = (*AdaptiveLimiter)(nil)

func NewAdaptiveLimiter(primary, fallback Limiter, log *slog.Logger) *AdaptiveLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &AdaptiveLimiter{
		primary:  primary,
		fallback: fallback,
		log:      log,
	}
}

func (a *AdaptiveLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	result, err := a.primary.Check(ctx, key, limit, window)
	if err == nil || errors.Is(err, ErrLimitExceeded) {
		return observe("redis", result), nil
	}

	backendErrorsTotal.Inc()
	a.log.WarnContext(ctx, "redis limiter failed, falling back to in-memory", slog.String("key", key), slog.Any("error", err))

	result, err = a.fallback.Check(ctx, key, max(1, limit/2), window)
	if err != nil && !errors.Is(err, ErrLimitExceeded) {
		return nil, err
	}
	return observe("memory", result), nil
}

// observe counts the outcome. A nil result counts as rejected.
func observe(backend string, result *Result) *Result {
	if result == nil {
		result = &Result{}
	}
	label := "rejected"
	if result.Allowed {
		label = "allowed"
	}
	checksTotal.WithLabelValues(backend, label).Inc()
	return result
}
