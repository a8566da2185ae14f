package middleware

import (
	"errors"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/raybot/internal/bot/handlers"
	apperrors "github.com/Proton-105/raybot/internal/errors"
	"github.com/Proton-105/raybot/internal/ratelimit"
	"github.com/Proton-105/raybot/pkg/metrics"
)

// RateLimit enforces the per-user, per-command limits. Limiter failures let the
// update through.
func RateLimit(limiter ratelimit.Limiter, rules *ratelimit.Rules, log *slog.Logger) handlers.Middleware {
	if limiter == nil || rules == nil || !rules.Enabled() {
		return func(next handlers.Handler) handlers.Handler { return next }
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			sender := c.Sender()
			if sender == nil || rules.IsWhitelisted(sender.ID) {
				return next(c)
			}

			command := CommandName(c)
			bucket, limit, window := rules.Limit(command)
			key := ratelimit.UserKey(sender.ID, bucket)

			ctx := handlers.RequestContext(c)
			result, err := limiter.Check(ctx, key, limit, window)
			if err != nil && !errors.Is(err, ratelimit.ErrLimitExceeded) {
				log.WarnContext(ctx, "rate limiter error", slog.Int64("user_id", sender.ID), slog.Any("error", err))
				return next(c)
			}

			if err == nil && result != nil && result.Allowed {
				return next(c)
			}

			metrics.RecordRateLimited(command)
			log.WarnContext(ctx, "rate limit exceeded", slog.Int64("user_id", sender.ID), slog.String("command", command))

			if result == nil {
				result = &ratelimit.Result{ResetAt: time.Now().Add(window)}
			}
			return apperrors.NewRateLimitError(result.RetryAfter(time.Now()))
		}
	}
}
