package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/raybot/internal/bot/handlers"
	"github.com/Proton-105/raybot/internal/idempotency"
)

// Idempotency drops redeliveries of an update that was already handled or is
// still being handled. Each distinct message still runs its handler.
func Idempotency(manager idempotency.Manager, ttl time.Duration, log *slog.Logger) handlers.Middleware {
	if manager == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			key := extractIdempotencyKey(c)
			if key == "" {
				return next(c)
			}

			ctx := handlers.RequestContext(c)

			ran := false
			var handlerErr error
			result, err := manager.Execute(ctx, key, ttl, func(context.Context) (interface{}, error) {
				ran = true
				handlerErr = next(c)
				return nil, handlerErr
			})

			switch {
			case ran:
				return handlerErr
			case errors.Is(err, idempotency.ErrRequestInProgress):
				log.InfoContext(ctx, "duplicate update dropped while in progress", slog.String("key", key))
				return acknowledge(c)
			case err != nil:
				// The store is unreachable; handle the update rather than lose it.
				log.WarnContext(ctx, "idempotency store unavailable", slog.String("key", key), slog.Any("error", err))
				return next(c)
			case result != nil && result.FromCache:
				log.InfoContext(ctx, "duplicate update dropped", slog.String("key", key))
				return acknowledge(c)
			}
			return nil
		}
	}
}

// acknowledge stops the button spinner for a dropped callback.
func acknowledge(c telebot.Context) error {
	if c.Callback() == nil {
		return nil
	}
	return c.Respond()
}

func extractIdempotencyKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	if id := c.Update().ID; id != 0 {
		return idempotency.UpdateKey(id)
	}

	if cb := c.Callback(); cb != nil && cb.ID != "" {
		return idempotency.CallbackKey(cb.ID)
	}

	if msg := c.Message(); msg != nil && msg.ID != 0 {
		chatID := int64(0)
		if msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		return idempotency.MessageKey(chatID, msg.ID)
	}

	return ""
}
