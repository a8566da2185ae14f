package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/raybot/internal/bot/handlers"
	errors "github.com/Proton-105/raybot/internal/errors"
	"github.com/Proton-105/raybot/pkg/logger"
)

const fallbackUserMessage = "⚠️ Something went wrong. Please try again later."

// RecoveryMiddleware catches panics, reports them via the centralized handler, and notifies the user.
func RecoveryMiddleware(log *slog.Logger, errHandler *errors.Handler) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					ctx := handlers.RequestContext(c)
					log.ErrorContext(ctx, "panic recovered in handler", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))

					userMsg := fallbackUserMessage
					if errHandler != nil {
						appErr := errors.NewInternalError(fmt.Errorf("panic recovered: %v", r))
						if msg, _ := errHandler.Handle(ctx, appErr); msg != "" {
							userMsg = msg
						}
					}

					if sendErr := c.Send(userMsg); sendErr != nil {
						log.ErrorContext(ctx, "failed to notify user about panic", slog.Any("error", sendErr))
					}

					err = nil
				}
			}()

			return next(c)
		}
	}
}

// ContextMiddleware gives every update a context derived from root, bounded by
// timeout and tagged with a correlation id for the logs.
func ContextMiddleware(root context.Context, timeout time.Duration) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			ctx := root
			if ctx == nil {
				ctx = context.Background()
			}

			correlationID := ""
			if id := c.Update().ID; id != 0 {
				correlationID = "upd-" + strconv.Itoa(id)
			}
			ctx = logger.WithCorrelationID(ctx, correlationID)

			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			handlers.SetRequestContext(c, ctx)
			return next(c)
		}
	}
}

// ErrorHandlingMiddleware centralizes error reporting and user messaging for handler failures.
func ErrorHandlingMiddleware(errHandler *errors.Handler) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			userMsg := fallbackUserMessage
			if errHandler != nil {
				if msg, _ := errHandler.Handle(handlers.RequestContext(c), err); msg != "" {
					userMsg = msg
				}
			}

			return c.Send(userMsg)
		}
	}
}

// LoggingMiddleware logs one line per update; failed updates are logged at warn.
// The correlation id is stamped by the logger's handler.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			start := time.Now()
			ctx := handlers.RequestContext(c)

			kind, action := "message", c.Text()
			if cb := c.Callback(); cb != nil {
				kind, action = "callback", cb.Data
			}

			attrs := []any{
				slog.String("kind", kind),
				slog.String("action", redactAction(action)),
			}
			if sender := c.Sender(); sender != nil {
				attrs = append(attrs, slog.Int64("user_id", sender.ID))
			}
			if chat := c.Chat(); chat != nil {
				attrs = append(attrs, slog.Int64("chat_id", chat.ID))
			}

			log.DebugContext(ctx, "handling update", attrs...)
			err := next(c)

			attrs = append(attrs, slog.Duration("duration", time.Since(start)))
			if err != nil {
				log.WarnContext(ctx, "update failed", append(attrs, slog.Any("error", err))...)
				return err
			}
			log.InfoContext(ctx, "handled update", attrs...)
			return nil
		}
	}
}

// redactAction keeps only the command word of messages; arguments may carry
// addresses and amounts that do not belong in logs.
func redactAction(action string) string {
	for i, r := range action {
		if r == ' ' || r == '\n' {
			return action[:i]
		}
	}
	return action
}
