package errors

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/raybot/pkg/metrics"
)

// Handler turns errors into user-facing text, logging them and reporting serious ones to Sentry.
type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, sentryEnabled: sentryEnabled}
}

// Handle returns the message to show the user and whether the operation may be
// retried. A cancelled request yields no message.
func (h *Handler) Handle(ctx context.Context, err error) (string, bool) {
	if err == nil {
		return "", false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if errors.Is(err, context.Canceled) {
		h.log.DebugContext(ctx, "request cancelled", slog.Any("error", err))
		return "", false
	}

	appErr := classify(err)
	h.log.Log(ctx, logLevel(appErr.Severity), "application error", h.attrs(appErr)...)
	metrics.RecordError(appErr.Code, string(appErr.Severity))

	if h.sentryEnabled && severe(appErr.Severity) {
		report(ctx, appErr, err)
	}

	if appErr.UserMessage == "" {
		return defaultUserMessage, appErr.Retryable
	}
	return appErr.UserMessage, appErr.Retryable
}

// classify finds the AppError in err's chain; anything else is an unexpected internal error.
func classify(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr
	}
	return &AppError{
		Code:     CodeInternal,
		Message:  "unexpected error",
		Severity: SeverityHigh,
		cause:    err,
	}
}

func (h *Handler) attrs(e *AppError) []any {
	attrs := []any{
		slog.String("code", e.Code),
		slog.String("message", e.Message),
		slog.String("severity", string(e.Severity)),
		slog.Bool("retryable", e.Retryable),
	}
	if e.cause != nil {
		attrs = append(attrs, slog.String("cause", e.cause.Error()))
	}
	for _, key := range slices.Sorted(maps.Keys(e.Details)) {
		attrs = append(attrs, slog.String(key, e.Details[key]))
	}
	return attrs
}

func severe(s Severity) bool {
	return s == SeverityHigh || s == SeverityCritical
}

func logLevel(s Severity) slog.Level {
	if severe(s) {
		return slog.LevelError
	}
	return slog.LevelWarn
}

// report sends err to the hub bound to ctx, or to a clone of the global hub.
func report(ctx context.Context, appErr *AppError, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("code", appErr.Code)
		scope.SetTag("severity", string(appErr.Severity))
		scope.SetLevel(sentryLevel(appErr.Severity))
		for key, value := range appErr.Details {
			scope.SetTag(key, value)
		}
		hub.CaptureException(err)
	})
}

func sentryLevel(s Severity) sentry.Level {
	if s == SeverityCritical {
		return sentry.LevelFatal
	}
	return sentry.LevelError
}
