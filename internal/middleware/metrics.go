package middleware

import (
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/raybot/internal/bot/handlers"
	apperrors "github.com/Proton-105/raybot/internal/errors"
	"github.com/Proton-105/raybot/pkg/metrics"
)

// Metrics records each handler run under its command with the outcome as
// status: "ok", or the lower-cased error code ("no_wallet", "swap_execution_error").
// It sits innermost so it sees handler errors before they become replies.
func Metrics(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)
		metrics.RecordCommand(CommandName(c), outcome(err), time.Since(start))
		return err
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(apperrors.CodeOf(err))
}
