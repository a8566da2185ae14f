package middleware

import (
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/raybot/internal/bot/keyboard"
)

// CommandName identifies the action of an update: the command word without the
// bot suffix, or the callback action.
func CommandName(c telebot.Context) string {
	if c == nil {
		return "unknown"
	}

	if cb := c.Callback(); cb != nil {
		if unique, _, err := keyboard.DecodeCallback(strings.TrimSpace(cb.Data)); err == nil {
			return unique
		}
		return "unknown"
	}

	fields := strings.Fields(c.Text())
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "text"
	}

	name, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(name)
}
