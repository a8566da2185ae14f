package handlers

import (
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/raybot/internal/bot/keyboard"
	"github.com/Proton-105/raybot/internal/i18n"
	"github.com/Proton-105/raybot/internal/token"
)

// NewStartHandler creates the user's wallet on first contact and greets them.
func NewStartHandler(wallets Wallets, tokens *token.Registry, texts i18n.Translator, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			log.Warn("start handler invoked without sender")
			return c.Send(texts.T("errors.no_user"))
		}

		ctx := RequestContext(c)
		w, created, err := wallets.GetOrCreate(ctx, sender.ID)
		if err != nil {
			return err
		}

		if !created {
			return c.Send(texts.F("start.existing", w.Address()), keyboard.MainMenu(texts))
		}

		log.InfoContext(ctx, "wallet created", slog.Int64("user_id", sender.ID), slog.String("public_key", w.Address()))
		welcome := texts.F("start.welcome", supported(tokens), w.Address())
		return c.Send(welcome, telebot.ModeHTML, keyboard.MainMenu(texts))
	}
}

func NewHelpHandler(tokens *token.Registry, texts i18n.Translator) Handler {
	return func(c telebot.Context) error {
		return c.Send(texts.F("help.text", supported(tokens)), telebot.ModeHTML, keyboard.MainMenu(texts))
	}
}

func supported(tokens *token.Registry) string {
	return strings.Join(tokens.Symbols(), ", ")
}
