package handlers

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/raybot/internal/i18n"
)

// NewExportHandler reveals the wallet's secret key, in private chats only.
func NewExportHandler(wallets Wallets, texts i18n.Translator, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return c.Send(texts.T("errors.no_user"))
		}
		if chat := c.Chat(); chat != nil && chat.Type != telebot.ChatPrivate {
			return c.Send(texts.T("export.private_only"))
		}

		ctx := RequestContext(c)
		w, err := wallets.Lookup(ctx, sender.ID)
		if err != nil {
			return err
		}

		log.WarnContext(ctx, "private key exported", slog.Int64("user_id", sender.ID))
		return c.Send(texts.F("export.warning", w.Export()), telebot.ModeHTML)
	}
}
