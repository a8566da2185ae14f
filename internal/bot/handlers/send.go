package handlers

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/raybot/internal/i18n"
)

// NewSendHandler handles /send RECIPIENT AMOUNT. Every invocation submits a new
// transfer; only duplicate deliveries of the same update are dropped upstream.
func NewSendHandler(wallets Wallets, transfers Transfers, texts i18n.Translator, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		args := Args(c)
		if len(args) != 2 {
			return c.Send(texts.T("send.usage"))
		}
		sender := c.Sender()
		if sender == nil {
			return c.Send(texts.T("errors.no_user"))
		}

		ctx := RequestContext(c)
		w, err := wallets.Lookup(ctx, sender.ID)
		if err != nil {
			return err
		}

		recipient, amount := args[0], args[1]
		sig, err := transfers.Send(ctx, w, recipient, amount)
		if err != nil {
			return err
		}

		log.InfoContext(ctx, "transfer submitted", slog.Int64("user_id", sender.ID), slog.String("signature", sig.String()))
		return c.Send(texts.F("send.success", sig.String()))
	}
}
