package handlers

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/raybot/internal/i18n"
	"github.com/Proton-105/raybot/internal/token"
)

// NewBalanceHandler reports the SOL balance of the sender's wallet.
func NewBalanceHandler(wallets Wallets, balances Balances, texts i18n.Translator) Handler {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return c.Send(texts.T("errors.no_user"))
		}

		ctx := RequestContext(c)
		w, err := wallets.Lookup(ctx, sender.ID)
		if err != nil {
			return err
		}

		if err := c.Send(texts.T("balance.fetching")); err != nil {
			return err
		}

		lamports, err := balances.Balance(ctx, w.PublicKey)
		if err != nil {
			return err
		}
		return c.Send(texts.F("balance.result", token.SOL.FromUnits(lamports).String()))
	}
}
