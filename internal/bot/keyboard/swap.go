package keyboard

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/raybot/internal/i18n"
)

// Callback actions.
const (
	CallbackConfirmSwap = "confirm_swap"
	CallbackCancelSwap  = "cancel_swap"
	CallbackHistory     = "history"
)

// ConfirmSwap builds the two-button prompt shown under a swap quote.
func ConfirmSwap(t i18n.Translator) (*telebot.ReplyMarkup, error) {
	return NewInlineKeyboard().
		AddRow(
			InlineButton{Text: translated(t, "buttons.confirm", "Confirm"), Unique: CallbackConfirmSwap},
			InlineButton{Text: translated(t, "buttons.cancel", "Cancel"), Unique: CallbackCancelSwap},
		).
		Build()
}

// History builds the page switcher for the transaction history. Nil means a single page.
func History(t i18n.Translator, p Page) (*telebot.ReplyMarkup, error) {
	if p.Count() <= 1 {
		return nil, nil
	}
	return NewInlineKeyboard().
		AddRow(PaginationButtons(t, CallbackHistory, p)...).
		Build()
}
