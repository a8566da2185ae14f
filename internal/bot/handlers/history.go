package handlers

import (
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/raybot/internal/bot/keyboard"
	"github.com/Proton-105/raybot/internal/i18n"
)

const historyPageSize = 5

// NewHistoryHandler lists the sender's recorded transfers and swaps. As a
// callback it reads the requested page from the button data and edits the
// message in place.
func NewHistoryHandler(history History, texts i18n.Translator) Handler {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return c.Send(texts.T("errors.no_user"))
		}

		requested := 1
		if cb := c.Callback(); cb != nil {
			_ = c.Respond()
			requested = keyboard.PageFromCallback(cb.Data)
		}

		ctx := RequestContext(c)
		total, err := history.CountByUser(ctx, sender.ID)
		if err != nil {
			return err
		}
		if total == 0 {
			return c.Send(texts.T("history.empty"))
		}

		page := keyboard.NewPage(requested, historyPageSize, total)
		txs, err := history.ListByUser(ctx, sender.ID, page.Size, page.Offset())
		if err != nil {
			return err
		}

		lines := []string{texts.T("history.header")}
		for _, tx := range txs {
			lines = append(lines, texts.F("history.item",
				string(tx.Kind),
				tx.Amount,
				tx.Input,
				shorten(tx.Output),
				string(tx.Status),
				tx.Signature,
			))
		}
		text := strings.Join(lines, "\n\n")

		markup, err := keyboard.History(texts, page)
		if err != nil {
			return err
		}

		opts := []any{telebot.ModeHTML}
		if markup != nil {
			opts = append(opts, markup)
		}
		if c.Callback() != nil {
			return c.Edit(text, opts...)
		}
		return c.Send(text, opts...)
	}
}

// shorten abbreviates long addresses; token symbols pass through.
func shorten(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:4] + "…" + s[len(s)-4:]
}
