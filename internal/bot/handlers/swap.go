package handlers

import (
	"html"
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/raybot/internal/bot/keyboard"
	"github.com/Proton-105/raybot/internal/domain"
	"github.com/Proton-105/raybot/internal/i18n"
	"github.com/Proton-105/raybot/internal/state"
	"github.com/Proton-105/raybot/internal/swap"
	"github.com/Proton-105/raybot/internal/token"
)

// NewSwapHandler quotes /swap AMOUNT FROM TO and shows the confirmation prompt.
// Nothing moves until the user presses Confirm.
func NewSwapHandler(swaps Swaps, tokens *token.Registry, texts i18n.Translator) Handler {
	return func(c telebot.Context) error {
		args := Args(c)
		if len(args) != 3 {
			return c.Send(texts.T("swap.usage"))
		}
		sender := c.Sender()
		if sender == nil {
			return c.Send(texts.T("errors.no_user"))
		}

		quote, err := swaps.RequestQuote(RequestContext(c), sender.ID, args[0], args[1], args[2])
		if err != nil {
			return err
		}

		markup, err := keyboard.ConfirmSwap(texts)
		if err != nil {
			return err
		}
		return c.Send(Prompt(texts, quote, tokens), telebot.ModeHTML, markup)
	}
}

// Prompt renders the swap details message for quote.
func Prompt(texts i18n.Translator, quote *domain.SwapQuote, tokens *token.Registry) string {
	s := swap.Summarize(quote, tokens)
	return texts.F("swap.prompt", s.From, s.To, s.Slippage, s.Fees, html.EscapeString(s.MarketMaker))
}

// NewConfirmHandler executes the cached quote when Confirm is pressed.
func NewConfirmHandler(swaps Swaps, tracker Tracker, texts i18n.Translator, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return c.Send(texts.T("errors.no_user"))
		}
		acknowledge(c)

		if err := c.Send(texts.T("swap.executing")); err != nil {
			return err
		}

		ctx := RequestContext(c)
		result, err := swaps.Confirm(ctx, sender.ID)
		if err != nil {
			return err
		}

		sig := result.Signature.String()
		if !result.Pending {
			return c.Send(texts.F("swap.success", sig))
		}

		if tracker != nil {
			chatID := sender.ID
			if chat := c.Chat(); chat != nil {
				chatID = chat.ID
			}
			if err := tracker.Track(ctx, sender.ID, chatID, sig); err != nil {
				log.ErrorContext(ctx, "failed to schedule signature check",
					slog.Int64("user_id", sender.ID),
					slog.String("signature", sig),
					slog.Any("error", err),
				)
			}
		}
		return c.Send(texts.F("swap.pending", sig))
	}
}

// NewCancelHandler drops the cached quote. It serves both /cancel and the Cancel button
// and always confirms the cancellation.
func NewCancelHandler(swaps Swaps, texts i18n.Translator, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			log.Warn("cancel handler invoked without sender context")
			return nil
		}
		acknowledge(c)

		if _, err := swaps.Cancel(RequestContext(c), sender.ID); err != nil {
			return err
		}
		return c.Send(texts.T("swap.cancelled"), keyboard.MainMenu(texts))
	}
}

// NewStatusHandler describes the sender's swap session.
func NewStatusHandler(swaps Swaps, tokens *token.Registry, texts i18n.Translator) Handler {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return c.Send(texts.T("errors.no_user"))
		}

		session, err := swaps.Session(RequestContext(c), sender.ID)
		if err != nil {
			return err
		}

		switch {
		case session.HasQuote():
			s := swap.Summarize(session.Quote, tokens)
			lines := []string{
				"From: " + s.From,
				"To: " + s.To,
				"Slippage: " + s.Slippage,
				"Fees: " + s.Fees,
				"Market Maker: " + html.EscapeString(s.MarketMaker),
			}
			return c.Send(texts.F("status.quoted", strings.Join(lines, "\n")), telebot.ModeHTML)
		case session.CurrentState == state.StateExecuting:
			return c.Send(texts.T("status.executing"))
		case session.Pending && session.Signature != "":
			return c.Send(texts.F("status.pending", session.Signature))
		case session.Signature != "":
			return c.Send(texts.F("status.last", session.Signature, string(session.CurrentState)))
		default:
			return c.Send(texts.T("status.none"))
		}
	}
}

// acknowledge stops the button spinner and removes the prompt buttons so they
// cannot be pressed twice.
func acknowledge(c telebot.Context) {
	if c.Callback() == nil {
		return
	}
	_ = c.Respond()
	var none *telebot.ReplyMarkup
	_ = c.Edit(none)
}
