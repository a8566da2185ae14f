// Package handlers implements the bot's commands and callbacks.
package handlers

import (
	"context"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/raybot/internal/domain"
	"github.com/Proton-105/raybot/internal/state"
	"github.com/Proton-105/raybot/internal/swap"
	"github.com/Proton-105/raybot/internal/wallet"
)

// Handler processes bot commands.
type Handler func(c telebot.Context) error

// CallbackHandler processes inline callback events.
type CallbackHandler func(c telebot.Context) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

// Wallets creates and resolves custodial wallets.
type Wallets interface {
	GetOrCreate(ctx context.Context, userID int64) (*wallet.Wallet, bool, error)
	Lookup(ctx context.Context, userID int64) (*wallet.Wallet, error)
}

type Prices interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type Balances interface {
	Balance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

type Transfers interface {
	Send(ctx context.Context, w *wallet.Wallet, recipient, amount string) (solana.Signature, error)
}

// Swaps is the swap workflow as seen from chat commands.
type Swaps interface {
	RequestQuote(ctx context.Context, userID int64, amount, from, to string) (*domain.SwapQuote, error)
	Confirm(ctx context.Context, userID int64) (*swap.Result, error)
	Cancel(ctx context.Context, userID int64) (bool, error)
	Session(ctx context.Context, userID int64) (*state.UserState, error)
}

// Tracker follows up on a broadcast transaction whose outcome is not yet known.
type Tracker interface {
	Track(ctx context.Context, userID, chatID int64, signature string) error
}

type History interface {
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Transaction, error)
	CountByUser(ctx context.Context, userID int64) (int, error)
}

const (
	ctxKey  = "request_ctx"
	argsKey = "command_args"
)

// SetRequestContext attaches the per-update context.
func SetRequestContext(c telebot.Context, ctx context.Context) {
	c.Set(ctxKey, ctx)
}

// RequestContext returns the per-update context, or Background when none was attached.
func RequestContext(c telebot.Context) context.Context {
	if ctx, ok := c.Get(ctxKey).(context.Context); ok && ctx != nil {
		return ctx
	}
	return context.Background()
}

// SetArgs overrides the command arguments, used when a menu button stands for a command.
func SetArgs(c telebot.Context, args []string) {
	c.Set(argsKey, args)
}

// Args returns the words after the command.
func Args(c telebot.Context) []string {
	if args, ok := c.Get(argsKey).([]string); ok {
		return args
	}
	fields := strings.Fields(c.Text())
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}
