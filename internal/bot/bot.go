// Package bot wires the Telegram transport to the wallet and swap services.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/raybot/internal/bot/handlers"
	"github.com/Proton-105/raybot/internal/bot/keyboard"
	errors "github.com/Proton-105/raybot/internal/errors"
	"github.com/Proton-105/raybot/internal/i18n"
	"github.com/Proton-105/raybot/internal/idempotency"
	"github.com/Proton-105/raybot/internal/middleware"
	"github.com/Proton-105/raybot/internal/ratelimit"
	"github.com/Proton-105/raybot/internal/token"
	"github.com/Proton-105/raybot/pkg/config"
)

// updateTimeout bounds one update end to end, including swap confirmation.
const updateTimeout = 2 * time.Minute

// Deps are the services behind the bot commands.
type Deps struct {
	Wallets   handlers.Wallets
	Tokens    *token.Registry
	Prices    handlers.Prices
	Balances  handlers.Balances
	Transfers handlers.Transfers
	Swaps     handlers.Swaps
	Tracker   handlers.Tracker
	History   handlers.History
	Texts     i18n.Translator

	Idempotency    idempotency.Manager
	IdempotencyTTL time.Duration
	Limiter        ratelimit.Limiter
	Rules          *ratelimit.Rules
	ErrHandler     *errors.Handler
}

// Bot wraps telebot.Bot with application dependencies required for handling updates.
type Bot struct {
	telebot *telebot.Bot
	log     *slog.Logger
	router  *Router
	deps    Deps
}

// New builds a telegram bot instance configured according to the application settings.
// ctx is the parent of every per-update context.
func New(ctx context.Context, cfg config.BotConfig, deps Deps, log *slog.Logger) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}

	settings := telebot.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: cfg.Timeout + cfg.PollTimeout},
		OnError: func(err error, c telebot.Context) {
			log.Error("telegram update failed", slog.Any("error", err))
		},
	}

	if cfg.Mode == "webhook" {
		settings.Poller = &telebot.Webhook{
			Listen:   cfg.Listen,
			Endpoint: &telebot.WebhookEndpoint{PublicURL: cfg.WebhookURL},
		}
	} else {
		settings.Poller = &telebot.LongPoller{Timeout: cfg.PollTimeout}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	b := newBot(ctx, deps, log)
	b.telebot = tb
	tb.Handle(telebot.OnText, b.router.Route)
	tb.Handle(telebot.OnCallback, b.router.Route)

	return b, nil
}

func newBot(ctx context.Context, deps Deps, log *slog.Logger) *Bot {
	if deps.ErrHandler == nil {
		deps.ErrHandler = errors.NewHandler(log, false)
	}
	if deps.IdempotencyTTL <= 0 {
		deps.IdempotencyTTL = 24 * time.Hour
	}

	b := &Bot{
		log:    log,
		router: NewRouter(log),
		deps:   deps,
	}
	b.setupRouter(ctx)
	return b
}

func (b *Bot) setupRouter(ctx context.Context) {
	d := b.deps

	b.router.Use(ContextMiddleware(ctx, updateTimeout))
	b.router.Use(RecoveryMiddleware(b.log, d.ErrHandler))
	b.router.Use(LoggingMiddleware(b.log))
	b.router.Use(middleware.Idempotency(d.Idempotency, d.IdempotencyTTL, b.log))
	b.router.Use(ErrorHandlingMiddleware(d.ErrHandler))
	b.router.Use(middleware.RateLimit(d.Limiter, d.Rules, b.log))
	b.router.Use(middleware.Metrics)

	help := handlers.NewHelpHandler(d.Tokens, d.Texts)
	cancel := handlers.NewCancelHandler(d.Swaps, d.Texts, b.log)
	history := handlers.NewHistoryHandler(d.History, d.Texts)

	b.router.RegisterCommand(CommandStart, handlers.NewStartHandler(d.Wallets, d.Tokens, d.Texts, b.log))
	b.router.RegisterCommand(CommandHelp, help)
	b.router.RegisterCommand(CommandPrice, handlers.NewPriceHandler(d.Prices, d.Texts))
	b.router.RegisterCommand(CommandBalance, handlers.NewBalanceHandler(d.Wallets, d.Balances, d.Texts))
	b.router.RegisterCommand(CommandSend, handlers.NewSendHandler(d.Wallets, d.Transfers, d.Texts, b.log))
	b.router.RegisterCommand(CommandSwap, handlers.NewSwapHandler(d.Swaps, d.Tokens, d.Texts))
	b.router.RegisterCommand(CommandStatus, handlers.NewStatusHandler(d.Swaps, d.Tokens, d.Texts))
	b.router.RegisterCommand(CommandCancel, cancel)
	b.router.RegisterCommand(CommandExport, handlers.NewExportHandler(d.Wallets, d.Texts, b.log))
	b.router.RegisterCommand(CommandHistory, history)

	b.router.RegisterCallback(CallbackConfirmSwap, handlers.CallbackHandler(handlers.NewConfirmHandler(d.Swaps, d.Tracker, d.Texts, b.log)))
	b.router.RegisterCallback(CallbackCancelSwap, handlers.CallbackHandler(cancel))
	b.router.RegisterCallback(CallbackHistory, handlers.CallbackHandler(history))

	for label, command := range keyboard.MenuCommands(d.Texts) {
		b.router.RegisterAlias(label, command)
	}

	// Free text in a private chat gets the command list; groups are left alone.
	b.router.SetDefault(func(c telebot.Context) error {
		if chat := c.Chat(); chat == nil || chat.Type != telebot.ChatPrivate {
			return nil
		}
		return help(c)
	})
}

// Run publishes the command list and processes updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if b.telebot == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	commands := make([]telebot.Command, 0, len(menuDescriptions))
	for _, m := range menuDescriptions {
		commands = append(commands, telebot.Command{Text: strings.TrimPrefix(m.command, "/"), Description: m.description})
	}
	if err := b.telebot.SetCommands(commands); err != nil {
		b.log.Warn("failed to publish command list", slog.Any("error", err))
	}

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			b.Stop()
		case <-stopped:
		}
	}()

	b.log.Info("telegram bot started", slog.String("username", b.telebot.Me.Username))
	b.telebot.Start()
	close(stopped)
	return nil
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Notify sends a plain message to chatID outside of any update, e.g. from a background job.
func (b *Bot) Notify(_ context.Context, chatID int64, text string) error {
	if b.telebot == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	_, err := b.telebot.Send(telebot.ChatID(chatID), text)
	return err
}

// Ping calls getMe to verify the token and API reachability.
func (b *Bot) Ping(_ context.Context) error {
	if b.telebot == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	_, err := b.telebot.Raw("getMe", nil)
	return err
}
