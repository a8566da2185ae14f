package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Proton-105/raybot/internal/bot"
	"github.com/Proton-105/raybot/internal/bot/handlers"
	"github.com/Proton-105/raybot/internal/chain"
	"github.com/Proton-105/raybot/internal/database"
	apperrors "github.com/Proton-105/raybot/internal/errors"
	"github.com/Proton-105/raybot/internal/health"
	"github.com/Proton-105/raybot/internal/i18n"
	"github.com/Proton-105/raybot/internal/idempotency"
	"github.com/Proton-105/raybot/internal/jobs"
	jobhandlers "github.com/Proton-105/raybot/internal/jobs/handlers"
	"github.com/Proton-105/raybot/internal/jupiter"
	"github.com/Proton-105/raybot/internal/lifecycle"
	"github.com/Proton-105/raybot/internal/pricecache"
	"github.com/Proton-105/raybot/internal/ratelimit"
	"github.com/Proton-105/raybot/internal/repository"
	"github.com/Proton-105/raybot/internal/state"
	"github.com/Proton-105/raybot/internal/swap"
	"github.com/Proton-105/raybot/internal/token"
	"github.com/Proton-105/raybot/internal/transfer"
	"github.com/Proton-105/raybot/internal/wallet"
	"github.com/Proton-105/raybot/migrations"
	"github.com/Proton-105/raybot/pkg/config"
	"github.com/Proton-105/raybot/pkg/metrics"
	appredis "github.com/Proton-105/raybot/pkg/redis"
)

const (
	idempotencyTTL      = 24 * time.Hour
	idempotencyLockTTL  = 5 * time.Minute
	cleanupInterval     = 5 * time.Minute
	stateCollectorEvery = 15 * time.Second
	healthCheckTimeout  = 3 * time.Second
)

// app is the wired process. loops run until the serve context ends.
type app struct {
	bot       *bot.Bot
	probes    *lifecycle.Probes
	worker    jobs.Worker
	scheduler jobs.Scheduler
	loops     []func(context.Context)
}

func build(ctx context.Context, cfg *config.Config, log *slog.Logger, sentryEnabled bool, shutdown *lifecycle.Shutdown) (*app, error) {
	a := &app{}
	checker := health.NewChecker(log, healthCheckTimeout)
	a.probes = lifecycle.NewProbes(checker, log)

	var (
		rc     *appredis.Client
		client goredis.UniversalClient
	)
	if cfg.Redis.Enabled {
		var err error
		rc, err = appredis.New(ctx, appredis.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			PoolTimeout:  cfg.Redis.PoolTimeout,
			IdleTimeout:  cfg.Redis.IdleTimeout,
			MaxRetries:   cfg.Redis.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		client = rc.Client
		shutdown.Register(lifecycle.StageStores, lifecycle.CloserHook("redis", rc.Close))
		checker.AddCheck("redis", health.NewRedisChecker(client))
	}

	history, err := openHistory(ctx, cfg.Database, log, shutdown, checker)
	if err != nil {
		return nil, err
	}

	wallets, err := newWalletRegistry(ctx, cfg.Wallet, rc, log)
	if err != nil {
		return nil, err
	}

	var (
		storage state.Storage = state.NewMemoryStorage()
		locker  state.Locker  = state.NewMemoryLocker()
	)
	if client != nil {
		storage = state.NewRedisStorage(client, log, cfg.Session.TTL)
		locker = state.NewRedisLocker(client)
	}
	state.RegisterTransitionRecorder(metrics.RecordStateTransition)
	sessions := state.NewStateMachine(storage, locker, log)

	tokens := token.Default()

	solana := chain.New(cfg.Solana.RPCURL, chain.Options{
		Commitment:     rpc.CommitmentType(cfg.Solana.Commitment),
		ConfirmTimeout: cfg.Solana.ConfirmTimeout,
		PollInterval:   cfg.Solana.PollInterval,
		NodeMaxRetries: cfg.Solana.NodeMaxRetries,
		Broadcast: apperrors.RetryPolicy{
			Attempts:        cfg.Solana.BroadcastAttempts,
			InitialInterval: apperrors.InitialBackoff,
			MaxInterval:     apperrors.MaxBackoff,
		},
	}, log)
	checker.AddCheck("solana", health.NewPingChecker("solana rpc", solana))

	aggregator := jupiter.New(jupiter.Config{
		QuoteURL:    cfg.Jupiter.QuoteURL,
		SwapURL:     cfg.Jupiter.SwapURL,
		PriceURL:    cfg.Jupiter.PriceURL,
		SlippageBps: cfg.Jupiter.SlippageBps,
		Timeout:     cfg.Jupiter.Timeout,
	}, nil, log)

	var prices handlers.Prices = aggregator
	if rc != nil && cfg.Jupiter.PriceCacheTTL > 0 {
		prices = pricecache.New(rc, aggregator, cfg.Jupiter.PriceCacheTTL, log)
	}

	texts := i18n.MustLoad("en")
	tr := texts.Translator("en")

	deps := bot.Deps{
		Wallets:        wallets,
		Tokens:         tokens,
		Prices:         prices,
		Balances:       solana,
		Transfers:      transfer.NewExecutor(solana, history, log),
		Swaps:          swap.NewOrchestrator(tokens, wallets, sessions, aggregator, solana, history, log),
		History:        history,
		Texts:          tr,
		IdempotencyTTL: idempotencyTTL,
		ErrHandler:     apperrors.NewHandler(log, sentryEnabled),
	}

	a.wireIdempotency(&deps, client, log)
	a.wireRateLimit(&deps, cfg.RateLimit, client, log)

	var redisOpt asynq.RedisConnOpt
	if cfg.Jobs.Enabled {
		if rc == nil {
			log.Warn("jobs are enabled but redis is not; pending swaps will not be re-checked")
		} else {
			redisOpt = asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
			manager := jobs.NewManager(redisOpt, log)
			shutdown.Register(lifecycle.StageStores, lifecycle.CloserHook("jobs client", manager.Close))
			deps.Tracker = jobs.NewSignatureTracker(manager, cfg.Jobs.CheckDelay, cfg.Jobs.MaxRetry, log)
		}
	}

	b, err := bot.New(ctx, cfg.Bot, deps, log)
	if err != nil {
		return nil, err
	}
	// b.Run stops polling itself when the serve context ends.
	a.bot = b
	checker.AddCheck("telegram", health.NewPingChecker("telegram", b))

	if redisOpt != nil {
		a.worker = jobs.NewWorker(redisOpt, cfg.Jobs.Concurrency, jobs.Queues(), log)
		a.worker.RegisterHandler(jobs.TaskTypeSignatureCheck, jobhandlers.NewSignatureCheckHandler(solana, history, b, tr, log))
		a.worker.RegisterHandler(jobs.TaskTypeHistoryPrune, jobhandlers.NewHistoryPruneHandler(history, log))

		a.scheduler = jobs.NewScheduler(redisOpt, log)
		if err := a.scheduler.RegisterTasks(cfg.Jobs.PruneCron, cfg.Jobs.HistoryRetention); err != nil {
			return nil, fmt.Errorf("register scheduled tasks: %w", err)
		}
	}

	a.loops = append(a.loops,
		state.NewCleaner(sessions, log, cfg.Session.TTL, cfg.Session.CleanupInterval).Run,
		metrics.NewStateCollector(state.CountByState(storage), stateNames(), stateCollectorEvery).Run,
	)

	return a, nil
}

// openHistory connects the optional transaction history and applies pending migrations.
func openHistory(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger, shutdown *lifecycle.Shutdown, checker *health.Checker) (repository.TransactionRepository, error) {
	if cfg.DSN == "" {
		log.Info("database.dsn not set, transaction history disabled")
		return repository.NopTransactionRepository{}, nil
	}

	db, err := database.Open(ctx, cfg.DSN, database.Options{
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	shutdown.Register(lifecycle.StageStores, lifecycle.CloserHook("postgres", db.Close))
	checker.AddCheck("postgres", health.NewDBChecker(db))

	if _, err := database.NewMigrator(db, log).Apply(ctx, migrations.FS, "."); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return repository.NewTransactionRepository(db, log), nil
}

func newWalletRegistry(ctx context.Context, cfg config.WalletConfig, rc *appredis.Client, log *slog.Logger) (*wallet.Registry, error) {
	if cfg.Storage != "redis" {
		log.Warn("wallets are kept in memory and are lost on restart")
		return wallet.NewRegistry(wallet.NewMemoryStore(), log), nil
	}
	if rc == nil {
		return nil, errors.New("wallet.storage is redis but redis is disabled")
	}

	store, err := wallet.NewRedisStore(ctx, rc, cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("open wallet store: %w", err)
	}
	return wallet.NewRegistry(store, log), nil
}

func (a *app) wireIdempotency(deps *bot.Deps, client goredis.UniversalClient, log *slog.Logger) {
	var (
		store  idempotency.Store
		memory *idempotency.MemoryStore
	)
	if client != nil {
		store = idempotency.NewRedisStore(client, log)
	} else {
		memory = idempotency.NewMemoryStore()
		store = memory
	}

	deps.Idempotency = idempotency.NewManager(store, idempotencyLockTTL, log)
	a.loops = append(a.loops, idempotency.NewCleaner(client, memory, log, cleanupInterval).Run)
}

func (a *app) wireRateLimit(deps *bot.Deps, cfg config.RateLimitConfig, client goredis.UniversalClient, log *slog.Logger) {
	memory := ratelimit.NewMemoryLimiter(log)

	var limiter ratelimit.Limiter = memory
	if client != nil {
		limiter = ratelimit.NewAdaptiveLimiter(ratelimit.NewRedisLimiter(client, log), memory, log)
	}

	deps.Limiter = limiter
	deps.Rules = ratelimit.NewRules(cfg)
	a.loops = append(a.loops, ratelimit.NewCleaner(client, memory, longestWindow(cfg), cleanupInterval, log).Run)
}

func longestWindow(cfg config.RateLimitConfig) time.Duration {
	longest := max(cfg.Default.Window, time.Minute)
	for _, rule := range cfg.Rules {
		longest = max(longest, rule.Window)
	}
	return longest
}

func stateNames() []string {
	states := state.States()
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	return names
}
