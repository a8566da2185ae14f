package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/Proton-105/raybot/internal/lifecycle"
	"github.com/Proton-105/raybot/internal/middleware"
	"github.com/Proton-105/raybot/pkg/config"
	"github.com/Proton-105/raybot/pkg/graceful"
	"github.com/Proton-105/raybot/pkg/logger"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot, background worker and ops HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, v, err := root.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, v)
		},
	}
}

func serve(parent context.Context, cfg *config.Config, v *viper.Viper) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sentryEnabled, err := initSentry(cfg)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log, sentryEnabled)
	slog.SetDefault(log.Logger)
	log.Info("starting raybot",
		slog.String("env", cfg.AppEnv),
		slog.String("version", version),
		slog.String("bot_mode", cfg.Bot.Mode),
		slog.Bool("redis", cfg.Redis.Enabled),
		slog.Bool("history", cfg.Database.DSN != ""),
	)

	shutdown := lifecycle.NewShutdown(log.Logger)
	shutdown.Register(lifecycle.StageFlush, lifecycle.CloserHook("logger", log.Close))
	if sentryEnabled {
		shutdown.Register(lifecycle.StageFlush, lifecycle.Hook{Name: "sentry", Fn: func(context.Context) error {
			sentry.Flush(2 * time.Second)
			return nil
		}})
	}

	a, err := build(ctx, cfg, log.Logger, sentryEnabled, shutdown)
	if err != nil {
		log.Error("failed to initialize", slog.Any("error", err))
		_ = runShutdown(cfg, shutdown)
		return err
	}

	shutdown.Register(lifecycle.StageIntake, lifecycle.Hook{Name: "readiness", Fn: func(context.Context) error {
		a.probes.MarkNotReady()
		return nil
	}})
	server := graceful.NewServer(cfg.Server.Addr, opsHandler(a.probes, log.Logger), cfg.App.ShutdownTimeout, log.Logger)

	if a.worker != nil {
		if err := a.worker.Start(); err != nil {
			_ = runShutdown(cfg, shutdown)
			return fmt.Errorf("start jobs worker: %w", err)
		}
		shutdown.Register(lifecycle.StageWorkers, lifecycle.Hook{Name: "jobs worker", Fn: func(context.Context) error {
			a.worker.Shutdown()
			return nil
		}})
	}
	if a.scheduler != nil {
		if err := a.scheduler.Start(); err != nil {
			_ = runShutdown(cfg, shutdown)
			return fmt.Errorf("start scheduler: %w", err)
		}
		shutdown.Register(lifecycle.StageWorkers, lifecycle.Hook{Name: "scheduler", Fn: func(context.Context) error {
			a.scheduler.Shutdown()
			return nil
		}})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.bot.Run(gctx) })
	g.Go(func() error { return server.ListenAndServe(gctx) })
	for _, loop := range a.loops {
		g.Go(func() error {
			loop(gctx)
			return nil
		})
	}

	if v != nil {
		config.Watch(gctx, v, log.Logger, func(next *config.Config) {
			log.SetLevel(next.Log.Level)
		})
	}

	a.probes.MarkReady()
	<-gctx.Done()
	log.Info("shutting down", slog.Any("reason", context.Cause(gctx)))

	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	return errors.Join(runErr, runShutdown(cfg, shutdown))
}

func runShutdown(cfg *config.Config, shutdown *lifecycle.Shutdown) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	return shutdown.Execute(ctx)
}

func initSentry(cfg *config.Config) (bool, error) {
	if cfg.Sentry.DSN == "" {
		return false, nil
	}

	env := cfg.Sentry.Environment
	if env == "" {
		env = cfg.AppEnv
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.DSN,
		Environment: env,
		SampleRate:  cfg.Sentry.SampleRate,
		Release:     "raybot@" + version,
	})
	if err != nil {
		return false, fmt.Errorf("init sentry: %w", err)
	}
	return true, nil
}

func opsHandler(probes *lifecycle.Probes, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(logger.Middleware)
	r.Use(middleware.HTTPLogging(log))
	r.Use(chimw.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/healthz", probes.HealthHandler().ServeHTTP)
	r.Get("/livez", probes.LivenessHandler().ServeHTTP)
	r.Get("/readyz", probes.ReadinessHandler().ServeHTTP)

	return r
}
