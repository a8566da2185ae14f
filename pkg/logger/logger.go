// Package logger builds the application's slog pipeline.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogsentry "github.com/samber/slog-sentry/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Proton-105/raybot/pkg/config"
)

// Logger bundles the configured slog.Logger with the handles needed to adjust it at runtime.
type Logger struct {
	*slog.Logger

	level  *slog.LevelVar
	closer io.Closer
}

// New creates a logger writing to stdout and, when cfg.File is set, to a rotated file.
// Errors are additionally forwarded to Sentry when withSentry is true.
func New(cfg config.LogConfig, withSentry bool) *Logger {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level))

	var (
		out    io.Writer = os.Stdout
		closer io.Closer
	)
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closer = rotator
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: level.Level() <= slog.LevelDebug}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	if withSentry {
		handler = newFanout(handler, slogsentry.Option{Level: slog.LevelError, AddSource: true}.NewSentryHandler())
	}

	return &Logger{
		Logger: slog.New(NewMaskingHandler(handler)),
		level:  level,
		closer: closer,
	}
}

// SetLevel changes the minimum level without rebuilding the handler chain.
func (l *Logger) SetLevel(name string) {
	l.level.Set(ParseLevel(name))
}

// Close flushes the rotated log file if one is open.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// ParseLevel maps a config level name to slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
