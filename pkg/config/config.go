package config

import (
	"time"
)

// Config holds runtime configuration for raybot.
type Config struct {
	AppEnv string `mapstructure:"-"`

	App       AppConfig       `mapstructure:"app"`
	Bot       BotConfig       `mapstructure:"bot"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Solana    SolanaConfig    `mapstructure:"solana"`
	Jupiter   JupiterConfig   `mapstructure:"jupiter"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Session   SessionConfig   `mapstructure:"session"`
	Server    ServerConfig    `mapstructure:"server"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BotConfig configures the Telegram transport.
type BotConfig struct {
	Token       string        `mapstructure:"token" validate:"required"`
	Mode        string        `mapstructure:"mode" validate:"oneof=polling webhook"`
	WebhookURL  string        `mapstructure:"webhook_url" validate:"required_if=Mode webhook"`
	Listen      string        `mapstructure:"listen"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db" validate:"gte=0"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// DatabaseConfig points at the optional Postgres transaction history.
// An empty DSN disables history recording.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// SolanaConfig configures the RPC endpoint and transaction submission.
type SolanaConfig struct {
	RPCURL            string        `mapstructure:"rpc_url" validate:"required,url"`
	Commitment        string        `mapstructure:"commitment" validate:"oneof=processed confirmed finalized"`
	ConfirmTimeout    time.Duration `mapstructure:"confirm_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	BroadcastAttempts uint          `mapstructure:"broadcast_attempts"`
	NodeMaxRetries    uint          `mapstructure:"node_max_retries"`
}

// JupiterConfig configures the aggregator endpoints.
type JupiterConfig struct {
	QuoteURL    string        `mapstructure:"quote_url" validate:"required,url"`
	SwapURL     string        `mapstructure:"swap_url" validate:"required,url"`
	PriceURL    string        `mapstructure:"price_url" validate:"required,url"`
	SlippageBps int           `mapstructure:"slippage_bps" validate:"gte=0,lte=10000"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// PriceCacheTTL keeps /price answers in Redis; zero disables the cache.
	PriceCacheTTL time.Duration `mapstructure:"price_cache_ttl"`
}

// WalletConfig selects the key store. Storage "redis" requires an encryption key.
type WalletConfig struct {
	Storage       string `mapstructure:"storage" validate:"oneof=memory redis"`
	EncryptionKey string `mapstructure:"encryption_key" validate:"required_if=Storage redis"`
}

// RateLimitConfig limits commands per user. Rules are keyed by command name
// without the leading slash; anything else falls back to Default.
type RateLimitConfig struct {
	Enabled   bool                     `mapstructure:"enabled"`
	Whitelist []int64                  `mapstructure:"whitelist"`
	Default   RateLimitRule            `mapstructure:"default"`
	Rules     map[string]RateLimitRule `mapstructure:"rules"`
}

type RateLimitRule struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type JobsConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Concurrency      int           `mapstructure:"concurrency"`
	MaxRetry         int           `mapstructure:"max_retry"`
	CheckDelay       time.Duration `mapstructure:"check_delay"`
	HistoryRetention time.Duration `mapstructure:"history_retention"`
	PruneCron        string        `mapstructure:"prune_cron"`
}

// SessionConfig controls eviction of idle swap sessions.
type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v interface{ SetDefault(string, any) }) {
	v.SetDefault("app.name", "raybot")
	v.SetDefault("app.shutdown_timeout", 15*time.Second)

	v.SetDefault("bot.mode", "polling")
	v.SetDefault("bot.listen", ":8443")
	v.SetDefault("bot.poll_timeout", 10*time.Second)
	v.SetDefault("bot.timeout", 30*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.pool_timeout", 4*time.Second)
	v.SetDefault("redis.idle_timeout", 5*time.Minute)
	v.SetDefault("redis.max_retries", 3)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana.commitment", "confirmed")
	v.SetDefault("solana.confirm_timeout", 60*time.Second)
	v.SetDefault("solana.poll_interval", 2*time.Second)
	v.SetDefault("solana.broadcast_attempts", 3)
	v.SetDefault("solana.node_max_retries", 2)

	v.SetDefault("jupiter.quote_url", "https://quote-api.jup.ag/v6/quote")
	v.SetDefault("jupiter.swap_url", "https://quote-api.jup.ag/v6/swap")
	v.SetDefault("jupiter.price_url", "https://price.jup.ag/v6/price")
	v.SetDefault("jupiter.slippage_bps", 50)
	v.SetDefault("jupiter.timeout", 15*time.Second)
	v.SetDefault("jupiter.price_cache_ttl", 15*time.Second)

	v.SetDefault("wallet.storage", "memory")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.default.limit", 30)
	v.SetDefault("ratelimit.default.window", time.Minute)
	v.SetDefault("ratelimit.rules.swap.limit", 10)
	v.SetDefault("ratelimit.rules.swap.window", time.Minute)
	v.SetDefault("ratelimit.rules.send.limit", 5)
	v.SetDefault("ratelimit.rules.send.window", time.Minute)

	v.SetDefault("jobs.concurrency", 5)
	v.SetDefault("jobs.max_retry", 10)
	v.SetDefault("jobs.check_delay", 30*time.Second)
	v.SetDefault("jobs.history_retention", 90*24*time.Hour)
	v.SetDefault("jobs.prune_cron", "@daily")

	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.cleanup_interval", 10*time.Minute)

	v.SetDefault("server.addr", ":8080")
}
