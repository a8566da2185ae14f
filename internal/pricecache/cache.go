// Package pricecache keeps recent token prices in Redis so repeated /price
// requests do not hit the price API.
package pricecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	appredis "github.com/Proton-105/raybot/pkg/redis"
)

const keyPrefix = "price:"

// Source fetches a live price.
type Source interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Cache is a read-through price cache.
type Cache struct {
	kv     appredis.KV
	source Source
	ttl    time.Duration
	log    *slog.Logger
}

func New(kv appredis.KV, source Source, ttl time.Duration, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{kv: kv, source: source, ttl: ttl, log: log}
}

// Price returns the cached price for symbol or fetches and stores it.
// Redis failures degrade to a direct fetch.
func (c *Cache) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if c.kv == nil || c.ttl <= 0 {
		return c.source.Price(ctx, symbol)
	}

	key := keyPrefix + symbol
	raw, err := c.kv.Get(ctx, key)
	switch {
	case err == nil:
		if price, perr := decimal.NewFromString(raw); perr == nil {
			return price, nil
		}
		c.log.WarnContext(ctx, "discarding malformed cached price", slog.String("symbol", symbol))
	case !errors.Is(err, appredis.ErrNil):
		c.log.WarnContext(ctx, "price cache read failed", slog.String("symbol", symbol), slog.Any("error", err))
	}

	price, err := c.source.Price(ctx, symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if err := c.kv.Set(ctx, key, price.String(), c.ttl); err != nil {
		c.log.WarnContext(ctx, "price cache write failed", slog.String("symbol", symbol), slog.Any("error", fmt.Errorf("set %s: %w", key, err)))
	}
	return price, nil
}
