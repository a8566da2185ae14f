// Package token holds the static allow-list of tradable tokens.
package token

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	apperrors "github.com/Proton-105/raybot/internal/errors"
)

// Token is one supported fungible token.
type Token struct {
	Symbol   string
	Mint     solana.PublicKey
	Decimals int32
}

// ToUnits converts a display amount into the token's smallest unit, truncating excess precision.
// The result must be a positive amount that fits in a uint64.
func (t Token) ToUnits(amount decimal.Decimal) (uint64, error) {
	units := amount.Shift(t.Decimals).BigInt()
	if units.Sign() <= 0 {
		return 0, apperrors.NewValidationError(fmt.Sprintf("Amount must be at least %s %s.", t.FromUnits(1), t.Symbol))
	}
	if !units.IsUint64() {
		return 0, apperrors.NewValidationError("Amount is too large.")
	}
	return units.Uint64(), nil
}

// FromUnits converts smallest units into a display amount.
func (t Token) FromUnits(units uint64) decimal.Decimal {
	return decimal.NewFromUint64(units).Shift(-t.Decimals)
}

var (
	SOL = Token{
		Symbol:   "SOL",
		Mint:     solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112"),
		Decimals: 9,
	}
	USDC = Token{
		Symbol:   "USDC",
		Mint:     solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
		Decimals: 6,
	}
	USDT = Token{
		Symbol:   "USDT",
		Mint:     solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"),
		Decimals: 6,
	}
)

// Registry resolves symbols and mints. It is immutable after construction.
type Registry struct {
	bySymbol map[string]Token
	byMint   map[solana.PublicKey]Token
	symbols  []string
}

// NewRegistry indexes tokens; duplicate symbols or mints are rejected.
func NewRegistry(tokens ...Token) (*Registry, error) {
	r := &Registry{
		bySymbol: make(map[string]Token, len(tokens)),
		byMint:   make(map[solana.PublicKey]Token, len(tokens)),
	}

	for _, t := range tokens {
		symbol := strings.ToUpper(t.Symbol)
		if _, ok := r.bySymbol[symbol]; ok {
			return nil, fmt.Errorf("duplicate token symbol %s", symbol)
		}
		if _, ok := r.byMint[t.Mint]; ok {
			return nil, fmt.Errorf("duplicate token mint %s", t.Mint)
		}
		t.Symbol = symbol
		r.bySymbol[symbol] = t
		r.byMint[t.Mint] = t
		r.symbols = append(r.symbols, symbol)
	}
	sort.Strings(r.symbols)

	return r, nil
}

// Default returns the built-in SOL/USDC/USDT table.
func Default() *Registry {
	r, err := NewRegistry(SOL, USDC, USDT)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup resolves symbol case-insensitively; unknown symbols yield an UnsupportedToken error.
func (r *Registry) Lookup(symbol string) (Token, error) {
	t, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Token{}, apperrors.NewUnsupportedTokenError(symbol, r.symbols)
	}
	return t, nil
}

// ByMint finds the token for mint.
func (r *Registry) ByMint(mint solana.PublicKey) (Token, bool) {
	t, ok := r.byMint[mint]
	return t, ok
}

// Symbols lists supported symbols in sorted order.
func (r *Registry) Symbols() []string {
	return append([]string(nil), r.symbols...)
}
