package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	apperrors "github.com/Proton-105/raybot/internal/errors"
)

// Registry maps chat users to wallets, creating them lazily.
type Registry struct {
	store  Store
	log    *slog.Logger
	newKey func() (solana.PrivateKey, error)
}

func NewRegistry(store Store, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	return &Registry{
		store:  store,
		log:    log,
		newKey: solana.NewRandomPrivateKey,
	}
}

// GetOrCreate returns the user's wallet, generating one on first use.
// created reports whether this call generated the key.
func (r *Registry) GetOrCreate(ctx context.Context, userID int64) (w *Wallet, created bool, err error) {
	key, err := r.store.Get(ctx, userID)
	if err == nil {
		return newWallet(userID, key), false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, apperrors.NewInternalError(err)
	}

	fresh, err := r.newKey()
	if err != nil {
		return nil, false, apperrors.NewInternalError(fmt.Errorf("generate key: %w", err))
	}

	key, created, err = r.store.PutIfAbsent(ctx, userID, fresh)
	if err != nil {
		return nil, false, apperrors.NewInternalError(err)
	}

	w = newWallet(userID, key)
	if created {
		r.log.InfoContext(ctx, "wallet created",
			slog.Int64("user_id", userID),
			slog.String("public_key", w.Address()),
		)
	}
	return w, created, nil
}

// Lookup returns the user's wallet or a NoWallet error; it never creates one.
func (r *Registry) Lookup(ctx context.Context, userID int64) (*Wallet, error) {
	key, err := r.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.NewNoWalletError()
		}
		return nil, apperrors.NewInternalError(err)
	}
	return newWallet(userID, key), nil
}
