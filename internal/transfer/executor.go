// Package transfer sends native SOL from a user's wallet.
package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/shopspring/decimal"

	"github.com/Proton-105/raybot/internal/chain"
	"github.com/Proton-105/raybot/internal/domain"
	apperrors "github.com/Proton-105/raybot/internal/errors"
	"github.com/Proton-105/raybot/internal/token"
	"github.com/Proton-105/raybot/internal/wallet"
	"github.com/Proton-105/raybot/pkg/metrics"
)

// Chain is the part of chain.Client a transfer needs.
type Chain interface {
	LatestBlockhash(ctx context.Context) (chain.Blockhash, error)
	Send(ctx context.Context, raw []byte, opts chain.SendOptions) (solana.Signature, error)
}

// Recorder stores submitted transactions.
type Recorder interface {
	Record(ctx context.Context, tx *domain.Transaction) error
}

// Executor builds, signs and submits single-instruction SOL transfers.
type Executor struct {
	chain    Chain
	recorder Recorder
	log      *slog.Logger
}

func NewExecutor(c Chain, recorder Recorder, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}

	return &Executor{
		chain:    c,
		recorder: recorder,
		log:      log.With(slog.String("component", "transfer")),
	}
}

// Send moves amount SOL (display units) from w to recipient and returns the signature.
// Input is validated before any network call. Submission failures are not retried.
func (e *Executor) Send(ctx context.Context, w *wallet.Wallet, recipient, amount string) (solana.Signature, error) {
	to, err := ParseRecipient(recipient)
	if err != nil {
		return solana.Signature{}, err
	}

	lamports, err := ParseAmount(amount)
	if err != nil {
		return solana.Signature{}, err
	}

	sig, err := e.submit(ctx, w, to, lamports)
	if err != nil {
		metrics.RecordTransfer("failed")
		return solana.Signature{}, apperrors.NewSubmissionError(err)
	}
	metrics.RecordTransfer("submitted")

	e.log.InfoContext(ctx, "transfer submitted",
		slog.Int64("user_id", w.UserID),
		slog.String("recipient", to.String()),
		slog.Uint64("lamports", lamports),
		slog.String("signature", sig.String()),
	)

	if e.recorder != nil {
		record := &domain.Transaction{
			UserID:    w.UserID,
			Kind:      domain.KindTransfer,
			Signature: sig.String(),
			Status:    domain.StatusSubmitted,
			Input:     token.SOL.Symbol,
			Output:    to.String(),
			Amount:    token.SOL.FromUnits(lamports).String(),
		}
		if err := e.recorder.Record(ctx, record); err != nil {
			e.log.WarnContext(ctx, "failed to record transfer", slog.String("signature", sig.String()), slog.Any("error", err))
		}
	}

	return sig, nil
}

func (e *Executor) submit(ctx context.Context, w *wallet.Wallet, to solana.PublicKey, lamports uint64) (solana.Signature, error) {
	recent, err := e.chain.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	instruction := system.NewTransferInstruction(lamports, w.PublicKey, to).Build()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		recent.Hash,
		solana.TransactionPayer(w.PublicKey),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}

	if _, err := tx.Sign(w.Signer()); err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("serialize transaction: %w", err)
	}

	return e.chain.Send(ctx, raw, chain.SendOptions{})
}

// ParseRecipient validates a base58 account address.
func ParseRecipient(address string) (solana.PublicKey, error) {
	address = strings.TrimSpace(address)
	to, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, apperrors.NewInvalidRecipientError(address, err)
	}
	return to, nil
}

// ParseAmount converts a SOL amount such as "1.5" into lamports.
func ParseAmount(amount string) (uint64, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, apperrors.NewValidationError(fmt.Sprintf("Invalid amount: %s", amount))
	}
	return token.SOL.ToUnits(value)
}
