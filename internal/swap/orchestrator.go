// Package swap runs the quote, confirm and execute workflow for token swaps.
package swap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/Proton-105/raybot/internal/chain"
	"github.com/Proton-105/raybot/internal/domain"
	apperrors "github.com/Proton-105/raybot/internal/errors"
	"github.com/Proton-105/raybot/internal/jupiter"
	"github.com/Proton-105/raybot/internal/state"
	"github.com/Proton-105/raybot/internal/token"
	"github.com/Proton-105/raybot/internal/wallet"
	"github.com/Proton-105/raybot/pkg/metrics"
)

// Execution stages, in order.
const (
	StageBuild     = "build"
	StageDecode    = "decode"
	StageSign      = "sign"
	StageBroadcast = "broadcast"
	StageConfirm   = "confirm"
)

// Aggregator quotes routes and builds swap transactions.
type Aggregator interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error)
	BuildSwap(ctx context.Context, quote json.RawMessage, user solana.PublicKey) (*jupiter.SwapTransaction, error)
}

// Chain broadcasts and confirms transactions.
type Chain interface {
	Send(ctx context.Context, raw []byte, opts chain.SendOptions) (solana.Signature, error)
	AwaitConfirmation(ctx context.Context, sig solana.Signature, lastValidBlockHeight uint64) error
}

// Wallets resolves a user's signing key.
type Wallets interface {
	Lookup(ctx context.Context, userID int64) (*wallet.Wallet, error)
}

// Recorder stores submitted transactions.
type Recorder interface {
	Record(ctx context.Context, tx *domain.Transaction) error
}

// Result describes a swap that reached the network.
type Result struct {
	Quote     *domain.SwapQuote
	Signature solana.Signature
	// Pending is set when the transaction was broadcast but its confirmation is still unknown.
	Pending bool
}

var errNoQuote = errors.New("no quote to confirm")

// Orchestrator owns the per-user swap session.
type Orchestrator struct {
	tokens     *token.Registry
	wallets    Wallets
	sessions   state.StateMachine
	aggregator Aggregator
	chain      Chain
	recorder   Recorder
	log        *slog.Logger
	now        func() time.Time
}

func NewOrchestrator(
	tokens *token.Registry,
	wallets Wallets,
	sessions state.StateMachine,
	aggregator Aggregator,
	c Chain,
	recorder Recorder,
	log *slog.Logger,
) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}

	return &Orchestrator{
		tokens:     tokens,
		wallets:    wallets,
		sessions:   sessions,
		aggregator: aggregator,
		chain:      c,
		recorder:   recorder,
		log:        log.With(slog.String("component", "swap")),
		now:        time.Now,
	}
}

// RequestQuote prices amount of from into to and caches the quote as the user's only one.
// Users without a wallet get NoWallet before anything is quoted. The session is left
// untouched on any failure.
func (o *Orchestrator) RequestQuote(ctx context.Context, userID int64, amount, from, to string) (*domain.SwapQuote, error) {
	if _, err := o.wallets.Lookup(ctx, userID); err != nil {
		return nil, err
	}

	input, err := o.tokens.Lookup(from)
	if err != nil {
		return nil, err
	}
	output, err := o.tokens.Lookup(to)
	if err != nil {
		return nil, err
	}
	if input.Mint.Equals(output.Mint) {
		return nil, apperrors.NewValidationError("Choose two different tokens to swap.")
	}

	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("Invalid amount: %s", amount))
	}
	units, err := input.ToUnits(value)
	if err != nil {
		return nil, err
	}

	q, err := o.aggregator.Quote(ctx, jupiter.QuoteRequest{
		InputMint:  input.Mint,
		OutputMint: output.Mint,
		Amount:     units,
	})
	if err != nil {
		return nil, err
	}

	quote := &domain.SwapQuote{
		InputSymbol:  input.Symbol,
		OutputSymbol: output.Symbol,
		InputMint:    input.Mint,
		OutputMint:   output.Mint,
		InAmount:     units,
		OutAmount:    q.OutAmount,
		FeeAmount:    q.FeeAmount,
		FeeMint:      q.FeeMint,
		SlippageBps:  q.SlippageBps,
		Label:        q.Label,
		Raw:          q.Raw,
		QuotedAt:     o.now().UTC(),
	}

	_, err = o.sessions.TransitionTo(ctx, userID, state.StateQuoted, func(s *state.UserState) error {
		s.Quote = quote
		s.Signature = ""
		s.Stage = ""
		s.Pending = false
		return nil
	})
	if err != nil {
		return nil, sessionError(err)
	}

	o.log.InfoContext(ctx, "swap quoted",
		slog.Int64("user_id", userID),
		slog.String("pair", input.Symbol+"/"+output.Symbol),
		slog.Uint64("in_amount", units),
		slog.Uint64("out_amount", q.OutAmount),
	)

	return quote, nil
}

// Active returns the user's confirmable quote or NoActiveQuote.
func (o *Orchestrator) Active(ctx context.Context, userID int64) (*domain.SwapQuote, error) {
	s, err := o.sessions.GetState(ctx, userID)
	if err != nil {
		return nil, sessionError(err)
	}
	if !s.HasQuote() {
		return nil, apperrors.NewNoActiveQuoteError()
	}
	return s.Quote, nil
}

// Session returns the raw session for display.
func (o *Orchestrator) Session(ctx context.Context, userID int64) (*state.UserState, error) {
	s, err := o.sessions.GetState(ctx, userID)
	if err != nil {
		return nil, sessionError(err)
	}
	return s, nil
}

// Cancel evicts the user's quote. It reports whether a quote was actually dropped;
// cancelling with nothing cached is not an error.
func (o *Orchestrator) Cancel(ctx context.Context, userID int64) (bool, error) {
	_, err := o.sessions.TransitionTo(ctx, userID, state.StateCancelled, func(s *state.UserState) error {
		s.Quote = nil
		return nil
	})
	switch {
	case err == nil:
		metrics.RecordSwap("cancelled", "")
		o.log.InfoContext(ctx, "swap cancelled", slog.Int64("user_id", userID))
		return true, nil
	case errors.Is(err, state.ErrInvalidTransition):
		return false, nil
	default:
		return false, sessionError(err)
	}
}

// Confirm takes the user's quote and executes it. Exactly one of several concurrent
// confirms for the same quote proceeds; the others get NoActiveQuote.
func (o *Orchestrator) Confirm(ctx context.Context, userID int64) (*Result, error) {
	if _, err := o.Active(ctx, userID); err != nil {
		return nil, err
	}
	w, err := o.wallets.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}

	var quote *domain.SwapQuote
	_, err = o.sessions.TransitionTo(ctx, userID, state.StateExecuting, func(s *state.UserState) error {
		if !s.HasQuote() {
			return errNoQuote
		}
		quote = s.Quote
		return nil
	})
	if err != nil {
		if errors.Is(err, state.ErrInvalidTransition) || errors.Is(err, errNoQuote) {
			return nil, apperrors.NewNoActiveQuoteError()
		}
		return nil, sessionError(err)
	}

	o.log.InfoContext(ctx, "swap confirmed", slog.Int64("user_id", userID), slog.String("pair", quote.InputSymbol+"/"+quote.OutputSymbol))

	sig, lastValid, stage, err := o.execute(ctx, w, quote)
	if err != nil {
		return nil, o.fail(ctx, userID, quote, sig, stage, err)
	}

	result := &Result{Quote: quote, Signature: sig}
	status := domain.StatusConfirmed

	confirmErr := o.chain.AwaitConfirmation(ctx, sig, lastValid)
	switch {
	case confirmErr == nil:
	case errors.Is(confirmErr, chain.ErrTransactionFailed), errors.Is(confirmErr, chain.ErrBlockhashExpired):
		return nil, o.fail(ctx, userID, quote, sig, StageConfirm, confirmErr)
	default:
		o.log.WarnContext(ctx, "swap confirmation unknown",
			slog.Int64("user_id", userID),
			slog.String("signature", sig.String()),
			slog.Any("error", confirmErr),
		)
		result.Pending = true
		status = domain.StatusPending
	}

	o.finish(ctx, userID, state.StateExecuted, sig, "", result.Pending)
	o.record(ctx, userID, quote, sig, status)

	outcome := "executed"
	if result.Pending {
		outcome = "pending"
	}
	metrics.RecordSwap(outcome, "")
	o.log.InfoContext(ctx, "swap "+outcome, slog.Int64("user_id", userID), slog.String("signature", sig.String()))

	return result, nil
}

// execute runs build, decode, sign and broadcast. stage names the step that failed.
func (o *Orchestrator) execute(ctx context.Context, w *wallet.Wallet, quote *domain.SwapQuote) (sig solana.Signature, lastValid uint64, stage string, err error) {
	built, err := o.aggregator.BuildSwap(ctx, quote.Raw, w.PublicKey)
	if err != nil {
		return sig, 0, StageBuild, err
	}

	tx, err := solana.TransactionFromBase64(built.Transaction)
	if err != nil {
		return sig, 0, StageDecode, fmt.Errorf("decode swap transaction: %w", err)
	}

	if !tx.Message.IsSigner(w.PublicKey) {
		return sig, 0, StageSign, fmt.Errorf("wallet %s is not a signer of the swap transaction", w.PublicKey)
	}
	if _, err := tx.PartialSign(w.Signer()); err != nil {
		return sig, 0, StageSign, fmt.Errorf("sign swap transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return sig, 0, StageSign, fmt.Errorf("serialize swap transaction: %w", err)
	}

	sig, err = o.chain.Send(ctx, raw, chain.SendOptions{SkipPreflight: true, Retry: true})
	if err != nil {
		return sig, 0, StageBroadcast, err
	}

	return sig, built.LastValidBlockHeight, "", nil
}

func (o *Orchestrator) fail(ctx context.Context, userID int64, quote *domain.SwapQuote, sig solana.Signature, stage string, cause error) error {
	o.finish(ctx, userID, state.StateFailed, sig, stage, false)
	if !sig.IsZero() {
		o.record(ctx, userID, quote, sig, domain.StatusFailed)
	}
	metrics.RecordSwap("failed", stage)

	o.log.ErrorContext(ctx, "swap failed",
		slog.Int64("user_id", userID),
		slog.String("stage", stage),
		slog.Any("error", cause),
	)

	appErr := apperrors.NewSwapExecutionError(stage, userMessage(stage, sig, cause), cause)
	if !sig.IsZero() {
		appErr = appErr.WithDetail("signature", sig.String())
	}
	return appErr
}

func (o *Orchestrator) finish(ctx context.Context, userID int64, to state.State, sig solana.Signature, stage string, pending bool) {
	_, err := o.sessions.TransitionTo(ctx, userID, to, func(s *state.UserState) error {
		s.Quote = nil
		s.Stage = stage
		s.Pending = pending
		if !sig.IsZero() {
			s.Signature = sig.String()
		}
		return nil
	})
	if err != nil {
		o.log.ErrorContext(ctx, "failed to close swap session",
			slog.Int64("user_id", userID),
			slog.String("state", string(to)),
			slog.Any("error", err),
		)
	}
}

func (o *Orchestrator) record(ctx context.Context, userID int64, quote *domain.SwapQuote, sig solana.Signature, status domain.TransactionStatus) {
	if o.recorder == nil {
		return
	}

	input, _ := o.tokens.Lookup(quote.InputSymbol)
	err := o.recorder.Record(ctx, &domain.Transaction{
		UserID:    userID,
		Kind:      domain.KindSwap,
		Signature: sig.String(),
		Status:    status,
		Input:     quote.InputSymbol,
		Output:    quote.OutputSymbol,
		Amount:    input.FromUnits(quote.InAmount).String(),
	})
	if err != nil {
		o.log.WarnContext(ctx, "failed to record swap", slog.String("signature", sig.String()), slog.Any("error", err))
	}
}

func userMessage(stage string, sig solana.Signature, cause error) string {
	switch {
	case stage == StageBroadcast && apperrors.IsRetryable(cause):
		return "⚠️ Failed to send the swap transaction. Please try again."
	case stage == StageConfirm && errors.Is(cause, chain.ErrTransactionFailed):
		return fmt.Sprintf("⚠️ Swap transaction %s failed on-chain.", sig)
	case stage == StageConfirm && errors.Is(cause, chain.ErrBlockhashExpired):
		return fmt.Sprintf("⚠️ Swap transaction %s expired before confirmation. Please try again.", sig)
	case stage == StageBuild || stage == StageDecode:
		return "⚠️ Could not build the swap transaction. Please request a new quote."
	default:
		return ""
	}
}

func sessionError(err error) error {
	if errors.Is(err, state.ErrStateLocked) || errors.Is(err, state.ErrInvalidTransition) {
		return apperrors.NewStateError(err.Error())
	}
	return apperrors.NewInternalError(err)
}
