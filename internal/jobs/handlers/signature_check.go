// Package handlers processes asynq tasks.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/hibiken/asynq"

	"github.com/Proton-105/raybot/internal/chain"
	"github.com/Proton-105/raybot/internal/domain"
	"github.com/Proton-105/raybot/internal/i18n"
	"github.com/Proton-105/raybot/internal/jobs"
	"github.com/Proton-105/raybot/pkg/metrics"
)

// errStillPending makes asynq retry the check later.
var errStillPending = errors.New("signature not yet confirmed")

type StatusChecker interface {
	SignatureStatus(ctx context.Context, sig solana.Signature) (chain.Status, error)
}

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, signature string, status domain.TransactionStatus) error
}

// Notifier delivers a text message to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// SignatureCheckHandler resolves swaps whose confirmation timed out in the foreground.
type SignatureCheckHandler struct {
	chain    StatusChecker
	history  StatusUpdater
	notifier Notifier
	texts    i18n.Translator
	log      *slog.Logger
}

func NewSignatureCheckHandler(c StatusChecker, history StatusUpdater, notifier Notifier, texts i18n.Translator, log *slog.Logger) *SignatureCheckHandler {
	if log == nil {
		log = slog.Default()
	}

	return &SignatureCheckHandler{
		chain:    c,
		history:  history,
		notifier: notifier,
		texts:    texts,
		log:      log,
	}
}

func (h *SignatureCheckHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.SignatureCheckPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "signature check: failed to decode payload", slog.String("task_type", t.Type()), slog.Any("error", err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	sig, err := solana.SignatureFromBase58(payload.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature %q: %v: %w", payload.Signature, err, asynq.SkipRetry)
	}

	status, err := h.chain.SignatureStatus(ctx, sig)
	if err != nil {
		return err
	}

	var (
		final domain.TransactionStatus
		key   string
	)
	switch status {
	case chain.StatusConfirmed:
		final, key = domain.StatusConfirmed, "swap.confirmed"
	case chain.StatusFailed:
		final, key = domain.StatusFailed, "swap.failed_onchain"
	default:
		h.log.DebugContext(ctx, "signature check: still pending", slog.String("signature", payload.Signature), slog.String("status", string(status)))
		return errStillPending
	}

	if h.history != nil {
		if err := h.history.UpdateStatus(ctx, payload.Signature, final); err != nil {
			h.log.WarnContext(ctx, "signature check: failed to update history", slog.String("signature", payload.Signature), slog.Any("error", err))
		}
	}
	metrics.RecordSwap(string(final), "background")

	h.log.InfoContext(ctx, "signature check: resolved",
		slog.Int64("user_id", payload.UserID),
		slog.String("signature", payload.Signature),
		slog.String("status", string(final)),
	)

	if h.notifier == nil {
		return nil
	}
	if err := h.notifier.Notify(ctx, payload.ChatID, h.texts.F(key, payload.Signature)); err != nil {
		// the status is settled; a retry would only repeat the lookup
		h.log.WarnContext(ctx, "signature check: notify failed", slog.Int64("chat_id", payload.ChatID), slog.Any("error", err))
	}
	return nil
}
