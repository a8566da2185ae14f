package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/raybot/internal/jobs"
)

type Pruner interface {
	PruneBefore(ctx context.Context, before time.Time) (int64, error)
}

// HistoryPruneHandler deletes transaction history older than the task's horizon.
type HistoryPruneHandler struct {
	history Pruner
	log     *slog.Logger
	now     func() time.Time
}

func NewHistoryPruneHandler(history Pruner, log *slog.Logger) *HistoryPruneHandler {
	if log == nil {
		log = slog.Default()
	}

	return &HistoryPruneHandler{history: history, log: log, now: time.Now}
}

func (h *HistoryPruneHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.HistoryPrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.OlderThan <= 0 {
		return fmt.Errorf("non-positive retention %s: %w", payload.OlderThan, asynq.SkipRetry)
	}

	before := h.now().Add(-payload.OlderThan)
	removed, err := h.history.PruneBefore(ctx, before)
	if err != nil {
		return err
	}

	h.log.InfoContext(ctx, "history pruned", slog.Int64("removed", removed), slog.Time("before", before))
	return nil
}
