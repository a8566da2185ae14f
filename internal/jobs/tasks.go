// Package jobs runs background work on asynq: signature re-checks and history pruning.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeSignatureCheck = "signature:check"
	TaskTypeHistoryPrune   = "history:prune"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues is the weighted queue set the worker consumes.
func Queues() map[string]int {
	return map[string]int{
		QueueCritical: 6,
		QueueDefault:  3,
		QueueLow:      1,
	}
}

// SignatureCheckPayload identifies a broadcast swap whose confirmation is still unknown.
type SignatureCheckPayload struct {
	UserID    int64  `json:"user_id"`
	ChatID    int64  `json:"chat_id"`
	Signature string `json:"signature"`
}

type HistoryPrunePayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewSignatureCheckTask builds a check that runs after delay. The task id is derived from the
// signature so the same transaction is never tracked twice.
func NewSignatureCheckTask(p SignatureCheckPayload, delay time.Duration, maxRetry int) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	opts := []asynq.Option{
		asynq.Queue(QueueCritical),
		asynq.TaskID(TaskTypeSignatureCheck + ":" + p.Signature),
		asynq.ProcessIn(delay),
	}
	if maxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(maxRetry))
	}

	return asynq.NewTask(TaskTypeSignatureCheck, payload, opts...), nil
}

func NewHistoryPruneTask(olderThan time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(HistoryPrunePayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeHistoryPrune, payload, asynq.Queue(QueueLow)), nil
}
