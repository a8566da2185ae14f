package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Manager describes the minimal queue operations needed by the application.
type Manager interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		client: asynq.NewClient(redisOpt),
		log:    log,
	}
}

func (m *manager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	info, err := m.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, err
	}

	m.log.DebugContext(ctx, "task enqueued", slog.String("task_type", task.Type()), slog.String("task_id", info.ID), slog.String("queue", info.Queue))
	return info, nil
}

func (m *manager) Close() error {
	return m.client.Close()
}

// SignatureTracker schedules confirmation re-checks for swaps left pending.
type SignatureTracker struct {
	manager  Manager
	delay    time.Duration
	maxRetry int
	log      *slog.Logger
}

func NewSignatureTracker(m Manager, delay time.Duration, maxRetry int, log *slog.Logger) *SignatureTracker {
	if log == nil {
		log = slog.Default()
	}

	return &SignatureTracker{
		manager:  m,
		delay:    delay,
		maxRetry: maxRetry,
		log:      log,
	}
}

// Track enqueues a signature check. A check already queued for the signature is not an error.
func (t *SignatureTracker) Track(ctx context.Context, userID, chatID int64, signature string) error {
	task, err := NewSignatureCheckTask(SignatureCheckPayload{
		UserID:    userID,
		ChatID:    chatID,
		Signature: signature,
	}, t.delay, t.maxRetry)
	if err != nil {
		return err
	}

	if _, err := t.manager.Enqueue(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		t.log.ErrorContext(ctx, "failed to enqueue signature check", slog.String("signature", signature), slog.Any("error", err))
		return err
	}

	t.log.InfoContext(ctx, "signature check scheduled", slog.Int64("user_id", userID), slog.String("signature", signature), slog.Duration("delay", t.delay))
	return nil
}
