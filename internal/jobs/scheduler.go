package jobs

import (
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Scheduler enqueues periodic tasks. Every replica may run one; the unique
// option on each periodic task keeps a tick from being enqueued twice.
type Scheduler interface {
	RegisterTasks(pruneCron string, retention time.Duration) error
	Start() error
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	log            *slog.Logger
}

func NewScheduler(redisOpt asynq.RedisConnOpt, log *slog.Logger) Scheduler {
	if log == nil {
		log = slog.Default()
	}

	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
			Location: time.UTC,
			PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
				if err == nil {
					return
				}
				attrs := []any{slog.Any("error", err)}
				if info != nil {
					attrs = append(attrs, slog.String("task_type", info.Type))
				}
				log.Warn("scheduler: enqueue failed", attrs...)
			},
		}),
		log: log,
	}
}

// RegisterTasks schedules history pruning on pruneCron (UTC). A zero retention
// keeps history forever.
func (s *scheduler) RegisterTasks(pruneCron string, retention time.Duration) error {
	if retention <= 0 || pruneCron == "" {
		s.log.Info("scheduler: history pruning disabled")
		return nil
	}

	task, err := NewHistoryPruneTask(retention)
	if err != nil {
		return err
	}

	entryID, err := s.asynqScheduler.Register(pruneCron, task, asynq.Unique(time.Hour))
	if err != nil {
		return err
	}

	s.log.Info("scheduler: registered history prune task",
		slog.String("entry_id", entryID),
		slog.String("cron", pruneCron),
		slog.Duration("retention", retention),
	)
	return nil
}

// Start runs the schedule in the background until Shutdown.
func (s *scheduler) Start() error {
	s.log.Info("scheduler: starting")
	return s.asynqScheduler.Start()
}

func (s *scheduler) Shutdown() {
	s.log.Info("scheduler: shutting down")
	s.asynqScheduler.Shutdown()
}
