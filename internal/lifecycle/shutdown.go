package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Shutdown runs hooks in stages. Hooks registered in the same stage run
// concurrently; stages run in ascending order so that, e.g., update intake
// stops before the stores it writes to are closed.
type Shutdown struct {
	mu     sync.Mutex
	stages map[int][]Hook
	log    *slog.Logger
}

// Stages used by the serve command.
const (
	StageIntake  = 0
	StageWorkers = 1
	StageStores  = 2
	StageFlush   = 3
)

func NewShutdown(log *slog.Logger) *Shutdown {
	if log == nil {
		log = slog.Default()
	}
	return &Shutdown{log: log, stages: make(map[int][]Hook)}
}

// Register adds a hook to stage.
func (s *Shutdown) Register(stage int, hook Hook) {
	if hook.Fn == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages[stage] = append(s.stages[stage], hook)
}

// Execute runs every stage and returns the joined hook errors.
func (s *Shutdown) Execute(ctx context.Context) error {
	s.mu.Lock()
	order := make([]int, 0, len(s.stages))
	for stage := range s.stages {
		order = append(order, stage)
	}
	stages := make(map[int][]Hook, len(s.stages))
	for stage, hooks := range s.stages {
		stages[stage] = append([]Hook(nil), hooks...)
	}
	s.mu.Unlock()
	slices.Sort(order)

	start := time.Now()
	s.log.Info("shutdown sequence started", slog.Int("stage_count", len(order)))

	var errs []error
	for _, stage := range order {
		errs = append(errs, s.runStage(ctx, stages[stage])...)
	}

	s.log.Info("shutdown sequence finished", slog.Duration("elapsed", time.Since(start)))
	return errors.Join(errs...)
}

func (s *Shutdown) runStage(ctx context.Context, hooks []Hook) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, h := range hooks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			hookCtx, cancel := hookContext(ctx, h.Timeout)
			defer cancel()

			if err := h.Fn(hookCtx); err != nil {
				s.log.Error("shutdown hook failed", slog.String("hook", h.Name), slog.Any("error", err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
				mu.Unlock()
				return
			}
			s.log.Debug("shutdown hook completed", slog.String("hook", h.Name))
		}()
	}

	wg.Wait()
	return errs
}

func hookContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}
