package state

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner drops stale sessions on a schedule so abandoned quotes cannot be confirmed days later.
// Sessions mid-execution are left alone.
type Cleaner struct {
	machine  StateMachine
	log      *slog.Logger
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewCleaner constructs a Cleaner instance.
func NewCleaner(machine StateMachine, log *slog.Logger, ttl, interval time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		machine:  machine,
		log:      log,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
	}
}

// Run starts the cleanup loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.machine == nil || c.ttl <= 0 || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("state cleaner stopped", slog.Any("reason", ctx.Err()))
			return
		case <-ticker.C:
			c.Cleanup(ctx)
		}
	}
}

// Cleanup performs one pass and returns the number of sessions removed.
func (c *Cleaner) Cleanup(ctx context.Context) int {
	states, err := c.machine.GetAllStates(ctx)
	if err != nil {
		c.log.Error("state cleaner failed to list sessions", slog.Any("error", err))
		return 0
	}

	removed := 0
	for _, state := range states {
		if ctx.Err() != nil {
			return removed
		}
		if !c.stale(state) {
			continue
		}

		// The listing is a snapshot; the session may have moved on since.
		cleared, err := c.machine.ClearStateIf(ctx, state.UserID, c.stale)
		if err != nil {
			c.log.Error("state cleaner failed to clear state", slog.Int64("user_id", state.UserID), slog.Any("error", err))
			continue
		}
		if !cleared {
			continue
		}
		removed++
		c.log.Info("state session cleared", slog.Int64("user_id", state.UserID), slog.String("state", string(state.CurrentState)))
	}

	return removed
}

func (c *Cleaner) stale(s *UserState) bool {
	return s != nil && s.CurrentState != StateExecuting && c.now().Sub(s.UpdatedAt) > c.ttl
}
