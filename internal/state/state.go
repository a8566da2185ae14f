package state

import (
	"time"

	"github.com/Proton-105/raybot/internal/domain"
)

// State is a swap session state.
type State string

const (
	// StateIdle means the user holds no quote.
	StateIdle State = "idle"
	// StateQuoted means a quote is cached and awaiting confirmation.
	StateQuoted State = "quoted"
	// StateExecuting means a confirmed quote is being built, signed and broadcast.
	StateExecuting State = "executing"
	// StateExecuted means the last swap landed on chain.
	StateExecuted State = "executed"
	// StateFailed means the last swap failed at some stage.
	StateFailed State = "failed"
	// StateCancelled means the user discarded the quote.
	StateCancelled State = "cancelled"
)

// States lists every session state, in FSM order.
func States() []State {
	return []State{StateIdle, StateQuoted, StateExecuting, StateExecuted, StateFailed, StateCancelled}
}

// UserState is the swap session of one Telegram user.
type UserState struct {
	UserID       int64             `json:"user_id"`
	CurrentState State             `json:"current_state"`
	Quote        *domain.SwapQuote `json:"quote,omitempty"`
	Signature    string            `json:"signature,omitempty"`
	// Stage names the step a failed swap stopped at.
	Stage string `json:"stage,omitempty"`
	// Pending marks an executed swap that was broadcast but not seen confirmed.
	Pending   bool      `json:"pending,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasQuote reports whether the session holds a quote that can still be confirmed.
func (s *UserState) HasQuote() bool {
	return s != nil && s.CurrentState == StateQuoted && s.Quote != nil
}

func (s *UserState) clone() *UserState {
	if s == nil {
		return nil
	}

	cp := *s
	if s.Quote != nil {
		q := *s.Quote
		q.Raw = append([]byte(nil), s.Quote.Raw...)
		cp.Quote = &q
	}
	return &cp
}
