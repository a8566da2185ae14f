package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

var (
	// ErrInvalidTransition indicates that a requested FSM transition is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrStateNotFound indicates that a user state record does not exist.
	ErrStateNotFound = errors.New("user state not found")
	// ErrStateLocked indicates that a concurrent operation held the lock for too long.
	ErrStateLocked = errors.New("state is locked, try again later")
)

// TransitionError reports a move the transition table does not allow.
// It matches ErrInvalidTransition with errors.Is.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

var transitionRecorder atomic.Pointer[func(from, to string)]

// RegisterTransitionRecorder sets the observer called after every stored
// transition, typically a metrics counter. nil removes it.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder.Store(nil)
		return
	}
	transitionRecorder.Store(&recorder)
}

func recordTransition(from, to State) {
	if rec := transitionRecorder.Load(); rec != nil {
		(*rec)(string(from), string(to))
	}
}

// StateMachine describes the operations supported by the FSM controller.
type StateMachine interface {
	GetState(ctx context.Context, userID int64) (*UserState, error)
	// TransitionTo moves the session to newState under the user's lock. apply sees the
	// current session and may change its fields or abort the transition by returning an error.
	TransitionTo(ctx context.Context, userID int64, newState State, apply func(current *UserState) error) (*UserState, error)
	ClearState(ctx context.Context, userID int64) error
	// ClearStateIf removes the session only if cond, evaluated under the lock, accepts it.
	ClearStateIf(ctx context.Context, userID int64, cond func(current *UserState) bool) (bool, error)
	GetAllStates(ctx context.Context) ([]*UserState, error)
}

type machine struct {
	storage Storage
	locker  Locker
	log     *slog.Logger
}

// NewStateMachine creates a FSM controller. A nil locker falls back to an in-process one.
func NewStateMachine(storage Storage, locker Locker, log *slog.Logger) StateMachine {
	if log == nil {
		log = slog.Default()
	}
	if locker == nil {
		locker = NewMemoryLocker()
	}

	return &machine{
		storage: storage,
		locker:  locker,
		log:     log,
	}
}

// GetState returns the stored session, or a fresh idle one for unknown users.
func (m *machine) GetState(ctx context.Context, userID int64) (*UserState, error) {
	state, err := m.storage.GetState(ctx, userID)
	if errors.Is(err, ErrStateNotFound) {
		return &UserState{UserID: userID, CurrentState: StateIdle}, nil
	}
	return state, err
}

func (m *machine) GetAllStates(ctx context.Context) ([]*UserState, error) {
	return m.storage.GetAllStates(ctx)
}

func (m *machine) TransitionTo(ctx context.Context, userID int64, newState State, apply func(current *UserState) error) (*UserState, error) {
	unlock, err := m.locker.Lock(ctx, userID)
	if err != nil {
		m.log.WarnContext(ctx, "failed to acquire user state lock", slog.Int64("user_id", userID), slog.Any("error", err))
		return nil, err
	}
	defer unlock()

	current, err := m.GetState(ctx, userID)
	if err != nil {
		return nil, err
	}
	from := current.CurrentState

	if !IsTransitionAllowed(from, newState) {
		m.log.DebugContext(ctx, "invalid state transition", slog.Int64("user_id", userID), slog.String("from", string(from)), slog.String("to", string(newState)))
		return nil, &TransitionError{From: from, To: newState}
	}

	if apply != nil {
		if err := apply(current); err != nil {
			return nil, err
		}
	}
	current.UserID = userID
	current.CurrentState = newState

	if err := m.storage.SetState(ctx, userID, current); err != nil {
		return nil, err
	}

	recordTransition(from, newState)
	return current, nil
}

// ClearState removes the stored session while holding the lock; the user is idle afterwards.
func (m *machine) ClearState(ctx context.Context, userID int64) error {
	_, err := m.ClearStateIf(ctx, userID, nil)
	return err
}

// ClearStateIf re-reads the session under the user's lock and removes it only when
// cond accepts it. A nil cond accepts any session. It reports whether a session was removed.
func (m *machine) ClearStateIf(ctx context.Context, userID int64, cond func(current *UserState) bool) (bool, error) {
	unlock, err := m.locker.Lock(ctx, userID)
	if err != nil {
		return false, err
	}
	defer unlock()

	current, err := m.storage.GetState(ctx, userID)
	if errors.Is(err, ErrStateNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if cond != nil && !cond(current) {
		return false, nil
	}

	if err := m.storage.ClearState(ctx, userID); err != nil {
		return false, err
	}
	recordTransition(current.CurrentState, StateIdle)
	return true, nil
}
