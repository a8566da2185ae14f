// Package state keeps per-user swap sessions and guards their transitions.
package state

import (
	"context"
	"sync"
	"time"
)

// Storage defines the persistence contract for swap sessions.
type Storage interface {
	// GetState returns the current state for the specified user or ErrStateNotFound.
	GetState(ctx context.Context, userID int64) (*UserState, error)
	// SetState saves the provided state for the specified user.
	SetState(ctx context.Context, userID int64, state *UserState) error
	// ClearState removes the state for the specified user.
	ClearState(ctx context.Context, userID int64) error
	// GetAllStates returns every stored session.
	GetAllStates(ctx context.Context) ([]*UserState, error)
}

// MemoryStorage keeps sessions in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	states map[int64]*UserState
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{states: make(map[int64]*UserState)}
}

func (s *MemoryStorage) GetState(_ context.Context, userID int64) (*UserState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[userID]
	if !ok {
		return nil, ErrStateNotFound
	}
	return state.clone(), nil
}

func (s *MemoryStorage) SetState(_ context.Context, userID int64, state *UserState) error {
	state.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = state.clone()
	return nil
}

func (s *MemoryStorage) ClearState(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}

func (s *MemoryStorage) GetAllStates(_ context.Context) ([]*UserState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*UserState, 0, len(s.states))
	for _, state := range s.states {
		result = append(result, state.clone())
	}
	return result, nil
}

// CountByState returns a counter suitable for the session gauge.
func CountByState(storage Storage) func(ctx context.Context) (map[string]int, error) {
	return func(ctx context.Context) (map[string]int, error) {
		states, err := storage.GetAllStates(ctx)
		if err != nil {
			return nil, err
		}

		counts := make(map[string]int, len(States()))
		for _, s := range states {
			counts[string(s.CurrentState)]++
		}
		return counts, nil
	}
}
