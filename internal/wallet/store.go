package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// ErrNotFound is returned by a Store that holds no key for the user.
var ErrNotFound = errors.New("wallet not found")

// Store persists private keys by user id.
type Store interface {
	Get(ctx context.Context, userID int64) (solana.PrivateKey, error)
	// PutIfAbsent stores key unless one already exists and returns the key that is stored
	// afterwards, reporting whether it was the one passed in.
	PutIfAbsent(ctx context.Context, userID int64, key solana.PrivateKey) (solana.PrivateKey, bool, error)
}

// MemoryStore keeps keys in process memory; a restart loses them.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[int64]solana.PrivateKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[int64]solana.PrivateKey)}
}

func (s *MemoryStore) Get(_ context.Context, userID int64) (solana.PrivateKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return key, nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, userID int64, key solana.PrivateKey) (solana.PrivateKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.keys[userID]; ok {
		return existing, false, nil
	}
	s.keys[userID] = key
	return key, true, nil
}
