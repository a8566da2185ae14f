package wallet

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/Proton-105/raybot/pkg/encrypt"
	appredis "github.com/Proton-105/raybot/pkg/redis"
)

const (
	walletKeyFormat = "wallet:%d"
	crypterKey      = "wallet:crypter"
)

// RedisStore keeps keys in Redis sealed with a password-derived key.
// Entries never expire.
type RedisStore struct {
	kv      appredis.KV
	crypter *encrypt.Crypter
}

// NewRedisStore loads the key-derivation parameters stored in Redis, or creates them on first use,
// and verifies password against them.
func NewRedisStore(ctx context.Context, kv appredis.KV, password string) (*RedisStore, error) {
	crypter, err := loadCrypter(ctx, kv, password)
	if err != nil {
		return nil, err
	}
	return &RedisStore{kv: kv, crypter: crypter}, nil
}

func loadCrypter(ctx context.Context, kv appredis.KV, password string) (*encrypt.Crypter, error) {
	blob, err := kv.Get(ctx, crypterKey)
	switch {
	case err == nil:
		crypter, err := encrypt.Deserialize(password, []byte(blob))
		if err != nil {
			return nil, fmt.Errorf("open wallet crypter: %w", err)
		}
		return crypter, nil
	case !appredis.IsNil(err):
		return nil, fmt.Errorf("load wallet crypter: %w", err)
	}

	crypter, err := encrypt.NewCrypter(password)
	if err != nil {
		return nil, fmt.Errorf("create wallet crypter: %w", err)
	}

	stored, err := kv.SetNX(ctx, crypterKey, crypter.Serialize(), 0)
	if err != nil {
		return nil, fmt.Errorf("save wallet crypter: %w", err)
	}
	if !stored {
		// another instance initialised it first
		crypter.Close()
		return loadCrypter(ctx, kv, password)
	}
	return crypter, nil
}

func (s *RedisStore) Get(ctx context.Context, userID int64) (solana.PrivateKey, error) {
	sealed, err := s.kv.Get(ctx, fmt.Sprintf(walletKeyFormat, userID))
	if err != nil {
		if appredis.IsNil(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	raw, err := s.crypter.Decrypt([]byte(sealed))
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet %d: %w", userID, err)
	}

	key := solana.PrivateKey(raw)
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("stored wallet %d is invalid: %w", userID, err)
	}
	return key, nil
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, userID int64, key solana.PrivateKey) (solana.PrivateKey, bool, error) {
	sealed, err := s.crypter.Encrypt(key)
	if err != nil {
		return nil, false, fmt.Errorf("encrypt wallet: %w", err)
	}

	stored, err := s.kv.SetNX(ctx, fmt.Sprintf(walletKeyFormat, userID), sealed, 0)
	if err != nil {
		return nil, false, fmt.Errorf("save wallet: %w", err)
	}
	if stored {
		return key, true, nil
	}

	existing, err := s.Get(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}
