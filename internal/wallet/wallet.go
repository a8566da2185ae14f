// Package wallet owns the custodial keypair of every chat user.
package wallet

import (
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Wallet is a user's signing key. It is the only signer the bot uses for that user.
type Wallet struct {
	UserID     int64
	PublicKey  solana.PublicKey
	PrivateKey solana.PrivateKey
}

func newWallet(userID int64, key solana.PrivateKey) *Wallet {
	return &Wallet{
		UserID:     userID,
		PublicKey:  key.PublicKey(),
		PrivateKey: key,
	}
}

// Address is the base58 public key.
func (w *Wallet) Address() string {
	return w.PublicKey.String()
}

// Signer returns the key getter expected by solana.Transaction signing methods.
// It only answers for this wallet's public key.
func (w *Wallet) Signer() func(solana.PublicKey) *solana.PrivateKey {
	return func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.PublicKey) {
			return &w.PrivateKey
		}
		return nil
	}
}

// Export encodes the 64-byte secret key in base58, the format wallet apps import.
func (w *Wallet) Export() string {
	return base58.Encode(w.PrivateKey)
}
