package domain

import "time"

type TransactionKind string

const (
	KindTransfer TransactionKind = "transfer"
	KindSwap     TransactionKind = "swap"
)

type TransactionStatus string

const (
	StatusSubmitted TransactionStatus = "submitted"
	StatusConfirmed TransactionStatus = "confirmed"
	StatusPending   TransactionStatus = "pending"
	StatusFailed    TransactionStatus = "failed"
)

// Transaction is one submitted transfer or swap in a user's history.
type Transaction struct {
	ID        int64
	UserID    int64
	Kind      TransactionKind
	Signature string
	Status    TransactionStatus
	Input     string
	Output    string
	Amount    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
