// Package repository persists the transaction history in Postgres.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/raybot/internal/domain"
)

// ErrNotFound is returned when no history row matches.
var ErrNotFound = errors.New("transaction not found")

// TransactionRepository defines persistence operations for submitted transactions.
type TransactionRepository interface {
	Record(ctx context.Context, tx *domain.Transaction) error
	UpdateStatus(ctx context.Context, signature string, status domain.TransactionStatus) error
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Transaction, error)
	CountByUser(ctx context.Context, userID int64) (int, error)
	PruneBefore(ctx context.Context, before time.Time) (int64, error)
}

type transactionRepository struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// NewTransactionRepository creates a SQL-backed transaction repository.
func NewTransactionRepository(db *sql.DB, log *slog.Logger) TransactionRepository {
	if log == nil {
		log = slog.Default()
	}

	return &transactionRepository{
		db:  db,
		log: log,
		now: time.Now,
	}
}

// Record inserts tx and fills its ID and timestamps.
func (r *transactionRepository) Record(ctx context.Context, tx *domain.Transaction) error {
	const query = `
		INSERT INTO transactions (user_id, kind, signature, status, input, output, amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (signature) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	now := r.now().UTC()
	if err := r.db.QueryRowContext(
		ctx,
		query,
		tx.UserID,
		string(tx.Kind),
		tx.Signature,
		string(tx.Status),
		tx.Input,
		tx.Output,
		tx.Amount,
		now,
	).Scan(&tx.ID); err != nil {
		r.log.Error("failed to record transaction",
			slog.Int64("user_id", tx.UserID),
			slog.String("signature", tx.Signature),
			slog.Any("error", err),
		)
		return fmt.Errorf("insert transaction: %w", err)
	}

	tx.CreatedAt = now
	tx.UpdatedAt = now
	return nil
}

// UpdateStatus moves the row for signature to status.
func (r *transactionRepository) UpdateStatus(ctx context.Context, signature string, status domain.TransactionStatus) error {
	const query = `UPDATE transactions SET status = $1, updated_at = $2 WHERE signature = $3`

	res, err := r.db.ExecContext(ctx, query, string(status), r.now().UTC(), signature)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser returns a page of the user's transactions, newest first.
func (r *transactionRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Transaction, error) {
	const query = `
		SELECT id, user_id, kind, signature, status, input, output, amount, created_at, updated_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var (
			tx     domain.Transaction
			kind   string
			status string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &kind, &tx.Signature, &status, &tx.Input, &tx.Output, &tx.Amount, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Kind = domain.TransactionKind(kind)
		tx.Status = domain.TransactionStatus(status)
		out = append(out, tx)
	}

	return out, rows.Err()
}

func (r *transactionRepository) CountByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// PruneBefore deletes rows created before the cutoff and returns how many were removed.
func (r *transactionRepository) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune transactions: %w", err)
	}
	return res.RowsAffected()
}

// NopTransactionRepository discards history; used when no database is configured.
type NopTransactionRepository struct{}

func (NopTransactionRepository) Record(context.Context, *domain.Transaction) error { return nil }

func (NopTransactionRepository) UpdateStatus(context.Context, string, domain.TransactionStatus) error {
	return nil
}

func (NopTransactionRepository) ListByUser(context.Context, int64, int, int) ([]domain.Transaction, error) {
	return nil, nil
}

func (NopTransactionRepository) CountByUser(context.Context, int64) (int, error) { return 0, nil }

func (NopTransactionRepository) PruneBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}
