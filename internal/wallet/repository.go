package wallet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/backend/internal/models"
)

// Repository persists wallets and idempotency records. All balance writes
// are conditional single-statement updates; the schema's CHECK constraints
// are the last line of defense against a negative balance.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, available_balance, pending_balance, currency, created_at, updated_at
		FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.UserID, &w.Available, &w.Pending, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetForUpdate locks the wallet row. Call within a transaction; the lock
// serializes every mutation and idempotency check for the user.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.QueryRow(ctx, `
		SELECT user_id, available_balance, pending_balance, currency, created_at, updated_at
		FROM wallets WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&w.UserID, &w.Available, &w.Pending, &w.Currency, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreditAvailable adds amount to available_balance and returns the new value.
func (r *Repository) CreditAvailable(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE wallets SET available_balance = available_balance + $1, updated_at = now()
		WHERE user_id = $2
		RETURNING available_balance
	`, amount, userID).Scan(&newBalance)
	return newBalance, err
}

// DebitAvailable deducts amount if available_balance covers it. Returns
// pgx.ErrNoRows when the balance is too low.
func (r *Repository) DebitAvailable(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE wallets SET available_balance = available_balance - $1, updated_at = now()
		WHERE user_id = $2 AND available_balance >= $1
		RETURNING available_balance
	`, amount, userID).Scan(&newBalance)
	return newBalance, err
}

// CreditPending adds amount to pending_balance and returns the new value.
func (r *Repository) CreditPending(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE wallets SET pending_balance = pending_balance + $1, updated_at = now()
		WHERE user_id = $2
		RETURNING pending_balance
	`, amount, userID).Scan(&newBalance)
	return newBalance, err
}

// MovePendingToAvailable shifts a cleared payout between buckets. Returns
// pgx.ErrNoRows when pending does not cover the amount.
func (r *Repository) MovePendingToAvailable(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	var newAvailable decimal.Decimal
	err := tx.QueryRow(ctx, `
		UPDATE wallets
		SET pending_balance = pending_balance - $1, available_balance = available_balance + $1, updated_at = now()
		WHERE user_id = $2 AND pending_balance >= $1
		RETURNING available_balance
	`, amount, userID).Scan(&newAvailable)
	return newAvailable, err
}

// FindIdempotency returns the recorded outcome for key, or nil if the key
// has not been seen.
func (r *Repository) FindIdempotency(ctx context.Context, tx pgx.Tx, key string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	err := tx.QueryRow(ctx, `
		SELECT key, user_id, operation, amount, balance_after, payment_no, fee, created_at
		FROM idempotency_records WHERE key = $1
	`, key).Scan(&rec.Key, &rec.UserID, &rec.Operation, &rec.Amount, &rec.BalanceAfter, &rec.PaymentNo, &rec.Fee, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveIdempotency records the outcome of a mutation in the same transaction
// that applied it. The primary key on key makes replays collide.
func (r *Repository) SaveIdempotency(ctx context.Context, tx pgx.Tx, rec *models.IdempotencyRecord) error {
	return tx.QueryRow(ctx, `
		INSERT INTO idempotency_records (key, user_id, operation, amount, balance_after, payment_no, fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, rec.Key, rec.UserID, rec.Operation, rec.Amount, rec.BalanceAfter, rec.PaymentNo, rec.Fee).Scan(&rec.CreatedAt)
}
