package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigbridge/backend/internal/models"
)

// Repository is the append-only payment ledger. There is deliberately no
// update or delete method; entries are immutable once written.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const insertEntry = `
	INSERT INTO ledger_entries (id, event_type, payment_id, gateway, job_id, amount, currency, status, bill_no, transaction_no, user_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING created_at
`

// Append writes one entry. The id is generated here so callers cannot
// accidentally overwrite an existing row.
func (r *Repository) Append(ctx context.Context, e *models.LedgerEntry) error {
	e.ID = uuid.New()
	return r.pool.QueryRow(ctx, insertEntry,
		e.ID, e.EventType, e.PaymentID, e.Gateway, e.JobID, e.Amount, e.Currency, e.Status, e.BillNo, e.TransactionNo, e.UserID,
	).Scan(&e.CreatedAt)
}

// AppendTx writes one entry inside the given transaction.
func (r *Repository) AppendTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	e.ID = uuid.New()
	return tx.QueryRow(ctx, insertEntry,
		e.ID, e.EventType, e.PaymentID, e.Gateway, e.JobID, e.Amount, e.Currency, e.Status, e.BillNo, e.TransactionNo, e.UserID,
	).Scan(&e.CreatedAt)
}

const selectEntry = `
	SELECT id, event_type, payment_id, gateway, job_id, amount, currency, status, bill_no, transaction_no, user_id, created_at
	FROM ledger_entries
`

// EntriesByDate returns all entries created on the given UTC calendar date.
func (r *Repository) EntriesByDate(ctx context.Context, date time.Time) ([]*models.LedgerEntry, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	rows, err := r.pool.Query(ctx, selectEntry+`WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at`, start, end)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// EntriesByJob returns all entries stamped with the given job id.
func (r *Repository) EntriesByJob(ctx context.Context, jobID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, selectEntry+`WHERE job_id = $1 ORDER BY created_at`, jobID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]*models.LedgerEntry, error) {
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.EventType, &e.PaymentID, &e.Gateway, &e.JobID, &e.Amount, &e.Currency, &e.Status, &e.BillNo, &e.TransactionNo, &e.UserID, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
