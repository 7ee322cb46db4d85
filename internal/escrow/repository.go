package escrow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gigbridge/backend/internal/models"
)

// Repository persists escrow records. Every transition is a single
// conditional UPDATE, so the status precondition and the write are one
// atomic step; a caller that loses the race simply affects zero rows.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertHold writes a HELD record for the job. Returns false when a record
// for the job already exists (any status), which callers treat as a replay.
func (r *Repository) InsertHold(ctx context.Context, rec *models.EscrowRecord) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO escrow_records (job_id, amount, payer_id, payee_id, status, held_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO NOTHING
	`, rec.JobID, rec.Amount, rec.PayerID, rec.PayeeID, rec.Status, rec.HeldAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetByJobID returns the record, or nil when the job has no escrow.
func (r *Repository) GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.EscrowRecord, error) {
	var rec models.EscrowRecord
	err := r.pool.QueryRow(ctx, `
		SELECT job_id, amount, payer_id, payee_id, status, held_at, dispute_deadline, disputed_at, dispute_reason, released_at
		FROM escrow_records WHERE job_id = $1
	`, jobID).Scan(&rec.JobID, &rec.Amount, &rec.PayerID, &rec.PayeeID, &rec.Status, &rec.HeldAt, &rec.DisputeDeadline, &rec.DisputedAt, &rec.DisputeReason, &rec.ReleasedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SetDisputeDeadline stamps the dispute window on a HELD record.
func (r *Repository) SetDisputeDeadline(ctx context.Context, jobID uuid.UUID, deadline time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrow_records SET dispute_deadline = $2
		WHERE job_id = $1 AND status = $3
	`, jobID, deadline, models.EscrowStatusHeld)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkDisputed flips HELD -> DISPUTED while the window is still open.
func (r *Repository) MarkDisputed(ctx context.Context, jobID uuid.UUID, reason string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrow_records SET status = $4, disputed_at = $2, dispute_reason = $3
		WHERE job_id = $1 AND status = $5 AND dispute_deadline IS NOT NULL AND dispute_deadline > $2
	`, jobID, at, reason, models.EscrowStatusDisputed, models.EscrowStatusHeld)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkReleased flips HELD -> RELEASED. With requireExpired the flip only
// happens once the dispute deadline has passed (the auto-release path);
// manual approval releases any HELD record.
func (r *Repository) MarkReleased(ctx context.Context, jobID uuid.UUID, at time.Time, requireExpired bool) (bool, error) {
	query := `
		UPDATE escrow_records SET status = $3, released_at = $2
		WHERE job_id = $1 AND status = $4
	`
	if requireExpired {
		query += ` AND dispute_deadline IS NOT NULL AND dispute_deadline <= $2`
	}
	tag, err := r.pool.Exec(ctx, query, jobID, at, models.EscrowStatusReleased, models.EscrowStatusHeld)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkRefunded flips DISPUTED -> REFUNDED (admin-resolved dispute).
func (r *Repository) MarkRefunded(ctx context.Context, jobID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrow_records SET status = $3, released_at = $2
		WHERE job_id = $1 AND status = $4
	`, jobID, at, models.EscrowStatusRefunded, models.EscrowStatusDisputed)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ExpiredHeld lists HELD records whose dispute window has passed; the sweep
// re-drives releases whose timer job was lost.
func (r *Repository) ExpiredHeld(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT job_id FROM escrow_records
		WHERE status = $2 AND dispute_deadline IS NOT NULL AND dispute_deadline <= $1
	`, asOf, models.EscrowStatusHeld)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

// ReleasedWithoutPayout lists RELEASED records whose payout step never
// committed — the half-finished sagas the recovery sweep completes.
func (r *Repository) ReleasedWithoutPayout(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.job_id FROM escrow_records e
		WHERE e.status = $1 AND NOT EXISTS (
			SELECT 1 FROM idempotency_records i WHERE i.key = 'payout:' || e.job_id::text
		)
	`, models.EscrowStatusReleased)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

func scanIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
