package timers

import (
	"context"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/shopspring/decimal"
)

// DisputeExpiryArgs fires at the dispute deadline of a job and triggers
// auto-release.
type DisputeExpiryArgs struct {
	JobID uuid.UUID `json:"job_id"`
}

func (DisputeExpiryArgs) Kind() string { return "dispute_expiry" }

// PendingClearanceArgs fires when a payout's clearance delay has elapsed and
// moves it from pending to available.
type PendingClearanceArgs struct {
	JobID   uuid.UUID       `json:"job_id"`
	PayeeID uuid.UUID       `json:"payee_id"`
	Amount  decimal.Decimal `json:"amount"`
}

func (PendingClearanceArgs) Kind() string { return "pending_clearance" }

// SettlementSweepArgs runs periodically and catches work whose timer job was
// lost: expired holds that were never auto-released, and releases whose
// payout never committed.
type SettlementSweepArgs struct{}

func (SettlementSweepArgs) Kind() string { return "settlement_sweep" }

// SettlementService defines the contract the workers need from the
// settlement coordinator. Every method is safe to retry.
type SettlementService interface {
	AutoRelease(ctx context.Context, jobID uuid.UUID) error
	ClearPayout(ctx context.Context, jobID, payeeID uuid.UUID, amount decimal.Decimal) error
	ReleaseExpired(ctx context.Context) (int, error)
	RedrivePayouts(ctx context.Context) (int, error)
}

type DisputeExpiryWorker struct {
	river.WorkerDefaults[DisputeExpiryArgs]
	settlement SettlementService
}

func NewDisputeExpiryWorker(s SettlementService) *DisputeExpiryWorker {
	return &DisputeExpiryWorker{settlement: s}
}

func (w *DisputeExpiryWorker) Work(ctx context.Context, job *river.Job[DisputeExpiryArgs]) error {
	return w.settlement.AutoRelease(ctx, job.Args.JobID)
}

type PendingClearanceWorker struct {
	river.WorkerDefaults[PendingClearanceArgs]
	settlement SettlementService
}

func NewPendingClearanceWorker(s SettlementService) *PendingClearanceWorker {
	return &PendingClearanceWorker{settlement: s}
}

func (w *PendingClearanceWorker) Work(ctx context.Context, job *river.Job[PendingClearanceArgs]) error {
	return w.settlement.ClearPayout(ctx, job.Args.JobID, job.Args.PayeeID, job.Args.Amount)
}

type SettlementSweepWorker struct {
	river.WorkerDefaults[SettlementSweepArgs]
	settlement SettlementService
}

func NewSettlementSweepWorker(s SettlementService) *SettlementSweepWorker {
	return &SettlementSweepWorker{settlement: s}
}

func (w *SettlementSweepWorker) Work(ctx context.Context, job *river.Job[SettlementSweepArgs]) error {
	if _, err := w.settlement.ReleaseExpired(ctx); err != nil {
		return err
	}
	_, err := w.settlement.RedrivePayouts(ctx)
	return err
}
