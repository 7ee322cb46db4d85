package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/backend/internal/escrow"
	"github.com/gigbridge/backend/internal/models"
	"github.com/gigbridge/backend/internal/money"
)

// DefaultClearanceDelay is how long a released payout sits in the pending
// balance before it becomes withdrawable.
const DefaultClearanceDelay = 24 * time.Hour

// EscrowService is the escrow state machine the coordinator drives.
type EscrowService interface {
	Hold(ctx context.Context, jobID uuid.UUID, amount decimal.Decimal, payerID, payeeID uuid.UUID) error
	StartDisputeWindow(ctx context.Context, jobID uuid.UUID) (time.Time, error)
	FileDispute(ctx context.Context, jobID uuid.UUID, reason string) error
	TryRelease(ctx context.Context, jobID uuid.UUID, requireExpired bool) (*models.EscrowRecord, bool, error)
	TryRefund(ctx context.Context, jobID uuid.UUID) (*models.EscrowRecord, bool, error)
	GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.EscrowRecord, error)
	ExpiredHeld(ctx context.Context) ([]uuid.UUID, error)
	ReleasedWithoutPayout(ctx context.Context) ([]uuid.UUID, error)
}

// WalletService is the idempotent balance mutator. Each call applies at
// most once per key and appends the given ledger entry atomically with the
// balance change.
type WalletService interface {
	DebitAvailableWithKey(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, key, op string, entry *models.LedgerEntry) (bool, error)
	CreditAvailableWithKey(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, key, op string, entry *models.LedgerEntry) (bool, error)
	CreditPendingWithKey(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, key, op string, entry *models.LedgerEntry) (bool, error)
	ClearPending(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, key string) (bool, error)
}

// ReferenceSource issues bill/transaction/payment numbers.
type ReferenceSource interface {
	Generate(ctx context.Context, kind string) (string, error)
}

// Scheduler enqueues the durable timers backing auto-release and payout
// clearance. Implementations insert River jobs.
type Scheduler interface {
	ScheduleDisputeExpiry(ctx context.Context, jobID uuid.UUID, at time.Time) error
	SchedulePendingClearance(ctx context.Context, jobID, payeeID uuid.UUID, amount decimal.Decimal, at time.Time) error
}

// Coordinator orchestrates escrow, ledger and wallet updates for a single
// job event as a retry-safe saga. No transaction spans all three records;
// instead every step is idempotent (keyed by job id + event type), so the
// saga can be re-driven from any point without double effect.
type Coordinator struct {
	Escrow         EscrowService
	Wallets        WalletService
	Refs           ReferenceSource
	Timers         Scheduler
	ClearanceDelay time.Duration
	Log            *slog.Logger

	now func() time.Time
}

func NewCoordinator(esc EscrowService, wallets WalletService, refs ReferenceSource, timers Scheduler, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		Escrow:         esc,
		Wallets:        wallets,
		Refs:           refs,
		Timers:         timers,
		ClearanceDelay: DefaultClearanceDelay,
		Log:            log,
		now:            time.Now,
	}
}

// HoldForJob debits the payer and places the escrow hold. The debit carries
// the hold idempotency key, so a retry after a crash between the two steps
// skips the debit and completes the escrow record.
func (c *Coordinator) HoldForJob(ctx context.Context, jobID uuid.UUID, amount decimal.Decimal, payerID, payeeID uuid.UUID) error {
	amount = money.Round2(amount)
	if !amount.IsPositive() || jobID == uuid.Nil || payerID == payeeID {
		return escrow.ErrInvalidHold
	}

	entry, err := c.jobEntry(ctx, jobID, payerID, amount, models.LedgerEventCreated, models.LedgerStatusSuccess)
	if err != nil {
		return err
	}
	if _, err := c.Wallets.DebitAvailableWithKey(ctx, payerID, amount, holdKey(jobID), models.OpEscrowHold, entry); err != nil {
		return err
	}
	return c.Escrow.Hold(ctx, jobID, amount, payerID, payeeID)
}

// SubmitWork starts the dispute window and schedules the durable expiry
// timer. Returns the deadline.
func (c *Coordinator) SubmitWork(ctx context.Context, jobID uuid.UUID) (time.Time, error) {
	deadline, err := c.Escrow.StartDisputeWindow(ctx, jobID)
	if err != nil {
		return time.Time{}, err
	}
	if err := c.Timers.ScheduleDisputeExpiry(ctx, jobID, deadline); err != nil {
		return time.Time{}, fmt.Errorf("schedule dispute expiry: %w", err)
	}
	return deadline, nil
}

// FileDispute freezes any pending auto-release for the job.
func (c *Coordinator) FileDispute(ctx context.Context, jobID uuid.UUID, reason string) error {
	return c.Escrow.FileDispute(ctx, jobID, reason)
}

// Approve is the manual release path: the requester accepted the work.
// A record that already reached a terminal state is left untouched; the
// caller sees success because the system already reflects the final state.
func (c *Coordinator) Approve(ctx context.Context, jobID uuid.UUID) error {
	return c.release(ctx, jobID, false)
}

// AutoRelease is the timer path: fires at the dispute deadline. Safe to
// invoke any number of times, from any number of timers; the payee is
// credited at most once.
func (c *Coordinator) AutoRelease(ctx context.Context, jobID uuid.UUID) error {
	return c.release(ctx, jobID, true)
}

func (c *Coordinator) release(ctx context.Context, jobID uuid.UUID, requireExpired bool) error {
	rec, flipped, err := c.Escrow.TryRelease(ctx, jobID, requireExpired)
	if err != nil {
		return err
	}
	if rec.Status != models.EscrowStatusReleased {
		// Disputed or refunded in the meantime; the no-op is deliberate.
		c.Log.Info("release skipped", "job_id", jobID, "status", rec.Status)
		return nil
	}
	if !flipped {
		c.Log.Debug("release already applied, re-driving payout", "job_id", jobID)
	}
	return c.settleRelease(ctx, rec)
}

// settleRelease completes the release saga for a RELEASED record: payee
// pending credit (minus platform fee), platform fee credit, clearance
// timer. Every step is keyed, so re-driving is harmless.
func (c *Coordinator) settleRelease(ctx context.Context, rec *models.EscrowRecord) error {
	payout, fee := money.ReleaseSplit(rec.Amount)

	entry, err := c.jobEntry(ctx, rec.JobID, rec.PayeeID, payout, models.LedgerEventCompleted, models.LedgerStatusSuccess)
	if err != nil {
		return err
	}
	if _, err := c.Wallets.CreditPendingWithKey(ctx, rec.PayeeID, payout, payoutKey(rec.JobID), models.OpPayout, entry); err != nil {
		return err
	}

	if fee.IsPositive() {
		feeEntry, err := c.jobEntry(ctx, rec.JobID, models.SystemPlatformAccountID, fee, models.LedgerEventCompleted, models.LedgerStatusSuccess)
		if err != nil {
			return err
		}
		if _, err := c.Wallets.CreditAvailableWithKey(ctx, models.SystemPlatformAccountID, fee, feeKey(rec.JobID), models.OpPlatformFee, feeEntry); err != nil {
			return err
		}
	}

	clearAt := c.now().UTC().Add(c.ClearanceDelay)
	if err := c.Timers.SchedulePendingClearance(ctx, rec.JobID, rec.PayeeID, payout, clearAt); err != nil {
		return fmt.Errorf("schedule pending clearance: %w", err)
	}
	return nil
}

// Refund resolves a dispute in the payer's favor: DISPUTED -> REFUNDED,
// full amount back to the payer's available balance.
func (c *Coordinator) Refund(ctx context.Context, jobID uuid.UUID) error {
	rec, _, err := c.Escrow.TryRefund(ctx, jobID)
	if err != nil {
		return err
	}
	if rec.Status != models.EscrowStatusRefunded {
		return fmt.Errorf("refund requires a disputed record, job %s is %s: %w", jobID, rec.Status, escrow.ErrStateConflict)
	}
	entry, err := c.jobEntry(ctx, jobID, rec.PayerID, rec.Amount, models.LedgerEventRefunded, models.LedgerStatusSuccess)
	if err != nil {
		return err
	}
	_, err = c.Wallets.CreditAvailableWithKey(ctx, rec.PayerID, rec.Amount, refundKey(jobID), models.OpRefund, entry)
	return err
}

// ClearPayout moves a cleared payout from pending to available. Invoked by
// the clearance timer; replays are no-ops.
func (c *Coordinator) ClearPayout(ctx context.Context, jobID, payeeID uuid.UUID, amount decimal.Decimal) error {
	_, err := c.Wallets.ClearPending(ctx, payeeID, amount, clearKey(jobID))
	return err
}

// ReleaseExpired releases every HELD escrow whose window has passed. The
// periodic sweep calls this to cover timer jobs that were lost.
func (c *Coordinator) ReleaseExpired(ctx context.Context) (int, error) {
	ids, err := c.Escrow.ExpiredHeld(ctx)
	if err != nil {
		return 0, err
	}
	var released int
	var errs []error
	for _, jobID := range ids {
		if err := c.AutoRelease(ctx, jobID); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", jobID, err))
			continue
		}
		released++
	}
	return released, errors.Join(errs...)
}

// RedrivePayouts completes release sagas that flipped the escrow but never
// committed the payout (crash between saga steps).
func (c *Coordinator) RedrivePayouts(ctx context.Context) (int, error) {
	ids, err := c.Escrow.ReleasedWithoutPayout(ctx)
	if err != nil {
		return 0, err
	}
	var redriven int
	var errs []error
	for _, jobID := range ids {
		rec, err := c.Escrow.GetByJobID(ctx, jobID)
		if err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", jobID, err))
			continue
		}
		if err := c.settleRelease(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", jobID, err))
			continue
		}
		redriven++
	}
	return redriven, errors.Join(errs...)
}

// jobEntry builds a ledger entry stamped with fresh reference numbers.
func (c *Coordinator) jobEntry(ctx context.Context, jobID, userID uuid.UUID, amount decimal.Decimal, eventType, status string) (*models.LedgerEntry, error) {
	paymentNo, err := c.Refs.Generate(ctx, models.RefKindPayment)
	if err != nil {
		return nil, err
	}
	billNo, err := c.Refs.Generate(ctx, models.RefKindBill)
	if err != nil {
		return nil, err
	}
	txNo, err := c.Refs.Generate(ctx, models.RefKindTransaction)
	if err != nil {
		return nil, err
	}
	job := jobID
	return &models.LedgerEntry{
		EventType:     eventType,
		PaymentID:     paymentNo,
		JobID:         &job,
		Amount:        amount,
		Currency:      models.DefaultCurrency,
		Status:        status,
		BillNo:        billNo,
		TransactionNo: txNo,
		UserID:        userID,
	}, nil
}

func holdKey(jobID uuid.UUID) string   { return "hold:" + jobID.String() }
func payoutKey(jobID uuid.UUID) string { return "payout:" + jobID.String() }
func feeKey(jobID uuid.UUID) string    { return "fee:" + jobID.String() }
func refundKey(jobID uuid.UUID) string { return "refund:" + jobID.String() }
func clearKey(jobID uuid.UUID) string  { return "clear:" + jobID.String() }
