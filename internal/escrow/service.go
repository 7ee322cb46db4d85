package escrow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/backend/internal/models"
)

var (
	// ErrNotFound means no escrow record exists for the job.
	ErrNotFound = errors.New("escrow record not found")
	// ErrStateConflict means the record is not in the state the operation
	// requires. Money-moving callers treat it as a benign no-op where
	// idempotency already guarantees correctness.
	ErrStateConflict = errors.New("escrow record in conflicting state")
	// ErrWindowClosed means the dispute deadline has passed.
	ErrWindowClosed = errors.New("dispute window closed")
	ErrInvalidHold  = errors.New("invalid hold request")
)

// DefaultDisputeWindow is how long the payer has to contest submitted work.
const DefaultDisputeWindow = 5 * time.Minute

// Store is the persistence interface for escrow records. Conditional
// transitions return false when the precondition did not hold.
type Store interface {
	InsertHold(ctx context.Context, rec *models.EscrowRecord) (bool, error)
	GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.EscrowRecord, error)
	SetDisputeDeadline(ctx context.Context, jobID uuid.UUID, deadline time.Time) (bool, error)
	MarkDisputed(ctx context.Context, jobID uuid.UUID, reason string, at time.Time) (bool, error)
	MarkReleased(ctx context.Context, jobID uuid.UUID, at time.Time, requireExpired bool) (bool, error)
	MarkRefunded(ctx context.Context, jobID uuid.UUID, at time.Time) (bool, error)
	ExpiredHeld(ctx context.Context, asOf time.Time) ([]uuid.UUID, error)
	ReleasedWithoutPayout(ctx context.Context) ([]uuid.UUID, error)
}

// Service drives the per-job escrow state machine:
// NONE -> HELD -> {DISPUTED -> REFUNDED, RELEASED}.
type Service struct {
	Store         Store
	DisputeWindow time.Duration

	now func() time.Time
}

func NewService(store Store) *Service {
	return &Service{Store: store, DisputeWindow: DefaultDisputeWindow, now: time.Now}
}

// Hold creates the HELD record. Idempotent on job_id: if a record already
// exists, Hold succeeds without re-applying.
func (s *Service) Hold(ctx context.Context, jobID uuid.UUID, amount decimal.Decimal, payerID, payeeID uuid.UUID) error {
	if !amount.IsPositive() || payerID == payeeID || jobID == uuid.Nil {
		return ErrInvalidHold
	}
	_, err := s.Store.InsertHold(ctx, &models.EscrowRecord{
		JobID:   jobID,
		Amount:  amount,
		PayerID: payerID,
		PayeeID: payeeID,
		Status:  models.EscrowStatusHeld,
		HeldAt:  s.now().UTC(),
	})
	return err
}

// StartDisputeWindow stamps dispute_deadline = now + window on a HELD
// record and returns the deadline. The status does not change; the deadline
// governs when auto-release may fire.
func (s *Service) StartDisputeWindow(ctx context.Context, jobID uuid.UUID) (time.Time, error) {
	deadline := s.now().UTC().Add(s.DisputeWindow)
	ok, err := s.Store.SetDisputeDeadline(ctx, jobID, deadline)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		rec, err := s.Store.GetByJobID(ctx, jobID)
		if err != nil {
			return time.Time{}, err
		}
		if rec == nil {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, ErrStateConflict
	}
	return deadline, nil
}

// FileDispute flips HELD -> DISPUTED while the window is open, freezing any
// pending auto-release. Filing against an already-disputed record succeeds
// silently.
func (s *Service) FileDispute(ctx context.Context, jobID uuid.UUID, reason string) error {
	ok, err := s.Store.MarkDisputed(ctx, jobID, reason, s.now().UTC())
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	rec, err := s.Store.GetByJobID(ctx, jobID)
	if err != nil {
		return err
	}
	switch {
	case rec == nil:
		return ErrNotFound
	case rec.Status == models.EscrowStatusDisputed:
		return nil
	case rec.Status != models.EscrowStatusHeld:
		return ErrStateConflict
	default:
		// Still HELD, so the conditional update failed on the deadline.
		return ErrWindowClosed
	}
}

// TryRelease attempts the HELD -> RELEASED flip and reports whether this
// call performed it. requireExpired restricts the flip to records whose
// dispute window has passed (the timer path); manual approval passes false.
// A caller observing flipped == false must not credit anyone.
func (s *Service) TryRelease(ctx context.Context, jobID uuid.UUID, requireExpired bool) (*models.EscrowRecord, bool, error) {
	flipped, err := s.Store.MarkReleased(ctx, jobID, s.now().UTC(), requireExpired)
	if err != nil {
		return nil, false, err
	}
	rec, err := s.Store.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		return nil, false, ErrNotFound
	}
	return rec, flipped, nil
}

// TryRefund attempts the DISPUTED -> REFUNDED flip.
func (s *Service) TryRefund(ctx context.Context, jobID uuid.UUID) (*models.EscrowRecord, bool, error) {
	flipped, err := s.Store.MarkRefunded(ctx, jobID, s.now().UTC())
	if err != nil {
		return nil, false, err
	}
	rec, err := s.Store.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		return nil, false, ErrNotFound
	}
	return rec, flipped, nil
}

func (s *Service) GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.EscrowRecord, error) {
	rec, err := s.Store.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// ExpiredHeld lists jobs whose window has passed without a dispute.
func (s *Service) ExpiredHeld(ctx context.Context) ([]uuid.UUID, error) {
	return s.Store.ExpiredHeld(ctx, s.now().UTC())
}

// ReleasedWithoutPayout lists release sagas that stopped before the credit.
func (s *Service) ReleasedWithoutPayout(ctx context.Context) ([]uuid.UUID, error) {
	return s.Store.ReleasedWithoutPayout(ctx)
}
