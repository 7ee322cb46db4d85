package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Escrow status enums. NONE is the absence of a record; RELEASED and
// REFUNDED are terminal and immutable.
const (
	EscrowStatusHeld     = "HELD"
	EscrowStatusDisputed = "DISPUTED"
	EscrowStatusReleased = "RELEASED"
	EscrowStatusRefunded = "REFUNDED"
)

// EscrowRecord is the per-job hold/dispute/release state machine row.
// Exactly one record exists per job; it is kept forever for audit.
type EscrowRecord struct {
	JobID           uuid.UUID       `json:"job_id"`
	Amount          decimal.Decimal `json:"amount"`
	PayerID         uuid.UUID       `json:"payer_id"`
	PayeeID         uuid.UUID       `json:"payee_id"`
	Status          string          `json:"status"`
	HeldAt          time.Time       `json:"held_at"`
	DisputeDeadline *time.Time      `json:"dispute_deadline,omitempty"`
	DisputedAt      *time.Time      `json:"disputed_at,omitempty"`
	DisputeReason   *string         `json:"dispute_reason,omitempty"`
	ReleasedAt      *time.Time      `json:"released_at,omitempty"`
}

// Terminal reports whether the record can never transition again.
func (e *EscrowRecord) Terminal() bool {
	return e.Status == EscrowStatusReleased || e.Status == EscrowStatusRefunded
}
