package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger event_type enums. Entries sharing a payment_id form a lifecycle:
// created, then one terminal event, optionally followed by refunded.
const (
	LedgerEventCreated   = "created"
	LedgerEventCompleted = "completed"
	LedgerEventFailed    = "failed"
	LedgerEventExpired   = "expired"
	LedgerEventRefunded  = "refunded"
)

// Ledger entry status enums.
const (
	LedgerStatusPending = "pending"
	LedgerStatusSuccess = "success"
	LedgerStatusFailed  = "failed"
)

// LedgerEntry is one money-movement event. The table is append-only: no
// update or delete exists anywhere in the codebase.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id"`
	EventType     string          `json:"event_type"`
	PaymentID     string          `json:"payment_id"`
	Gateway       string          `json:"gateway,omitempty"`
	JobID         *uuid.UUID      `json:"job_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	BillNo        string          `json:"bill_no"`
	TransactionNo string          `json:"transaction_no"`
	UserID        uuid.UUID       `json:"user_id"`
	CreatedAt     time.Time       `json:"created_at"`
}
