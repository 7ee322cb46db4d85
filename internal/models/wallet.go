package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SystemPlatformAccountID is the platform wallet that collects release fees.
var SystemPlatformAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// DefaultCurrency is the only currency the settlement core moves today.
const DefaultCurrency = "THB"

// Payment channel enums shared by top-up and withdrawal.
const (
	ChannelBankTransfer    = "bank_transfer"
	ChannelInstantTransfer = "instant_transfer"
	ChannelMobileWallet    = "mobile_wallet"
)

// Wallet is the per-user balance record. Both balances are non-negative at
// all times; mutations go through the settlement coordinator or the wallet
// service, never through direct repository writes.
type Wallet struct {
	UserID    uuid.UUID       `json:"user_id"`
	Available decimal.Decimal `json:"available_balance"`
	Pending   decimal.Decimal `json:"pending_balance"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IdempotencyRecord maps a caller-supplied key to the outcome it produced.
// Replaying the key returns the recorded result and mutates nothing; the
// payment number and fee are stored so the replay response matches the
// original byte for byte.
type IdempotencyRecord struct {
	Key          string          `json:"key"`
	UserID       uuid.UUID       `json:"user_id"`
	Operation    string          `json:"operation"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	PaymentNo    string          `json:"payment_no"`
	Fee          decimal.Decimal `json:"fee"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Idempotency operation enums.
const (
	OpTopUp        = "topup"
	OpWithdraw     = "withdraw"
	OpEscrowHold   = "escrow_hold"
	OpPayout       = "payout"
	OpPlatformFee  = "platform_fee"
	OpRefund       = "refund"
	OpClearPending = "clear_pending"
)
