package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/backend/internal/models"
	"github.com/gigbridge/backend/internal/money"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrBelowMinimum        = errors.New("amount below withdrawal minimum")
	ErrAboveMaximum        = errors.New("amount above withdrawal maximum")
	ErrMissingKey          = errors.New("idempotency key required")
	ErrWalletNotFound      = errors.New("wallet not found")
)

// Store is the persistence interface the service needs.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error)
	CreditAvailable(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	DebitAvailable(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	CreditPending(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	MovePendingToAvailable(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	FindIdempotency(ctx context.Context, tx pgx.Tx, key string) (*models.IdempotencyRecord, error)
	SaveIdempotency(ctx context.Context, tx pgx.Tx, rec *models.IdempotencyRecord) error
}

// LedgerAppender appends an entry inside the caller's transaction, so the
// balance change and its ledger record commit or roll back together.
type LedgerAppender interface {
	AppendTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
}

// ReferenceSource issues bill/transaction/payment numbers.
type ReferenceSource interface {
	Generate(ctx context.Context, kind string) (string, error)
}

// Service is the idempotent wallet balance mutator. Every mutation locks
// the wallet row, checks the idempotency key, applies the change, appends
// the ledger entry and records the key — all in one transaction.
type Service struct {
	Store  Store
	Ledger LedgerAppender
	Refs   ReferenceSource
}

func NewService(store Store, ledger LedgerAppender, refs ReferenceSource) *Service {
	return &Service{Store: store, Ledger: ledger, Refs: refs}
}

type TopUpInput struct {
	UserID         uuid.UUID
	Amount         decimal.Decimal
	IdempotencyKey string
	Gateway        string
	Channel        string
	PaymentRef     string // gateway-side charge/payment id, if any
}

type WithdrawInput struct {
	UserID         uuid.UUID
	NetAmount      decimal.Decimal
	Channel        string
	IdempotencyKey string
}

// MutationResult reports the outcome of a top-up or withdrawal. Replayed is
// true when the idempotency key had been seen before; in that case the
// balance did not change again.
type MutationResult struct {
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Fee          decimal.Decimal `json:"fee"`
	TotalDebit   decimal.Decimal `json:"total_debit,omitempty"`
	PaymentNo    string          `json:"payment_no,omitempty"`
	Replayed     bool            `json:"replayed"`
}

func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	w, err := s.Store.GetByUserID(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	return w, err
}

// TopUp credits the user's available balance. The user receives the full
// amount on every channel; the mobile-wallet gateway percentage is absorbed
// by the platform and reported in the result for cost tracking.
func (s *Service) TopUp(ctx context.Context, in TopUpInput) (*MutationResult, error) {
	amount := money.Round2(in.Amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if in.IdempotencyKey == "" {
		return nil, ErrMissingKey
	}
	fee, err := money.DepositFee(in.Channel, amount)
	if err != nil {
		return nil, err
	}

	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := s.lockWallet(ctx, tx, in.UserID); err != nil {
		return nil, err
	}
	if rec, err := s.Store.FindIdempotency(ctx, tx, in.IdempotencyKey); err != nil {
		return nil, err
	} else if rec != nil {
		return &MutationResult{BalanceAfter: rec.BalanceAfter, Fee: rec.Fee, PaymentNo: rec.PaymentNo, Replayed: true}, nil
	}

	newBalance, err := s.Store.CreditAvailable(ctx, tx, in.UserID, amount)
	if err != nil {
		return nil, err
	}

	paymentID := in.PaymentRef
	if paymentID == "" {
		if paymentID, err = s.Refs.Generate(ctx, models.RefKindPayment); err != nil {
			return nil, err
		}
	}
	billNo, err := s.Refs.Generate(ctx, models.RefKindBill)
	if err != nil {
		return nil, err
	}
	txNo, err := s.Refs.Generate(ctx, models.RefKindTransaction)
	if err != nil {
		return nil, err
	}
	if err := s.Ledger.AppendTx(ctx, tx, &models.LedgerEntry{
		EventType:     models.LedgerEventCompleted,
		PaymentID:     paymentID,
		Gateway:       in.Gateway,
		Amount:        amount,
		Currency:      models.DefaultCurrency,
		Status:        models.LedgerStatusSuccess,
		BillNo:        billNo,
		TransactionNo: txNo,
		UserID:        in.UserID,
	}); err != nil {
		return nil, err
	}

	if err := s.recordKey(ctx, tx, in.IdempotencyKey, in.UserID, models.OpTopUp, amount, newBalance, paymentID, fee); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &MutationResult{BalanceAfter: newBalance, Fee: fee, PaymentNo: paymentID}, nil
}

// Withdraw debits net + channel fee from the available balance immediately;
// the payout itself settles asynchronously through the external channel.
// The ledger gets a pending entry for the net and a completed entry for the
// fee, both under the same payment number.
func (s *Service) Withdraw(ctx context.Context, in WithdrawInput) (*MutationResult, error) {
	net := money.Round2(in.NetAmount)
	if !net.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if net.LessThan(money.MinWithdrawal) {
		return nil, ErrBelowMinimum
	}
	if net.GreaterThan(money.MaxWithdrawal) {
		return nil, ErrAboveMaximum
	}
	if in.IdempotencyKey == "" {
		return nil, ErrMissingKey
	}
	fee, err := money.WithdrawalFee(in.Channel, net)
	if err != nil {
		return nil, err
	}
	total := net.Add(fee)

	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := s.lockWallet(ctx, tx, in.UserID); err != nil {
		return nil, err
	}
	if rec, err := s.Store.FindIdempotency(ctx, tx, in.IdempotencyKey); err != nil {
		return nil, err
	} else if rec != nil {
		return &MutationResult{BalanceAfter: rec.BalanceAfter, Fee: rec.Fee, TotalDebit: rec.Amount, PaymentNo: rec.PaymentNo, Replayed: true}, nil
	}

	newBalance, err := s.Store.DebitAvailable(ctx, tx, in.UserID, total)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInsufficientBalance
	}
	if err != nil {
		return nil, err
	}

	paymentNo, err := s.Refs.Generate(ctx, models.RefKindPayment)
	if err != nil {
		return nil, err
	}
	billNo, err := s.Refs.Generate(ctx, models.RefKindBill)
	if err != nil {
		return nil, err
	}
	netTxNo, err := s.Refs.Generate(ctx, models.RefKindTransaction)
	if err != nil {
		return nil, err
	}
	feeTxNo, err := s.Refs.Generate(ctx, models.RefKindTransaction)
	if err != nil {
		return nil, err
	}

	if err := s.Ledger.AppendTx(ctx, tx, &models.LedgerEntry{
		EventType:     models.LedgerEventCreated,
		PaymentID:     paymentNo,
		Gateway:       in.Channel,
		Amount:        net,
		Currency:      models.DefaultCurrency,
		Status:        models.LedgerStatusPending,
		BillNo:        billNo,
		TransactionNo: netTxNo,
		UserID:        in.UserID,
	}); err != nil {
		return nil, err
	}
	if err := s.Ledger.AppendTx(ctx, tx, &models.LedgerEntry{
		EventType:     models.LedgerEventCompleted,
		PaymentID:     paymentNo,
		Gateway:       in.Channel,
		Amount:        fee,
		Currency:      models.DefaultCurrency,
		Status:        models.LedgerStatusSuccess,
		BillNo:        billNo,
		TransactionNo: feeTxNo,
		UserID:        in.UserID,
	}); err != nil {
		return nil, err
	}

	if err := s.recordKey(ctx, tx, in.IdempotencyKey, in.UserID, models.OpWithdraw, total, newBalance, paymentNo, fee); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &MutationResult{BalanceAfter: newBalance, Fee: fee, TotalDebit: total, PaymentNo: paymentNo}, nil
}

// CreditPendingWithKey credits the user's pending balance once per key.
// Returns false without mutating anything when the key was already applied.
// entry, if non-nil, is appended in the same transaction.
func (s *Service) CreditPendingWithKey(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, key, op string, entry *models.LedgerEntry) (bool, error) {
	return s.applyWithKey(ctx, userID, amount, key, op, entry, func(tx pgx.Tx) (decimal.Decimal, error) {
		return s.Store.CreditPending(ctx, tx, userID, amount)
	})
}

// DebitAvailableWithKey debits the user's available balance once per key.
// Fails with ErrInsufficientBalance when the balance does not cover amount.
func (s *Service) DebitAvailableWithKey(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, key, op string, entry *models.LedgerEntry) (bool, error) {
	return s.applyWithKey(ctx, userID, amount, key, op, entry, func(tx pgx.Tx) (decimal.Decimal, error) {
		newBalance, err := s.Store.DebitAvailable(ctx, tx, userID, amount)
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrInsufficientBalance
		}
		return newBalance, err
	})
}

// CreditAvailableWithKey credits the user's available balance once per key.
func (s *Service) CreditAvailableWithKey(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, key, op string, entry *models.LedgerEntry) (bool, error) {
	return s.applyWithKey(ctx, userID, amount, key, op, entry, func(tx pgx.Tx) (decimal.Decimal, error) {
		return s.Store.CreditAvailable(ctx, tx, userID, amount)
	})
}

// ClearPending moves a settled payout from pending to available, once per key.
func (s *Service) ClearPending(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, key string) (bool, error) {
	return s.applyWithKey(ctx, userID, amount, key, models.OpClearPending, nil, func(tx pgx.Tx) (decimal.Decimal, error) {
		newAvailable, err := s.Store.MovePendingToAvailable(ctx, tx, userID, amount)
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("pending balance below clearance amount %s for user %s", amount, userID)
		}
		return newAvailable, err
	})
}

func (s *Service) applyWithKey(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, key, op string, entry *models.LedgerEntry, apply func(pgx.Tx) (decimal.Decimal, error)) (bool, error) {
	if key == "" {
		return false, ErrMissingKey
	}
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if _, err := s.lockWallet(ctx, tx, userID); err != nil {
		return false, err
	}
	if rec, err := s.Store.FindIdempotency(ctx, tx, key); err != nil {
		return false, err
	} else if rec != nil {
		return false, nil
	}

	newBalance, err := apply(tx)
	if err != nil {
		return false, err
	}
	if entry != nil {
		if err := s.Ledger.AppendTx(ctx, tx, entry); err != nil {
			return false, err
		}
	}
	paymentNo := ""
	if entry != nil {
		paymentNo = entry.PaymentID
	}
	if err := s.recordKey(ctx, tx, key, userID, op, amount, newBalance, paymentNo, decimal.Zero); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) lockWallet(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	w, err := s.Store.GetForUpdate(ctx, tx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	return w, err
}

// recordKey persists the idempotency outcome. A unique violation means a
// racing retry won; the row lock makes that unreachable in practice, but
// the handling stays because the lock is an implementation detail.
func (s *Service) recordKey(ctx context.Context, tx pgx.Tx, key string, userID uuid.UUID, op string, amount, balanceAfter decimal.Decimal, paymentNo string, fee decimal.Decimal) error {
	err := s.Store.SaveIdempotency(ctx, tx, &models.IdempotencyRecord{
		Key:          key,
		UserID:       userID,
		Operation:    op,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		PaymentNo:    paymentNo,
		Fee:          fee,
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("idempotency key %q raced a concurrent retry: %w", key, err)
	}
	return err
}
