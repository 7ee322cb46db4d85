package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/backend/internal/middleware"
	"github.com/gigbridge/backend/internal/models"
	"github.com/gigbridge/backend/internal/money"
	"github.com/gigbridge/backend/internal/wallet"
)

// WalletOps is the subset of the wallet service the handler needs.
type WalletOps interface {
	TopUp(ctx context.Context, in wallet.TopUpInput) (*wallet.MutationResult, error)
	Withdraw(ctx context.Context, in wallet.WithdrawInput) (*wallet.MutationResult, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
}

// WalletHandler serves /api/v1/wallet endpoints.
type WalletHandler struct {
	Wallets WalletOps
	Logger  *slog.Logger
}

type balanceResponse struct {
	UserID    string          `json:"user_id"`
	Available decimal.Decimal `json:"available_balance"`
	Pending   decimal.Decimal `json:"pending_balance"`
	Currency  string          `json:"currency"`
}

// GetBalance handles GET /api/v1/wallet.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	wal, err := h.Wallets.GetBalance(r.Context(), id.UserID)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletNotFound) {
			writeError(w, http.StatusNotFound, "wallet not found")
			return
		}
		h.Logger.Error("get balance", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		UserID:    wal.UserID.String(),
		Available: wal.Available,
		Pending:   wal.Pending,
		Currency:  wal.Currency,
	})
}

type topUpRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Channel        string          `json:"channel"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// TopUp handles POST /api/v1/wallet/topup. Direct top-ups carry a
// client-generated idempotency key; gateway-confirmed deposits arrive via
// the callback endpoint instead.
func (h *WalletHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := h.Wallets.TopUp(r.Context(), wallet.TopUpInput{
		UserID:         id.UserID,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		Channel:        req.Channel,
	})
	if err != nil {
		h.writeWalletError(w, "top up", err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

type withdrawRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Channel        string          `json:"channel"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// Withdraw handles POST /api/v1/wallet/withdraw. The amount is the net the
// user receives; the channel fee is debited on top.
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := h.Wallets.Withdraw(r.Context(), wallet.WithdrawInput{
		UserID:         id.UserID,
		NetAmount:      req.Amount,
		Channel:        req.Channel,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.writeWalletError(w, "withdraw", err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (h *WalletHandler) writeWalletError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, wallet.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, "insufficient balance")
	case errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrBelowMinimum),
		errors.Is(err, wallet.ErrAboveMaximum),
		errors.Is(err, wallet.ErrMissingKey),
		errors.Is(err, money.ErrUnknownChannel):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, wallet.ErrWalletNotFound):
		writeError(w, http.StatusNotFound, "wallet not found")
	default:
		h.Logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
