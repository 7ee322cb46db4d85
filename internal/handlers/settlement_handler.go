package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/backend/internal/escrow"
	"github.com/gigbridge/backend/internal/middleware"
	"github.com/gigbridge/backend/internal/models"
	"github.com/gigbridge/backend/internal/wallet"
)

// SettlementOps is the subset of the settlement coordinator the handler
// needs.
type SettlementOps interface {
	HoldForJob(ctx context.Context, jobID uuid.UUID, amount decimal.Decimal, payerID, payeeID uuid.UUID) error
	SubmitWork(ctx context.Context, jobID uuid.UUID) (time.Time, error)
	FileDispute(ctx context.Context, jobID uuid.UUID, reason string) error
	Approve(ctx context.Context, jobID uuid.UUID) error
	Refund(ctx context.Context, jobID uuid.UUID) error
}

// EscrowReader resolves the escrow record for authorization checks and the
// status endpoint.
type EscrowReader interface {
	GetByJobID(ctx context.Context, jobID uuid.UUID) (*models.EscrowRecord, error)
}

// SettlementHandler serves the /api/v1/jobs/{id}/... workflow endpoints.
type SettlementHandler struct {
	Settlement SettlementOps
	Escrow     EscrowReader
	Logger     *slog.Logger
}

type holdRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	PayeeID string          `json:"payee_id"`
}

// Hold handles POST /api/v1/jobs/{id}/hold. The caller is the payer.
func (h *SettlementHandler) Hold(w http.ResponseWriter, r *http.Request) {
	id, jobID, ok := h.identityAndJob(w, r)
	if !ok {
		return
	}
	var req holdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	payeeID, err := uuid.Parse(req.PayeeID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payee_id")
		return
	}
	if err := h.Settlement.HoldForJob(r.Context(), jobID, req.Amount, id.UserID, payeeID); err != nil {
		h.writeSettlementError(w, "hold", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"job_id": jobID.String(),
		"status": models.EscrowStatusHeld,
	})
}

type submitResponse struct {
	JobID           string    `json:"job_id"`
	DisputeDeadline time.Time `json:"dispute_deadline"`
}

// Submit handles POST /api/v1/jobs/{id}/submit. The caller must be the
// payee; submission opens the dispute window.
func (h *SettlementHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, jobID, ok := h.identityAndJob(w, r)
	if !ok {
		return
	}
	if !h.requireParty(w, r, jobID, func(rec *models.EscrowRecord) uuid.UUID { return rec.PayeeID }, id.UserID) {
		return
	}
	deadline, err := h.Settlement.SubmitWork(r.Context(), jobID)
	if err != nil {
		h.writeSettlementError(w, "submit", err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{JobID: jobID.String(), DisputeDeadline: deadline})
}

type disputeRequest struct {
	Reason string `json:"reason"`
}

// Dispute handles POST /api/v1/jobs/{id}/dispute. The caller must be the
// payer; a dispute freezes auto-release until resolution.
func (h *SettlementHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	id, jobID, ok := h.identityAndJob(w, r)
	if !ok {
		return
	}
	if !h.requireParty(w, r, jobID, func(rec *models.EscrowRecord) uuid.UUID { return rec.PayerID }, id.UserID) {
		return
	}
	var req disputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}
	if err := h.Settlement.FileDispute(r.Context(), jobID, req.Reason); err != nil {
		h.writeSettlementError(w, "dispute", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"job_id": jobID.String(),
		"status": models.EscrowStatusDisputed,
	})
}

// Approve handles POST /api/v1/jobs/{id}/approve. The caller must be the
// payer; approval releases the escrow immediately.
func (h *SettlementHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, jobID, ok := h.identityAndJob(w, r)
	if !ok {
		return
	}
	if !h.requireParty(w, r, jobID, func(rec *models.EscrowRecord) uuid.UUID { return rec.PayerID }, id.UserID) {
		return
	}
	if err := h.Settlement.Approve(r.Context(), jobID); err != nil {
		h.writeSettlementError(w, "approve", err)
		return
	}
	h.writeStatus(w, r, jobID)
}

type resolveRequest struct {
	Resolution string `json:"resolution"` // "refund" or "release"
}

// Resolve handles POST /api/v1/jobs/{id}/resolve: dispute resolution, either
// a full refund to the payer or a release to the payee.
func (h *SettlementHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	_, jobID, ok := h.identityAndJob(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	switch req.Resolution {
	case "refund":
		if err := h.Settlement.Refund(r.Context(), jobID); err != nil {
			h.writeSettlementError(w, "resolve", err)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "resolution must be \"refund\"")
		return
	}
	h.writeStatus(w, r, jobID)
}

type escrowResponse struct {
	JobID           string          `json:"job_id"`
	Amount          decimal.Decimal `json:"amount"`
	Status          string          `json:"status"`
	HeldAt          time.Time       `json:"held_at"`
	DisputeDeadline *time.Time      `json:"dispute_deadline,omitempty"`
	DisputedAt      *time.Time      `json:"disputed_at,omitempty"`
	ReleasedAt      *time.Time      `json:"released_at,omitempty"`
}

// Status handles GET /api/v1/jobs/{id}/escrow.
func (h *SettlementHandler) Status(w http.ResponseWriter, r *http.Request) {
	_, jobID, ok := h.identityAndJob(w, r)
	if !ok {
		return
	}
	h.writeStatus(w, r, jobID)
}

func (h *SettlementHandler) writeStatus(w http.ResponseWriter, r *http.Request, jobID uuid.UUID) {
	rec, err := h.Escrow.GetByJobID(r.Context(), jobID)
	if err != nil {
		h.writeSettlementError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, escrowResponse{
		JobID:           rec.JobID.String(),
		Amount:          rec.Amount,
		Status:          rec.Status,
		HeldAt:          rec.HeldAt,
		DisputeDeadline: rec.DisputeDeadline,
		DisputedAt:      rec.DisputedAt,
		ReleasedAt:      rec.ReleasedAt,
	})
}

func (h *SettlementHandler) identityAndJob(w http.ResponseWriter, r *http.Request) (*middleware.Identity, uuid.UUID, bool) {
	id := middleware.IdentityFromCtx(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, uuid.Nil, false
	}
	jobID, ok := extractJobID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return nil, uuid.Nil, false
	}
	return id, jobID, true
}

// requireParty checks the caller is the expected side of the escrow record.
func (h *SettlementHandler) requireParty(w http.ResponseWriter, r *http.Request, jobID uuid.UUID, party func(*models.EscrowRecord) uuid.UUID, callerID uuid.UUID) bool {
	rec, err := h.Escrow.GetByJobID(r.Context(), jobID)
	if err != nil {
		h.writeSettlementError(w, "lookup", err)
		return false
	}
	if party(rec) != callerID {
		writeError(w, http.StatusForbidden, "caller is not a party to this escrow")
		return false
	}
	return true
}

func (h *SettlementHandler) writeSettlementError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		writeError(w, http.StatusNotFound, "escrow record not found")
	case errors.Is(err, escrow.ErrWindowClosed):
		writeError(w, http.StatusConflict, "dispute window closed")
	case errors.Is(err, escrow.ErrStateConflict):
		writeError(w, http.StatusConflict, "escrow record in conflicting state")
	case errors.Is(err, escrow.ErrInvalidHold):
		writeError(w, http.StatusBadRequest, "invalid hold request")
	case errors.Is(err, wallet.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, "insufficient balance")
	default:
		h.Logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
