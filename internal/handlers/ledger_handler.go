package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gigbridge/backend/internal/ledger"
	"github.com/gigbridge/backend/internal/models"
)

// LedgerReader is the subset of the ledger service the handler needs.
type LedgerReader interface {
	EntriesByDate(ctx context.Context, date time.Time) ([]*models.LedgerEntry, error)
	EntriesByJob(ctx context.Context, jobID uuid.UUID) ([]*models.LedgerEntry, error)
	ReconciliationSummary(ctx context.Context, date time.Time) (*ledger.Summary, error)
}

// LedgerHandler serves the reconciliation read surface.
type LedgerHandler struct {
	Ledger LedgerReader
	Logger *slog.Logger
}

// ListEntries handles GET /api/v1/ledger?date=YYYY-MM-DD or ?job_id=<uuid>.
func (h *LedgerHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("job_id") != "":
		jobID, err := uuid.Parse(q.Get("job_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid job_id")
			return
		}
		entries, err := h.Ledger.EntriesByJob(r.Context(), jobID)
		if err != nil {
			h.Logger.Error("list entries by job", "job_id", jobID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	case q.Get("date") != "":
		date, err := time.Parse("2006-01-02", q.Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		entries, err := h.Ledger.EntriesByDate(r.Context(), date)
		if err != nil {
			h.Logger.Error("list entries by date", "date", q.Get("date"), "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	default:
		writeError(w, http.StatusBadRequest, "date or job_id query parameter required")
	}
}

// Reconciliation handles GET /api/v1/reconciliation?date=YYYY-MM-DD.
func (h *LedgerHandler) Reconciliation(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "date query parameter required")
		return
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	sum, err := h.Ledger.ReconciliationSummary(r.Context(), date)
	if err != nil {
		h.Logger.Error("reconciliation summary", "date", raw, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
