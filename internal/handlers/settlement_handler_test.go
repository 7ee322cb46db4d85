package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/backend/internal/escrow"
	"github.com/gigbridge/backend/internal/middleware"
	"github.com/gigbridge/backend/internal/models"
	"github.com/gigbridge/backend/internal/wallet"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockSettlement struct {
	holds     []uuid.UUID
	submits   []uuid.UUID
	disputes  []string
	approves  []uuid.UUID
	refunds   []uuid.UUID
	deadline  time.Time
	returnErr error
}

func (m *mockSettlement) HoldForJob(_ context.Context, jobID uuid.UUID, _ decimal.Decimal, _, _ uuid.UUID) error {
	if m.returnErr != nil {
		return m.returnErr
	}
	m.holds = append(m.holds, jobID)
	return nil
}

func (m *mockSettlement) SubmitWork(_ context.Context, jobID uuid.UUID) (time.Time, error) {
	if m.returnErr != nil {
		return time.Time{}, m.returnErr
	}
	m.submits = append(m.submits, jobID)
	return m.deadline, nil
}

func (m *mockSettlement) FileDispute(_ context.Context, _ uuid.UUID, reason string) error {
	if m.returnErr != nil {
		return m.returnErr
	}
	m.disputes = append(m.disputes, reason)
	return nil
}

func (m *mockSettlement) Approve(_ context.Context, jobID uuid.UUID) error {
	if m.returnErr != nil {
		return m.returnErr
	}
	m.approves = append(m.approves, jobID)
	return nil
}

func (m *mockSettlement) Refund(_ context.Context, jobID uuid.UUID) error {
	if m.returnErr != nil {
		return m.returnErr
	}
	m.refunds = append(m.refunds, jobID)
	return nil
}

type mockEscrowReader struct {
	rec *models.EscrowRecord
}

func (m *mockEscrowReader) GetByJobID(_ context.Context, _ uuid.UUID) (*models.EscrowRecord, error) {
	if m.rec == nil {
		return nil, escrow.ErrNotFound
	}
	return m.rec, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func authedReq(method, path, body string, userID uuid.UUID, role string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	ctx := middleware.WithIdentity(req.Context(), &middleware.Identity{UserID: userID, Role: role})
	return req.WithContext(ctx)
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHold_CreatesEscrow(t *testing.T) {
	svc := &mockSettlement{}
	h := &SettlementHandler{Settlement: svc, Escrow: &mockEscrowReader{}, Logger: testLogger()}
	jobID, payer, payee := uuid.New(), uuid.New(), uuid.New()

	body := `{"amount":"500.00","payee_id":"` + payee.String() + `"}`
	rec := httptest.NewRecorder()
	h.Hold(rec, authedReq(http.MethodPost, "/api/v1/jobs/"+jobID.String()+"/hold", body, payer, models.RoleRequester))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.holds) != 1 || svc.holds[0] != jobID {
		t.Errorf("holds: %v", svc.holds)
	}
}

func TestHold_InsufficientBalance(t *testing.T) {
	svc := &mockSettlement{returnErr: wallet.ErrInsufficientBalance}
	h := &SettlementHandler{Settlement: svc, Escrow: &mockEscrowReader{}, Logger: testLogger()}
	jobID, payee := uuid.New(), uuid.New()

	body := `{"amount":"500.00","payee_id":"` + payee.String() + `"}`
	rec := httptest.NewRecorder()
	h.Hold(rec, authedReq(http.MethodPost, "/api/v1/jobs/"+jobID.String()+"/hold", body, uuid.New(), models.RoleRequester))

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("expected 402, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmit_OnlyPayee(t *testing.T) {
	jobID, payer, payee := uuid.New(), uuid.New(), uuid.New()
	deadline := time.Now().Add(5 * time.Minute).UTC()
	svc := &mockSettlement{deadline: deadline}
	h := &SettlementHandler{
		Settlement: svc,
		Escrow: &mockEscrowReader{rec: &models.EscrowRecord{
			JobID: jobID, PayerID: payer, PayeeID: payee, Status: models.EscrowStatusHeld,
		}},
		Logger: testLogger(),
	}

	t.Run("payee may submit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Submit(rec, authedReq(http.MethodPost, "/api/v1/jobs/"+jobID.String()+"/submit", "", payee, models.RoleFulfiller))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp submitResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if !resp.DisputeDeadline.Equal(deadline) {
			t.Errorf("deadline: got %v, want %v", resp.DisputeDeadline, deadline)
		}
	})

	t.Run("payer may not submit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Submit(rec, authedReq(http.MethodPost, "/api/v1/jobs/"+jobID.String()+"/submit", "", payer, models.RoleRequester))
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
	})
}

func TestDispute_OnlyPayerWithinWindow(t *testing.T) {
	jobID, payer, payee := uuid.New(), uuid.New(), uuid.New()
	escrowRec := &models.EscrowRecord{JobID: jobID, PayerID: payer, PayeeID: payee, Status: models.EscrowStatusHeld}

	t.Run("payer disputes with reason", func(t *testing.T) {
		svc := &mockSettlement{}
		h := &SettlementHandler{Settlement: svc, Escrow: &mockEscrowReader{rec: escrowRec}, Logger: testLogger()}
		rec := httptest.NewRecorder()
		h.Dispute(rec, authedReq(http.MethodPost, "/api/v1/jobs/"+jobID.String()+"/dispute",
			`{"reason":"wrong deliverable"}`, payer, models.RoleRequester))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(svc.disputes) != 1 || svc.disputes[0] != "wrong deliverable" {
			t.Errorf("disputes: %v", svc.disputes)
		}
	})

	t.Run("missing reason rejected", func(t *testing.T) {
		svc := &mockSettlement{}
		h := &SettlementHandler{Settlement: svc, Escrow: &mockEscrowReader{rec: escrowRec}, Logger: testLogger()}
		rec := httptest.NewRecorder()
		h.Dispute(rec, authedReq(http.MethodPost, "/api/v1/jobs/"+jobID.String()+"/dispute",
			`{}`, payer, models.RoleRequester))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("window closed maps to 409", func(t *testing.T) {
		svc := &mockSettlement{returnErr: escrow.ErrWindowClosed}
		h := &SettlementHandler{Settlement: svc, Escrow: &mockEscrowReader{rec: escrowRec}, Logger: testLogger()}
		rec := httptest.NewRecorder()
		h.Dispute(rec, authedReq(http.MethodPost, "/api/v1/jobs/"+jobID.String()+"/dispute",
			`{"reason":"too late"}`, payer, models.RoleRequester))
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestResolve_AdminOnly(t *testing.T) {
	jobID, payer, payee := uuid.New(), uuid.New(), uuid.New()
	svc := &mockSettlement{}
	h := &SettlementHandler{
		Settlement: svc,
		Escrow: &mockEscrowReader{rec: &models.EscrowRecord{
			JobID: jobID, PayerID: payer, PayeeID: payee, Status: models.EscrowStatusRefunded,
		}},
		Logger: testLogger(),
	}
	// Same gate the router mounts in front of the handler.
	resolve := middleware.RequireRole(models.RoleAdmin)(http.HandlerFunc(h.Resolve))
	path := "/api/v1/jobs/" + jobID.String() + "/resolve"

	t.Run("payer cannot resolve own dispute", func(t *testing.T) {
		rec := httptest.NewRecorder()
		resolve.ServeHTTP(rec, authedReq(http.MethodPost, path,
			`{"resolution":"refund"}`, payer, models.RoleRequester))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(svc.refunds) != 0 {
			t.Errorf("refunds executed: %v", svc.refunds)
		}
	})

	t.Run("payee cannot resolve", func(t *testing.T) {
		rec := httptest.NewRecorder()
		resolve.ServeHTTP(rec, authedReq(http.MethodPost, path,
			`{"resolution":"refund"}`, payee, models.RoleFulfiller))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("admin resolves as refund", func(t *testing.T) {
		rec := httptest.NewRecorder()
		resolve.ServeHTTP(rec, authedReq(http.MethodPost, path,
			`{"resolution":"refund"}`, uuid.New(), models.RoleAdmin))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(svc.refunds) != 1 {
			t.Errorf("refunds: %v", svc.refunds)
		}
	})

	t.Run("unsupported resolution rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		resolve.ServeHTTP(rec, authedReq(http.MethodPost, path,
			`{"resolution":"split"}`, uuid.New(), models.RoleAdmin))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestStatus_NotFound(t *testing.T) {
	h := &SettlementHandler{Settlement: &mockSettlement{}, Escrow: &mockEscrowReader{}, Logger: testLogger()}
	rec := httptest.NewRecorder()
	h.Status(rec, authedReq(http.MethodGet, "/api/v1/jobs/"+uuid.New().String()+"/escrow", "", uuid.New(), models.RoleRequester))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestInvalidJobID(t *testing.T) {
	h := &SettlementHandler{Settlement: &mockSettlement{}, Escrow: &mockEscrowReader{}, Logger: testLogger()}
	rec := httptest.NewRecorder()
	h.Approve(rec, authedReq(http.MethodPost, "/api/v1/jobs/not-a-uuid/approve", "", uuid.New(), models.RoleRequester))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
