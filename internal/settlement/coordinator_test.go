package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/backend/internal/escrow"
	"github.com/gigbridge/backend/internal/models"
	"github.com/gigbridge/backend/internal/wallet"
)

// ---------------------------------------------------------------------------
// In-memory collaborators. The escrow mock reproduces the conditional-update
// semantics of the real store; the wallet mock reproduces keyed exactly-once
// application. Both are what the Postgres implementations guarantee.
// ---------------------------------------------------------------------------

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memEscrow struct {
	mu      sync.Mutex
	clk     *clock
	window  time.Duration
	records map[uuid.UUID]*models.EscrowRecord
	payouts func(jobID uuid.UUID) bool // reports whether the payout key exists
}

func newMemEscrow(clk *clock, payouts func(uuid.UUID) bool) *memEscrow {
	return &memEscrow{clk: clk, window: escrow.DefaultDisputeWindow, records: make(map[uuid.UUID]*models.EscrowRecord), payouts: payouts}
}

func (m *memEscrow) Hold(_ context.Context, jobID uuid.UUID, amount decimal.Decimal, payerID, payeeID uuid.UUID) error {
	if !amount.IsPositive() || payerID == payeeID || jobID == uuid.Nil {
		return escrow.ErrInvalidHold
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[jobID]; exists {
		return nil
	}
	m.records[jobID] = &models.EscrowRecord{
		JobID: jobID, Amount: amount, PayerID: payerID, PayeeID: payeeID,
		Status: models.EscrowStatusHeld, HeldAt: m.clk.now(),
	}
	return nil
}

func (m *memEscrow) StartDisputeWindow(_ context.Context, jobID uuid.UUID) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[jobID]
	if !ok {
		return time.Time{}, escrow.ErrNotFound
	}
	if rec.Status != models.EscrowStatusHeld {
		return time.Time{}, escrow.ErrStateConflict
	}
	deadline := m.clk.now().Add(m.window)
	rec.DisputeDeadline = &deadline
	return deadline, nil
}

func (m *memEscrow) FileDispute(_ context.Context, jobID uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[jobID]
	switch {
	case !ok:
		return escrow.ErrNotFound
	case rec.Status == models.EscrowStatusDisputed:
		return nil
	case rec.Status != models.EscrowStatusHeld:
		return escrow.ErrStateConflict
	case rec.DisputeDeadline == nil || !rec.DisputeDeadline.After(m.clk.now()):
		return escrow.ErrWindowClosed
	}
	now := m.clk.now()
	rec.Status = models.EscrowStatusDisputed
	rec.DisputedAt = &now
	rec.DisputeReason = &reason
	return nil
}

func (m *memEscrow) TryRelease(_ context.Context, jobID uuid.UUID, requireExpired bool) (*models.EscrowRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[jobID]
	if !ok {
		return nil, false, escrow.ErrNotFound
	}
	flipped := false
	if rec.Status == models.EscrowStatusHeld {
		expired := rec.DisputeDeadline != nil && !rec.DisputeDeadline.After(m.clk.now())
		if !requireExpired || expired {
			now := m.clk.now()
			rec.Status = models.EscrowStatusReleased
			rec.ReleasedAt = &now
			flipped = true
		}
	}
	cp := *rec
	return &cp, flipped, nil
}

func (m *memEscrow) TryRefund(_ context.Context, jobID uuid.UUID) (*models.EscrowRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[jobID]
	if !ok {
		return nil, false, escrow.ErrNotFound
	}
	flipped := false
	if rec.Status == models.EscrowStatusDisputed {
		now := m.clk.now()
		rec.Status = models.EscrowStatusRefunded
		rec.ReleasedAt = &now
		flipped = true
	}
	cp := *rec
	return &cp, flipped, nil
}

func (m *memEscrow) GetByJobID(_ context.Context, jobID uuid.UUID) (*models.EscrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[jobID]
	if !ok {
		return nil, escrow.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memEscrow) ExpiredHeld(context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, rec := range m.records {
		if rec.Status == models.EscrowStatusHeld && rec.DisputeDeadline != nil && !rec.DisputeDeadline.After(m.clk.now()) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memEscrow) ReleasedWithoutPayout(context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, rec := range m.records {
		if rec.Status == models.EscrowStatusReleased && !m.payouts(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ---

type balances struct {
	available decimal.Decimal
	pending   decimal.Decimal
}

type memWallets struct {
	mu      sync.Mutex
	byUser  map[uuid.UUID]*balances
	keys    map[string]bool
	entries []*models.LedgerEntry
}

func newMemWallets() *memWallets {
	return &memWallets{byUser: make(map[uuid.UUID]*balances), keys: make(map[string]bool)}
}

func (m *memWallets) get(userID uuid.UUID) *balances {
	b, ok := m.byUser[userID]
	if !ok {
		b = &balances{available: decimal.Zero, pending: decimal.Zero}
		m.byUser[userID] = b
	}
	return b
}

func (m *memWallets) apply(key string, entry *models.LedgerEntry, mutate func() error) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	if err := mutate(); err != nil {
		return false, err
	}
	m.keys[key] = true
	if entry != nil {
		cp := *entry
		m.entries = append(m.entries, &cp)
	}
	return true, nil
}

func (m *memWallets) DebitAvailableWithKey(_ context.Context, userID uuid.UUID, amount decimal.Decimal, key, _ string, entry *models.LedgerEntry) (bool, error) {
	return m.apply(key, entry, func() error {
		b := m.get(userID)
		if b.available.LessThan(amount) {
			return wallet.ErrInsufficientBalance
		}
		b.available = b.available.Sub(amount)
		return nil
	})
}

func (m *memWallets) CreditAvailableWithKey(_ context.Context, userID uuid.UUID, amount decimal.Decimal, key, _ string, entry *models.LedgerEntry) (bool, error) {
	return m.apply(key, entry, func() error {
		b := m.get(userID)
		b.available = b.available.Add(amount)
		return nil
	})
}

func (m *memWallets) CreditPendingWithKey(_ context.Context, userID uuid.UUID, amount decimal.Decimal, key, _ string, entry *models.LedgerEntry) (bool, error) {
	return m.apply(key, entry, func() error {
		b := m.get(userID)
		b.pending = b.pending.Add(amount)
		return nil
	})
}

func (m *memWallets) ClearPending(_ context.Context, userID uuid.UUID, amount decimal.Decimal, key string) (bool, error) {
	return m.apply(key, nil, func() error {
		b := m.get(userID)
		if b.pending.LessThan(amount) {
			return fmt.Errorf("pending below clearance amount")
		}
		b.pending = b.pending.Sub(amount)
		b.available = b.available.Add(amount)
		return nil
	})
}

func (m *memWallets) available(userID uuid.UUID) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(userID).available
}

func (m *memWallets) pending(userID uuid.UUID) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(userID).pending
}

func (m *memWallets) hasKey(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key]
}

func (m *memWallets) entriesByEvent(event string) []*models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range m.entries {
		if e.EventType == event {
			out = append(out, e)
		}
	}
	return out
}

// ---

type scheduled struct {
	jobID uuid.UUID
	at    time.Time
}

type memScheduler struct {
	mu         sync.Mutex
	expiries   []scheduled
	clearances []scheduled
}

func (m *memScheduler) ScheduleDisputeExpiry(_ context.Context, jobID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiries = append(m.expiries, scheduled{jobID, at})
	return nil
}

func (m *memScheduler) SchedulePendingClearance(_ context.Context, jobID, _ uuid.UUID, _ decimal.Decimal, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearances = append(m.clearances, scheduled{jobID, at})
	return nil
}

type memRefs struct {
	mu sync.Mutex
	n  int
}

func (m *memRefs) Generate(_ context.Context, kind string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	return fmt.Sprintf("%s-%04d", kind, m.n), nil
}

// ---------------------------------------------------------------------------

type fixture struct {
	coord   *Coordinator
	escrows *memEscrow
	wallets *memWallets
	sched   *memScheduler
	clk     *clock
}

func newFixture() *fixture {
	clk := &clock{t: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)}
	wallets := newMemWallets()
	escrows := newMemEscrow(clk, func(jobID uuid.UUID) bool {
		return wallets.hasKey(payoutKey(jobID))
	})
	sched := &memScheduler{}
	coord := NewCoordinator(escrows, wallets, &memRefs{}, sched, slog.New(slog.NewTextHandler(io.Discard, nil)))
	coord.now = clk.now
	return &fixture{coord: coord, escrows: escrows, wallets: wallets, sched: sched, clk: clk}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (f *fixture) fund(userID uuid.UUID, amount string) {
	f.wallets.mu.Lock()
	f.wallets.get(userID).available = dec(amount)
	f.wallets.mu.Unlock()
}

func TestHoldForJob(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	jobID, payer, payee := uuid.New(), uuid.New(), uuid.New()
	f.fund(payer, "1000")

	if err := f.coord.HoldForJob(ctx, jobID, dec("500"), payer, payee); err != nil {
		t.Fatalf("HoldForJob: %v", err)
	}
	if got := f.wallets.available(payer); !got.Equal(dec("500")) {
		t.Errorf("payer available: got %s, want 500", got)
	}
	rec, err := f.escrows.GetByJobID(ctx, jobID)
	if err != nil || rec.Status != models.EscrowStatusHeld {
		t.Fatalf("escrow record: %+v, %v", rec, err)
	}

	// Retrying the saga must not debit again.
	if err := f.coord.HoldForJob(ctx, jobID, dec("500"), payer, payee); err != nil {
		t.Fatalf("HoldForJob retry: %v", err)
	}
	if got := f.wallets.available(payer); !got.Equal(dec("500")) {
		t.Errorf("payer debited twice: %s", got)
	}
}

func TestHoldForJobInsufficientBalance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	jobID, payer, payee := uuid.New(), uuid.New(), uuid.New()
	f.fund(payer, "100")

	err := f.coord.HoldForJob(ctx, jobID, dec("500"), payer, payee)
	if !errors.Is(err, wallet.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if _, err := f.escrows.GetByJobID(ctx, jobID); !errors.Is(err, escrow.ErrNotFound) {
		t.Error("no escrow record may exist after a failed debit")
	}
	if got := f.wallets.available(payer); !got.Equal(dec("100")) {
		t.Errorf("payer balance changed: %s", got)
	}
}

func TestApprovalFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	jobID, payer, payee := uuid.New(), uuid.New(), uuid.New()
	f.fund(payer, "1000")

	if err := f.coord.HoldForJob(ctx, jobID, dec("500"), payer, payee); err != nil {
		t.Fatal(err)
	}
	deadline, err := f.coord.SubmitWork(ctx, jobID)
	if err != nil {
		t.Fatalf("SubmitWork: %v", err)
	}
	if want := f.clk.now().Add(escrow.DefaultDisputeWindow); !deadline.Equal(want) {
		t.Errorf("deadline: got %v, want %v", deadline, want)
	}
	if len(f.sched.expiries) != 1 || f.sched.expiries[0].jobID != jobID {
		t.Fatalf("expiry timer not scheduled: %+v", f.sched.expiries)
	}

	if err := f.coord.Approve(ctx, jobID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got := f.wallets.pending(payee); !got.Equal(dec("450")) {
		t.Errorf("payee pending: got %s, want 450", got)
	}
	if got := f.wallets.available(models.SystemPlatformAccountID); !got.Equal(dec("50")) {
		t.Errorf("platform fee: got %s, want 50", got)
	}
	if len(f.sched.clearances) != 1 {
		t.Errorf("clearance timer not scheduled")
	}

	// Approving again re-drives the saga but credits nothing.
	if err := f.coord.Approve(ctx, jobID); err != nil {
		t.Fatalf("second Approve: %v", err)
	}
	if got := f.wallets.pending(payee); !got.Equal(dec("450")) {
		t.Errorf("payee credited twice: %s", got)
	}

	// Conservation: payer delta == payee pending + platform fee.
	payerDelta := dec("1000").Sub(f.wallets.available(payer))
	gained := f.wallets.pending(payee).Add(f.wallets.available(models.SystemPlatformAccountID))
	if !payerDelta.Equal(gained) {
		t.Errorf("money not conserved: payer lost %s, others gained %s", payerDelta, gained)
	}
}

// Two auto-release timers fire concurrently at the deadline; the payee's
// pending balance increases exactly once.
func TestConcurrentAutoRelease(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	jobID, payer, payee := uuid.New(), uuid.New(), uuid.New()
	f.fund(payer, "500")

	if err := f.coord.HoldForJob(ctx, jobID, dec("500"), payer, payee); err != nil {
		t.Fatal(err)
	}
	if _, err := f.coord.SubmitWork(ctx, jobID); err != nil {
		t.Fatal(err)
	}
	f.clk.advance(escrow.DefaultDisputeWindow + time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.coord.AutoRelease(ctx, jobID); err != nil {
				t.Errorf("AutoRelease: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := f.wallets.pending(payee); !got.Equal(dec("450")) {
		t.Errorf("payee pending after concurrent release: got %s, want exactly 450", got)
	}
	if got := f.wallets.available(models.SystemPlatformAccountID); !got.Equal(dec("50")) {
		t.Errorf("platform fee after concurrent release: got %s, want exactly 50", got)
	}
}

func TestDisputeFreezesAutoRelease(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	jobID, payer, payee := uuid.New(), uuid.New(), uuid.New()
	f.fund(payer, "500")

	if err := f.coord.HoldForJob(ctx, jobID, dec("500"), payer, payee); err != nil {
		t.Fatal(err)
	}
	if _, err := f.coord.SubmitWork(ctx, jobID); err != nil {
		t.Fatal(err)
	}

	// Dispute filed one minute before the deadline.
	f.clk.advance(4 * time.Minute)
	if err := f.coord.FileDispute(ctx, jobID, "missing deliverable"); err != nil {
		t.Fatalf("FileDispute: %v", err)
	}

	// The timer still fires after the deadline; it must change nothing.
	f.clk.advance(time.Minute + time.Second)
	if err := f.coord.AutoRelease(ctx, jobID); err != nil {
		t.Fatalf("AutoRelease on disputed record: %v", err)
	}
	if got := f.wallets.pending(payee); !got.IsZero() {
		t.Errorf("disputed job paid out: %s", got)
	}
	rec, _ := f.escrows.GetByJobID(ctx, jobID)
	if rec.Status != models.EscrowStatusDisputed {
		t.Errorf("status: got %s, want DISPUTED", rec.Status)
	}

	// Admin resolves for the payer: full refund, once.
	if err := f.coord.Refund(ctx, jobID); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if err := f.coord.Refund(ctx, jobID); err != nil {
		t.Fatalf("Refund replay: %v", err)
	}
	if got := f.wallets.available(payer); !got.Equal(dec("500")) {
		t.Errorf("payer refund: got %s, want 500 exactly once", got)
	}
}

func TestRefundRequiresDispute(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	jobID, payer, payee := uuid.New(), uuid.New(), uuid.New()
	f.fund(payer, "500")

	if err := f.coord.HoldForJob(ctx, jobID, dec("500"), payer, payee); err != nil {
		t.Fatal(err)
	}
	if err := f.coord.Refund(ctx, jobID); !errors.Is(err, escrow.ErrStateConflict) {
		t.Errorf("refund of held record: got %v", err)
	}
}

func TestLateDisputeRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	jobID, payer, payee := uuid.New(), uuid.New(), uuid.New()
	f.fund(payer, "500")

	if err := f.coord.HoldForJob(ctx, jobID, dec("500"), payer, payee); err != nil {
		t.Fatal(err)
	}
	if _, err := f.coord.SubmitWork(ctx, jobID); err != nil {
		t.Fatal(err)
	}
	f.clk.advance(escrow.DefaultDisputeWindow + time.Second)
	if err := f.coord.FileDispute(ctx, jobID, "too late"); !errors.Is(err, escrow.ErrWindowClosed) {
		t.Errorf("late dispute: got %v", err)
	}
}

func TestReleaseExpiredSweep(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	payer, payee := uuid.New(), uuid.New()
	f.fund(payer, "1000")

	expired, fresh := uuid.New(), uuid.New()
	for _, jobID := range []uuid.UUID{expired, fresh} {
		if err := f.coord.HoldForJob(ctx, jobID, dec("500"), payer, payee); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.coord.SubmitWork(ctx, expired); err != nil {
		t.Fatal(err)
	}
	f.clk.advance(escrow.DefaultDisputeWindow + time.Minute)
	if _, err := f.coord.SubmitWork(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	released, err := f.coord.ReleaseExpired(ctx)
	if err != nil {
		t.Fatalf("ReleaseExpired: %v", err)
	}
	if released != 1 {
		t.Errorf("released: got %d, want 1", released)
	}
	if got := f.wallets.pending(payee); !got.Equal(dec("450")) {
		t.Errorf("payee pending: got %s, want 450", got)
	}
	rec, _ := f.escrows.GetByJobID(ctx, fresh)
	if rec.Status != models.EscrowStatusHeld {
		t.Errorf("fresh job must stay HELD, got %s", rec.Status)
	}
}

// A crash between the escrow flip and the wallet credit leaves a RELEASED
// record with no payout key; the sweep completes the saga.
func TestRedrivePayouts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	jobID, payer, payee := uuid.New(), uuid.New(), uuid.New()
	f.fund(payer, "500")

	if err := f.coord.HoldForJob(ctx, jobID, dec("500"), payer, payee); err != nil {
		t.Fatal(err)
	}
	// Simulate the crash: flip the escrow directly, skip the credit.
	if _, flipped, err := f.escrows.TryRelease(ctx, jobID, false); err != nil || !flipped {
		t.Fatalf("manual flip: flipped=%v err=%v", flipped, err)
	}
	if got := f.wallets.pending(payee); !got.IsZero() {
		t.Fatal("precondition: no payout yet")
	}

	redriven, err := f.coord.RedrivePayouts(ctx)
	if err != nil {
		t.Fatalf("RedrivePayouts: %v", err)
	}
	if redriven != 1 {
		t.Errorf("redriven: got %d, want 1", redriven)
	}
	if got := f.wallets.pending(payee); !got.Equal(dec("450")) {
		t.Errorf("payee pending: got %s, want 450", got)
	}

	// Nothing left to re-drive.
	redriven, err = f.coord.RedrivePayouts(ctx)
	if err != nil || redriven != 0 {
		t.Errorf("second sweep: redriven=%d err=%v", redriven, err)
	}
}

func TestClearPayout(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	jobID, payer, payee := uuid.New(), uuid.New(), uuid.New()
	f.fund(payer, "500")

	if err := f.coord.HoldForJob(ctx, jobID, dec("500"), payer, payee); err != nil {
		t.Fatal(err)
	}
	if err := f.coord.Approve(ctx, jobID); err != nil {
		t.Fatal(err)
	}

	if err := f.coord.ClearPayout(ctx, jobID, payee, dec("450")); err != nil {
		t.Fatalf("ClearPayout: %v", err)
	}
	if err := f.coord.ClearPayout(ctx, jobID, payee, dec("450")); err != nil {
		t.Fatalf("ClearPayout replay: %v", err)
	}
	if got := f.wallets.available(payee); !got.Equal(dec("450")) {
		t.Errorf("payee available after clearance: got %s, want 450", got)
	}
	if got := f.wallets.pending(payee); !got.IsZero() {
		t.Errorf("payee pending after clearance: got %s, want 0", got)
	}
}

// Every baht credited by a settlement must have a matching ledger entry:
// the sum of completed entries equals the credits the wallets received, and
// each entry names the account whose balance moved.
func TestLedgerMatchesWalletDeltas(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	jobID, payer, payee := uuid.New(), uuid.New(), uuid.New()
	f.fund(payer, "1000")

	if err := f.coord.HoldForJob(ctx, jobID, dec("500"), payer, payee); err != nil {
		t.Fatal(err)
	}
	if _, err := f.coord.SubmitWork(ctx, jobID); err != nil {
		t.Fatal(err)
	}
	f.clk.advance(escrow.DefaultDisputeWindow + time.Second)
	if err := f.coord.AutoRelease(ctx, jobID); err != nil {
		t.Fatal(err)
	}
	if err := f.coord.ClearPayout(ctx, jobID, payee, dec("450")); err != nil {
		t.Fatal(err)
	}

	// The hold entry carries the full escrow debit.
	created := f.wallets.entriesByEvent(models.LedgerEventCreated)
	if len(created) != 1 {
		t.Fatalf("hold entries: got %d, want 1", len(created))
	}
	payerDelta := dec("1000").Sub(f.wallets.available(payer))
	if !created[0].Amount.Equal(payerDelta) {
		t.Errorf("hold entry %s does not match payer debit %s", created[0].Amount, payerDelta)
	}
	if created[0].UserID != payer {
		t.Errorf("hold entry user: got %s, want payer", created[0].UserID)
	}

	// Completed entries sum to the credits, per account.
	completed := f.wallets.entriesByEvent(models.LedgerEventCompleted)
	if len(completed) != 2 {
		t.Fatalf("completed entries: got %d, want payout + fee", len(completed))
	}
	ledgerTotal := decimal.Zero
	byUser := make(map[uuid.UUID]decimal.Decimal)
	for _, e := range completed {
		ledgerTotal = ledgerTotal.Add(e.Amount)
		byUser[e.UserID] = byUser[e.UserID].Add(e.Amount)
	}
	credited := f.wallets.available(payee).Add(f.wallets.available(models.SystemPlatformAccountID))
	if !ledgerTotal.Equal(credited) {
		t.Errorf("ledger total %s != wallet credits %s", ledgerTotal, credited)
	}
	if !ledgerTotal.Equal(payerDelta) {
		t.Errorf("ledger total %s != payer debit %s", ledgerTotal, payerDelta)
	}
	if got := byUser[payee]; !got.Equal(f.wallets.available(payee)) {
		t.Errorf("payee entries %s != payee balance %s", got, f.wallets.available(payee))
	}
	if got := byUser[models.SystemPlatformAccountID]; !got.Equal(f.wallets.available(models.SystemPlatformAccountID)) {
		t.Errorf("fee entries %s != platform balance %s", got, f.wallets.available(models.SystemPlatformAccountID))
	}
}
