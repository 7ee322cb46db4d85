package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigbridge/backend/internal/models"
)

// Reader is the minimal read interface the reconciliation service needs.
type Reader interface {
	EntriesByDate(ctx context.Context, date time.Time) ([]*models.LedgerEntry, error)
	EntriesByJob(ctx context.Context, jobID uuid.UUID) ([]*models.LedgerEntry, error)
}

// EventTotals aggregates one event type for a reconciliation day.
type EventTotals struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Summary is the daily reconciliation rollup: counts and amounts per event
// type, used to cross-check ledger totals against wallet deltas.
type Summary struct {
	Date     string                 `json:"date"`
	Total    int                    `json:"total_entries"`
	ByEvent  map[string]EventTotals `json:"by_event"`
	ByStatus map[string]int         `json:"by_status"`
}

type Service struct {
	Entries Reader
}

func NewService(entries Reader) *Service {
	return &Service{Entries: entries}
}

func (s *Service) EntriesByDate(ctx context.Context, date time.Time) ([]*models.LedgerEntry, error) {
	return s.Entries.EntriesByDate(ctx, date)
}

func (s *Service) EntriesByJob(ctx context.Context, jobID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.Entries.EntriesByJob(ctx, jobID)
}

// ReconciliationSummary aggregates the given UTC calendar date.
func (s *Service) ReconciliationSummary(ctx context.Context, date time.Time) (*Summary, error) {
	entries, err := s.Entries.EntriesByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		Date:     date.UTC().Format("2006-01-02"),
		Total:    len(entries),
		ByEvent:  make(map[string]EventTotals),
		ByStatus: make(map[string]int),
	}
	for _, e := range entries {
		t := sum.ByEvent[e.EventType]
		t.Count++
		t.Amount = t.Amount.Add(e.Amount)
		sum.ByEvent[e.EventType] = t
		sum.ByStatus[e.Status]++
	}
	return sum, nil
}
