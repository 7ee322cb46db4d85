package refnum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gigbridge/backend/internal/models"
)

// ErrUnknownKind is returned for a kind with no registered prefix.
var ErrUnknownKind = errors.New("unknown reference kind")

// prefixes maps a reference kind to its 2-letter prefix.
var prefixes = map[string]string{
	models.RefKindBill:        "BL",
	models.RefKindTransaction: "TX",
	models.RefKindPayment:     "PM",
}

// CounterStore advances a per-kind-per-day counter atomically and returns
// the new value. Values are strictly increasing and never reused.
type CounterStore interface {
	Next(ctx context.Context, kind, day string) (int64, error)
}

// Allocator issues human-readable reference numbers of the form
// PREFIX-YYYYMMDD-NNNN. On backing-store failure it fails closed: no
// fallback identifier is ever emitted, the caller retries.
type Allocator struct {
	Counters CounterStore
	Log      *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewAllocator(counters CounterStore, log *slog.Logger) *Allocator {
	if log == nil {
		log = slog.Default()
	}
	return &Allocator{Counters: counters, Log: log, now: time.Now}
}

// Generate allocates the next reference number for kind.
func (a *Allocator) Generate(ctx context.Context, kind string) (string, error) {
	prefix, ok := prefixes[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	day := a.now().UTC().Format("20060102")
	n, err := a.Counters.Next(ctx, kind, day)
	if err != nil {
		a.Log.Warn("sequence allocation failed", "kind", kind, "day", day, "error", err)
		return "", fmt.Errorf("allocate %s sequence: %w", kind, err)
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, day, n), nil
}
