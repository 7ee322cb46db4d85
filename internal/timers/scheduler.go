package timers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/shopspring/decimal"
)

// InsertFunc enqueues a River job. Provided by main as a closure over
// river.Client.Insert.
type InsertFunc func(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) error

// RiverScheduler implements the coordinator's Scheduler on the River queue.
// Jobs are unique by args, so re-driving a saga step never stacks duplicate
// timers for the same job.
type RiverScheduler struct {
	insert InsertFunc
}

func NewRiverScheduler(insert InsertFunc) *RiverScheduler {
	return &RiverScheduler{insert: insert}
}

func (s *RiverScheduler) ScheduleDisputeExpiry(ctx context.Context, jobID uuid.UUID, at time.Time) error {
	return s.insert(ctx, DisputeExpiryArgs{JobID: jobID}, &river.InsertOpts{
		ScheduledAt: at,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	})
}

func (s *RiverScheduler) SchedulePendingClearance(ctx context.Context, jobID, payeeID uuid.UUID, amount decimal.Decimal, at time.Time) error {
	return s.insert(ctx, PendingClearanceArgs{JobID: jobID, PayeeID: payeeID, Amount: amount}, &river.InsertOpts{
		ScheduledAt: at,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	})
}
