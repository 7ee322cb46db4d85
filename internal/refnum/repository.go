package refnum

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CounterRepo is the Postgres-backed CounterStore. The upsert is a single
// atomic statement, so concurrent callers each observe a distinct value.
type CounterRepo struct {
	pool *pgxpool.Pool
}

func NewCounterRepo(pool *pgxpool.Pool) *CounterRepo {
	return &CounterRepo{pool: pool}
}

var _ CounterStore = (*CounterRepo)(nil)

func (r *CounterRepo) Next(ctx context.Context, kind, day string) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sequence_counters (kind, day, current_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (kind, day) DO UPDATE SET current_value = sequence_counters.current_value + 1
		RETURNING current_value
	`, kind, day).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
