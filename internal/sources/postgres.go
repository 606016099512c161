package sources

import (
	"context"
	"time"

	"transit-tracker/internal/db"
)

const sourcePostgres = "postgres"

type stopDelayStore interface {
	FetchStopDelay(ctx context.Context, tripID, stopID string) (db.StopDelay, bool, error)
}

// PostgresDelays is a DelaySource over the stop_delays table. Rows older than
// maxAge count as absent; a zero maxAge keeps every row.
type PostgresDelays struct {
	store  stopDelayStore
	maxAge time.Duration
	now    func() time.Time
}

func NewPostgresDelays(store *db.DelayStore, maxAge time.Duration) *PostgresDelays {
	return &PostgresDelays{store: store, maxAge: maxAge, now: time.Now}
}

func (p *PostgresDelays) Delay(ctx context.Context, tripID, stopID string) (int, bool, error) {
	d, ok, err := p.store.FetchStopDelay(ctx, tripID, stopID)
	if err != nil {
		return 0, false, transportError(sourcePostgres, "delay", err)
	}
	if !ok {
		return 0, false, nil
	}
	if p.maxAge > 0 && p.now().Sub(d.UpdatedAt) > p.maxAge {
		return 0, false, nil
	}
	return d.DelaySeconds, true, nil
}
