package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// StopDelay is one row of stop_delays: the latest known delay of a trip at a
// stop.
type StopDelay struct {
	TripID       string
	StopID       string
	DelaySeconds int
	UpdatedAt    time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS stop_delays (
  trip_id       text        NOT NULL,
  stop_id       text        NOT NULL,
  delay_seconds integer     NOT NULL,
  updated_at    timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (trip_id, stop_id)
)`

// DelayStore reads and writes stop_delays.
type DelayStore struct {
	db *sql.DB
}

func NewDelayStore(db *sql.DB) *DelayStore { return &DelayStore{db: db} }

// EnsureSchema creates stop_delays when it does not exist yet.
func (s *DelayStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create stop_delays: %w", err)
	}
	return nil
}

// FetchStopDelay returns the delay stored for (tripID, stopID). The bool is
// false when there is no row.
func (s *DelayStore) FetchStopDelay(ctx context.Context, tripID, stopID string) (StopDelay, bool, error) {
	tripID, stopID = strings.TrimSpace(tripID), strings.TrimSpace(stopID)
	if tripID == "" || stopID == "" {
		return StopDelay{}, false, fmt.Errorf("trip and stop are required")
	}

	q := `
SELECT trip_id, stop_id, delay_seconds, updated_at
FROM stop_delays
WHERE trip_id = $1 AND stop_id = $2`

	var d StopDelay
	err := s.db.QueryRowContext(ctx, q, tripID, stopID).Scan(&d.TripID, &d.StopID, &d.DelaySeconds, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return StopDelay{}, false, nil
	}
	if err != nil {
		return StopDelay{}, false, fmt.Errorf("query stop_delays: %w", err)
	}
	return d, true, nil
}

// UpsertStopDelay records d, replacing any earlier value for the same pair.
// A zero UpdatedAt is stored as now.
func (s *DelayStore) UpsertStopDelay(ctx context.Context, d StopDelay) error {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	q := `
INSERT INTO stop_delays (trip_id, stop_id, delay_seconds, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (trip_id, stop_id)
DO UPDATE SET delay_seconds = EXCLUDED.delay_seconds, updated_at = EXCLUDED.updated_at`
	if _, err := s.db.ExecContext(ctx, q, d.TripID, d.StopID, d.DelaySeconds, d.UpdatedAt); err != nil {
		return fmt.Errorf("upsert stop_delays: %w", err)
	}
	return nil
}
