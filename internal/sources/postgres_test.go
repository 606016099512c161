package sources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-tracker/internal/db"
	"transit-tracker/internal/geo"
)

type fakeStopDelays struct {
	rows map[string]db.StopDelay
	err  error
}

func (f fakeStopDelays) FetchStopDelay(_ context.Context, tripID, stopID string) (db.StopDelay, bool, error) {
	if f.err != nil {
		return db.StopDelay{}, false, f.err
	}
	d, ok := f.rows[tripID+"/"+stopID]
	return d, ok, nil
}

func TestPostgresDelays(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	store := fakeStopDelays{rows: map[string]db.StopDelay{
		"t1/s1": {TripID: "t1", StopID: "s1", DelaySeconds: 240, UpdatedAt: now.Add(-time.Minute)},
		"t2/s1": {TripID: "t2", StopID: "s1", DelaySeconds: 60, UpdatedAt: now.Add(-time.Hour)},
	}}
	p := &PostgresDelays{store: store, maxAge: 10 * time.Minute, now: func() time.Time { return now }}
	ctx := context.Background()

	d, ok, err := p.Delay(ctx, "t1", "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 240, d)

	_, ok, err = p.Delay(ctx, "t2", "s1")
	require.NoError(t, err)
	assert.False(t, ok, "rows older than maxAge are ignored")

	_, ok, err = p.Delay(ctx, "t3", "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	p.store = fakeStopDelays{err: errors.New("connection reset")}
	_, _, err = p.Delay(ctx, "t1", "s1")
	assert.ErrorIs(t, err, ErrTransport)
}

func TestViewportFeedCollapsesBursts(t *testing.T) {
	first := geo.NewRect(geo.Coordinate{}, geo.Coordinate{Latitude: 10, Longitude: 10})
	feed := NewViewportFeed(first)
	assert.Equal(t, first, feed.Current())

	small := geo.NewRect(geo.Coordinate{}, geo.Coordinate{Latitude: 2, Longitude: 2})
	smaller := geo.NewRect(geo.Coordinate{}, geo.Coordinate{Latitude: 1, Longitude: 1})
	feed.Set(small)
	feed.Set(smaller)

	assert.Equal(t, smaller, feed.Current())
	select {
	case r := <-feed.Changes():
		assert.Equal(t, smaller, r)
	default:
		t.Fatal("expected a pending change")
	}
	select {
	case <-feed.Changes():
		t.Fatal("burst should collapse into one event")
	default:
	}
}
