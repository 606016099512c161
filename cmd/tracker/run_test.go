package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-tracker/internal/geo"
	"transit-tracker/internal/timeline"
)

func TestRouteBoundsCoversPathWithMargin(t *testing.T) {
	route := &timeline.Route{Segments: []timeline.Segment{
		{StartLocation: geo.Coordinate{Latitude: 41.0, Longitude: 2.0}},
		{Path: []geo.Coordinate{{Latitude: 41.2, Longitude: 2.4}, {}}},
	}}

	r := routeBounds(route)
	assert.InDelta(t, 40.98, r.Min.Latitude, 1e-9)
	assert.InDelta(t, 1.96, r.Min.Longitude, 1e-9)
	assert.InDelta(t, 41.22, r.Max.Latitude, 1e-9)
	assert.InDelta(t, 2.44, r.Max.Longitude, 1e-9)
}

func TestRouteBoundsWithoutCoordinates(t *testing.T) {
	r := routeBounds(&timeline.Route{})
	assert.Equal(t, -90.0, r.Min.Latitude)
	assert.Equal(t, 180.0, r.Max.Longitude)
}

func TestRetryConnectStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := retryConnect(ctx, "test", func() (int, error) {
		calls++
		return 0, errors.New("refused")
	})
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestRetryConnectReturnsValue(t *testing.T) {
	v, err := retryConnect(context.Background(), "test", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
