package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-tracker/internal/geo"
)

// propagationRoute builds [Board, Arrive, Transfer, Board, Arrive].
func propagationRoute(t *testing.T) *Route {
	t.Helper()
	route, err := FromDirections([]RawDirection{
		boardRaw(10, "t-10", "A", "B", pt(1, 1), pt(2, 2)),
		arriveRaw("B", pt(2, 2)),
		{Type: "transfer", Name: "B", Path: []geo.Coordinate{pt(2, 2)}},
		boardRaw(30, "t-30", "B", "C", pt(2, 2), pt(3, 3)),
		arriveRaw("C", pt(3, 3)),
	})
	require.NoError(t, err)
	return route
}

func delays(r *Route) []*int {
	out := make([]*int, len(r.Segments))
	for i := range r.Segments {
		out[i] = r.Segments[i].DelaySeconds
	}
	return out
}

func intp(v int) *int { return &v }

func TestApplyDelayPropagatesToNextBoarding(t *testing.T) {
	route := propagationRoute(t)

	ApplyDelay(route, 120)

	assert.Equal(t, []*int{intp(120), intp(120), intp(120), nil, nil}, delays(route))
}

func TestApplyDelayIsIdempotent(t *testing.T) {
	route := propagationRoute(t)

	ApplyDelay(route, 90)
	once := delays(route)
	ApplyDelay(route, 90)

	assert.Equal(t, once, delays(route))
}

func TestApplyDelayResetsPreviousValues(t *testing.T) {
	route := propagationRoute(t)
	route.Segments[3].DelaySeconds = intp(45)
	route.Segments[4].DelaySeconds = intp(45)

	ApplyDelay(route, -30)

	assert.Equal(t, []*int{intp(-30), intp(-30), intp(-30), nil, nil}, delays(route))
}

func TestApplyDelayStopsAtRide(t *testing.T) {
	ride := boardRaw(11, "t-11", "B", "C", pt(2, 2), pt(3, 3))
	ride.StayOnBusForTransfer = true
	route, err := FromDirections([]RawDirection{
		{Type: "walk", Path: []geo.Coordinate{pt(0, 0), pt(1, 1)}},
		boardRaw(10, "t-10", "A", "B", pt(1, 1), pt(2, 2)),
		ride,
		arriveRaw("C", pt(3, 3)),
	})
	require.NoError(t, err)

	ApplyDelay(route, 30)

	// the walk before the first boarding leg is untouched
	assert.Equal(t, []*int{nil, intp(30), nil, nil}, delays(route))
}

func TestApplyDelayWithoutBoardingIsNoop(t *testing.T) {
	route, err := FromDirections([]RawDirection{
		{Type: "walk", Path: []geo.Coordinate{pt(0, 0), pt(0, 1)}},
		arriveRaw("Library", pt(0, 1)),
	})
	require.NoError(t, err)

	ApplyDelay(route, 60)

	assert.Equal(t, []*int{nil, nil}, delays(route))
}

func TestDelayTarget(t *testing.T) {
	route := propagationRoute(t)
	trip, stop, ok := DelayTarget(route)
	require.True(t, ok)
	assert.Equal(t, "t-10", trip)
	assert.Equal(t, "A", stop)

	walking, err := FromDirections([]RawDirection{{Type: "walk", Path: []geo.Coordinate{pt(0, 0)}}})
	require.NoError(t, err)
	_, _, ok = DelayTarget(walking)
	assert.False(t, ok)
}
