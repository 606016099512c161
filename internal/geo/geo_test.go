package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearing(t *testing.T) {
	tests := []struct {
		name      string
		from, to  Coordinate
		expected  float64
		tolerance float64
	}{
		{"North direction", Coordinate{40, -122}, Coordinate{41, -122}, 0, 0.001},
		{"East direction", Coordinate{40, -122}, Coordinate{40, -121}, 90, 1},
		{"South direction", Coordinate{41, -122}, Coordinate{40, -122}, 180, 0.001},
		{"West direction", Coordinate{40, -121}, Coordinate{40, -122}, 270, 1},
		{"Northeast direction", Coordinate{2, 2}, Coordinate{5, 5}, 45, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Bearing(tt.from, tt.to), tt.tolerance)
		})
	}
}

func TestBearingRange(t *testing.T) {
	points := []Coordinate{{0, 0}, {10, 10}, {-10, 10}, {-10, -10}, {10, -10}, {0, 0.0001}}
	for _, a := range points {
		for _, b := range points {
			brng := Bearing(a, b)
			assert.GreaterOrEqual(t, brng, 0.0)
			assert.Less(t, brng, 360.0)
		}
	}
}

func TestHaversine(t *testing.T) {
	// one degree of latitude is roughly 111.2 km
	d := Haversine(Coordinate{0, 0}, Coordinate{1, 0})
	assert.InDelta(t, 111195, d, 100)
	assert.Zero(t, Haversine(Coordinate{42.44, -76.5}, Coordinate{42.44, -76.5}))
}

func TestRectContainsIsInclusive(t *testing.T) {
	r := NewRect(Coordinate{0, 0}, Coordinate{10, 10})

	assert.True(t, r.Contains(Coordinate{5, 5}))
	assert.True(t, r.Contains(Coordinate{0, 0}))
	assert.True(t, r.Contains(Coordinate{10, 4}))
	assert.True(t, r.Contains(Coordinate{3, 10}))
	assert.False(t, r.Contains(Coordinate{10.0001, 4}))
	assert.False(t, r.Contains(Coordinate{-1, 5}))
}

func TestNewRectNormalisesCorners(t *testing.T) {
	r := NewRect(Coordinate{10, 2}, Coordinate{0, 8})
	assert.Equal(t, Coordinate{0, 2}, r.Min)
	assert.Equal(t, Coordinate{10, 8}, r.Max)
	assert.Equal(t, Coordinate{5, 5}, r.Center())
	assert.False(t, r.IsEmpty())
	assert.True(t, NewRect(Coordinate{1, 1}, Coordinate{1, 5}).IsEmpty())
}

func TestClampToViewport(t *testing.T) {
	r := NewRect(Coordinate{0, 0}, Coordinate{2, 2})

	t.Run("inside is unchanged", func(t *testing.T) {
		p := Coordinate{1.5, 0.5}
		assert.Equal(t, p, ClampToViewport(p, r))
	})

	t.Run("on the edge is unchanged", func(t *testing.T) {
		for _, p := range []Coordinate{{0, 1}, {2, 1}, {1, 0}, {1, 2}, {2, 2}} {
			assert.Equal(t, p, ClampToViewport(p, r))
		}
	})

	t.Run("diagonal lands on the corner", func(t *testing.T) {
		assert.Equal(t, Coordinate{2, 2}, ClampToViewport(Coordinate{5, 5}, r))
	})

	t.Run("due north lands mid edge", func(t *testing.T) {
		assert.Equal(t, Coordinate{2, 1}, ClampToViewport(Coordinate{9, 1}, r))
	})

	t.Run("result is on the boundary and on the centre ray", func(t *testing.T) {
		p := Coordinate{7, -3}
		got := ClampToViewport(p, r)
		require.True(t, r.Contains(got))
		onBoundary := got.Latitude == r.Min.Latitude || got.Latitude == r.Max.Latitude ||
			got.Longitude == r.Min.Longitude || got.Longitude == r.Max.Longitude
		assert.True(t, onBoundary)

		c := r.Center()
		// collinear with centre and p
		cross := (got.Latitude-c.Latitude)*(p.Longitude-c.Longitude) - (got.Longitude-c.Longitude)*(p.Latitude-c.Latitude)
		assert.InDelta(t, 0, cross, 1e-9)
	})

	t.Run("small perturbations move the result a little", func(t *testing.T) {
		a := ClampToViewport(Coordinate{5, 3}, r)
		b := ClampToViewport(Coordinate{5.001, 3.001}, r)
		assert.InDelta(t, a.Latitude, b.Latitude, 0.01)
		assert.InDelta(t, a.Longitude, b.Longitude, 0.01)
	})

	t.Run("deterministic", func(t *testing.T) {
		p := Coordinate{-4, 11}
		assert.Equal(t, ClampToViewport(p, r), ClampToViewport(p, r))
	})
}

func TestNearestEdge(t *testing.T) {
	r := NewRect(Coordinate{0, 0}, Coordinate{2, 2})

	tests := []struct {
		name string
		p    Coordinate
		edge Edge
		at   Coordinate
	}{
		{"north of box", Coordinate{5, 1}, EdgeNorth, Coordinate{2, 1}},
		{"south of box", Coordinate{-3, 1.5}, EdgeSouth, Coordinate{0, 1.5}},
		{"far east at mid latitude", Coordinate{1, 9}, EdgeEast, Coordinate{1, 2}},
		{"west of box", Coordinate{0.5, -1}, EdgeWest, Coordinate{0.5, 0}},
		{"inside near north", Coordinate{1.9, 1}, EdgeNorth, Coordinate{2, 1}},
		{"corner prefers north", Coordinate{2, 2}, EdgeNorth, Coordinate{2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edge, at := NearestEdge(tt.p, r)
			assert.Equal(t, tt.edge, edge)
			assert.Equal(t, tt.at, at)
		})
	}
}

func TestEdgeString(t *testing.T) {
	assert.Equal(t, "east", EdgeEast.String())
	b, err := EdgeWest.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "west", string(b))
}
