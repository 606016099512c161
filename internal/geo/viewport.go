package geo

import "math"

// Rect is an axis-aligned viewport in latitude/longitude space. Min is the
// south-west corner, Max the north-east corner. Viewports crossing the
// antimeridian are not supported.
type Rect struct {
	Min Coordinate `json:"min"`
	Max Coordinate `json:"max"`
}

// NewRect builds a Rect from any two opposite corners.
func NewRect(a, b Coordinate) Rect {
	return Rect{
		Min: Coordinate{Latitude: math.Min(a.Latitude, b.Latitude), Longitude: math.Min(a.Longitude, b.Longitude)},
		Max: Coordinate{Latitude: math.Max(a.Latitude, b.Latitude), Longitude: math.Max(a.Longitude, b.Longitude)},
	}
}

// Contains reports whether p lies inside r. The boundary is inclusive.
func (r Rect) Contains(p Coordinate) bool {
	return p.Latitude >= r.Min.Latitude && p.Latitude <= r.Max.Latitude &&
		p.Longitude >= r.Min.Longitude && p.Longitude <= r.Max.Longitude
}

func (r Rect) Center() Coordinate {
	return Coordinate{
		Latitude:  (r.Min.Latitude + r.Max.Latitude) / 2,
		Longitude: (r.Min.Longitude + r.Max.Longitude) / 2,
	}
}

// IsEmpty reports a degenerate viewport (zero or negative extent on an axis).
func (r Rect) IsEmpty() bool {
	return r.Max.Latitude <= r.Min.Latitude || r.Max.Longitude <= r.Min.Longitude
}

// Edge names a side of a viewport.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeNorth
	EdgeSouth
	EdgeEast
	EdgeWest
)

func (e Edge) String() string {
	switch e {
	case EdgeNorth:
		return "north"
	case EdgeSouth:
		return "south"
	case EdgeEast:
		return "east"
	case EdgeWest:
		return "west"
	default:
		return "none"
	}
}

func (e Edge) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// ClampToViewport returns p unchanged when it is inside r. Otherwise it
// returns the point where the segment from the centre of r to p crosses the
// boundary of r. The mapping is continuous in p, so an indicator following a
// moving vehicle slides along the edge instead of jumping between corners.
func ClampToViewport(p Coordinate, r Rect) Coordinate {
	if r.Contains(p) {
		return p
	}
	c := r.Center()
	dLat := p.Latitude - c.Latitude
	dLon := p.Longitude - c.Longitude
	halfLat := (r.Max.Latitude - r.Min.Latitude) / 2
	halfLon := (r.Max.Longitude - r.Min.Longitude) / 2

	tLat, tLon := math.Inf(1), math.Inf(1)
	if dLat != 0 {
		tLat = halfLat / math.Abs(dLat)
	}
	if dLon != 0 {
		tLon = halfLon / math.Abs(dLon)
	}
	t := math.Min(1, math.Min(tLat, tLon))

	out := Coordinate{
		Latitude:  c.Latitude + dLat*t,
		Longitude: c.Longitude + dLon*t,
	}
	// snap the limiting axis onto the edge so the result is exactly on the boundary
	if tLat <= tLon {
		out.Latitude = edgeValue(dLat, r.Min.Latitude, r.Max.Latitude)
	}
	if tLon <= tLat {
		out.Longitude = edgeValue(dLon, r.Min.Longitude, r.Max.Longitude)
	}
	out.Latitude = clamp(out.Latitude, r.Min.Latitude, r.Max.Latitude)
	out.Longitude = clamp(out.Longitude, r.Min.Longitude, r.Max.Longitude)
	return out
}

// NearestEdge projects p onto the closest side of r and reports which side it
// landed on. Ties resolve in the order north, south, east, west.
func NearestEdge(p Coordinate, r Rect) (Edge, Coordinate) {
	lat := clamp(p.Latitude, r.Min.Latitude, r.Max.Latitude)
	lon := clamp(p.Longitude, r.Min.Longitude, r.Max.Longitude)

	candidates := []struct {
		edge Edge
		at   Coordinate
	}{
		{EdgeNorth, Coordinate{Latitude: r.Max.Latitude, Longitude: lon}},
		{EdgeSouth, Coordinate{Latitude: r.Min.Latitude, Longitude: lon}},
		{EdgeEast, Coordinate{Latitude: lat, Longitude: r.Max.Longitude}},
		{EdgeWest, Coordinate{Latitude: lat, Longitude: r.Min.Longitude}},
	}
	dist := func(c Coordinate) float64 {
		return math.Hypot(p.Latitude-c.Latitude, p.Longitude-c.Longitude)
	}
	best, bestDist := candidates[0], dist(candidates[0].at)
	for _, c := range candidates[1:] {
		if d := dist(c.at); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best.edge, best.at
}

func edgeValue(delta, lo, hi float64) float64 {
	if delta < 0 {
		return lo
	}
	return hi
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
