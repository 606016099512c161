package geo

import "math"

const earthRadiusMeters = 6371000.0

// Coordinate is a WGS84 position. Values are compared by value.
type Coordinate struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"long"`
}

// IsZero reports whether c is the (0,0) coordinate.
func (c Coordinate) IsZero() bool {
	return c.Latitude == 0 && c.Longitude == 0
}

func toRad(d float64) float64 { return d * math.Pi / 180 }

// Bearing returns the great-circle initial bearing in degrees [0, 360) from one
// coordinate to another.
func Bearing(from, to Coordinate) float64 {
	phi1 := toRad(from.Latitude)
	phi2 := toRad(to.Latitude)
	deltaLon := toRad(to.Longitude - from.Longitude)

	y := math.Sin(deltaLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(deltaLon)

	brng := math.Mod(math.Atan2(y, x)*180/math.Pi+360, 360)
	if brng >= 360 {
		brng = 0
	}
	return brng
}

// Haversine distance in meters
func Haversine(a, b Coordinate) float64 {
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
