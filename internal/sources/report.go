package sources

import (
	"hash/fnv"
	"math"
	"regexp"
	"strconv"
	"time"

	"transit-tracker/internal/geo"
	"transit-tracker/internal/gtfs"
	"transit-tracker/internal/tracking"
)

// routeNumberRegex picks the route number out of a feed route id
// (e.g. "10" -> 10, "M10" -> 10, "route-42-weekday" -> 42).
var routeNumberRegex = regexp.MustCompile(`\d+`)

// RouteNumber extracts the numeric route number from a feed route id.
func RouteNumber(routeID string) (int32, bool) {
	m := routeNumberRegex.FindString(routeID)
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(m, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(n), true
}

// VehicleID maps a feed vehicle key to the numeric id markers are keyed by.
// Numeric keys are used as is; anything else is hashed.
func VehicleID(key string) int64 {
	if n, err := strconv.ParseInt(key, 10, 64); err == nil {
		return n
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & math.MaxInt64)
}

func quality(p gtfs.VehiclePosition, now time.Time, staleAfter time.Duration) tracking.DataQuality {
	if !p.HasPosition {
		return tracking.NoData
	}
	if staleAfter > 0 && !p.Timestamp.IsZero() && now.Sub(p.Timestamp) > staleAfter {
		return tracking.InvalidData
	}
	return tracking.ValidData
}

// buildReports turns feed positions into reports for the wanted routes. A
// wanted route without any position gets a single NoData report so the
// session can tell it apart from a route that is live.
func buildReports(positions []gtfs.VehiclePosition, routes []int32, now time.Time, staleAfter time.Duration) []tracking.VehicleReport {
	wanted := tracking.RouteSet{}
	for _, r := range routes {
		wanted.Add(r)
	}

	seen := tracking.RouteSet{}
	var out []tracking.VehicleReport
	for _, p := range positions {
		n, ok := RouteNumber(p.RouteID)
		if !ok || !wanted.Has(n) {
			continue
		}
		seen.Add(n)
		out = append(out, tracking.VehicleReport{
			VehicleID:      VehicleID(p.VehicleKey),
			RouteNumber:    n,
			TripID:         p.TripID,
			Coordinate:     geo.Coordinate{Latitude: p.Lat, Longitude: p.Lon},
			HeadingDegrees: p.Bearing,
			DataQuality:    quality(p, now, staleAfter),
			Timestamp:      p.Timestamp,
		})
	}

	for _, r := range routes {
		if seen.Has(r) {
			continue
		}
		seen.Add(r)
		out = append(out, tracking.VehicleReport{RouteNumber: r, DataQuality: tracking.NoData, Timestamp: now})
	}
	return out
}
