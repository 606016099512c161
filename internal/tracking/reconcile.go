package tracking

import (
	"encoding/json"
	"fmt"
	"slices"

	"transit-tracker/internal/geo"
)

// minMoveMeters is the displacement below which the reported heading is kept
// instead of the heading of travel.
const minMoveMeters = 1.0

// RouteSet is a deduplicated set of route numbers.
type RouteSet map[int32]struct{}

func (s RouteSet) Add(n int32) { s[n] = struct{}{} }

func (s RouteSet) Has(n int32) bool {
	_, ok := s[n]
	return ok
}

// Sorted returns the members in ascending order.
func (s RouteSet) Sorted() []int32 {
	out := make([]int32, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

func (s RouteSet) MarshalJSON() ([]byte, error) { return json.Marshal(s.Sorted()) }

// ReconcileSummary describes one merged batch, so callers can build banner
// text without rescanning marker state.
type ReconcileSummary struct {
	DegradedRoutes   RouteSet               `json:"degradedRoutes"`
	NewlyValidRoutes RouteSet               `json:"newlyValidRoutes"`
	RouteStates      map[int32]Connectivity `json:"routeStates"`
	Inserted         int                    `json:"inserted"`
	Updated          int                    `json:"updated"`
}

func newSummary() ReconcileSummary {
	return ReconcileSummary{
		DegradedRoutes:   RouteSet{},
		NewlyValidRoutes: RouteSet{},
		RouteStates:      map[int32]Connectivity{},
	}
}

// Reconcile merges a batch of reports into the marker set keyed by vehicle
// id. Valid reports update an existing marker in place or insert a new one.
// NoData and InvalidData reports never touch markers; their route numbers are
// collected as degraded. Markers missing from the batch are kept.
func Reconcile(existing map[int64]*VehicleMarker, reports []VehicleReport) ReconcileSummary {
	summary := newSummary()

	for _, r := range reports {
		summary.observe(r)

		if r.DataQuality != ValidData {
			summary.DegradedRoutes.Add(r.RouteNumber)
			continue
		}

		if m, ok := existing[r.VehicleID]; ok {
			m.update(r)
			summary.Updated++
			continue
		}
		existing[r.VehicleID] = &VehicleMarker{
			VehicleID:      r.VehicleID,
			RouteNumber:    r.RouteNumber,
			Coordinate:     r.Coordinate,
			HeadingDegrees: r.HeadingDegrees,
			LastReport:     r,
		}
		summary.NewlyValidRoutes.Add(r.RouteNumber)
		summary.Inserted++
	}
	return summary
}

// observe folds a report into the per-route connectivity: any valid report
// makes a route live, otherwise any invalid one makes it stale.
func (s *ReconcileSummary) observe(r VehicleReport) {
	var c Connectivity
	switch r.DataQuality {
	case ValidData:
		c = ConnectivityLive
	case InvalidData:
		c = ConnectivityStale
	case NoData:
		c = ConnectivityNoData
	default:
		c = ConnectivityNoData
	}
	if prev, ok := s.RouteStates[r.RouteNumber]; !ok || c > prev {
		s.RouteStates[r.RouteNumber] = c
	}
}

func (m *VehicleMarker) update(r VehicleReport) {
	heading := r.HeadingDegrees
	if geo.Haversine(m.Coordinate, r.Coordinate) >= minMoveMeters {
		heading = geo.Bearing(m.Coordinate, r.Coordinate)
	}
	m.Coordinate = r.Coordinate
	m.HeadingDegrees = heading
	m.RouteNumber = r.RouteNumber
	m.LastReport = r
}

// Banner is presentation text for a route without live positions.
type Banner struct {
	RouteNumber  int32        `json:"routeNumber"`
	Connectivity Connectivity `json:"connectivity"`
	Message      string       `json:"message"`
}

// Banners turns the summary into banners for the given routes, in the order
// given. Live routes produce no banner. A route absent from the summary is
// treated as having no data.
func Banners(summary ReconcileSummary, routes []int32) []Banner {
	var out []Banner
	for _, n := range routes {
		state, ok := summary.RouteStates[n]
		if !ok {
			state = ConnectivityNoData
		}
		switch state {
		case ConnectivityLive:
			continue
		case ConnectivityStale:
			out = append(out, Banner{RouteNumber: n, Connectivity: state, Message: "Tracking available near departure time"})
		case ConnectivityNoData:
			out = append(out, Banner{RouteNumber: n, Connectivity: state, Message: fmt.Sprintf("No live tracking for route %d", n)})
		}
	}
	return out
}
