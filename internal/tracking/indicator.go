package tracking

import (
	"transit-tracker/internal/geo"
)

// UpdateIndicators brings the indicator set in line with the markers and the
// viewport. A vehicle inside the viewport loses its indicator, since it is
// drawn directly. A vehicle outside gets an indicator clamped to the viewport
// boundary and pointing at its true position. Indicators whose vehicle is no
// longer tracked are removed. With unchanged inputs the result is unchanged.
func UpdateIndicators(markers map[int64]*VehicleMarker, viewport geo.Rect, indicators map[int64]*IndicatorMarker) {
	for id := range indicators {
		if _, ok := markers[id]; !ok {
			delete(indicators, id)
		}
	}

	for id, m := range markers {
		if viewport.Contains(m.Coordinate) {
			delete(indicators, id)
			continue
		}

		placement := geo.ClampToViewport(m.Coordinate, viewport)
		edge, _ := geo.NearestEdge(placement, viewport)
		bearing := geo.Bearing(placement, m.Coordinate)

		if ind, ok := indicators[id]; ok {
			ind.Placement = placement
			ind.BearingDegrees = bearing
			ind.Edge = edge
			continue
		}
		indicators[id] = &IndicatorMarker{
			VehicleID:      id,
			Placement:      placement,
			BearingDegrees: bearing,
			Edge:           edge,
		}
	}
}

// Render is what the map draws for one vehicle: exactly one of Direct and
// Indicator is set.
type Render struct {
	VehicleID int64            `json:"vehicleId"`
	Direct    *VehicleMarker   `json:"direct,omitempty"`
	Indicator *IndicatorMarker `json:"indicator,omitempty"`
}

// RenderSet combines markers and indicators into one set keyed by vehicle id.
// It expects indicators to have been brought up to date for viewport.
func RenderSet(markers map[int64]*VehicleMarker, indicators map[int64]*IndicatorMarker, viewport geo.Rect) map[int64]Render {
	out := make(map[int64]Render, len(markers))
	for id, m := range markers {
		if ind, ok := indicators[id]; ok && !viewport.Contains(m.Coordinate) {
			c := *ind
			out[id] = Render{VehicleID: id, Indicator: &c}
			continue
		}
		c := *m
		out[id] = Render{VehicleID: id, Direct: &c}
	}
	return out
}
