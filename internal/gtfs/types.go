package gtfs

import "time"

// VehiclePosition is one vehicle position decoded from a realtime feed,
// before it is judged for freshness and matched to a route number.
type VehiclePosition struct {
	VehicleKey  string // feed vehicle id, or "entity:<id>" when the feed has none
	TripID      string
	RouteID     string
	Lat         float64
	Lon         float64
	HasPosition bool
	Bearing     float64
	Timestamp   time.Time // zero when the feed omits it
}

// TripDelay is the delay information of one stop of a trip update.
type TripDelay struct {
	TripID         string
	StopID         string
	ArrivalDelay   *int
	DepartureDelay *int
}

// Seconds returns the departure delay, falling back to the arrival delay.
func (d TripDelay) Seconds() (int, bool) {
	switch {
	case d.DepartureDelay != nil:
		return *d.DepartureDelay, true
	case d.ArrivalDelay != nil:
		return *d.ArrivalDelay, true
	default:
		return 0, false
	}
}

// DelayKey is used to look up delays by (trip_id, stop_id).
type DelayKey struct {
	TripID string
	StopID string
}

// PositionMessage is the JSON body of a vehicle position pushed over NATS.
type PositionMessage struct {
	VehicleID string    `json:"vehicleId"`
	TripID    string    `json:"tripId"`
	RouteID   string    `json:"routeId"`
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Bearing   float64   `json:"bearing"`
}

func (m PositionMessage) Position() VehiclePosition {
	return VehiclePosition{
		VehicleKey:  m.VehicleID,
		TripID:      m.TripID,
		RouteID:     m.RouteID,
		Lat:         m.Lat,
		Lon:         m.Lon,
		HasPosition: m.Lat != 0 || m.Lon != 0,
		Bearing:     m.Bearing,
		Timestamp:   m.Timestamp,
	}
}
