package tracking

import (
	"time"

	"transit-tracker/internal/geo"
)

// DataQuality is the live-data source's verdict on a report.
type DataQuality int

const (
	NoData DataQuality = iota
	InvalidData
	ValidData
)

func (q DataQuality) String() string {
	switch q {
	case NoData:
		return "noData"
	case InvalidData:
		return "invalidData"
	case ValidData:
		return "validData"
	default:
		return "unknown"
	}
}

func (q DataQuality) MarshalText() ([]byte, error) { return []byte(q.String()), nil }

// VehicleReport is one snapshot from the live-data source. It lives for a
// single poll.
type VehicleReport struct {
	VehicleID      int64          `json:"vehicleId"`
	RouteNumber    int32          `json:"routeNumber"`
	TripID         string         `json:"tripId,omitempty"`
	Coordinate     geo.Coordinate `json:"coordinate"`
	HeadingDegrees float64        `json:"heading"`
	DataQuality    DataQuality    `json:"dataQuality"`
	Timestamp      time.Time      `json:"timestamp"`
}

// VehicleMarker is the persistent map representation of a tracked vehicle.
type VehicleMarker struct {
	VehicleID      int64          `json:"vehicleId"`
	RouteNumber    int32          `json:"routeNumber"`
	Coordinate     geo.Coordinate `json:"coordinate"`
	HeadingDegrees float64        `json:"heading"`
	LastReport     VehicleReport  `json:"lastReport"`
}

// IndicatorMarker stands in for a vehicle whose true position is off screen.
type IndicatorMarker struct {
	VehicleID      int64          `json:"vehicleId"`
	Placement      geo.Coordinate `json:"placement"`
	BearingDegrees float64        `json:"bearing"`
	Edge           geo.Edge       `json:"edge"`
}

// Connectivity is the live-tracking state shown for a boarding segment.
type Connectivity int

const (
	ConnectivityNoData Connectivity = iota
	ConnectivityStale
	ConnectivityLive
)

func (c Connectivity) String() string {
	switch c {
	case ConnectivityNoData:
		return "noData"
	case ConnectivityStale:
		return "stale"
	case ConnectivityLive:
		return "live"
	default:
		return "unknown"
	}
}

func (c Connectivity) MarshalText() ([]byte, error) { return []byte(c.String()), nil }
