package timeline

import (
	"time"

	"transit-tracker/internal/geo"
)

// Kind tags the variant of a Segment.
type Kind int

const (
	Walk Kind = iota
	Board
	Ride
	Transfer
	Arrive
)

func (k Kind) String() string {
	switch k {
	case Walk:
		return "walk"
	case Board:
		return "board"
	case Ride:
		return "ride"
	case Transfer:
		return "transfer"
	case Arrive:
		return "arrive"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// IsBoarding reports whether the segment puts the rider on a vehicle.
func (k Kind) IsBoarding() bool {
	switch k {
	case Board, Ride:
		return true
	case Walk, Transfer, Arrive:
		return false
	default:
		return false
	}
}

// SegmentID is the position of a segment in its route's travel order.
type SegmentID int

type Stop struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Transit carries the fields that only Board and Ride segments have.
type Transit struct {
	RouteNumber int32    `json:"routeNumber"`
	TripIDs     []string `json:"tripIds"`
	Stops       []Stop   `json:"stops"`
}

// Segment is one leg of a trip timeline.
type Segment struct {
	ID            SegmentID        `json:"id"`
	Kind          Kind             `json:"kind"`
	Path          []geo.Coordinate `json:"path"`
	LocationName  string           `json:"locationName"`
	StartLocation geo.Coordinate   `json:"startLocation"`
	EndLocation   geo.Coordinate   `json:"endLocation"`
	StartTime     time.Time        `json:"startTime"`
	EndTime       time.Time        `json:"endTime"`

	// DelaySeconds is nil until a delay has been applied.
	DelaySeconds *int `json:"delaySeconds,omitempty"`

	// Transit is set for Board and Ride only.
	Transit *Transit `json:"transit,omitempty"`

	// IsSyntheticStopRow marks an Arrive row that stands for a pass-through
	// stop rather than a real arrival.
	IsSyntheticStopRow bool `json:"isSyntheticStopRow,omitempty"`
}

// RouteNumber returns the transit route number, or 0 for non-boarding segments.
func (s *Segment) RouteNumber() int32 {
	if s.Transit == nil {
		return 0
	}
	return s.Transit.RouteNumber
}

func (s *Segment) delay() time.Duration {
	if s.DelaySeconds == nil {
		return 0
	}
	return time.Duration(*s.DelaySeconds) * time.Second
}

// EffectiveStart is the scheduled start shifted by the applied delay.
func (s *Segment) EffectiveStart() time.Time {
	if s.StartTime.IsZero() {
		return s.StartTime
	}
	return s.StartTime.Add(s.delay())
}

// EffectiveEnd is the scheduled end shifted by the applied delay.
func (s *Segment) EffectiveEnd() time.Time {
	if s.EndTime.IsZero() {
		return s.EndTime
	}
	return s.EndTime.Add(s.delay())
}

// IsLate reports a positive applied delay.
func (s *Segment) IsLate() bool {
	return s.DelaySeconds != nil && *s.DelaySeconds > 0
}
