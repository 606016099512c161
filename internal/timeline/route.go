package timeline

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/jinzhu/copier"

	"transit-tracker/internal/geo"
)

// RawDirection is one entry of the flat direction list returned by the route
// source.
type RawDirection struct {
	Type                 string           `json:"type"`
	Name                 string           `json:"name"`
	StartLocation        geo.Coordinate   `json:"startLocation"`
	EndLocation          geo.Coordinate   `json:"endLocation"`
	StartTime            string           `json:"startTime"`
	EndTime              string           `json:"endTime"`
	Path                 []geo.Coordinate `json:"path"`
	RouteNumber          int32            `json:"routeNumber"`
	TripIdentifiers      []string         `json:"tripIdentifiers"`
	Stops                []Stop           `json:"stops"`
	StayOnBusForTransfer bool             `json:"stayOnBusForTransfer"`
	Delay                *int             `json:"delay"`
}

type WaypointType int

const (
	Origin WaypointType = iota
	StopPoint
	Destination
)

func (w WaypointType) String() string {
	switch w {
	case Origin:
		return "origin"
	case StopPoint:
		return "stop"
	case Destination:
		return "destination"
	default:
		return "unknown"
	}
}

func (w WaypointType) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

// Waypoint is a map pin derived from segment paths.
type Waypoint struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	Type       WaypointType   `json:"type"`
	SegmentID  SegmentID      `json:"segmentId"`
}

// Route is an ordered, gap-free timeline of segments.
type Route struct {
	Segments  []Segment  `json:"segments"`
	Waypoints []Waypoint `json:"waypoints"`
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02T15:04:05"}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTime, s)
}

// ParseDirections decodes a JSON direction array and builds the route.
func ParseDirections(r io.Reader) (*Route, error) {
	var raw []RawDirection
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode directions: %w", err)
	}
	return FromDirections(raw)
}

// FromDirections converts the route source's flat direction list into a Route.
func FromDirections(raw []RawDirection) (*Route, error) {
	if len(raw) == 0 {
		return nil, ErrNoSegments
	}

	route := &Route{Segments: make([]Segment, 0, len(raw))}
	for i, d := range raw {
		kind, err := inferKind(d, route.Segments)
		if err != nil {
			return nil, &ParseError{Index: i, Type: d.Type, Err: err}
		}
		if len(d.Path) == 0 {
			return nil, &ParseError{Index: i, Type: d.Type, Err: ErrEmptyPath}
		}
		start, err := parseTime(d.StartTime)
		if err != nil {
			return nil, &ParseError{Index: i, Type: d.Type, Err: err}
		}
		end, err := parseTime(d.EndTime)
		if err != nil {
			return nil, &ParseError{Index: i, Type: d.Type, Err: err}
		}

		seg := Segment{
			ID:            SegmentID(i),
			Kind:          kind,
			Path:          slices.Clone(d.Path),
			LocationName:  d.Name,
			StartLocation: d.StartLocation,
			EndLocation:   d.EndLocation,
			StartTime:     start,
			EndTime:       end,
		}
		if d.Delay != nil {
			v := *d.Delay
			seg.DelaySeconds = &v
		}
		switch kind {
		case Board, Ride:
			seg.Transit = &Transit{
				RouteNumber: d.RouteNumber,
				TripIDs:     slices.Clone(d.TripIdentifiers),
				Stops:       slices.Clone(d.Stops),
			}
		case Arrive:
			// (0,0) is the legacy marker for a pass-through stop row
			seg.IsSyntheticStopRow = d.StartLocation.IsZero()
			if err := checkArriveOrder(route.Segments); err != nil {
				return nil, &ParseError{Index: i, Type: d.Type, Err: err}
			}
		case Walk, Transfer:
		}
		route.Segments = append(route.Segments, seg)
	}

	route.Waypoints = buildWaypoints(route.Segments)
	return route, nil
}

func inferKind(d RawDirection, prior []Segment) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(d.Type)) {
	case "walk":
		return Walk, nil
	case "depart", "board":
		if d.StayOnBusForTransfer && lastBoarding(prior) != nil {
			return Ride, nil
		}
		return Board, nil
	case "ride":
		return Ride, nil
	case "transfer":
		return Transfer, nil
	case "arrive":
		return Arrive, nil
	default:
		return 0, ErrUnknownKind
	}
}

func lastBoarding(segs []Segment) *Segment {
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i].Kind.IsBoarding() {
			return &segs[i]
		}
	}
	return nil
}

// checkArriveOrder requires the nearest preceding real segment to be one an
// arrival can terminate. Synthetic stop rows are skipped.
func checkArriveOrder(prior []Segment) error {
	for i := len(prior) - 1; i >= 0; i-- {
		p := prior[i]
		if p.Kind == Arrive && p.IsSyntheticStopRow {
			continue
		}
		switch p.Kind {
		case Walk, Board, Ride:
			return nil
		case Transfer, Arrive:
			return ErrInconsistentOrdering
		}
	}
	return ErrInconsistentOrdering
}

func buildWaypoints(segs []Segment) []Waypoint {
	var boarding []int
	for i := range segs {
		if segs[i].Kind.IsBoarding() {
			boarding = append(boarding, i)
		}
	}

	if len(boarding) == 0 {
		first, last := segs[0], segs[len(segs)-1]
		return []Waypoint{
			{Coordinate: first.Path[0], Type: Origin, SegmentID: first.ID},
			{Coordinate: last.Path[len(last.Path)-1], Type: Destination, SegmentID: last.ID},
		}
	}

	wps := make([]Waypoint, 0, 2*len(boarding))
	for n, i := range boarding {
		seg := segs[i]
		wps = append(wps, Waypoint{Coordinate: seg.Path[0], Type: Origin, SegmentID: seg.ID})
		endType := StopPoint
		if n == len(boarding)-1 {
			endType = Destination
		}
		wps = append(wps, Waypoint{Coordinate: seg.Path[len(seg.Path)-1], Type: endType, SegmentID: seg.ID})
	}
	return wps
}

// FirstBoardingSegment returns the first Board or Ride segment in travel
// order, or nil for walking-only routes.
func (r *Route) FirstBoardingSegment() *Segment {
	for i := range r.Segments {
		if r.Segments[i].Kind.IsBoarding() {
			return &r.Segments[i]
		}
	}
	return nil
}

// SegmentsAfter yields every segment after id, in travel order.
func (r *Route) SegmentsAfter(id SegmentID) iter.Seq[*Segment] {
	return func(yield func(*Segment) bool) {
		for i := int(id) + 1; i < len(r.Segments); i++ {
			if i < 0 {
				continue
			}
			if !yield(&r.Segments[i]) {
				return
			}
		}
	}
}

// BoardingSegments returns pointers to every Board and Ride segment.
func (r *Route) BoardingSegments() []*Segment {
	var out []*Segment
	for i := range r.Segments {
		if r.Segments[i].Kind.IsBoarding() {
			out = append(out, &r.Segments[i])
		}
	}
	return out
}

// RouteNumbers lists the distinct route numbers of the boarding segments, in
// travel order.
func (r *Route) RouteNumbers() []int32 {
	var out []int32
	for _, seg := range r.BoardingSegments() {
		if n := seg.RouteNumber(); !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

// Snapshot returns a deep copy of the segments that callers may keep.
func (r *Route) Snapshot() ([]Segment, error) {
	out := make([]Segment, len(r.Segments))
	for i, seg := range r.Segments {
		cp := seg
		cp.Path = slices.Clone(seg.Path)
		if seg.DelaySeconds != nil {
			v := *seg.DelaySeconds
			cp.DelaySeconds = &v
		}
		if seg.Transit != nil {
			cp.Transit = &Transit{}
			if err := copier.CopyWithOption(cp.Transit, seg.Transit, copier.Option{DeepCopy: true}); err != nil {
				return nil, fmt.Errorf("copy segment %d: %w", i, err)
			}
		}
		out[i] = cp
	}
	return out, nil
}

// ExpandedRows returns the intermediate stops of a boarding segment as
// synthetic Arrive rows, in stop order. The boarding and alighting stops are
// left out since the segment and its Arrive already show them.
func (r *Route) ExpandedRows(id SegmentID) []Segment {
	if int(id) < 0 || int(id) >= len(r.Segments) {
		return nil
	}
	seg := r.Segments[id]
	if seg.Transit == nil || len(seg.Transit.Stops) <= 2 {
		return nil
	}
	inner := seg.Transit.Stops[1 : len(seg.Transit.Stops)-1]
	rows := make([]Segment, 0, len(inner))
	for _, stop := range inner {
		rows = append(rows, Segment{
			ID:                 seg.ID,
			Kind:               Arrive,
			LocationName:       stop.Name,
			IsSyntheticStopRow: true,
		})
	}
	return rows
}
