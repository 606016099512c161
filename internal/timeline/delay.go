package timeline

// ApplyDelay records a freshly fetched delay for the first boarding segment
// and carries it forward to every segment up to, but not including, the next
// boarding segment. Previous values are cleared first, so applying the same
// delay twice leaves the route as applying it once.
func ApplyDelay(route *Route, delaySeconds int) {
	for i := range route.Segments {
		route.Segments[i].DelaySeconds = nil
	}

	first := route.FirstBoardingSegment()
	if first == nil {
		return
	}
	d := delaySeconds
	first.DelaySeconds = &d

	for seg := range route.SegmentsAfter(first.ID) {
		if seg.Kind.IsBoarding() {
			break
		}
		v := delaySeconds
		if seg.DelaySeconds != nil {
			v += *seg.DelaySeconds
		}
		seg.DelaySeconds = &v
	}
}

// DelayTarget returns the (trip, stop) pair whose delay is fetched for the
// route: the first trip and first stop of the first boarding segment.
func DelayTarget(route *Route) (tripID, stopID string, ok bool) {
	first := route.FirstBoardingSegment()
	if first == nil || first.Transit == nil {
		return "", "", false
	}
	if len(first.Transit.TripIDs) == 0 || len(first.Transit.Stops) == 0 {
		return "", "", false
	}
	return first.Transit.TripIDs[0], first.Transit.Stops[0].ID, true
}
