package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"transit-tracker/internal/gtfs"
	"transit-tracker/internal/tracking"
)

const sourceGTFSRT = "gtfsrt"

// GTFSRT reads the vehicle positions and trip updates feeds of a GTFS
// Realtime publisher. It serves as both VehicleSource and DelaySource.
type GTFSRT struct {
	vehiclePositionsURL string
	tripUpdatesURL      string
	staleAfter          time.Duration
	client              *http.Client
	now                 func() time.Time
}

func NewGTFSRT(vehiclePositionsURL, tripUpdatesURL string, timeout, staleAfter time.Duration) *GTFSRT {
	return &GTFSRT{
		vehiclePositionsURL: vehiclePositionsURL,
		tripUpdatesURL:      tripUpdatesURL,
		staleAfter:          staleAfter,
		client:              &http.Client{Timeout: timeout},
		now:                 time.Now,
	}
}

// Vehicles fetches the vehicle positions feed and keeps the vehicles of the
// requested routes.
func (g *GTFSRT) Vehicles(ctx context.Context, routes []int32) ([]tracking.VehicleReport, error) {
	positions, err := g.fetchVehiclePositions(ctx)
	if err != nil {
		return nil, err
	}
	return buildReports(positions, routes, g.now(), g.staleAfter), nil
}

// Delay fetches the trip updates feed and looks up the delay at the given
// stop of the given trip. When the trip is present but the stop is not, the
// trip-level delay is used if the feed has one.
func (g *GTFSRT) Delay(ctx context.Context, tripID, stopID string) (int, bool, error) {
	delays, tripLevel, err := g.fetchTripUpdates(ctx)
	if err != nil {
		return 0, false, err
	}
	if d, ok := delays[gtfs.DelayKey{TripID: tripID, StopID: stopID}]; ok {
		if s, ok := d.Seconds(); ok {
			return s, true, nil
		}
	}
	if s, ok := tripLevel[tripID]; ok {
		return s, true, nil
	}
	return 0, false, nil
}

func (g *GTFSRT) fetchVehiclePositions(ctx context.Context) ([]gtfs.VehiclePosition, error) {
	feed, err := g.fetchFeed(ctx, "vehicles", g.vehiclePositionsURL)
	if err != nil {
		return nil, err
	}

	var positions []gtfs.VehiclePosition
	for _, entity := range feed.GetEntity() {
		vehicle := entity.GetVehicle()
		if vehicle == nil {
			continue
		}

		pos := gtfs.VehiclePosition{
			TripID:  vehicle.GetTrip().GetTripId(),
			RouteID: vehicle.GetTrip().GetRouteId(),
		}
		if id := vehicle.GetVehicle().GetId(); id != "" {
			pos.VehicleKey = id
		} else {
			pos.VehicleKey = "entity:" + entity.GetId()
		}

		if p := vehicle.GetPosition(); p != nil {
			pos.Lat = float64(p.GetLatitude())
			pos.Lon = float64(p.GetLongitude())
			pos.Bearing = float64(p.GetBearing())
			pos.HasPosition = true
		}
		if ts := vehicle.GetTimestamp(); ts != 0 {
			pos.Timestamp = time.Unix(int64(ts), 0).UTC()
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func (g *GTFSRT) fetchTripUpdates(ctx context.Context) (map[gtfs.DelayKey]gtfs.TripDelay, map[string]int, error) {
	feed, err := g.fetchFeed(ctx, "delay", g.tripUpdatesURL)
	if err != nil {
		return nil, nil, err
	}

	delays := make(map[gtfs.DelayKey]gtfs.TripDelay)
	tripLevel := make(map[string]int)
	for _, entity := range feed.GetEntity() {
		update := entity.GetTripUpdate()
		if update == nil || update.GetTrip().GetTripId() == "" {
			continue
		}
		tripID := update.GetTrip().GetTripId()
		if update.Delay != nil {
			tripLevel[tripID] = int(update.GetDelay())
		}

		for _, stu := range update.GetStopTimeUpdate() {
			if stu.StopId == nil {
				continue
			}
			delay := gtfs.TripDelay{TripID: tripID, StopID: stu.GetStopId()}
			if a := stu.GetArrival(); a != nil && a.Delay != nil {
				d := int(a.GetDelay())
				delay.ArrivalDelay = &d
			}
			if dep := stu.GetDeparture(); dep != nil && dep.Delay != nil {
				d := int(dep.GetDelay())
				delay.DepartureDelay = &d
			}
			delays[gtfs.DelayKey{TripID: tripID, StopID: delay.StopID}] = delay
		}
	}
	return delays, tripLevel, nil
}

func (g *GTFSRT) fetchFeed(ctx context.Context, op, url string) (*gtfsrt.FeedMessage, error) {
	if url == "" {
		return nil, transportError(sourceGTFSRT, op, fmt.Errorf("no feed url configured"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, transportError(sourceGTFSRT, op, fmt.Errorf("create request: %w", err))
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, transportError(sourceGTFSRT, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, transportError(sourceGTFSRT, op, fmt.Errorf("feed returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(sourceGTFSRT, op, fmt.Errorf("read response: %w", err))
	}

	feed := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, decodeError(sourceGTFSRT, op, fmt.Errorf("parse protobuf: %w", err))
	}
	return feed, nil
}
