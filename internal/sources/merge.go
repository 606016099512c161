package sources

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"transit-tracker/internal/tracking"
)

// MultiVehicles queries several vehicle sources in parallel and concatenates
// their answers. A failing source is logged and skipped; the call fails only
// when every source fails.
type MultiVehicles struct {
	sources []VehicleSource
	log     zerolog.Logger
}

func NewMultiVehicles(logger zerolog.Logger, sources ...VehicleSource) *MultiVehicles {
	return &MultiVehicles{
		sources: sources,
		log:     logger.With().Str("component", "multi-vehicles").Logger(),
	}
}

func (m *MultiVehicles) Vehicles(ctx context.Context, routes []int32) ([]tracking.VehicleReport, error) {
	if len(m.sources) == 0 {
		return nil, errors.New("no vehicle sources configured")
	}
	if len(m.sources) == 1 {
		return m.sources[0].Vehicles(ctx, routes)
	}

	p := pool.NewWithResults[[]tracking.VehicleReport]().WithContext(ctx)
	for _, src := range m.sources {
		p.Go(func(ctx context.Context) ([]tracking.VehicleReport, error) {
			return src.Vehicles(ctx, routes)
		})
	}
	batches, err := p.Wait()
	if err != nil {
		if len(batches) == 0 {
			return nil, err
		}
		m.log.Warn().Err(err).Int("ok", len(batches)).Int("sources", len(m.sources)).Msg("some vehicle sources failed")
	}
	return mergeBatches(batches), nil
}

// mergeBatches concatenates batches, dropping the NoData placeholder of a
// route when another batch has real reports for it.
func mergeBatches(batches [][]tracking.VehicleReport) []tracking.VehicleReport {
	reported := tracking.RouteSet{}
	for _, batch := range batches {
		for _, r := range batch {
			if r.DataQuality != tracking.NoData {
				reported.Add(r.RouteNumber)
			}
		}
	}

	placeholder := tracking.RouteSet{}
	var out []tracking.VehicleReport
	for _, batch := range batches {
		for _, r := range batch {
			if r.DataQuality == tracking.NoData {
				if reported.Has(r.RouteNumber) || placeholder.Has(r.RouteNumber) {
					continue
				}
				placeholder.Add(r.RouteNumber)
			}
			out = append(out, r)
		}
	}
	return out
}
