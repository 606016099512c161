package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"transit-tracker/internal/gtfs"
	"transit-tracker/internal/tracking"
)

const sourceNATS = "nats"

// NATSMetrics is the subset of the metrics collector the subscriber reports to.
type NATSMetrics interface {
	NATSSetConnected(connected bool)
	NATSReceivedInc()
}

// NATSVehicles keeps the latest pushed position of every vehicle and answers
// Vehicles from that cache.
type NATSVehicles struct {
	nc         *nats.Conn
	sub        *nats.Subscription
	staleAfter time.Duration
	log        zerolog.Logger
	metrics    NATSMetrics
	now        func() time.Time

	mu     sync.RWMutex
	latest map[string]gtfs.VehiclePosition
}

func newNATSVehicles(staleAfter time.Duration, logger zerolog.Logger, m NATSMetrics) *NATSVehicles {
	return &NATSVehicles{
		staleAfter: staleAfter,
		log:        logger.With().Str("component", "nats-vehicles").Logger(),
		metrics:    m,
		now:        time.Now,
		latest:     make(map[string]gtfs.VehiclePosition),
	}
}

// NewNATSVehicles connects to url and subscribes to subject, which may be a
// wildcard such as "vehicles.>".
func NewNATSVehicles(url, subject string, staleAfter time.Duration, logger zerolog.Logger, m NATSMetrics) (*NATSVehicles, error) {
	s := newNATSVehicles(staleAfter, logger, m)
	nc, err := nats.Connect(url,
		nats.Name("transit-tracker"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			s.log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			s.log.Info().Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			s.log.Info().Msg("nats closed")
		}),
	)
	if err != nil {
		return nil, transportError(sourceNATS, "connect", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}

	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		if err := s.ingest(msg.Data); err != nil {
			s.log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping position message")
		}
	})
	if err != nil {
		nc.Close()
		return nil, transportError(sourceNATS, "subscribe", err)
	}
	s.nc, s.sub = nc, sub
	s.log.Info().Str("subject", subject).Msg("subscribed to vehicle positions")
	return s, nil
}

func (s *NATSVehicles) ingest(data []byte) error {
	var msg gtfs.PositionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return decodeError(sourceNATS, "vehicles", err)
	}
	if msg.VehicleID == "" {
		return decodeError(sourceNATS, "vehicles", fmt.Errorf("message without vehicleId"))
	}
	pos := msg.Position()

	s.mu.Lock()
	defer s.mu.Unlock()
	// out-of-order delivery must not move a vehicle backwards in time
	if prev, ok := s.latest[pos.VehicleKey]; ok && pos.Timestamp.Before(prev.Timestamp) {
		return nil
	}
	s.latest[pos.VehicleKey] = pos
	if s.metrics != nil {
		s.metrics.NATSReceivedInc()
	}
	return nil
}

// Vehicles answers from the cache. It fails while the connection is down.
func (s *NATSVehicles) Vehicles(ctx context.Context, routes []int32) ([]tracking.VehicleReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportError(sourceNATS, "vehicles", err)
	}
	if s.nc != nil && !s.nc.IsConnected() {
		return nil, transportError(sourceNATS, "vehicles", nats.ErrConnectionClosed)
	}

	s.mu.RLock()
	positions := make([]gtfs.VehiclePosition, 0, len(s.latest))
	for _, p := range s.latest {
		positions = append(positions, p)
	}
	s.mu.RUnlock()
	slices.SortFunc(positions, func(a, b gtfs.VehiclePosition) int { return strings.Compare(a.VehicleKey, b.VehicleKey) })

	return buildReports(positions, routes, s.now(), s.staleAfter), nil
}

func (s *NATSVehicles) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}
