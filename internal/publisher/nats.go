package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"transit-tracker/internal/session"
)

// NATSPublisher publishes session snapshots to "<prefix>.<sessionID>".
type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	log         zerolog.Logger
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix string, logSubjects bool, logger zerolog.Logger, m PublisherMetrics) (*NATSPublisher, error) {
	logger = logger.With().Str("component", "snapshot-publisher").Logger()
	nc, err := nats.Connect(url,
		nats.Name("transit-tracker-publisher"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info().Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info().Msg("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, log: logger, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

// SnapshotMessage is the wire form of a published snapshot.
type SnapshotMessage struct {
	PublishedAt time.Time        `json:"publishedAt"`
	Snapshot    session.Snapshot `json:"snapshot"`
}

// Publish sends snap. It implements session.Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, snap session.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := Subject(p.prefix, snap.SessionID)
	start := time.Now()
	b, err := json.Marshal(SnapshotMessage{PublishedAt: start.UTC(), Snapshot: snap})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if p.logSubjects {
		p.log.Debug().Str("subject", subject).Int("bytes", len(b)).Msg("nats publish")
	}
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// Subject joins prefix and sessionID into a valid NATS subject.
func Subject(prefix, sessionID string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return subjectToken(sessionID)
	}
	return fmt.Sprintf("%s.%s", prefix, subjectToken(sessionID))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
