// Package session drives live tracking of one route: it polls vehicles and
// delays on fixed cadences and keeps markers and indicators in step with the
// viewport.
package session

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"transit-tracker/internal/geo"
	"transit-tracker/internal/metrics"
	"transit-tracker/internal/sources"
	"transit-tracker/internal/timeline"
	"transit-tracker/internal/tracking"
)

// State is the lifecycle state of a Session.
type State int

const (
	Inactive State = iota
	Active
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// LiveDataUnavailable is the banner text shown while vehicle fetches fail.
const LiveDataUnavailable = "Live data unavailable"

type Config struct {
	LiveInterval  time.Duration
	DelayInterval time.Duration
	FetchTimeout  time.Duration
}

// Publisher receives a snapshot after every applied tick.
type Publisher interface {
	Publish(ctx context.Context, snap Snapshot) error
}

// Deps are the collaborators of a session. Vehicles is required; the rest may
// be nil.
type Deps struct {
	Vehicles  sources.VehicleSource
	Delays    sources.DelaySource
	Viewport  sources.ViewportProvider
	Publisher Publisher
	Metrics   *metrics.Collector
	Logger    zerolog.Logger
}

// Session owns a parsed route and its live state. Start and Stop move it
// between Inactive and Active; all mutation of markers, indicators and
// segment delays happens under one mutex.
type Session struct {
	id     string
	route  *timeline.Route
	routes []int32
	cfg    Config
	deps   Deps
	log    zerolog.Logger
	now    func() time.Time

	// lifecycle serializes Start and Stop; tickMu keeps ticks from overlapping.
	lifecycle sync.Mutex
	tickMu    sync.Mutex

	mu          sync.Mutex
	state       State
	gen         uint64
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	viewport    geo.Rect
	markers     map[int64]*tracking.VehicleMarker
	indicators  map[int64]*tracking.IndicatorMarker
	summary     tracking.ReconcileSummary
	banners     []tracking.Banner
	fetchFailed bool
	lastTick    time.Time
}

func New(route *timeline.Route, cfg Config, deps Deps) (*Session, error) {
	if route == nil {
		return nil, errors.New("session: route is required")
	}
	if deps.Vehicles == nil {
		return nil, errors.New("session: vehicle source is required")
	}
	if cfg.LiveInterval <= 0 {
		return nil, errors.New("session: live interval must be positive")
	}
	id := uuid.NewString()
	return &Session{
		id:         id,
		route:      route,
		routes:     route.RouteNumbers(),
		cfg:        cfg,
		deps:       deps,
		log:        deps.Logger.With().Str("component", "session").Str("session", id).Logger(),
		now:        time.Now,
		markers:    make(map[int64]*tracking.VehicleMarker),
		indicators: make(map[int64]*tracking.IndicatorMarker),
	}, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start moves the session to Active. The first live cycle runs right away,
// then every LiveInterval; delays are refreshed on their own DelayInterval
// loop and viewport changes are applied as they arrive. Starting an active
// session is a no-op.
func (s *Session) Start(parent context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.state == Active {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.state = Active
	s.gen++
	if s.deps.Viewport != nil {
		s.viewport = s.deps.Viewport.Current()
	}
	s.mu.Unlock()

	s.deps.Metrics.SessionStarted()
	s.log.Info().Ints32("routes", s.routes).Dur("live_interval", s.cfg.LiveInterval).Msg("session started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLive(ctx)
	}()

	if s.deps.Delays != nil && s.cfg.DelayInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runDelays(ctx)
		}()
	}

	if s.deps.Viewport != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runViewport(ctx)
		}()
	}
}

// Stop cancels pending ticks and in-flight fetches, waits for the loops to
// exit and drops markers and indicators. Stopping an inactive session is a
// no-op.
func (s *Session) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.state == Inactive {
		s.mu.Unlock()
		return
	}
	s.state = Inactive
	s.gen++
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	clear(s.markers)
	clear(s.indicators)
	s.summary = tracking.ReconcileSummary{}
	s.banners = nil
	s.fetchFailed = false
	s.mu.Unlock()

	s.deps.Metrics.SessionStopped()
	s.log.Info().Msg("session stopped")
}

func (s *Session) runLive(ctx context.Context) {
	// immediate cycle on start
	s.OnTick(ctx)
	ticker := time.NewTicker(s.cfg.LiveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.OnTick(ctx)
		}
	}
}

func (s *Session) runDelays(ctx context.Context) {
	s.RefreshDelay(ctx)
	ticker := time.NewTicker(s.cfg.DelayInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RefreshDelay(ctx)
		}
	}
}

func (s *Session) runViewport(ctx context.Context) {
	changes := s.deps.Viewport.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-changes:
			if !ok {
				return
			}
			s.OnViewportChanged(r)
		}
	}
}

// fetchContext bounds a single fetch by FetchTimeout when one is set.
func (s *Session) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.FetchTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.FetchTimeout)
	}
	return context.WithCancel(ctx)
}

// current returns the generation to tag a fetch with, or false when the
// session is not active.
func (s *Session) current() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen, s.state == Active
}

// stillCurrent reports whether a fetch tagged with gen may be applied. The
// caller holds s.mu.
func (s *Session) stillCurrent(ctx context.Context, gen uint64) bool {
	return s.state == Active && s.gen == gen && ctx.Err() == nil
}

// OnTick runs one fetch-reconcile-placement cycle. The fetch happens outside
// the session lock; its result is discarded when the session was stopped or
// restarted in the meantime. A failed fetch keeps the previous markers and
// shows the live-data-unavailable banner.
func (s *Session) OnTick(ctx context.Context) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	gen, ok := s.current()
	if !ok {
		return
	}

	start := s.now()
	var (
		reports []tracking.VehicleReport
		err     error
	)
	if len(s.routes) > 0 {
		fctx, cancel := s.fetchContext(ctx)
		reports, err = s.deps.Vehicles.Vehicles(fctx, s.routes)
		cancel()
	}

	s.mu.Lock()
	if !s.stillCurrent(ctx, gen) {
		s.mu.Unlock()
		s.deps.Metrics.ObserveTick("discarded", s.now().Sub(start), 0, 0, 0)
		s.log.Debug().Msg("discarding tick result of a cancelled session")
		return
	}

	result := "ok"
	if err != nil {
		result = "fetch_error"
		s.fetchFailed = true
		s.banners = s.failureBanners()
		s.deps.Metrics.FetchErrorInc("vehicles")
		s.log.Warn().Err(err).Msg("vehicle fetch failed")
	} else {
		s.summary = tracking.Reconcile(s.markers, reports)
		s.fetchFailed = false
		s.banners = tracking.Banners(s.summary, s.routes)
		if len(s.summary.NewlyValidRoutes) > 0 {
			s.log.Debug().Ints32("routes", s.summary.NewlyValidRoutes.Sorted()).Msg("routes went live")
		}
	}
	tracking.UpdateIndicators(s.markers, s.viewport, s.indicators)
	s.lastTick = s.now()
	s.deps.Metrics.ObserveTick(result, s.lastTick.Sub(start), len(s.markers), len(s.indicators), len(s.summary.DegradedRoutes))

	var snap Snapshot
	var snapErr error
	if s.deps.Publisher != nil {
		snap, snapErr = s.snapshotLocked()
	}
	s.mu.Unlock()

	if s.deps.Publisher == nil {
		return
	}
	if snapErr != nil {
		s.log.Error().Err(snapErr).Msg("snapshot failed")
		return
	}
	if err := s.deps.Publisher.Publish(ctx, snap); err != nil {
		s.log.Warn().Err(err).Msg("snapshot publish failed")
	}
}

// failureBanners puts the fetch failure banner ahead of the route banners of
// the last successful tick.
func (s *Session) failureBanners() []tracking.Banner {
	out := []tracking.Banner{{Connectivity: tracking.ConnectivityNoData, Message: LiveDataUnavailable}}
	for _, b := range s.banners {
		if b.Message != LiveDataUnavailable {
			out = append(out, b)
		}
	}
	return out
}

// RefreshDelay fetches the delay of the first boarding segment and
// propagates it. Transport failures and missing values keep the delays
// already shown.
func (s *Session) RefreshDelay(ctx context.Context) {
	if s.deps.Delays == nil {
		return
	}
	gen, ok := s.current()
	if !ok {
		return
	}
	tripID, stopID, ok := timeline.DelayTarget(s.route)
	if !ok {
		return
	}

	fctx, cancel := s.fetchContext(ctx)
	seconds, present, err := s.deps.Delays.Delay(fctx, tripID, stopID)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.log.With().Str("trip", tripID).Str("stop", stopID).Logger()
	switch {
	case !s.stillCurrent(ctx, gen):
		s.deps.Metrics.DelayFetchInc("discarded")
	case err != nil:
		s.deps.Metrics.DelayFetchInc("error")
		s.deps.Metrics.FetchErrorInc("delay")
		log.Warn().Err(err).Msg("delay fetch failed")
	case !present:
		s.deps.Metrics.DelayFetchInc("absent")
		log.Debug().Msg("no delay reported")
	default:
		timeline.ApplyDelay(s.route, seconds)
		s.deps.Metrics.DelayFetchInc("applied")
		log.Debug().Int("delay_seconds", seconds).Msg("delay applied")
	}
}

// OnViewportChanged records the new viewport and, while active, re-places
// indicators without waiting for the next tick.
func (s *Session) OnViewportChanged(r geo.Rect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = r
	if s.state != Active {
		return
	}
	tracking.UpdateIndicators(s.markers, s.viewport, s.indicators)
	s.deps.Metrics.SetIndicators(len(s.indicators))
}

// Snapshot is a copy of the session state for the presentation layer.
type Snapshot struct {
	SessionID     string                                       `json:"sessionId"`
	State         State                                        `json:"state"`
	Viewport      geo.Rect                                     `json:"viewport"`
	Segments      []timeline.Segment                           `json:"segments"`
	SegmentStates map[timeline.SegmentID]tracking.Connectivity `json:"segmentStates"`
	Vehicles      map[int64]tracking.Render                    `json:"vehicles"`
	Summary       tracking.ReconcileSummary                    `json:"summary"`
	Banners       []tracking.Banner                            `json:"banners"`
	FetchFailed   bool                                         `json:"fetchFailed"`
	LastTick      time.Time                                    `json:"lastTick"`
}

func (s *Session) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() (Snapshot, error) {
	segments, err := s.route.Snapshot()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		SessionID:     s.id,
		State:         s.state,
		Viewport:      s.viewport,
		Segments:      segments,
		SegmentStates: s.segmentStatesLocked(),
		Vehicles:      tracking.RenderSet(s.markers, s.indicators, s.viewport),
		Summary:       cloneSummary(s.summary),
		Banners:       slices.Clone(s.banners),
		FetchFailed:   s.fetchFailed,
		LastTick:      s.lastTick,
	}, nil
}

// segmentStatesLocked gives every boarding segment the connectivity of its
// route. Before the first tick, and while fetches fail, segments show no data.
func (s *Session) segmentStatesLocked() map[timeline.SegmentID]tracking.Connectivity {
	out := make(map[timeline.SegmentID]tracking.Connectivity)
	for _, seg := range s.route.BoardingSegments() {
		state := tracking.ConnectivityNoData
		if !s.fetchFailed {
			if c, ok := s.summary.RouteStates[seg.RouteNumber()]; ok {
				state = c
			}
		}
		out[seg.ID] = state
	}
	return out
}

func cloneSummary(in tracking.ReconcileSummary) tracking.ReconcileSummary {
	out := in
	out.DegradedRoutes = maps.Clone(in.DegradedRoutes)
	out.NewlyValidRoutes = maps.Clone(in.NewlyValidRoutes)
	out.RouteStates = maps.Clone(in.RouteStates)
	return out
}
