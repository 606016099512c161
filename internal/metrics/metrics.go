package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Collector holds the tracker's Prometheus series on a private registry. All
// methods are safe to call on a nil *Collector.
type Collector struct {
	reg *prometheus.Registry

	ActiveSessions prometheus.Gauge
	Markers        prometheus.Gauge
	Indicators     prometheus.Gauge
	DegradedRoutes prometheus.Gauge

	Ticks        *prometheus.CounterVec // result label: ok|fetch_error|discarded
	TickDuration prometheus.Histogram
	FetchErrors  *prometheus.CounterVec // source label: vehicles|delay
	DelayFetches *prometheus.CounterVec // outcome label: applied|absent|error|discarded

	NATSReceived    prometheus.Counter
	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	LiveInterval  prometheus.Gauge // seconds
	DelayInterval prometheus.Gauge // seconds
}

func NewCollector(liveInterval, delayInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_active_sessions",
			Help: "Number of tracking sessions in the active state.",
		}),
		Markers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_vehicle_markers",
			Help: "Vehicle markers held by the last completed tick.",
		}),
		Indicators: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_indicator_markers",
			Help: "Off-screen indicators after the last placement pass.",
		}),
		DegradedRoutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_degraded_routes",
			Help: "Routes without valid live data in the last tick.",
		}),
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_ticks_total",
			Help: "Live ticks by result.",
		}, []string{"result"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_tick_duration_seconds",
			Help:    "Duration of a fetch-reconcile-placement cycle.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_fetch_errors_total",
			Help: "Failed fetches by source.",
		}, []string{"source"}),
		DelayFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_delay_fetches_total",
			Help: "Delay lookups by outcome.",
		}, []string{"outcome"}),
		NATSReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_positions_received_total",
			Help: "Vehicle positions received over NATS.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_published_total",
			Help: "Total snapshots published to NATS.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_publish_duration_seconds",
			Help:    "Duration to marshal and publish a snapshot.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		LiveInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_live_interval_seconds",
			Help: "Vehicle polling interval in seconds.",
		}),
		DelayInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_delay_interval_seconds",
			Help: "Delay polling interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.ActiveSessions, c.Markers, c.Indicators, c.DegradedRoutes,
		c.Ticks, c.TickDuration, c.FetchErrors, c.DelayFetches,
		c.NATSReceived, c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.LiveInterval, c.DelayInterval,
	)

	c.LiveInterval.Set(liveInterval.Seconds())
	c.DelayInterval.Set(delayInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}

func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.ActiveSessions.Inc()
}

func (c *Collector) SessionStopped() {
	if c == nil {
		return
	}
	c.ActiveSessions.Dec()
}

// ObserveTick records one live tick and the state it left behind.
func (c *Collector) ObserveTick(result string, d time.Duration, markers, indicators, degraded int) {
	if c == nil {
		return
	}
	c.Ticks.WithLabelValues(result).Inc()
	c.TickDuration.Observe(d.Seconds())
	c.Markers.Set(float64(markers))
	c.Indicators.Set(float64(indicators))
	c.DegradedRoutes.Set(float64(degraded))
}

func (c *Collector) SetIndicators(n int) {
	if c == nil {
		return
	}
	c.Indicators.Set(float64(n))
}

func (c *Collector) FetchErrorInc(source string) {
	if c == nil {
		return
	}
	c.FetchErrors.WithLabelValues(source).Inc()
}

func (c *Collector) DelayFetchInc(outcome string) {
	if c == nil {
		return
	}
	c.DelayFetches.WithLabelValues(outcome).Inc()
}

func (c *Collector) NATSReceivedInc() {
	if c == nil {
		return
	}
	c.NATSReceived.Inc()
}

func (c *Collector) NATSPublishedInc() {
	if c == nil {
		return
	}
	c.NATSPublished.Inc()
}

func (c *Collector) NATSPublishErrInc() {
	if c == nil {
		return
	}
	c.NATSPublishErrs.Inc()
}

func (c *Collector) PublishObserve(d time.Duration) {
	if c == nil {
		return
	}
	c.PublishDuration.Observe(d.Seconds())
}

func (c *Collector) NATSSetConnected(connected bool) {
	if c == nil {
		return
	}
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
