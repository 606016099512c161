package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"transit-tracker/internal/api"
	"transit-tracker/internal/config"
	"transit-tracker/internal/db"
	"transit-tracker/internal/geo"
	"transit-tracker/internal/metrics"
	"transit-tracker/internal/publisher"
	"transit-tracker/internal/session"
	"transit-tracker/internal/sources"
	"transit-tracker/internal/timeline"
)

func runCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Track a route until interrupted",
		Flags: []cli.Flag{
			routeFlag,
			&cli.StringSliceFlag{Name: "cors-origin", Usage: "origin allowed to call the HTTP API"},
		},
		Action: func(c *cli.Context) error {
			return run(c.Context, cfg, c.String("route"), c.StringSlice("cors-origin"))
		},
	}
}

func run(parent context.Context, cfg *config.Config, routePath string, origins []string) error {
	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	route, err := loadRoute(routePath)
	if err != nil {
		return err
	}
	logger := log.Logger

	mcol := metrics.NewCollector(cfg.LiveInterval, cfg.DelayInterval)
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = mcol.Serve(cfg.MetricsAddr)
	}

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	vehicles, err := buildVehicleSource(ctx, cfg, logger, mcol, &closers)
	if err != nil {
		return err
	}
	delays, err := buildDelaySource(ctx, cfg, logger, &closers)
	if err != nil {
		return err
	}
	viewport := sources.NewViewportFeed(routeBounds(route))

	deps := session.Deps{
		Vehicles: vehicles,
		Delays:   delays,
		Viewport: viewport,
		Metrics:  mcol,
		Logger:   logger,
	}
	if cfg.NATSURL != "" {
		pub, err := retryConnect(ctx, "nats publisher", func() (*publisher.NATSPublisher, error) {
			return publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSnapshotSubject, cfg.LogNATSSubjects, logger, mcol)
		})
		if err != nil {
			return err
		}
		closers = append(closers, pub.Close)
		deps.Publisher = pub
	}

	sess, err := session.New(route, session.Config{
		LiveInterval:  cfg.LiveInterval,
		DelayInterval: cfg.DelayInterval,
		FetchTimeout:  cfg.FetchTimeout,
	}, deps)
	if err != nil {
		return err
	}
	sess.Start(ctx)

	var apiSrv *http.Server
	if cfg.HTTPAddr != "" {
		h := api.NewHandler(sess, viewport, logger)
		apiSrv = &http.Server{Addr: cfg.HTTPAddr, Handler: h.Router(origins, mcol.Handler()), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("api server error")
			}
		}()
		log.Info().Str("addr", cfg.HTTPAddr).Msg("api listening")
	}

	// Block until context cancelled
	<-ctx.Done()
	sess.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	for _, srv := range []*http.Server{apiSrv, metricsSrv} {
		if srv != nil {
			_ = srv.Shutdown(shutdownCtx)
		}
	}
	log.Info().Msg("shutdown complete")
	return nil
}

func buildVehicleSource(ctx context.Context, cfg *config.Config, logger zerolog.Logger, mcol *metrics.Collector, closers *[]func()) (sources.VehicleSource, error) {
	var all []sources.VehicleSource
	if cfg.VehiclePositionsURL != "" {
		all = append(all, sources.NewGTFSRT(cfg.VehiclePositionsURL, cfg.TripUpdatesURL, cfg.FetchTimeout, cfg.StaleAfter))
	}
	if cfg.NATSURL != "" {
		nv, err := retryConnect(ctx, "nats vehicles", func() (*sources.NATSVehicles, error) {
			return sources.NewNATSVehicles(cfg.NATSURL, cfg.NATSSubject, cfg.StaleAfter, logger, mcol)
		})
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, nv.Close)
		all = append(all, nv)
	}
	if len(all) == 0 {
		return nil, errors.New("no vehicle source configured: set GTFS_VEHICLE_POSITIONS_URL or NATS_URL")
	}
	return sources.NewMultiVehicles(logger, all...), nil
}

// buildDelaySource prefers the delay database over the trip updates feed and
// puts the Redis cache in front of whichever is used. It returns nil when no
// delay source is configured.
func buildDelaySource(ctx context.Context, cfg *config.Config, logger zerolog.Logger, closers *[]func()) (sources.DelaySource, error) {
	var src sources.DelaySource
	switch {
	case cfg.DatabaseURL != "":
		sqlDB, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		*closers = append(*closers, func() { _ = sqlDB.Close() })
		if _, err := retryConnect(ctx, "postgres", func() (struct{}, error) {
			return struct{}{}, db.Ping(ctx, sqlDB)
		}); err != nil {
			return nil, err
		}
		store := db.NewDelayStore(sqlDB)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		src = sources.NewPostgresDelays(store, cfg.StaleAfter)
	case cfg.TripUpdatesURL != "":
		src = sources.NewGTFSRT(cfg.VehiclePositionsURL, cfg.TripUpdatesURL, cfg.FetchTimeout, cfg.StaleAfter)
	default:
		log.Info().Msg("no delay source configured")
		return nil, nil
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		*closers = append(*closers, func() { _ = client.Close() })
		if _, err := retryConnect(ctx, "redis", func() (string, error) {
			return client.Ping(ctx).Result()
		}); err != nil {
			return nil, err
		}
		src = sources.NewRedisDelayCache(src, client, cfg.DelayCacheTTL, logger)
	}
	return src, nil
}

// retryConnect retries connect with exponential backoff until it succeeds,
// five retries have failed or ctx is done.
func retryConnect[T any](ctx context.Context, target string, connect func() (T, error)) (T, error) {
	var out T
	op := func() error {
		v, err := connect()
		if err != nil {
			return err
		}
		out = v
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("target", target).Dur("retry_in", wait).Msg("connect failed")
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return out, fmt.Errorf("connect %s: %w", target, err)
	}
	return out, nil
}

// routeBounds is the initial viewport: every known coordinate of the route
// with a margin. Without coordinates it falls back to the whole map.
func routeBounds(route *timeline.Route) geo.Rect {
	minLat, minLon := math.Inf(1), math.Inf(1)
	maxLat, maxLon := math.Inf(-1), math.Inf(-1)
	add := func(c geo.Coordinate) {
		if c.IsZero() {
			return
		}
		minLat, maxLat = math.Min(minLat, c.Latitude), math.Max(maxLat, c.Latitude)
		minLon, maxLon = math.Min(minLon, c.Longitude), math.Max(maxLon, c.Longitude)
	}
	for _, seg := range route.Segments {
		add(seg.StartLocation)
		add(seg.EndLocation)
		for _, c := range seg.Path {
			add(c)
		}
	}
	if math.IsInf(minLat, 1) {
		return geo.NewRect(geo.Coordinate{Latitude: -90, Longitude: -180}, geo.Coordinate{Latitude: 90, Longitude: 180})
	}
	padLat := math.Max((maxLat-minLat)*0.1, 0.005)
	padLon := math.Max((maxLon-minLon)*0.1, 0.005)
	return geo.NewRect(
		geo.Coordinate{Latitude: math.Max(minLat-padLat, -90), Longitude: math.Max(minLon-padLon, -180)},
		geo.Coordinate{Latitude: math.Min(maxLat+padLat, 90), Longitude: math.Min(maxLon+padLon, 180)},
	)
}
