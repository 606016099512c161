package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LiveInterval  time.Duration
	DelayInterval time.Duration
	FetchTimeout  time.Duration
	StaleAfter    time.Duration

	VehiclePositionsURL string
	TripUpdatesURL      string

	NATSURL             string
	NATSSubject         string
	NATSSnapshotSubject string
	LogNATSSubjects     bool

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DelayCacheTTL time.Duration

	HTTPAddr    string
	MetricsAddr string

	LogLevel string
	LogJSON  bool
	Location *time.Location
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	if cfg.LiveInterval, err = durationEnv("LIVE_INTERVAL_MS", time.Millisecond, 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.DelayInterval, err = durationEnv("DELAY_INTERVAL_SEC", time.Second, 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = durationEnv("FETCH_TIMEOUT_MS", time.Millisecond, 4*time.Second); err != nil {
		return nil, err
	}
	if cfg.StaleAfter, err = durationEnv("STALE_AFTER_SEC", time.Second, 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.DelayCacheTTL, err = durationEnv("DELAY_CACHE_TTL_SEC", time.Second, 20*time.Second); err != nil {
		return nil, err
	}

	// GTFS Realtime feeds; either may be left empty
	cfg.VehiclePositionsURL = os.Getenv("GTFS_VEHICLE_POSITIONS_URL")
	cfg.TripUpdatesURL = os.Getenv("GTFS_TRIP_UPDATES_URL")

	// NATS is optional: empty NATS_URL disables push positions and snapshot publishing
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubject = getenvDefault("NATS_SUBJECT", "vehicles.>")
	cfg.NATSSnapshotSubject = getenvDefault("NATS_SNAPSHOT_SUBJECT", "tracker.snapshots")
	cfg.LogNATSSubjects = boolEnv("LOG_NATS_SUBJECTS")

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars when PGDATABASE is set
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"))
	if cfg.DatabaseURL == "" {
		if db := os.Getenv("PGDATABASE"); db != "" {
			host := getenvDefault("PGHOST", "127.0.0.1")
			port := getenvDefault("PGPORT", "5432")
			user := getenvDefault("PGUSER", "postgres")
			pass := os.Getenv("PGPASSWORD")
			sslmode := getenvDefault("PGSSLMODE", "disable")
			if pass != "" {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
			} else {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
			}
		}
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid REDIS_DB: %q", v)
		}
		cfg.RedisDB = n
	}

	// Listen addresses (e.g., ":8080"). Empty disables the server.
	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))
	switch cfg.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q", cfg.LogLevel)
	}
	cfg.LogJSON = boolEnv("LOG_JSON")

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

// HasLiveSource reports whether at least one vehicle source is configured.
func (c *Config) HasLiveSource() bool {
	return c.VehiclePositionsURL != "" || c.NATSURL != ""
}

// durationEnv reads a positive integer count of unit from key.
func durationEnv(key string, unit, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(n) * unit, nil
}

func boolEnv(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
