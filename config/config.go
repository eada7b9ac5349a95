// Package config loads environment variables and provides a typed Config used
// across the service, plus small env parsing helpers reused by component-level
// knob loaders. Defaults are chosen so the binary runs locally with no setup.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds service-level settings. Component cadence knobs live with their
// components (engine.LoadConfig, joiner.LoadConfig, ...), following the same
// env conventions.
type Config struct {
	// HTTP
	HTTPAddr string

	// Storage
	DBDsn   string
	DataDir string

	// History feed: local file path or http(s) URL consumed once at startup.
	// Empty means no server history; the synthetic seeder runs instead.
	HistoryPath string

	// Synthetic history seeding window (used when no history feed loads).
	SeedStart     time.Time
	SeedMinPerDay int
	SeedMaxPerDay int
	SeedChunkSize int
	SeedYield     time.Duration
}

// Load reads environment variables and applies defaults. It never fails on
// missing optional values; a malformed SEED_START falls back to the default
// window start.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.DBDsn = os.Getenv("DB_DSN")
	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	cfg.HistoryPath = os.Getenv("HISTORY_PATH")

	cfg.SeedStart = EnvTime("SEED_START", time.Date(2025, time.March, 14, 0, 0, 0, 0, time.UTC))
	cfg.SeedMinPerDay = EnvInt("SEED_MIN_PER_DAY", 3)
	cfg.SeedMaxPerDay = EnvInt("SEED_MAX_PER_DAY", 6)
	cfg.SeedChunkSize = EnvInt("SEED_CHUNK_SIZE", 160)
	cfg.SeedYield = EnvDuration("SEED_YIELD", 110*time.Millisecond)

	return cfg, nil
}

// EnvInt returns an integer env value or the default when unset or invalid.
func EnvInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// EnvFloat returns a float env value or the default when unset or invalid.
func EnvFloat(key string, def float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return def
}

// EnvDuration returns a duration env value or the default when unset,
// invalid, or non-positive.
func EnvDuration(key string, def time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// EnvString returns the env value or the default when unset.
func EnvString(key, def string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return def
}

// EnvTime parses an RFC3339 env value or returns the default.
func EnvTime(key string, def time.Time) time.Time {
	if s := os.Getenv(key); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
	}
	return def
}
