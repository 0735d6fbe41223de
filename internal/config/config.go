// Package config defines service configuration and how it is loaded.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Store picks the ranking store driver: sqlite or memory.
	Store string `koanf:"store"`

	// DBPath is the SQLite database file.
	DBPath string `koanf:"db_path"`

	// MaxRankingLimit caps GET /rankings/{kind}?limit.
	MaxRankingLimit int `koanf:"max_ranking_limit"`

	// SessionTTLSeconds expires comparison sessions idle for longer.
	SessionTTLSeconds int `koanf:"session_ttl_seconds"`

	// SessionSweepSeconds is how often idle sessions are looked for.
	SessionSweepSeconds int `koanf:"session_sweep_seconds"`

	// DecisionDedupeSize bounds the remembered decision ids.
	DecisionDedupeSize int `koanf:"decision_dedupe_size"`

	// Score band edges: bad=[floor, medium), medium=[medium, good),
	// good=[good, ceiling].
	ScoreBadFloor    float64 `koanf:"score_bad_floor"`
	ScoreMediumFloor float64 `koanf:"score_medium_floor"`
	ScoreGoodFloor   float64 `koanf:"score_good_floor"`
	ScoreCeiling     float64 `koanf:"score_ceiling"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		Store:               StoreSQLite,
		DBPath:              "data/tierank.db",
		MaxRankingLimit:     500,
		SessionTTLSeconds:   1800,
		SessionSweepSeconds: 60,
		DecisionDedupeSize:  10_000,
		ScoreBadFloor:       0,
		ScoreMediumFloor:    4,
		ScoreGoodFloor:      7,
		ScoreCeiling:        10,
	}
}

// SessionTTL returns the idle session lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

// SessionSweep returns the janitor interval.
func (c *Config) SessionSweep() time.Duration {
	return time.Duration(c.SessionSweepSeconds) * time.Second
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Store != StoreSQLite && c.Store != StoreMemory:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	case c.Store == StoreSQLite && strings.TrimSpace(c.DBPath) == "":
		return fmt.Errorf("%w: db_path is required for the sqlite store", ErrInvalidConfig)
	case c.MaxRankingLimit <= 0:
		return fmt.Errorf("%w: max_ranking_limit must be positive", ErrInvalidConfig)
	case c.SessionTTLSeconds <= 0:
		return fmt.Errorf("%w: session_ttl_seconds must be positive", ErrInvalidConfig)
	case c.SessionSweepSeconds <= 0:
		return fmt.Errorf("%w: session_sweep_seconds must be positive", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
