// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// PostgresDSN selects the Postgres store; empty keeps the in-memory one.
	PostgresDSN string `koanf:"postgres_dsn"`

	// RateLimitMax caps calls per identity per window.
	RateLimitMax int `koanf:"rate_limit_max"`

	// RateLimitWindowSeconds sets the fixed rate window length.
	RateLimitWindowSeconds int `koanf:"rate_limit_window_seconds"`

	// DailyTarget and WeeklyTarget are the quest completion targets.
	DailyTarget  int `koanf:"daily_target"`
	WeeklyTarget int `koanf:"weekly_target"`

	// PruneIntervalSeconds sets how often stale rate buckets are dropped.
	PruneIntervalSeconds int `koanf:"prune_interval_seconds"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		RateLimitMax:           60,
		RateLimitWindowSeconds: 60,
		DailyTarget:            1,
		WeeklyTarget:           3,
		PruneIntervalSeconds:   600,
	}
}
