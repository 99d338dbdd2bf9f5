package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if MUDRA_CONFIG is set
//  3. env (prefix MUDRA_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("MUDRA_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: MUDRA_ADDR, MUDRA_RATE_LIMIT_MAX, ...
	// Map env keys like MUDRA_RATE_LIMIT_MAX -> rate_limit_max (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("MUDRA_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "mudra_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.RateLimitMax <= 0:
		return fmt.Errorf("%w: rate_limit_max must be positive", ErrInvalidConfig)
	case c.RateLimitWindowSeconds <= 0:
		return fmt.Errorf("%w: rate_limit_window_seconds must be positive", ErrInvalidConfig)
	case c.DailyTarget <= 0 || c.WeeklyTarget <= 0:
		return fmt.Errorf("%w: quest targets must be positive", ErrInvalidConfig)
	}
	return nil
}
