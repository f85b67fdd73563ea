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
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if TWINPOT_CONFIG is set
//  3. env (prefix TWINPOT_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("TWINPOT_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: TWINPOT_ADDR, TWINPOT_JOIN_TIMEOUT_MINUTES, ...
	// Underscores are preserved to match the koanf tags on the struct.
	envProvider := env.Provider("TWINPOT_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "twinpot_")
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
	case c.JoinTimeoutMinutes <= 0:
		return fmt.Errorf("%w: join_timeout_minutes must be positive", ErrInvalidConfig)
	case c.TimeBudgetSeconds <= 0:
		return fmt.Errorf("%w: time_budget_seconds must be positive", ErrInvalidConfig)
	case c.PlatformFeeBP < 0 || c.AffiliateFeeBP < 0:
		return fmt.Errorf("%w: fees must not be negative", ErrInvalidConfig)
	case c.PlatformFeeBP+c.AffiliateFeeBP >= 10_000:
		return fmt.Errorf("%w: fees must leave a payout", ErrInvalidConfig)
	}
	return nil
}
