package config

import (
	"context"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, env vars, and
// the remote config service.
// Order of precedence (low -> high):
//  1. compiled-in fallbacks (New())
//  2. file (YAML) if SONDER_CONFIG is set
//  3. env (prefix SONDER_, nested keys via __, e.g. SONDER_SCORING__FC_EXPECTED_MIN)
//  4. config service (scoring keys only), skipped whenever unreachable
//
// A remote fetch failure is deliberately not an error: finalization must
// never be blocked by config-service unavailability.
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("SONDER_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, WrapLoad(err)
		}
	}

	envProvider := env.Provider("SONDER_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "SONDER_"))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, WrapLoad(err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, WrapLoad(err)
	}

	if cfg.ConfigServiceURL != "" {
		if remote, err := fetchRemoteScoring(ctx, cfg.ConfigServiceURL, cfg.ConfigServiceTimeoutMS); err == nil {
			applyRemoteScoring(&cfg.Scoring, remote)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return ErrEmptyAddr
	case len(c.Scoring.DimThresholds) != 3:
		return ErrBadThresholds
	case c.Scoring.DimThresholds[0] >= c.Scoring.DimThresholds[1],
		c.Scoring.DimThresholds[1] >= c.Scoring.DimThresholds[2]:
		// Unordered cut points would band every dimension degenerately.
		return ErrBadThresholds
	case c.Scoring.NeuroSD <= 0:
		return ErrBadNorms
	case c.Scoring.FCExpectedMin <= 0:
		return ErrBadFCMin
	}
	return nil
}
