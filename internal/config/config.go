// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with the compiled-in fallback values.
// - Scoring knobs live in one ScoringConfig passed by value into each scorer;
//   call sites never read process-wide mutable state.
package config

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath locates the sqlite database file.
	DBPath string `koanf:"db_path"`

	// ShareTokenSecret signs share tokens (HS256).
	ShareTokenSecret string `koanf:"share_token_secret"`

	// ShareTokenTTLMinutes bounds share token lifetime.
	ShareTokenTTLMinutes int `koanf:"share_token_ttl_minutes"`

	// ConfigServiceURL points at the remote scoring-config service.
	// Empty disables the remote fetch; unreachable falls back to the
	// values already layered (finalization is never blocked on it).
	ConfigServiceURL string `koanf:"config_service_url"`

	// ConfigServiceTimeoutMS bounds the remote fetch.
	ConfigServiceTimeoutMS int `koanf:"config_service_timeout_ms"`

	// BatchRatePerMin throttles batch recompute (token bucket, N per minute).
	BatchRatePerMin int `koanf:"batch_rate_per_min"`

	// BatchMaxInFlight bounds concurrent in-flight finalizations in a batch run.
	BatchMaxInFlight int `koanf:"batch_max_in_flight"`

	// BatchFailureRateLimit halts a batch run when the failure rate exceeds it.
	BatchFailureRateLimit float64 `koanf:"batch_failure_rate_limit"`

	// BatchMinSample is the minimum processed count before the breaker can trip.
	BatchMinSample int `koanf:"batch_min_sample"`

	// Scoring carries the versioned scoring knobs.
	Scoring ScoringConfig `koanf:"scoring"`
}

// ScoringConfig is the per-run scoring configuration handed to each scorer.
type ScoringConfig struct {
	// EngineVersion tags the trait/dimension scoring algorithm.
	EngineVersion string `koanf:"engine_version"`

	// FCVersion tags the forced-choice scoring algorithm.
	FCVersion string `koanf:"fc_version"`

	// CalibrationVersion selects the calibration table.
	CalibrationVersion string `koanf:"calibration_version"`

	// RequiredQuestionTags is the fixed set of tags a session must have
	// answered before it is finalizable.
	RequiredQuestionTags []string `koanf:"required_question_tags"`

	// DimThresholds holds the three cut points defining four dimension
	// strength bands, ascending.
	DimThresholds []float64 `koanf:"dim_thresholds"`

	// NeuroMean and NeuroSD are the cohort norms for the neuroticism z-score.
	NeuroMean float64 `koanf:"neuro_mean"`
	NeuroSD   float64 `koanf:"neuro_sd"`

	// FCExpectedMin is the minimum answered forced-choice blocks.
	FCExpectedMin int `koanf:"fc_expected_min"`

	// GateStrictMode aborts on missing required tags; when disabled the
	// scorer proceeds on partial data and flags the profile low-confidence.
	GateStrictMode bool `koanf:"gate_strict_mode"`

	// CloseCallThreshold marks a profile close_call when top_gap falls below it.
	CloseCallThreshold float64 `koanf:"close_call_threshold"`

	// OverlayLowZ and OverlayHighZ cut the neuroticism z-score into the
	// three regulation bands.
	OverlayLowZ  float64 `koanf:"overlay_low_z"`
	OverlayHighZ float64 `koanf:"overlay_high_z"`

	// BaseWeight and CreativeWeight shape the per-type fit computation.
	BaseWeight     float64 `koanf:"base_weight"`
	CreativeWeight float64 `koanf:"creative_weight"`
}

// New creates a Config holding the compiled-in fallback values. These are the
// values finalization runs on whenever file, env and the config service all
// have nothing to say.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9090",
		DBPath:                 "sonder.db",
		ShareTokenSecret:       "dev-only-secret",
		ShareTokenTTLMinutes:   60 * 24 * 30,
		ConfigServiceTimeoutMS: 1500,
		BatchRatePerMin:        60,
		BatchMaxInFlight:       4,
		BatchFailureRateLimit:  0.25,
		BatchMinSample:         8,
		Scoring:                FallbackScoring(),
	}
}

// FallbackScoring returns the compiled-in scoring fallback table.
func FallbackScoring() ScoringConfig {
	return ScoringConfig{
		EngineVersion:      "3",
		FCVersion:          "2",
		CalibrationVersion: "1",
		RequiredQuestionTags: []string{
			"dim:energy", "dim:information", "dim:decision", "dim:structure",
			"trait:neuro",
		},
		DimThresholds:      []float64{0.25, 0.5, 0.75},
		NeuroMean:          3.0,
		NeuroSD:            0.8,
		FCExpectedMin:      24,
		GateStrictMode:     true,
		CloseCallThreshold: 0.08,
		OverlayLowZ:        -0.5,
		OverlayHighZ:       0.5,
		BaseWeight:         2.0,
		CreativeWeight:     1.0,
	}
}

// ResultsVersion composes the results_version stamp for profiles produced
// under this configuration: "{engine_version}.{calibration_version}".
func (s ScoringConfig) ResultsVersion() string {
	return s.EngineVersion + "." + s.CalibrationVersion
}
