package config

import (
	"errors"
	"fmt"
)

// Sentinel kinds for configuration errors.
var (
	ErrEmptyAddr     = errors.New("addr must not be empty")
	ErrBadThresholds = errors.New("dim_thresholds must hold exactly three cut points")
	ErrBadNorms      = errors.New("neuro_sd must be positive")
	ErrBadFCMin      = errors.New("fc_expected_min must be positive")
	ErrRemoteFetch   = errors.New("config service fetch failed")
)

// WrapLoad wraps a loader error with package context.
func WrapLoad(err error) error {
	return fmt.Errorf("config load: %w", err)
}
