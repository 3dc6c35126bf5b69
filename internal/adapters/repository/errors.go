package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrStaleVersion  = errors.New("stale results_version")
	ErrNoCalibration = errors.New("no calibration table for version")
)
