package calibration

import "errors"

// Sentinel kinds for calibration errors.
var (
	// ErrMalformed flags a table violating the monotonicity invariant.
	ErrMalformed = errors.New("calibration table not monotonic")
)
