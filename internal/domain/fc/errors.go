package fc

import "errors"

// Sentinel kinds for forced-choice scoring errors.
var (
	// ErrInsufficientData means too few blocks were answered to score.
	// Structural: retrying without more answers cannot succeed.
	ErrInsufficientData = errors.New("insufficient forced-choice data")

	ErrUnknownBasis = errors.New("unknown scoring basis")
)
