package traits

import "errors"

// Sentinel kinds for trait scoring errors.
var (
	// ErrMissingRequiredTags aborts scoring under gate_strict_mode when a
	// required question tag has no answers. Structural: the respondent must
	// provide more data before a retry can succeed.
	ErrMissingRequiredTags = errors.New("missing required question tags")
)
