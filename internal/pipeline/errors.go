package pipeline

import "errors"

// Sentinel kinds for pipeline errors.
var (
	// ErrTransient marks a stage failure that exhausted its retry budget.
	// Callers may retry the whole finalization later.
	ErrTransient = errors.New("transient upstream failure")
)
