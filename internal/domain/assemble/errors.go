package assemble

import "errors"

// Sentinel kinds for assembly errors.
var (
	ErrNoCandidates = errors.New("no candidate types to rank")
)
