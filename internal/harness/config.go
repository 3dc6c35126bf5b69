package harness

import "time"

// Config controls one simulation run against a live service.
type Config struct {
	// BaseURL of the service under test.
	BaseURL string

	// Sessions is how many full assessment walks to drive.
	Sessions int

	// FCBlocks is the number of forced-choice blocks answered per session.
	FCBlocks int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// Verbose enables per-session logging.
	Verbose bool
}

// Stats accumulates run results.
type Stats struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	SessionsCreated int
	Finalized       int
	Failed          int
	TokenReads      int
	DeniedReads     int
}
