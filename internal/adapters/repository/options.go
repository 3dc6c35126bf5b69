package repository

import "time"

// Option applies a configuration option to the SQLiteStore.
type Option func(*SQLiteStore)

// WithClock overrides the store's time source. Used by tests to pin
// timestamps for byte-identical idempotence checks.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}
