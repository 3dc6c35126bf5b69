package batch

import (
	"time"

	"github.com/okian/sonder/pkg/logger"
)

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithRatePerMin sets the default throttle (token bucket capacity and
// per-minute refill).
func WithRatePerMin(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.ratePerMin = n
		}
	}
}

// WithMaxInFlight bounds concurrent in-flight finalizations.
func WithMaxInFlight(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxInFlight = n
		}
	}
}

// WithBreaker sets the failure-rate limit and the minimum processed count
// before the breaker can trip.
func WithBreaker(failureRate float64, minSample int) Option {
	return func(c *Controller) {
		if failureRate > 0 {
			c.failureRate = failureRate
		}
		if minSample > 0 {
			c.minSample = minSample
		}
	}
}

// WithClock overrides the controller's time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}
