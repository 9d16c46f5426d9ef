package emergency

import (
	"time"

	"github.com/okian/ridesafe/pkg/logger"
	"github.com/okian/ridesafe/pkg/timeutil"
)

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock that drives countdown ticks.
func WithClock(c timeutil.Clock) Option {
	return func(ctl *Controller) {
		if c != nil {
			ctl.clock = c
		}
	}
}

// WithDialer sets the call placement collaborator.
func WithDialer(d Dialer) Option {
	return func(ctl *Controller) {
		if d != nil {
			ctl.dialer = d
		}
	}
}

// WithNumber sets the emergency number passed to the dialer.
func WithNumber(number string) Option {
	return func(ctl *Controller) {
		if number != "" {
			ctl.number = number
		}
	}
}

// WithCountdownSeconds sets the countdown length. Non-positive values are ignored.
func WithCountdownSeconds(seconds int) Option {
	return func(ctl *Controller) {
		if seconds > 0 {
			ctl.seconds = seconds
		}
	}
}

// WithDialTimeout bounds each call placement.
func WithDialTimeout(d time.Duration) Option {
	return func(ctl *Controller) {
		if d > 0 {
			ctl.dialTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(ctl *Controller) {
		ctl.log = l
	}
}
