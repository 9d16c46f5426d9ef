package normalize

import (
	"time"

	"github.com/okian/ridesafe/pkg/logger"
	"github.com/okian/ridesafe/pkg/timeutil"
)

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock sets the clock used for capture timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(n *Normalizer) {
		if c != nil {
			n.clock = c
		}
	}
}

// WithLocator enables fallback positioning. Results are delivered to onPosition.
func WithLocator(l Locator, onPosition PositionFunc) Option {
	return func(n *Normalizer) {
		n.locator = l
		n.onPosition = onPosition
	}
}

// WithLookupTimeout bounds each fallback lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(n *Normalizer) {
		n.lookupTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Normalizer) {
		n.log = l
	}
}
