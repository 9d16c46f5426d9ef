package service

import (
	"time"

	"github.com/okian/ridesafe/internal/domain/emergency"
	"github.com/okian/ridesafe/internal/domain/normalize"
	"github.com/okian/ridesafe/pkg/logger"
	"github.com/okian/ridesafe/pkg/timeutil"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithQueueSize sets the maximum number of samples waiting for the worker.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many recent sample IDs are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithHistoryCapacity sets how many readings the history keeps.
func WithHistoryCapacity(capacity int) Option {
	return func(s *Service) {
		if capacity > 0 {
			s.historyCapacity = capacity
		}
	}
}

// WithCrashThresholdG sets the crash threshold in g.
func WithCrashThresholdG(g float64) Option {
	return func(s *Service) {
		if g > 0 {
			s.thresholdG = g
		}
	}
}

// WithCountdownSeconds sets the emergency countdown length.
func WithCountdownSeconds(seconds int) Option {
	return func(s *Service) {
		if seconds > 0 {
			s.countdownSeconds = seconds
		}
	}
}

// WithEmergencyNumber sets the number handed to the dialer.
func WithEmergencyNumber(number string) Option {
	return func(s *Service) {
		if number != "" {
			s.number = number
		}
	}
}

// WithClock sets the clock used for capture timestamps and countdown ticks.
func WithClock(c timeutil.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLocator enables fallback positioning with a per-lookup timeout.
func WithLocator(l normalize.Locator, timeout time.Duration) Option {
	return func(s *Service) {
		s.locator = l
		s.locatorTimeout = timeout
	}
}

// WithDialer sets the emergency call placement collaborator.
func WithDialer(d emergency.Dialer, timeout time.Duration) Option {
	return func(s *Service) {
		s.dialer = d
		s.dialTimeout = timeout
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
