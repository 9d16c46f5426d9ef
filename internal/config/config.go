// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers defaults, an optional YAML file and RIDESAFE_ environment variables.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Locator kinds.
const (
	LocatorNone   = "none"
	LocatorGPSD   = "gpsd"
	LocatorStatic = "static"
)

// Dialer kinds.
const (
	DialerLog     = "log"
	DialerWebhook = "webhook"
)

// Source kinds.
const (
	SourceNone   = "none"
	SourcePoll   = "poll"
	SourceSerial = "serial"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DeviceID labels every metric when set.
	DeviceID string `koanf:"device_id"`

	// Metrics controls the Prometheus manager.
	MetricsEnabled   bool   `koanf:"metrics_enabled"`
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsRefreshMS int    `koanf:"metrics_refresh_ms"`

	// QueueSize bounds the in-memory raw sample queue.
	QueueSize int `koanf:"queue_size"`

	// HistoryCapacity bounds the number of readings retained in history.
	HistoryCapacity int `koanf:"history_capacity"`

	// MaxHistoryLimit caps GET /history?limit.
	MaxHistoryLimit int `koanf:"max_history_limit"`

	// DedupeSize sets how many device sample ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// CrashThresholdG is the acceleration magnitude (in g) above which a reading is a crash.
	CrashThresholdG float64 `koanf:"crash_threshold_g"`

	// CountdownSeconds is the length of the emergency countdown.
	CountdownSeconds int `koanf:"countdown_seconds"`

	// EmergencyNumber is the fixed target handed to the dialer.
	EmergencyNumber string `koanf:"emergency_number"`

	// Locator selects the fallback positioning source: none, gpsd, static.
	Locator          string  `koanf:"locator"`
	GPSDAddr         string  `koanf:"gpsd_addr"`
	LocatorTimeoutMS int     `koanf:"locator_timeout_ms"`
	StaticLat        float64 `koanf:"static_lat"`
	StaticLon        float64 `koanf:"static_lon"`

	// Dialer selects the call placement collaborator: log, webhook.
	Dialer           string `koanf:"dialer"`
	DialerWebhookURL string `koanf:"dialer_webhook_url"`
	DialerTimeoutMS  int    `koanf:"dialer_timeout_ms"`

	// Source selects an optional built-in sample transport: none, poll, serial.
	Source         string `koanf:"source"`
	PollURL        string `koanf:"poll_url"`
	PollIntervalMS int    `koanf:"poll_interval_ms"`
	SerialPort     string `koanf:"serial_port"`
	SerialBaud     int    `koanf:"serial_baud"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		Addr:             ":9080",
		MetricsEnabled:   true,
		MetricsNamespace: "ridesafe",
		MetricsRefreshMS: 10_000,
		QueueSize:        1_024,
		HistoryCapacity:  1_000,
		MaxHistoryLimit:  1_000,
		DedupeSize:       4_096,
		CrashThresholdG:  3.5,
		CountdownSeconds: 30,
		EmergencyNumber:  "112",
		Locator:          LocatorNone,
		GPSDAddr:         "127.0.0.1:2947",
		LocatorTimeoutMS: 2_000,
		Dialer:           DialerLog,
		DialerTimeoutMS:  5_000,
		Source:           SourceNone,
		PollIntervalMS:   500,
		SerialBaud:       115_200,
	}
}

// LocatorTimeout returns the fallback lookup deadline.
func (c *Config) LocatorTimeout() time.Duration {
	return time.Duration(c.LocatorTimeoutMS) * time.Millisecond
}

// DialerTimeout returns the call placement deadline.
func (c *Config) DialerTimeout() time.Duration {
	return time.Duration(c.DialerTimeoutMS) * time.Millisecond
}

// MetricsRefresh returns the gauge refresh cadence.
func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshMS) * time.Millisecond
}

// PollInterval returns the device polling cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.HistoryCapacity < 1:
		return fmt.Errorf("%w: history_capacity must be positive", ErrInvalidConfig)
	case c.CountdownSeconds < 1:
		return fmt.Errorf("%w: countdown_seconds must be positive", ErrInvalidConfig)
	case c.CrashThresholdG <= 0:
		return fmt.Errorf("%w: crash_threshold_g must be positive", ErrInvalidConfig)
	case strings.TrimSpace(c.EmergencyNumber) == "":
		return fmt.Errorf("%w: emergency_number must not be empty", ErrInvalidConfig)
	}

	switch c.Locator {
	case LocatorNone, LocatorGPSD, LocatorStatic:
	default:
		return fmt.Errorf("%w: unknown locator %q", ErrInvalidConfig, c.Locator)
	}

	switch c.Dialer {
	case DialerLog:
	case DialerWebhook:
		if strings.TrimSpace(c.DialerWebhookURL) == "" {
			return fmt.Errorf("%w: dialer_webhook_url is required for the webhook dialer", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown dialer %q", ErrInvalidConfig, c.Dialer)
	}

	switch c.Source {
	case SourceNone:
	case SourcePoll:
		if strings.TrimSpace(c.PollURL) == "" {
			return fmt.Errorf("%w: poll_url is required for the poll source", ErrInvalidConfig)
		}
	case SourceSerial:
		if strings.TrimSpace(c.SerialPort) == "" {
			return fmt.Errorf("%w: serial_port is required for the serial source", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidConfig, c.Source)
	}
	return nil
}
