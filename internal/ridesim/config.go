// Package ridesim drives a running ridesafe service through a simulated ride
// that ends in a crash, then verifies the readings and the emergency countdown.
package ridesim

import (
	"time"

	"github.com/okian/ridesafe/internal/domain/model"
)

// Config holds configuration for a simulated ride.
type Config struct {
	BaseURL       string        // Base URL of the service
	SamplesPerLeg int           // Samples sent for each ride leg
	Interval      time.Duration // Pause between samples
	Timeout       time.Duration // HTTP request timeout
	SettleTimeout time.Duration // How long to wait for the service to catch up
	CrashG        float64       // Acceleration magnitude of the crash sample, in g
	CallNow       bool          // Place the call instead of cancelling the countdown
	Seed          uint64        // Seed for sensor jitter; 0 picks one from the run id
	OutputFile    string        // Output file for generated samples
	Verbose       bool          // Enable verbose logging
}

// Leg is one stretch of the ride at a steady speed.
type Leg struct {
	Mode     model.RideMode
	SpeedKmh float64
}

// DefaultLegs ride through every mode before the crash.
var DefaultLegs = []Leg{
	{Mode: model.RideModeIdle, SpeedKmh: 0.5},
	{Mode: model.RideModeWalking, SpeedKmh: 4},
	{Mode: model.RideModeScooter, SpeedKmh: 8},
	{Mode: model.RideModeMotorcycle, SpeedKmh: 45},
}

// Stats holds run statistics.
type Stats struct {
	RunID            string
	SamplesGenerated int
	SamplesAccepted  int
	SamplesDuplicate int
	SamplesFailed    int
	ModesVerified    int
	EpisodeID        string
	Outcome          string
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
