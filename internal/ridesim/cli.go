package ridesim

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/ridesafe/pkg/logger"
)

// SetupLogging initializes the global logger writing to stdout and, when
// logFile is set, to that file as well. The returned func closes the file.
func SetupLogging(logFile string) (func() error, error) {
	if logFile == "" {
		if err := logger.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		return func() error { return nil }, nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWithWriter(io.MultiWriter(os.Stdout, file)); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return file.Close, nil
}

// ShowHelp prints usage information for the ride simulator.
func ShowHelp() {
	os.Stdout.WriteString(`ridesafe ride simulator
=======================

Rides idle, walking, scooter and motorcycle legs against a running ridesafe
service, crashes, then cancels (or places) the emergency call and verifies
every step through the HTTP API.

Usage:
  go run ./cmd/ride-sim [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -samples int
        Samples per ride leg (default 20)
  -interval duration
        Pause between samples (default 0)
  -crash-g float
        Crash magnitude in g (default 6)
  -call
        Place the call instead of cancelling the countdown
  -seed uint
        Jitter seed (default derived from the run id)
  -timeout duration
        HTTP request timeout (default 5s)
  -output string
        Write generated samples to this JSON file
  -log string
        Also write logs to this file
  -verbose
        Log every verified leg
  -help
        Show this help message
`)
}
