package ridesim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/okian/ridesafe/internal/domain/emergency"
	"github.com/okian/ridesafe/internal/domain/model"
	"github.com/okian/ridesafe/internal/domain/types"
	"github.com/okian/ridesafe/pkg/logger"
)

// Defaults applied to zero Config fields.
const (
	defaultSamplesPerLeg = 20
	defaultTimeout       = 5 * time.Second
	defaultSettleTimeout = 10 * time.Second
	defaultCrashG        = 6.0
	pollInterval         = 20 * time.Millisecond
	directoryPermission  = 0o750
	filePermission       = 0o600
)

// ErrVerification is returned when the service state does not match the ride.
var ErrVerification = errors.New("ridesim: verification failed")

// Run rides through every leg, crashes, and resolves the countdown.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	applyDefaults(cfg)
	log := logger.Get().Named("ridesim")

	stats := &Stats{RunID: uuid.NewString(), StartTime: time.Now()}
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting simulated ride",
		logger.String("runID", stats.RunID),
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("samplesPerLeg", cfg.SamplesPerLeg),
		logger.Float64("crashG", cfg.CrashG),
		logger.Bool("callNow", cfg.CallNow))

	// Step 1: Check service health
	status, err := client.getJSON(ctx, "/healthz", nil)
	if err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}
	if status != http.StatusOK {
		return stats, fmt.Errorf("service health check failed with status: %d", status)
	}
	var before emergency.State
	if _, err := client.getJSON(ctx, "/emergency", &before); err != nil {
		return stats, err
	}
	if before.Active() {
		return stats, fmt.Errorf("%w: countdown %s already running", ErrVerification, before.EpisodeID)
	}

	// Step 2: Generate the ride
	seed := cfg.Seed
	if seed == 0 {
		seed = SeedFor(stats.RunID)
	}
	ride := Generate(stats.RunID, DefaultLegs, cfg.SamplesPerLeg, cfg.CrashG, seed)
	stats.SamplesGenerated = len(ride.Samples)

	// Step 3: Ride each leg and check the current reading
	start := 0
	for i, leg := range DefaultLegs {
		for _, s := range ride.Samples[start:ride.LegEnd[i]] {
			if err := submit(ctx, client, s, stats); err != nil {
				return stats, err
			}
			if err := sleep(ctx, cfg.Interval); err != nil {
				return stats, err
			}
		}
		// Replaying the first sample of the leg must be ignored.
		if err := submit(ctx, client, ride.Samples[start], stats); err != nil {
			return stats, err
		}
		start = ride.LegEnd[i]

		reading, err := waitReading(ctx, client, cfg.SettleTimeout, func(r model.Reading) bool { return r.RideMode == leg.Mode })
		if err != nil {
			return stats, fmt.Errorf("leg %s: %w", leg.Mode, err)
		}
		if err := verifyLegReading(reading, leg); err != nil {
			return stats, fmt.Errorf("%w: leg %s: %w", ErrVerification, leg.Mode, err)
		}
		stats.ModesVerified++
		if cfg.Verbose {
			log.Info(ctx, "leg verified",
				logger.String("mode", string(leg.Mode)),
				logger.Uint64("seq", reading.Seq),
				logger.Float64("speedKmh", reading.SpeedKmh))
		}
	}

	// Step 4: Crash
	if err := submit(ctx, client, ride.Crash(), stats); err != nil {
		return stats, err
	}
	active, err := waitEmergency(ctx, client, cfg.SettleTimeout, emergency.State.Active)
	if err != nil {
		return stats, fmt.Errorf("crash: %w", err)
	}
	if err := verifyActive(active, 0); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrVerification, err)
	}
	stats.EpisodeID = active.EpisodeID
	log.Info(ctx, "countdown running",
		logger.String("episode", active.EpisodeID),
		logger.Int("remaining", active.Remaining),
		logger.Float64("g", active.TriggerG))

	// Step 5: Resolve the countdown
	path, want, outcome := "/emergency/cancel", "cancelled", emergency.OutcomeCancelled
	if cfg.CallNow {
		path, want, outcome = "/emergency/call", "called", emergency.OutcomeManual
	}
	var res types.CommandResult
	code, err := client.postJSON(ctx, path, nil, &res)
	if err != nil {
		return stats, err
	}
	if code != http.StatusOK || res.Status != want {
		return stats, fmt.Errorf("%w: %s returned %d %q", ErrVerification, path, code, res.Status)
	}

	var after emergency.State
	if _, err := client.getJSON(ctx, "/emergency", &after); err != nil {
		return stats, err
	}
	if err := verifyEnded(after, active.EpisodeID, outcome); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrVerification, err)
	}
	stats.Outcome = string(after.LastOutcome)

	// Step 6: Save samples to file
	if cfg.OutputFile != "" {
		if err := saveSamples(cfg.OutputFile, ride.Samples); err != nil {
			log.Warn(ctx, "failed to save samples to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)
	return stats, nil
}

func applyDefaults(cfg *Config) {
	if cfg.SamplesPerLeg <= 0 {
		cfg.SamplesPerLeg = defaultSamplesPerLeg
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = defaultSettleTimeout
	}
	if cfg.CrashG <= 0 {
		cfg.CrashG = defaultCrashG
	}
}

func submit(ctx context.Context, client *HTTPClient, s model.RawSample, stats *Stats) error {
	var ack types.Ack
	code, err := client.postJSON(ctx, "/samples", s, &ack)
	if err != nil {
		stats.SamplesFailed++
		return fmt.Errorf("submit sample %s: %w", s.ID, err)
	}
	switch code {
	case http.StatusAccepted:
		stats.SamplesAccepted += ack.Accepted
	case http.StatusOK:
		stats.SamplesDuplicate += ack.Duplicates
	default:
		stats.SamplesFailed++
		return fmt.Errorf("submit sample %s: status %d", s.ID, code)
	}
	return nil
}

func waitReading(ctx context.Context, client *HTTPClient, timeout time.Duration, ok func(model.Reading) bool) (model.Reading, error) {
	var r model.Reading
	err := waitFor(ctx, timeout, func() (bool, error) {
		code, err := client.getJSON(ctx, "/reading", &r)
		if err != nil {
			return false, err
		}
		return code == http.StatusOK && ok(r), nil
	})
	return r, err
}

func waitEmergency(ctx context.Context, client *HTTPClient, timeout time.Duration, ok func(emergency.State) bool) (emergency.State, error) {
	var s emergency.State
	err := waitFor(ctx, timeout, func() (bool, error) {
		if _, err := client.getJSON(ctx, "/emergency", &s); err != nil {
			return false, err
		}
		return ok(s), nil
	})
	return s, err
}

// waitFor polls cond until it holds, fails, or timeout elapses.
func waitFor(ctx context.Context, timeout time.Duration, cond func() (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		done, err := cond()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: service did not settle: %w", ErrVerification, ctx.Err())
		case <-ticker.C:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// saveSamples writes the generated samples as an indented JSON array.
func saveSamples(filename string, samples []model.RawSample) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal samples: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), filePermission); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	return nil
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	log.Info(ctx, "final statistics",
		logger.String("runID", stats.RunID),
		logger.Int("samplesGenerated", stats.SamplesGenerated),
		logger.Int("samplesAccepted", stats.SamplesAccepted),
		logger.Int("samplesDuplicate", stats.SamplesDuplicate),
		logger.Int("samplesFailed", stats.SamplesFailed),
		logger.Int("modesVerified", stats.ModesVerified),
		logger.String("episode", stats.EpisodeID),
		logger.String("outcome", stats.Outcome),
		logger.Duration("duration", stats.Duration))
}
