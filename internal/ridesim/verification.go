package ridesim

import (
	"fmt"

	"github.com/okian/ridesafe/internal/domain/crash"
	"github.com/okian/ridesafe/internal/domain/emergency"
	"github.com/okian/ridesafe/internal/domain/model"
)

// verifyLegReading checks the reading the service derived from the last
// sample of a leg.
func verifyLegReading(r model.Reading, leg Leg) error {
	if r.RideMode != leg.Mode {
		return fmt.Errorf("ride mode %s, expected %s", r.RideMode, leg.Mode)
	}
	if r.AccelerationG <= 0 || r.AccelerationG > crash.DefaultThresholdG {
		return fmt.Errorf("acceleration %.3fg out of range for a steady leg", r.AccelerationG)
	}
	if want := model.ClassifyRideMode(r.SpeedKmh); want != leg.Mode {
		return fmt.Errorf("speed %.2f km/h classifies as %s, reading says %s", r.SpeedKmh, want, leg.Mode)
	}
	return nil
}

// verifyActive checks that a crash opened a full countdown.
func verifyActive(s emergency.State, countdown int) error {
	if !s.Active() {
		return fmt.Errorf("countdown not active (phase %s)", s.Phase)
	}
	if s.EpisodeID == "" {
		return fmt.Errorf("active countdown without episode id")
	}
	if s.Remaining < 1 || (countdown > 0 && s.Remaining > countdown) {
		return fmt.Errorf("remaining %d outside 1..%d", s.Remaining, countdown)
	}
	if s.TriggerG <= crash.DefaultThresholdG {
		return fmt.Errorf("trigger %.3fg not above the crash threshold", s.TriggerG)
	}
	return nil
}

// verifyEnded checks that the episode ended with the expected outcome and
// the controller is back to Idle(0).
func verifyEnded(s emergency.State, episodeID string, outcome emergency.Outcome) error {
	if s.Active() {
		return fmt.Errorf("countdown still active")
	}
	if s.Remaining != 0 {
		return fmt.Errorf("idle controller reports %d seconds remaining", s.Remaining)
	}
	if s.LastEpisodeID != episodeID {
		return fmt.Errorf("last episode %q, expected %q", s.LastEpisodeID, episodeID)
	}
	if s.LastOutcome != outcome {
		return fmt.Errorf("outcome %s, expected %s", s.LastOutcome, outcome)
	}
	return nil
}
