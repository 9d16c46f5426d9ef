// Package crash decides whether a single reading carries a crash signature.
package crash

import "github.com/okian/ridesafe/internal/domain/model"

// DefaultThresholdG is the acceleration magnitude above which a reading counts as a crash.
const DefaultThresholdG = 3.5

// Signal is emitted for a reading that crossed the threshold.
type Signal struct {
	Seq              uint64
	AccelerationG    float64
	CapturedAtMillis int64
}

// Detector is a stateless predicate over one reading.
type Detector struct {
	thresholdG float64
}

// Option configures a Detector.
type Option func(*Detector)

// WithThresholdG overrides the crash threshold. Non-positive values are ignored.
func WithThresholdG(g float64) Option {
	return func(d *Detector) {
		if g > 0 {
			d.thresholdG = g
		}
	}
}

// NewDetector creates a Detector.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{thresholdG: DefaultThresholdG}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ThresholdG returns the configured threshold.
func (d *Detector) ThresholdG() float64 { return d.thresholdG }

// Evaluate returns a Signal when r.AccelerationG is strictly above the threshold.
func (d *Detector) Evaluate(r model.Reading) (Signal, bool) {
	if r.AccelerationG <= d.thresholdG {
		return Signal{}, false
	}
	return Signal{
		Seq:              r.Seq,
		AccelerationG:    r.AccelerationG,
		CapturedAtMillis: r.CapturedAtMillis,
	}, true
}
