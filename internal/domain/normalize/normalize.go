// Package normalize turns raw device samples into canonical readings.
package normalize

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/ridesafe/internal/domain/model"
	"github.com/okian/ridesafe/pkg/logger"
	"github.com/okian/ridesafe/pkg/metrics"
	"github.com/okian/ridesafe/pkg/timeutil"
	"gonum.org/v1/gonum/floats"
)

// Skip reasons reported to metrics.
const (
	SkipNoAcceleration = "no_acceleration"
	SkipNonFinite      = "non_finite"
)

const (
	// jitterKmh is the speed below which a reading is treated as stationary.
	jitterKmh = 0.8

	defaultLookupTimeout = 2 * time.Second
)

// Locator resolves the device position when a sample carries none.
type Locator interface {
	Locate(ctx context.Context) (model.Position, error)
}

// PositionFunc receives a late fallback position for the reading with the given seq.
type PositionFunc func(seq uint64, pos model.Position)

// Normalizer validates raw samples and derives canonical readings.
type Normalizer struct {
	clock         timeutil.Clock
	locator       Locator
	onPosition    PositionFunc
	lookupTimeout time.Duration
	log           logger.Logger

	seq      atomic.Uint64
	inflight atomic.Bool
	wg       sync.WaitGroup
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		clock:         timeutil.RealClock{},
		lookupTimeout: defaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.log == nil {
		n.log = logger.Get().Named("normalize")
	}
	if n.lookupTimeout <= 0 {
		n.lookupTimeout = defaultLookupTimeout
	}
	return n
}

// Normalize converts raw into a Reading. The boolean is false when the
// sample must be skipped. It never blocks on the fallback locator.
func (n *Normalizer) Normalize(ctx context.Context, raw model.RawSample) (model.Reading, bool) {
	if !raw.HasAcceleration() {
		n.skip(ctx, SkipNoAcceleration)
		return model.Reading{}, false
	}

	vec := []float64{value(raw.AX), value(raw.AY), value(raw.AZ)}
	if !allFinite(vec) || !finitePtr(raw.GPSSpeed) || !finitePtr(raw.IMUSpeed) || !finitePtr(raw.Tilt) {
		n.skip(ctx, SkipNonFinite)
		return model.Reading{}, false
	}

	// Huge finite inputs can still overflow once scaled.
	accel := floats.Norm(vec, 2) / model.StandardGravity
	speed := Speed(raw.GPSSpeed, raw.IMUSpeed)
	if !finite(accel) || !finite(speed) {
		n.skip(ctx, SkipNonFinite)
		return model.Reading{}, false
	}

	r := model.Reading{
		Seq:              n.seq.Add(1),
		AccelerationG:    accel,
		SpeedKmh:         speed,
		RideMode:         model.ClassifyRideMode(speed),
		Tilt:             copyPtr(raw.Tilt),
		Posture:          copyPtr(raw.Posture),
		CapturedAtMillis: n.clock.Now().UnixMilli(),
	}

	if raw.HasPosition() && finitePtr(raw.Lat) && finitePtr(raw.Lon) {
		r.Lat = copyPtr(raw.Lat)
		r.Lon = copyPtr(raw.Lon)
		r.PositionSource = model.PositionDevice
	} else {
		n.lookup(ctx, r.Seq)
	}

	return r, true
}

// Wait blocks until in-flight fallback lookups have finished.
func (n *Normalizer) Wait() {
	n.wg.Wait()
}

// lookup starts a detached fallback position request unless one is already running.
func (n *Normalizer) lookup(ctx context.Context, seq uint64) {
	if n.locator == nil || n.onPosition == nil {
		return
	}
	if !n.inflight.CompareAndSwap(false, true) {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer n.inflight.Store(false)

		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.lookupTimeout)
		defer cancel()

		start := time.Now()
		pos, err := n.locator.Locate(lctx)
		latency := float64(time.Since(start).Nanoseconds()) / 1e6
		if err != nil {
			metrics.RecordFallbackLookup("error", latency)
			n.log.Debug(lctx, "fallback position unavailable", logger.Uint64("seq", seq), logger.Error(err))
			return
		}
		if !finite(pos.Lat) || !finite(pos.Lon) {
			metrics.RecordFallbackLookup("invalid", latency)
			return
		}
		metrics.RecordFallbackLookup("ok", latency)
		n.onPosition(seq, pos)
	}()
}

func (n *Normalizer) skip(ctx context.Context, reason string) {
	metrics.RecordSampleSkipped(reason)
	n.log.Debug(ctx, "sample skipped", logger.String("reason", reason))
}

// Speed picks GPS speed when positive, else inertial speed when positive,
// rounds to two decimals and snaps values below the jitter floor to zero.
// A speed too large to round comes back as +Inf.
func Speed(gps, imu *float64) float64 {
	var v float64
	switch {
	case gps != nil && *gps > 0:
		v = *gps
	case imu != nil && *imu > 0:
		v = *imu
	default:
		return 0
	}
	v = math.Round(v*100) / 100
	if v < jitterKmh {
		return 0
	}
	return v
}

func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finitePtr(p *float64) bool {
	return p == nil || finite(*p)
}

func allFinite(vs []float64) bool {
	for _, v := range vs {
		if !finite(v) {
			return false
		}
	}
	return true
}
