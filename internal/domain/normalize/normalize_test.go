package normalize_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/okian/ridesafe/internal/domain/model"
	"github.com/okian/ridesafe/internal/domain/normalize"
	"github.com/okian/ridesafe/pkg/logger"
	"github.com/okian/ridesafe/pkg/timeutil"
	. "github.com/smartystreets/goconvey/convey"
)

func ptr[T any](v T) *T { return &v }

type stubLocator struct {
	pos     model.Position
	err     error
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (s *stubLocator) Locate(ctx context.Context) (model.Position, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return model.Position{}, ctx.Err()
		}
	}
	return s.pos, s.err
}

func (s *stubLocator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestNormalize(t *testing.T) {
	Convey("Given a normalizer with a fixed clock", t, func() {
		start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
		clock := timeutil.NewMockClock(start)
		n := normalize.New(normalize.WithClock(clock), normalize.WithLogger(logger.Nop()))
		ctx := context.Background()

		Convey("When the acceleration vector is absent", func() {
			_, ok := n.Normalize(ctx, model.RawSample{GPSSpeed: ptr(12.0), Lat: ptr(1.0), Lon: ptr(2.0)})

			Convey("Then the sample is skipped", func() {
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When an acceleration component is not finite", func() {
			_, ok := n.Normalize(ctx, model.RawSample{AX: ptr(math.NaN())})

			Convey("Then the sample is skipped", func() {
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When a finite speed overflows while rounding", func() {
			_, skipped := n.Normalize(ctx, model.RawSample{AZ: ptr(9.8), GPSSpeed: ptr(1e307)})
			next, ok := n.Normalize(ctx, model.RawSample{AZ: ptr(9.8), GPSSpeed: ptr(12.0)})

			Convey("Then the sample is skipped without consuming a seq", func() {
				So(skipped, ShouldBeFalse)
				So(ok, ShouldBeTrue)
				So(next.Seq, ShouldEqual, 1)
				So(next.SpeedKmh, ShouldEqual, 12)
			})
		})

		Convey("When the acceleration magnitude overflows", func() {
			_, ok := n.Normalize(ctx, model.RawSample{AX: ptr(1.7e308), AY: ptr(1.7e308), AZ: ptr(1.7e308)})

			Convey("Then the sample is skipped", func() {
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When tilt is not finite", func() {
			_, nan := n.Normalize(ctx, model.RawSample{AZ: ptr(9.8), Tilt: ptr(math.NaN())})
			_, inf := n.Normalize(ctx, model.RawSample{AZ: ptr(9.8), Tilt: ptr(math.Inf(-1))})

			Convey("Then the sample is skipped", func() {
				So(nan, ShouldBeFalse)
				So(inf, ShouldBeFalse)
			})
		})

		Convey("When the acceleration vector is present", func() {
			r, ok := n.Normalize(ctx, model.RawSample{AX: ptr(3.0), AY: ptr(4.0), AZ: ptr(12.0)})

			Convey("Then the magnitude is the euclidean norm in g", func() {
				So(ok, ShouldBeTrue)
				So(r.AccelerationG, ShouldAlmostEqual, 13.0/9.8, 1e-9)
				So(r.CapturedAtMillis, ShouldEqual, start.UnixMilli())
				So(r.Seq, ShouldEqual, 1)
			})
		})

		Convey("When only some components are present", func() {
			r, ok := n.Normalize(ctx, model.RawSample{AZ: ptr(-9.8)})

			Convey("Then the missing ones count as zero", func() {
				So(ok, ShouldBeTrue)
				So(r.AccelerationG, ShouldAlmostEqual, 1.0, 1e-9)
			})
		})

		Convey("When GPS speed is positive", func() {
			r, _ := n.Normalize(ctx, model.RawSample{AZ: ptr(9.8), GPSSpeed: ptr(7.456), IMUSpeed: ptr(30.0)})

			Convey("Then it wins over inertial speed and is rounded", func() {
				So(r.SpeedKmh, ShouldEqual, 7.46)
				So(r.RideMode, ShouldEqual, model.RideModeScooter)
			})
		})

		Convey("When GPS speed is zero", func() {
			r, _ := n.Normalize(ctx, model.RawSample{AZ: ptr(9.8), GPSSpeed: ptr(0.0), IMUSpeed: ptr(4.2)})

			Convey("Then inertial speed is used", func() {
				So(r.SpeedKmh, ShouldEqual, 4.2)
				So(r.RideMode, ShouldEqual, model.RideModeWalking)
			})
		})

		Convey("When the speed is below the jitter floor", func() {
			r, _ := n.Normalize(ctx, model.RawSample{AZ: ptr(9.8), GPSSpeed: ptr(0.79)})

			Convey("Then it snaps to zero", func() {
				So(r.SpeedKmh, ShouldEqual, 0)
				So(r.RideMode, ShouldEqual, model.RideModeIdle)
			})
		})

		Convey("When no speed is present", func() {
			r, _ := n.Normalize(ctx, model.RawSample{AZ: ptr(9.8)})

			Convey("Then speed is zero", func() {
				So(r.SpeedKmh, ShouldEqual, 0)
			})
		})

		Convey("When tilt, posture and position are present", func() {
			raw := model.RawSample{AZ: ptr(9.8), Tilt: ptr(12.5), Posture: ptr("upright"), Lat: ptr(52.5), Lon: ptr(13.4)}
			r, _ := n.Normalize(ctx, raw)
			*raw.Tilt = 99

			Convey("Then they pass through as copies", func() {
				So(*r.Tilt, ShouldEqual, 12.5)
				So(*r.Posture, ShouldEqual, "upright")
				So(*r.Lat, ShouldEqual, 52.5)
				So(*r.Lon, ShouldEqual, 13.4)
				So(r.PositionSource, ShouldEqual, model.PositionDevice)
			})
		})

		Convey("When several samples are normalized", func() {
			a, _ := n.Normalize(ctx, model.RawSample{AZ: ptr(9.8)})
			clock.Advance(500 * time.Millisecond)
			b, _ := n.Normalize(ctx, model.RawSample{AZ: ptr(9.8)})

			Convey("Then seq and capture time increase", func() {
				So(b.Seq, ShouldEqual, a.Seq+1)
				So(b.CapturedAtMillis-a.CapturedAtMillis, ShouldEqual, 500)
			})
		})
	})
}

func TestSpeed(t *testing.T) {
	Convey("Given GPS speeds above zero", t, func() {
		for _, g := range []float64{0.5, 0.8, 1.234, 1.235, 60} {
			want := math.Round(g*100) / 100
			if want < 0.8 {
				want = 0
			}
			So(normalize.Speed(ptr(g), ptr(99.0)), ShouldEqual, want)
		}
	})

	Convey("Given a speed too large to round", t, func() {
		So(math.IsInf(normalize.Speed(ptr(1e307), nil), 1), ShouldBeTrue)
	})

	Convey("Given negative speeds", t, func() {
		So(normalize.Speed(ptr(-3.0), ptr(-1.0)), ShouldEqual, 0)
	})
}

func TestFallbackLocator(t *testing.T) {
	Convey("Given a normalizer with a fallback locator", t, func() {
		ctx := context.Background()
		var (
			mu  sync.Mutex
			got = map[uint64]model.Position{}
		)
		onPosition := func(seq uint64, pos model.Position) {
			mu.Lock()
			got[seq] = pos
			mu.Unlock()
		}

		Convey("When a sample has no position", func() {
			loc := &stubLocator{pos: model.Position{Lat: 48.1, Lon: 11.6}}
			n := normalize.New(normalize.WithLogger(logger.Nop()), normalize.WithLocator(loc, onPosition))
			r, ok := n.Normalize(ctx, model.RawSample{AZ: ptr(9.8)})
			n.Wait()

			Convey("Then the reading is returned without a position and the result arrives later", func() {
				So(ok, ShouldBeTrue)
				So(r.HasPosition(), ShouldBeFalse)
				So(loc.Calls(), ShouldEqual, 1)
				mu.Lock()
				defer mu.Unlock()
				So(got[r.Seq], ShouldResemble, model.Position{Lat: 48.1, Lon: 11.6})
			})
		})

		Convey("When the sample carries a position", func() {
			loc := &stubLocator{}
			n := normalize.New(normalize.WithLogger(logger.Nop()), normalize.WithLocator(loc, onPosition))
			_, _ = n.Normalize(ctx, model.RawSample{AZ: ptr(9.8), Lat: ptr(1.0), Lon: ptr(2.0)})
			n.Wait()

			Convey("Then no lookup is made", func() {
				So(loc.Calls(), ShouldEqual, 0)
			})
		})

		Convey("When the locator fails", func() {
			loc := &stubLocator{err: errors.New("no fix")}
			n := normalize.New(normalize.WithLogger(logger.Nop()), normalize.WithLocator(loc, onPosition))
			r, ok := n.Normalize(ctx, model.RawSample{AZ: ptr(9.8)})
			n.Wait()

			Convey("Then the failure is silent", func() {
				So(ok, ShouldBeTrue)
				mu.Lock()
				defer mu.Unlock()
				_, delivered := got[r.Seq]
				So(delivered, ShouldBeFalse)
			})
		})

		Convey("When the locator is slow", func() {
			loc := &stubLocator{pos: model.Position{Lat: 1, Lon: 1}, release: make(chan struct{})}
			n := normalize.New(normalize.WithLogger(logger.Nop()), normalize.WithLocator(loc, onPosition))

			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 0; i < 5; i++ {
					_, _ = n.Normalize(ctx, model.RawSample{AZ: ptr(9.8)})
				}
			}()

			Convey("Then normalization is not blocked and only one lookup is in flight", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					So("normalize blocked", ShouldBeEmpty)
				}
				So(loc.Calls(), ShouldBeLessThanOrEqualTo, 1)
				close(loc.release)
				n.Wait()
			})
		})
	})
}
