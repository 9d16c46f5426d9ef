package emergency_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/ridesafe/internal/domain/crash"
	"github.com/okian/ridesafe/internal/domain/emergency"
	"github.com/okian/ridesafe/pkg/logger"
	"github.com/okian/ridesafe/pkg/timeutil"
	. "github.com/smartystreets/goconvey/convey"
)

type recordingDialer struct {
	mu    sync.Mutex
	calls []emergency.Call
	err   error
}

func (d *recordingDialer) Dial(_ context.Context, call emergency.Call) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
	return d.err
}

func (d *recordingDialer) Calls() []emergency.Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]emergency.Call, len(d.calls))
	copy(out, d.calls)
	return out
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

// tick advances the mock clock one second and waits for the controller to observe it.
func tick(clock *timeutil.MockClock, ctl *emergency.Controller, wantRemaining int) bool {
	clock.Advance(time.Second)
	return eventually(func() bool { return ctl.State().Remaining == wantRemaining })
}

func crashAt(g float64) crash.Signal {
	return crash.Signal{Seq: 1, AccelerationG: g}
}

func TestController(t *testing.T) {
	Convey("Given an idle controller on a mock clock", t, func() {
		ctx := context.Background()
		clock := timeutil.NewMockClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
		dialer := &recordingDialer{}
		ctl := emergency.NewController(
			emergency.WithClock(clock),
			emergency.WithDialer(dialer),
			emergency.WithNumber("911"),
			emergency.WithLogger(logger.Nop()),
		)
		defer func() { _ = ctl.Close() }()

		So(ctl.State().Phase, ShouldEqual, emergency.PhaseIdle)
		So(ctl.State().Remaining, ShouldEqual, 0)

		Convey("When a crash signal arrives", func() {
			started := ctl.Signal(ctx, crashAt(4.0))
			s := ctl.State()

			Convey("Then the countdown is Active(30)", func() {
				So(started, ShouldBeTrue)
				So(s.Phase, ShouldEqual, emergency.PhaseActive)
				So(s.Remaining, ShouldEqual, 30)
				So(s.EpisodeID, ShouldNotBeEmpty)
				So(s.TriggerG, ShouldEqual, 4.0)
				So(s.StartedAt, ShouldEqual, clock.Now())
			})

			Convey("Then a second crash one tick later does not reset it", func() {
				So(tick(clock, ctl, 29), ShouldBeTrue)
				So(ctl.Signal(ctx, crashAt(5.0)), ShouldBeFalse)
				after := ctl.State()
				So(after.Remaining, ShouldEqual, 29)
				So(after.EpisodeID, ShouldEqual, s.EpisodeID)
				So(after.TriggerG, ShouldEqual, 4.0)
			})

			Convey("Then each second decrements the counter", func() {
				for want := 29; want >= 25; want-- {
					So(tick(clock, ctl, want), ShouldBeTrue)
				}
				So(dialer.Calls(), ShouldBeEmpty)
			})
		})

		Convey("When the rider cancels at Active(15)", func() {
			ctl.Signal(ctx, crashAt(4.0))
			for want := 29; want >= 15; want-- {
				So(tick(clock, ctl, want), ShouldBeTrue)
			}
			episodeID := ctl.State().EpisodeID
			ended, err := ctl.Cancel(ctx)

			Convey("Then the controller is idle and no later tick has any effect", func() {
				So(err, ShouldBeNil)
				So(ended, ShouldEqual, episodeID)
				So(clock.ActiveTickers(), ShouldEqual, 0)
				s := ctl.State()
				So(s.Phase, ShouldEqual, emergency.PhaseIdle)
				So(s.Remaining, ShouldEqual, 0)
				So(s.LastEpisodeID, ShouldEqual, episodeID)
				So(s.LastOutcome, ShouldEqual, emergency.OutcomeCancelled)

				for i := 0; i < 40; i++ {
					clock.Advance(time.Second)
				}
				time.Sleep(10 * time.Millisecond)
				So(ctl.State().Phase, ShouldEqual, emergency.PhaseIdle)
				So(ctl.State().Remaining, ShouldEqual, 0)
				So(dialer.Calls(), ShouldBeEmpty)
			})

			Convey("Then a second cancel reports no active countdown", func() {
				id, err := ctl.Cancel(ctx)
				So(errors.Is(err, emergency.ErrNotActive), ShouldBeTrue)
				So(id, ShouldBeEmpty)
			})
		})

		Convey("When the countdown runs out", func() {
			ctl.Signal(ctx, crashAt(4.2))
			episodeID := ctl.State().EpisodeID
			for want := 29; want >= 1; want-- {
				So(tick(clock, ctl, want), ShouldBeTrue)
			}
			So(ctl.State().Phase, ShouldEqual, emergency.PhaseActive)
			clock.Advance(time.Second)

			Convey("Then exactly one call is placed and the controller is Idle(0)", func() {
				So(eventually(func() bool { return len(dialer.Calls()) == 1 }), ShouldBeTrue)
				s := ctl.State()
				So(s.Phase, ShouldEqual, emergency.PhaseIdle)
				So(s.Remaining, ShouldEqual, 0)
				So(s.LastOutcome, ShouldEqual, emergency.OutcomeExpired)

				call := dialer.Calls()[0]
				So(call.Number, ShouldEqual, "911")
				So(call.EpisodeID, ShouldEqual, episodeID)
				So(call.TriggerG, ShouldEqual, 4.2)
				So(call.Reason, ShouldEqual, emergency.OutcomeExpired)

				for i := 0; i < 5; i++ {
					clock.Advance(time.Second)
				}
				time.Sleep(10 * time.Millisecond)
				So(len(dialer.Calls()), ShouldEqual, 1)
			})

			Convey("Then a new crash starts an independent Active(30) episode", func() {
				So(eventually(func() bool { return len(dialer.Calls()) == 1 }), ShouldBeTrue)
				So(eventually(func() bool { return ctl.State().Phase == emergency.PhaseIdle }), ShouldBeTrue)
				So(ctl.Signal(ctx, crashAt(6)), ShouldBeTrue)
				s := ctl.State()
				So(s.Remaining, ShouldEqual, 30)
				So(s.EpisodeID, ShouldNotEqual, episodeID)
			})
		})

		Convey("When the rider asks to call now", func() {
			ctl.Signal(ctx, crashAt(4.0))
			So(tick(clock, ctl, 29), ShouldBeTrue)
			episodeID := ctl.State().EpisodeID
			ended, err := ctl.CallNow(ctx)

			Convey("Then the call is placed immediately and the timer is gone", func() {
				So(err, ShouldBeNil)
				So(ended, ShouldEqual, episodeID)
				calls := dialer.Calls()
				So(len(calls), ShouldEqual, 1)
				So(calls[0].Reason, ShouldEqual, emergency.OutcomeManual)
				So(ctl.State().Phase, ShouldEqual, emergency.PhaseIdle)
				So(ctl.State().Remaining, ShouldEqual, 0)
				So(clock.ActiveTickers(), ShouldEqual, 0)

				for i := 0; i < 35; i++ {
					clock.Advance(time.Second)
				}
				time.Sleep(10 * time.Millisecond)
				So(len(dialer.Calls()), ShouldEqual, 1)
			})
		})

		Convey("When call now is requested while idle", func() {
			_, err := ctl.CallNow(ctx)

			Convey("Then nothing is dialled", func() {
				So(errors.Is(err, emergency.ErrNotActive), ShouldBeTrue)
				So(dialer.Calls(), ShouldBeEmpty)
			})
		})

		Convey("When the dialer fails", func() {
			dialer.err = errors.New("line busy")
			ctl.Signal(ctx, crashAt(4.0))
			_, err := ctl.CallNow(ctx)

			Convey("Then the controller still returns to idle", func() {
				So(err, ShouldBeNil)
				So(len(dialer.Calls()), ShouldEqual, 1)
				So(ctl.State().Phase, ShouldEqual, emergency.PhaseIdle)
			})
		})

		Convey("When the controller is closed mid-countdown", func() {
			ctl.Signal(ctx, crashAt(4.0))
			So(ctl.Close(), ShouldBeNil)

			Convey("Then no call is placed and new signals are rejected", func() {
				So(ctl.State().Phase, ShouldEqual, emergency.PhaseIdle)
				So(ctl.State().LastOutcome, ShouldEqual, emergency.OutcomeShutdown)
				So(ctl.Signal(ctx, crashAt(9)), ShouldBeFalse)
				So(dialer.Calls(), ShouldBeEmpty)
				So(errors.Is(ctl.Close(), emergency.ErrClosed), ShouldBeTrue)
			})
		})
	})
}

func TestControllerShortCountdown(t *testing.T) {
	Convey("Given a controller configured for a one second countdown", t, func() {
		clock := timeutil.NewMockClock(time.Unix(0, 0))
		dialer := &recordingDialer{}
		ctl := emergency.NewController(
			emergency.WithClock(clock),
			emergency.WithDialer(dialer),
			emergency.WithCountdownSeconds(1),
			emergency.WithLogger(logger.Nop()),
		)
		defer func() { _ = ctl.Close() }()

		Convey("When Active(1) sees one tick", func() {
			ctl.Signal(context.Background(), crashAt(3.6))
			So(ctl.State().Remaining, ShouldEqual, 1)
			clock.Advance(time.Second)

			Convey("Then it triggers once and resets", func() {
				So(eventually(func() bool { return len(dialer.Calls()) == 1 }), ShouldBeTrue)
				So(ctl.State().Phase, ShouldEqual, emergency.PhaseIdle)
				So(ctl.State().Remaining, ShouldEqual, 0)
			})
		})
	})
}

func TestControllerConcurrentCommands(t *testing.T) {
	Convey("Given an active countdown hit by concurrent cancel and call-now", t, func() {
		clock := timeutil.NewMockClock(time.Unix(0, 0))
		dialer := &recordingDialer{}
		ctl := emergency.NewController(
			emergency.WithClock(clock),
			emergency.WithDialer(dialer),
			emergency.WithLogger(logger.Nop()),
		)
		defer func() { _ = ctl.Close() }()
		ctl.Signal(context.Background(), crashAt(4))

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				var err error
				if i%2 == 0 {
					_, err = ctl.Cancel(context.Background())
				} else {
					_, err = ctl.CallNow(context.Background())
				}
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		Convey("Then exactly one command ends the episode", func() {
			So(succeeded, ShouldEqual, 1)
			So(len(dialer.Calls()), ShouldBeLessThanOrEqualTo, 1)
			So(ctl.State().Phase, ShouldEqual, emergency.PhaseIdle)
		})
	})
}
