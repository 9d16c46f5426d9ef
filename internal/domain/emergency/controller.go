// Package emergency implements the crash countdown that ends in an emergency call
// unless the rider cancels it.
package emergency

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/ridesafe/internal/domain/crash"
	"github.com/okian/ridesafe/pkg/logger"
	"github.com/okian/ridesafe/pkg/metrics"
	"github.com/okian/ridesafe/pkg/timeutil"
)

// Defaults.
const (
	DefaultCountdownSeconds = 30
	DefaultNumber           = "112"
	defaultDialTimeout      = 5 * time.Second
	tickInterval            = time.Second
)

// Phase is the controller state.
type Phase string

// Phases.
const (
	PhaseIdle   Phase = "idle"
	PhaseActive Phase = "active"
)

// Outcome records how an episode ended.
type Outcome string

// Outcomes.
const (
	OutcomeCancelled Outcome = "cancelled"
	OutcomeExpired   Outcome = "expired"
	OutcomeManual    Outcome = "manual"
	OutcomeShutdown  Outcome = "shutdown"
)

// Call is the request handed to the Dialer.
type Call struct {
	Number    string    `json:"number"`
	EpisodeID string    `json:"episode_id"`
	TriggerG  float64   `json:"g_force"`
	Reason    Outcome   `json:"reason"`
	StartedAt time.Time `json:"started_at"`
}

// Dialer places the emergency call. Failures are reported but never change
// controller state.
type Dialer interface {
	Dial(ctx context.Context, call Call) error
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, call Call) error

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, call Call) error { return f(ctx, call) }

// State is a point-in-time view of the controller.
type State struct {
	Phase         Phase     `json:"phase"`
	Remaining     int       `json:"remaining"`
	EpisodeID     string    `json:"episode_id,omitempty"`
	TriggerG      float64   `json:"trigger_g,omitempty"`
	StartedAt     time.Time `json:"started_at,omitzero"`
	LastEpisodeID string    `json:"last_episode_id,omitempty"`
	LastOutcome   Outcome   `json:"last_outcome,omitempty"`
}

// Active reports whether a countdown is running.
func (s State) Active() bool { return s.Phase == PhaseActive }

type episode struct {
	id        string
	triggerG  float64
	startedAt time.Time
	ticker    timeutil.Ticker
	stop      chan struct{}
	done      chan struct{}
}

// Controller runs at most one countdown at a time.
// All state transitions happen under mu; the dialer is invoked outside it.
type Controller struct {
	clock       timeutil.Clock
	dialer      Dialer
	number      string
	seconds     int
	dialTimeout time.Duration
	log         logger.Logger

	mu          sync.Mutex
	current     *episode
	remaining   int
	lastID      string
	lastOutcome Outcome
	closed      bool
	wg          sync.WaitGroup
}

// NewController creates an idle Controller.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		clock:       timeutil.RealClock{},
		dialer:      DialerFunc(func(context.Context, Call) error { return nil }),
		number:      DefaultNumber,
		seconds:     DefaultCountdownSeconds,
		dialTimeout: defaultDialTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("emergency")
	}
	return c
}

// Signal starts a countdown from Idle. It returns false when a countdown
// is already running or the controller is closed; the running countdown is
// left untouched.
func (c *Controller) Signal(ctx context.Context, sig crash.Signal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if c.current != nil {
		metrics.RecordCrashSignalIgnored()
		c.log.Debug(ctx, "crash signal ignored, countdown running",
			logger.String("episode", c.current.id),
			logger.Float64("g", sig.AccelerationG))
		return false
	}

	ep := &episode{
		id:        uuid.NewString(),
		triggerG:  sig.AccelerationG,
		startedAt: c.clock.Now(),
		ticker:    c.clock.NewTicker(tickInterval),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	c.current = ep
	c.remaining = c.seconds

	c.wg.Add(1)
	go c.run(ep)

	metrics.RecordEpisodeStarted(c.seconds)
	c.log.Warn(ctx, "crash detected, countdown started",
		logger.String("episode", ep.id),
		logger.Float64("g", sig.AccelerationG),
		logger.Int("seconds", c.seconds))
	return true
}

// Cancel stops the running countdown and returns its episode id. When it
// returns, no further tick of that episode can change state or place a call.
func (c *Controller) Cancel(ctx context.Context) (string, error) {
	c.mu.Lock()
	ep := c.current
	if ep == nil {
		c.mu.Unlock()
		return "", ErrNotActive
	}
	remaining := c.remaining
	c.endLocked(ep, OutcomeCancelled)
	c.mu.Unlock()

	<-ep.done
	c.log.Info(ctx, "countdown cancelled",
		logger.String("episode", ep.id),
		logger.Int("remaining", remaining))
	return ep.id, nil
}

// CallNow ends the running countdown, places the call immediately and
// returns the episode id.
func (c *Controller) CallNow(ctx context.Context) (string, error) {
	c.mu.Lock()
	ep := c.current
	if ep == nil {
		c.mu.Unlock()
		return "", ErrNotActive
	}
	c.endLocked(ep, OutcomeManual)
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	<-ep.done
	c.place(ctx, ep, OutcomeManual)
	return ep.id, nil
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Phase:         PhaseIdle,
		Remaining:     c.remaining,
		LastEpisodeID: c.lastID,
		LastOutcome:   c.lastOutcome,
	}
	if ep := c.current; ep != nil {
		s.Phase = PhaseActive
		s.EpisodeID = ep.id
		s.TriggerG = ep.triggerG
		s.StartedAt = ep.startedAt
	}
	return s
}

// Close stops any running countdown without placing a call and waits for
// in-flight work. Later signals are rejected.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	if ep := c.current; ep != nil {
		c.endLocked(ep, OutcomeShutdown)
	}
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

// endLocked stops ep's timer and returns the controller to Idle(0).
// The ticker is stopped before any state changes. Callers hold mu.
func (c *Controller) endLocked(ep *episode, outcome Outcome) {
	ep.ticker.Stop()
	close(ep.stop)
	c.current = nil
	c.remaining = 0
	c.lastID = ep.id
	c.lastOutcome = outcome
	metrics.RecordEpisodeEnded(string(outcome))
}

func (c *Controller) run(ep *episode) {
	defer c.wg.Done()
	defer close(ep.done)

	for {
		select {
		case <-ep.stop:
			return
		case <-ep.ticker.C():
			if expired, live := c.tick(ep); !live {
				if expired {
					c.place(context.Background(), ep, OutcomeExpired)
				}
				return
			}
		}
	}
}

// tick advances the countdown by one second. live is false once ep is no
// longer the running episode; expired is true when this tick ended it.
func (c *Controller) tick(ep *episode) (expired, live bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != ep {
		return false, false
	}
	if c.remaining > 1 {
		c.remaining--
		metrics.UpdateCountdownRemaining(c.remaining)
		return false, true
	}
	c.endLocked(ep, OutcomeExpired)
	return true, false
}

func (c *Controller) place(ctx context.Context, ep *episode, reason Outcome) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.dialTimeout)
	defer cancel()

	call := Call{
		Number:    c.number,
		EpisodeID: ep.id,
		TriggerG:  ep.triggerG,
		Reason:    reason,
		StartedAt: ep.startedAt,
	}
	if err := c.dialer.Dial(dctx, call); err != nil {
		metrics.RecordCallPlacement("error")
		c.log.Error(ctx, "emergency call failed",
			logger.String("episode", ep.id),
			logger.String("reason", string(reason)),
			logger.Error(err))
		return
	}
	metrics.RecordCallPlacement("ok")
	c.log.Warn(ctx, "emergency call placed",
		logger.String("episode", ep.id),
		logger.String("number", c.number),
		logger.String("reason", string(reason)))
}
