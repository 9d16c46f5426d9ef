package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/ridesafe/pkg/logger"
	"github.com/okian/ridesafe/pkg/metrics"
)

const (
	pollerName         = "poll"
	maxPollBody        = 1 << 20
	defaultPollTimeout = 2 * time.Second
)

// Poller fetches samples from a device HTTP endpoint at a fixed interval.
// Each response may hold one sample object or an array of samples.
type Poller struct {
	url      string
	interval time.Duration
	client   *http.Client
	sink     Sink
	log      logger.Logger

	started atomic.Bool
	closed  atomic.Bool

	mu      sync.RWMutex
	state   string
	lastErr string

	reads   atomic.Uint64
	samples atomic.Uint64
	dropped atomic.Uint64
	errs    atomic.Uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a Poller. A non-positive interval defaults to 500ms.
func NewPoller(url string, interval time.Duration, sink Sink, l logger.Logger) (*Poller, error) {
	if url == "" {
		return nil, fmt.Errorf("poller url is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("poller sink is required")
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if l == nil {
		l = logger.Get().Named("source")
	}
	return &Poller{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: defaultPollTimeout},
		sink:     sink,
		log:      l.Named(pollerName),
		state:    "stopped",
		done:     make(chan struct{}),
	}, nil
}

// Start begins polling until ctx is cancelled or Close is called.
func (p *Poller) Start(ctx context.Context) error {
	if p.closed.Load() {
		return fmt.Errorf("poller is closed")
	}
	if p.started.Swap(true) {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.setState("polling", "")

	go func() {
		defer close(p.done)
		p.runLoop(runCtx)
	}()
	return nil
}

// Close stops polling and waits for the loop to exit.
func (p *Poller) Close() {
	if p.closed.Swap(true) {
		return
	}
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.setState("stopped", "")
}

// Snapshot returns the poller's counters.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	state, lastErr := p.state, p.lastErr
	p.mu.RUnlock()
	return Snapshot{
		Name:    pollerName,
		State:   state,
		Reads:   p.reads.Load(),
		Samples: p.samples.Load(),
		Dropped: p.dropped.Load(),
		Errors:  p.errs.Load(),
		LastErr: lastErr,
	}
}

func (p *Poller) runLoop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce fetches one response. Failures are counted and logged; an
// unreachable device simply yields no samples for this tick.
func (p *Poller) pollOnce(ctx context.Context) {
	body, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.fail(ctx, err)
		return
	}
	p.reads.Add(1)
	metrics.RecordSourceRead(pollerName)

	samples, err := DecodeSamples(body)
	if err != nil {
		p.fail(ctx, err)
		return
	}
	for _, s := range samples {
		if err := p.sink.Enqueue(ctx, s); err != nil {
			p.dropped.Add(1)
			p.log.Debug(ctx, "sample dropped", logger.Error(err))
			continue
		}
		p.samples.Add(1)
	}
	p.setState("polling", "")
}

func (p *Poller) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", p.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("poll %s: status %d", p.url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPollBody))
}

func (p *Poller) fail(ctx context.Context, err error) {
	p.errs.Add(1)
	metrics.RecordSourceError(pollerName)
	p.setState("error", err.Error())
	p.log.Debug(ctx, "poll failed", logger.Error(err))
}

func (p *Poller) setState(state, lastErr string) {
	p.mu.Lock()
	p.state = state
	if lastErr != "" {
		p.lastErr = lastErr
	}
	p.mu.Unlock()
}
