// Package service provides the telemetry coordinator that turns incoming
// samples into readings, keeps their history and drives the crash response.
// It implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/ridesafe/internal/adapters/mq/queue"
	"github.com/okian/ridesafe/internal/adapters/mq/worker"
	"github.com/okian/ridesafe/internal/adapters/repository"
	"github.com/okian/ridesafe/internal/adapters/source"
	"github.com/okian/ridesafe/internal/domain/crash"
	"github.com/okian/ridesafe/internal/domain/dedupe"
	"github.com/okian/ridesafe/internal/domain/emergency"
	"github.com/okian/ridesafe/internal/domain/model"
	"github.com/okian/ridesafe/internal/domain/normalize"
	"github.com/okian/ridesafe/pkg/logger"
	"github.com/okian/ridesafe/pkg/metrics"
	"github.com/okian/ridesafe/pkg/timeutil"
)

const workerShutdownTimeout = 5 * time.Second

// Service is the telemetry coordinator. It exclusively owns the history,
// the current reading and the countdown controller.
type Service struct {
	mu sync.RWMutex

	// Core components
	normalizer *normalize.Normalizer
	history    repository.Store
	detector   *crash.Detector
	controller *emergency.Controller
	deduper    dedupe.Deduper

	// Ingest pipeline, created by Start
	queue  *queue.InMemoryQueue
	worker *worker.Worker
	cancel context.CancelFunc

	// Configuration
	queueSize        int
	dedupeSize       int
	historyCapacity  int
	thresholdG       float64
	countdownSeconds int
	number           string
	clock            timeutil.Clock
	locator          normalize.Locator
	locatorTimeout   time.Duration
	dialer           emergency.Dialer
	dialTimeout      time.Duration

	// sampleMu serializes OnSample so each sample is fully handled before the next.
	sampleMu sync.Mutex
	// curMu guards current and pairs it with the newest history entry.
	curMu   sync.RWMutex
	current *model.Reading

	// State
	started bool
	stopped bool
	source  SourceReporter

	received   atomic.Uint64
	skipped    atomic.Uint64
	duplicates atomic.Uint64
	crashes    atomic.Uint64

	logger logger.Logger
}

// New constructs a Service with its core components. Samples can be fed
// through OnSample right away; Start enables the queued ingest path.
func New(opts ...Option) *Service {
	s := &Service{
		queueSize:        1024,
		dedupeSize:       4096,
		historyCapacity:  repository.DefaultCapacity,
		thresholdG:       crash.DefaultThresholdG,
		countdownSeconds: emergency.DefaultCountdownSeconds,
		number:           emergency.DefaultNumber,
		clock:            timeutil.RealClock{},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	nopts := []normalize.Option{
		normalize.WithClock(s.clock),
		normalize.WithLogger(s.logger.Named("normalize")),
	}
	if s.locator != nil {
		nopts = append(nopts,
			normalize.WithLocator(s.locator, s.applyFallbackPosition),
			normalize.WithLookupTimeout(s.locatorTimeout))
	}
	s.normalizer = normalize.New(nopts...)
	s.history = repository.NewRingStore(repository.WithCapacity(s.historyCapacity))
	s.detector = crash.NewDetector(crash.WithThresholdG(s.thresholdG))
	s.controller = emergency.NewController(
		emergency.WithClock(s.clock),
		emergency.WithDialer(s.dialer),
		emergency.WithDialTimeout(s.dialTimeout),
		emergency.WithNumber(s.number),
		emergency.WithCountdownSeconds(s.countdownSeconds),
		emergency.WithLogger(s.logger.Named("emergency")),
	)
	s.deduper = dedupe.NewWindowDeduper(dedupe.WithMaxSize(s.dedupeSize))

	return s
}

// Start creates the ingest queue and its worker.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return fmt.Errorf("service already stopped")
	}

	s.logger.Info(ctx, "starting telemetry service...")

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.worker = worker.New(s.queue, worker.HandlerFunc(s.OnSample),
		worker.WithLogger(s.logger.Named("worker")))

	// The worker lives until Stop, not until the caller's ctx ends.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.worker.Run(runCtx)

	s.started = true
	s.logger.Info(ctx, "telemetry service started",
		logger.Int("queueSize", s.queueSize),
		logger.Int("historyCapacity", s.historyCapacity),
		logger.Float64("crashThresholdG", s.thresholdG),
		logger.Int("countdownSeconds", s.countdownSeconds),
	)
	return nil
}

// Stop drains the queue, ends any running countdown without calling, and
// waits for in-flight position lookups.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping telemetry service...")

	if s.started {
		_ = s.queue.Close()
		waitCtx, cancel := context.WithTimeout(ctx, workerShutdownTimeout)
		if err := s.worker.Wait(waitCtx); err != nil {
			s.logger.Warn(ctx, "ingest worker did not drain", logger.Error(err))
		}
		cancel()
		s.cancel()
	}

	_ = s.controller.Close()
	s.normalizer.Wait()

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "telemetry service stopped")
}

// OnSample runs one raw sample through normalize, history, detect and the
// countdown controller. Skipped samples leave no trace besides metrics.
func (s *Service) OnSample(ctx context.Context, raw model.RawSample) {
	start := time.Now()
	defer func() {
		metrics.RecordSampleProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	s.sampleMu.Lock()
	defer s.sampleMu.Unlock()

	s.received.Add(1)
	metrics.RecordSampleReceived()

	reading, ok := s.normalizer.Normalize(ctx, raw)
	if !ok {
		s.skipped.Add(1)
		return
	}

	s.curMu.Lock()
	s.history.Append(ctx, reading)
	s.current = &reading
	s.curMu.Unlock()

	metrics.RecordReadingStored()
	metrics.ObserveReading(reading.SpeedKmh, reading.AccelerationG, string(reading.RideMode), model.ModeNames())

	sig, crashed := s.detector.Evaluate(reading)
	if !crashed {
		return
	}
	s.crashes.Add(1)
	metrics.RecordCrashSignal()
	s.controller.Signal(ctx, sig)
}

// applyFallbackPosition enriches the reading with seq if it is still the
// newest one. A position for a superseded reading is dropped.
func (s *Service) applyFallbackPosition(seq uint64, pos model.Position) {
	ctx := context.Background()

	s.curMu.Lock()
	defer s.curMu.Unlock()

	if s.current == nil || s.current.Seq != seq {
		s.logger.Debug(ctx, "fallback position arrived late, dropped", logger.Uint64("seq", seq))
		return
	}
	enriched := s.current.WithFallbackPosition(pos)
	s.current = &enriched
	if err := s.history.Amend(ctx, seq, pos); err != nil {
		s.logger.Debug(ctx, "history entry gone before position arrived", logger.Uint64("seq", seq))
	}
}

// SeenAndRecord reports whether a sample id was already accepted and records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		s.duplicates.Add(1)
		metrics.RecordSampleDuplicate()
	}
	return seen
}

// Enqueue submits a sample for processing by the ingest worker.
// Samples carrying an already-seen id are dropped and reported as duplicate.
func (s *Service) Enqueue(ctx context.Context, raw model.RawSample) (duplicate bool, err error) {
	s.mu.RLock()
	q := s.queue
	started := s.started
	s.mu.RUnlock()
	if !started {
		return false, ErrNotStarted
	}

	if raw.ID != "" && s.SeenAndRecord(ctx, raw.ID) {
		s.logger.Debug(ctx, "duplicate sample, skipping", logger.String("id", raw.ID))
		return true, nil
	}

	if err := q.Enqueue(ctx, raw); err != nil {
		if raw.ID != "" {
			s.deduper.Unrecord(ctx, raw.ID)
		}
		if errors.Is(err, queue.ErrFull) {
			return false, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return false, fmt.Errorf("enqueue sample: %w", err)
	}
	return false, nil
}

// CurrentReading returns the most recent reading.
func (s *Service) CurrentReading() (model.Reading, bool) {
	s.curMu.RLock()
	defer s.curMu.RUnlock()
	if s.current == nil {
		return model.Reading{}, false
	}
	return *s.current, true
}

// History returns every retained reading, oldest first.
func (s *Service) History(ctx context.Context) []model.Reading {
	return s.history.Snapshot(ctx)
}

// Recent returns the newest k readings, newest first when reversed.
func (s *Service) Recent(ctx context.Context, k int, reversed bool) ([]model.Reading, error) {
	return s.history.LastN(ctx, k, reversed)
}

// Emergency returns the countdown controller state.
func (s *Service) Emergency() emergency.State {
	return s.controller.State()
}

// CancelEmergency stops a running countdown and returns the ended episode id.
func (s *Service) CancelEmergency(ctx context.Context) (string, error) {
	return s.controller.Cancel(ctx)
}

// CallNow places the emergency call without waiting for the countdown and
// returns the ended episode id.
func (s *Service) CallNow(ctx context.Context) (string, error) {
	return s.controller.CallNow(ctx)
}

// SourceReporter exposes a device transport's counters.
type SourceReporter interface {
	Snapshot() source.Snapshot
}

// AttachSource adds the transport's counters to GetStats under "source".
func (s *Service) AttachSource(r SourceReporter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = r
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	em := s.controller.State()
	stats := map[string]any{
		"started":          s.started,
		"samplesReceived":  s.received.Load(),
		"samplesSkipped":   s.skipped.Load(),
		"duplicates":       s.duplicates.Load(),
		"crashSignals":     s.crashes.Load(),
		"historySize":      s.history.Len(ctx),
		"historyCapacity":  s.history.Cap(),
		"dedupeSize":       s.deduper.Size(),
		"emergencyPhase":   string(em.Phase),
		"countdownSeconds": s.countdownSeconds,
		"crashThresholdG":  s.thresholdG,
	}

	if s.started {
		queueLen := s.queue.Len()
		stats["queueLength"] = queueLen
		stats["queueCapacity"] = s.queue.Cap()
		metrics.UpdateQueueSize(queueLen)
	}
	if s.source != nil {
		stats["source"] = s.source.Snapshot()
	}

	return stats
}
