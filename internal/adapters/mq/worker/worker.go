// Package worker drains the sample queue into the telemetry coordinator.
//
// A single worker is used so that samples are handled strictly one after
// another in arrival order.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/ridesafe/internal/adapters/mq/queue"
	"github.com/okian/ridesafe/internal/domain/model"
	"github.com/okian/ridesafe/pkg/logger"
	"github.com/okian/ridesafe/pkg/metrics"
)

// Handler consumes one raw sample.
type Handler interface {
	OnSample(ctx context.Context, raw model.RawSample)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, raw model.RawSample)

// OnSample calls f.
func (f HandlerFunc) OnSample(ctx context.Context, raw model.RawSample) { f(ctx, raw) }

// Source is the queue side the worker reads from.
type Source interface {
	Dequeue() <-chan queue.Item
}

// observer is implemented by queues that want dequeue notifications.
type observer interface {
	Observe(it queue.Item)
}

// Worker processes queued samples until the queue is closed or ctx is done.
type Worker struct {
	source  Source
	handler Handler
	name    string
	logger  logger.Logger

	done chan struct{}
}

// New creates a worker.
func New(source Source, handler Handler, opts ...Option) *Worker {
	w := &Worker{
		source:  source,
		handler: handler,
		name:    "ingest",
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("worker").Named(w.name)
	}
	return w
}

// Run blocks, handling samples in order. It returns once the queue is
// closed and drained, or ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	items := w.source.Dequeue()
	obs, _ := w.source.(observer)
	for {
		select {
		case <-ctx.Done():
			return
		case it, ok := <-items:
			if !ok {
				return
			}
			if obs != nil {
				obs.Observe(it)
			}
			w.process(ctx, it)
		}
	}
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until Run returns or ctx expires.
func (w *Worker) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("worker %s shutdown timed out: %w", w.name, ctx.Err())
	}
}

func (w *Worker) process(ctx context.Context, it queue.Item) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "panic")
			w.logger.Error(ctx, "sample handler panicked",
				logger.String("sample", it.Sample.ID),
				logger.Any("panic", r))
		}
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	w.handler.OnSample(ctx, it.Sample)
}
