package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/okian/ridesafe/pkg/logger"
	"github.com/okian/ridesafe/pkg/metrics"
	"go.bug.st/serial"
)

const (
	serialName        = "serial"
	defaultSerialBaud = 115200

	// maxSerialLine bounds one NDJSON line; longer lines are dropped.
	maxSerialLine = 64 * 1024
)

// PortOpener opens a serial device.
type PortOpener func(name string, mode *serial.Mode) (io.ReadCloser, error)

// OpenSerialPort opens a real serial device.
func OpenSerialPort(name string, mode *serial.Mode) (io.ReadCloser, error) {
	return serial.Open(name, mode)
}

// Serial reads newline-delimited JSON samples from a serial device.
type Serial struct {
	port string
	mode *serial.Mode
	open PortOpener
	sink Sink
	log  logger.Logger

	started atomic.Bool

	mu      sync.Mutex
	rc      io.ReadCloser
	state   string
	lastErr string

	reads   atomic.Uint64
	samples atomic.Uint64
	dropped atomic.Uint64
	errs    atomic.Uint64

	done chan struct{}
}

// NewSerial creates a serial source. A nil opener uses OpenSerialPort.
func NewSerial(port string, baud int, sink Sink, open PortOpener, l logger.Logger) (*Serial, error) {
	if port == "" {
		return nil, fmt.Errorf("serial port is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("serial sink is required")
	}
	if baud <= 0 {
		baud = defaultSerialBaud
	}
	if open == nil {
		open = OpenSerialPort
	}
	if l == nil {
		l = logger.Get().Named("source")
	}
	return &Serial{
		port: port,
		mode: &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
		open:  open,
		sink:  sink,
		log:   l.Named(serialName),
		state: "stopped",
		done:  make(chan struct{}),
	}, nil
}

// Start opens the port and reads lines until EOF, an error, or ctx is cancelled.
func (s *Serial) Start(ctx context.Context) error {
	if s.started.Swap(true) {
		return ErrAlreadyStarted
	}
	rc, err := s.open(s.port, s.mode)
	if err != nil {
		s.started.Store(false)
		metrics.RecordSourceError(serialName)
		return fmt.Errorf("open serial %s: %w", s.port, err)
	}

	s.mu.Lock()
	s.rc = rc
	s.state = "reading"
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.closePort()
		case <-s.done:
		}
	}()
	go func() {
		defer close(s.done)
		s.monitor(ctx, rc)
	}()
	return nil
}

// Close closes the port and waits for the reader to exit.
func (s *Serial) Close() {
	if !s.started.Load() {
		return
	}
	s.closePort()
	<-s.done
}

// Snapshot returns the source's counters.
func (s *Serial) Snapshot() Snapshot {
	s.mu.Lock()
	state, lastErr := s.state, s.lastErr
	s.mu.Unlock()
	return Snapshot{
		Name:    serialName,
		State:   state,
		Reads:   s.reads.Load(),
		Samples: s.samples.Load(),
		Dropped: s.dropped.Load(),
		Errors:  s.errs.Load(),
		LastErr: lastErr,
	}
}

func (s *Serial) closePort() {
	s.mu.Lock()
	rc := s.rc
	s.rc = nil
	s.mu.Unlock()
	if rc != nil {
		_ = rc.Close()
	}
}

func (s *Serial) monitor(ctx context.Context, r io.Reader) {
	br := bufio.NewReaderSize(r, maxSerialLine)
	var err error
	for err == nil {
		var line []byte
		line, err = br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			err = s.discardLine(ctx, br)
			continue
		}
		s.handleLine(ctx, bytes.TrimSpace(line))
	}

	state, lastErr := "closed", ""
	if !errors.Is(err, io.EOF) && ctx.Err() == nil {
		state, lastErr = "error", err.Error()
		s.errs.Add(1)
		metrics.RecordSourceError(serialName)
		s.log.Warn(ctx, "serial read failed", logger.Error(err))
	}
	s.mu.Lock()
	s.state = state
	if lastErr != "" {
		s.lastErr = lastErr
	}
	s.mu.Unlock()
}

func (s *Serial) handleLine(ctx context.Context, line []byte) {
	if len(line) == 0 {
		return
	}
	s.reads.Add(1)
	metrics.RecordSourceRead(serialName)

	samples, err := DecodeSamples(line)
	if err != nil {
		// A garbled line must not stop the stream.
		s.errs.Add(1)
		metrics.RecordSourceError(serialName)
		s.log.Debug(ctx, "bad serial line", logger.Error(err))
		return
	}
	for _, smp := range samples {
		if err := s.sink.Enqueue(ctx, smp); err != nil {
			s.dropped.Add(1)
			continue
		}
		s.samples.Add(1)
	}
}

// discardLine skips the rest of a line longer than maxSerialLine and
// resyncs on the next newline.
func (s *Serial) discardLine(ctx context.Context, br *bufio.Reader) error {
	s.reads.Add(1)
	s.errs.Add(1)
	metrics.RecordSourceRead(serialName)
	metrics.RecordSourceError(serialName)
	s.log.Debug(ctx, "oversized serial line dropped", logger.Int("max_bytes", maxSerialLine))
	for {
		_, err := br.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}
