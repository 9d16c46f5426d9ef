package repository

import (
	"context"
	"sync"

	"github.com/okian/ridesafe/internal/domain/model"
	"github.com/okian/ridesafe/pkg/metrics"
)

// DefaultCapacity is the number of readings kept when no capacity is configured.
const DefaultCapacity = 1000

// RingStore is a fixed-size circular buffer of readings.
type RingStore struct {
	mu       sync.RWMutex
	buf      []model.Reading
	head     int // index of the oldest entry
	size     int
	capacity int
}

var _ Store = (*RingStore)(nil)

// NewRingStore creates an empty RingStore.
func NewRingStore(opts ...Option) *RingStore {
	s := &RingStore{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(s)
	}
	s.buf = make([]model.Reading, s.capacity)
	metrics.UpdateHistoryCapacity(s.capacity)
	metrics.UpdateHistorySize(0)
	return s
}

// Append stores r, evicting the oldest reading when full. It reports whether an eviction happened.
func (s *RingStore) Append(_ context.Context, r model.Reading) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := false
	if s.size == s.capacity {
		s.buf[s.head] = model.Reading{}
		s.head = (s.head + 1) % s.capacity
		s.size--
		evicted = true
	}
	s.buf[(s.head+s.size)%s.capacity] = r
	s.size++

	if evicted {
		metrics.RecordHistoryEviction()
	}
	metrics.UpdateHistorySize(s.size)
	return evicted
}

// Snapshot returns a copy of every retained reading, oldest first.
func (s *RingStore) Snapshot(_ context.Context) []model.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastLocked(s.size, false)
}

// LastN returns up to k newest readings, newest first when reversed.
func (s *RingStore) LastN(_ context.Context, k int, reversed bool) ([]model.Reading, error) {
	if k < 0 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastLocked(min(k, s.size), reversed), nil
}

// Latest returns the newest reading.
func (s *RingStore) Latest(_ context.Context) (model.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.size == 0 {
		return model.Reading{}, false
	}
	return s.at(s.size - 1), true
}

// Amend attaches a fallback position to the reading with seq.
func (s *RingStore) Amend(_ context.Context, seq uint64, pos model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Seq grows with insertion order, so scan from the newest entry.
	for i := s.size - 1; i >= 0; i-- {
		idx := (s.head + i) % s.capacity
		switch r := s.buf[idx]; {
		case r.Seq == seq:
			s.buf[idx] = r.WithFallbackPosition(pos)
			return nil
		case r.Seq < seq:
			return ErrNotFound
		}
	}
	return ErrNotFound
}

// Len returns the number of retained readings.
func (s *RingStore) Len(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Cap returns the buffer capacity.
func (s *RingStore) Cap() int { return s.capacity }

// at returns the i-th entry counting from the oldest. Callers hold mu.
func (s *RingStore) at(i int) model.Reading {
	return s.buf[(s.head+i)%s.capacity]
}

// lastLocked copies the newest k entries. Callers hold mu.
func (s *RingStore) lastLocked(k int, reversed bool) []model.Reading {
	out := make([]model.Reading, k)
	first := s.size - k
	for i := 0; i < k; i++ {
		if reversed {
			out[i] = s.at(s.size - 1 - i)
		} else {
			out[i] = s.at(first + i)
		}
	}
	return out
}
