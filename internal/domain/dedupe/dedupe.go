// Package dedupe tracks device sample ids so redelivered samples are processed at most once.
package dedupe

import (
	"context"
	"sync"
)

// Deduper records seen sample IDs.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a sample that was rejected before processing
	// (e.g. queue backpressure) can be delivered again.
	Unrecord(ctx context.Context, id string)

	Size() int
}

// windowDeduper remembers the most recent maxSize ids in arrival order.
// When full, the oldest id is forgotten first.
type windowDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string // ring of ids, oldest at head
	head    int
	count   int
	maxSize int
}

const defaultMaxSize = 4096

// NewWindowDeduper creates a bounded deduper.
func NewWindowDeduper(opts ...Option) Deduper {
	d := &windowDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxSize <= 0 {
		d.maxSize = defaultMaxSize
	}
	d.seen = make(map[string]struct{}, d.maxSize)
	d.order = make([]string, d.maxSize)
	return d
}

func (d *windowDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	if d.count == d.maxSize {
		oldest := d.order[d.head]
		delete(d.seen, oldest)
		d.order[d.head] = ""
		d.head = (d.head + 1) % d.maxSize
		d.count--
	}

	d.order[(d.head+d.count)%d.maxSize] = id
	d.count++
	d.seen[id] = struct{}{}
	return false
}

func (d *windowDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; !ok {
		return
	}
	delete(d.seen, id)

	// Compact the ring without the removed id.
	kept := make([]string, 0, d.count)
	for i := 0; i < d.count; i++ {
		v := d.order[(d.head+i)%d.maxSize]
		if v != id {
			kept = append(kept, v)
		}
	}
	for i := range d.order {
		d.order[i] = ""
	}
	copy(d.order, kept)
	d.head = 0
	d.count = len(kept)
}

func (d *windowDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}
