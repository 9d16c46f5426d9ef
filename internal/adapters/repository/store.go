// Package repository holds the bounded, insertion-ordered history of readings.
package repository

import (
	"context"

	"github.com/okian/ridesafe/internal/domain/model"
)

// Store retains readings in arrival order up to a fixed capacity.
type Store interface {
	// Append adds r as the newest entry, evicting the oldest when full.
	// Returns true if an entry was evicted.
	Append(ctx context.Context, r model.Reading) bool

	// Snapshot returns a copy of all entries, oldest first.
	Snapshot(ctx context.Context) []model.Reading

	// LastN returns the k most recent entries, oldest first unless reversed.
	// k larger than the size returns everything; negative k is ErrInvalidLimit.
	LastN(ctx context.Context, k int, reversed bool) ([]model.Reading, error)

	// Latest returns the newest entry.
	Latest(ctx context.Context) (model.Reading, bool)

	// Amend attaches a fallback position to the entry with seq.
	// Returns ErrNotFound once that entry has been evicted.
	Amend(ctx context.Context, seq uint64, pos model.Position) error

	// Len returns the number of retained entries.
	Len(ctx context.Context) int

	// Cap returns the capacity.
	Cap() int
}
