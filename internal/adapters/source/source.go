// Package source feeds raw samples from device transports into the ingest queue.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okian/ridesafe/internal/domain/model"
)

// Sink accepts decoded samples.
type Sink interface {
	Enqueue(ctx context.Context, s model.RawSample) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, s model.RawSample) error

// Enqueue calls f.
func (f SinkFunc) Enqueue(ctx context.Context, s model.RawSample) error { return f(ctx, s) }

// ErrAlreadyStarted is returned by Start on a running source.
var ErrAlreadyStarted = errors.New("source already started")

// Snapshot describes a transport's counters.
type Snapshot struct {
	Name    string `json:"name"`
	State   string `json:"state"`
	Reads   uint64 `json:"reads"`
	Samples uint64 `json:"samples"`
	Dropped uint64 `json:"dropped"`
	Errors  uint64 `json:"errors"`
	LastErr string `json:"last_error,omitempty"`
}

// DecodeSamples accepts a single JSON object or an array of objects.
func DecodeSamples(data []byte) ([]model.RawSample, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var out []model.RawSample
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode sample array: %w", err)
		}
		return out, nil
	}
	var s model.RawSample
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode sample: %w", err)
	}
	return []model.RawSample{s}, nil
}
