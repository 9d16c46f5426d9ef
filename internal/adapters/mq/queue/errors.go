package queue

import "errors"

// Sentinel errors for enqueue rejection.
var (
	ErrFull   = errors.New("queue full")
	ErrClosed = errors.New("queue closed")
)
