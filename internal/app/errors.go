package service

import "errors"

// Sentinel errors returned by the ingest path.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrBackpressure = errors.New("ingest queue full")
)
