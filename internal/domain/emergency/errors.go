package emergency

import "errors"

var (
	// ErrNotActive is returned by commands that need an active countdown.
	ErrNotActive = errors.New("emergency: no active countdown")
	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("emergency: controller closed")
)
