package repository

import "errors"

// Sentinel errors for history access.
var (
	ErrNotFound     = errors.New("reading not found")
	ErrInvalidLimit = errors.New("invalid history limit")
)
