package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound    = errors.New("entry not found")
	ErrDuplicate   = errors.New("entry already ranked")
	ErrPersistence = errors.New("persistence failure")
	ErrClosed      = errors.New("store closed")
)
