package service

import "errors"

// Sentinel kinds for session errors.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionNotFinished = errors.New("session has not converged")
	ErrPartitionChanged   = errors.New("partition changed since the session began")
	ErrDuplicateDecision  = errors.New("decision already applied")
)
