package model

import "errors"

// Sentinel kinds for model validation errors.
var (
	ErrInvalidMediaKind = errors.New("invalid media kind")
	ErrInvalidTier      = errors.New("invalid tier")
	ErrInvalidCandidate = errors.New("invalid candidate")
)
