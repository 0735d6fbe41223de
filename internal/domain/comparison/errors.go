package comparison

import "errors"

// Sentinel kinds for comparison errors.
var (
	// ErrStaleComparison rejects a decision against a finished search or one
	// made from an outdated view of it.
	ErrStaleComparison = errors.New("stale comparison state")
	ErrNothingToUndo   = errors.New("nothing to undo")
	ErrInvalidOutcome  = errors.New("invalid comparison outcome")
)
