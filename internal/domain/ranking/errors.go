package ranking

import "errors"

// ErrInvariantViolation is returned when a mutation would break rank
// contiguity or uniqueness. It is raised before anything is written.
var ErrInvariantViolation = errors.New("rank invariant violation")
