package scoring

import "errors"

// Sentinel kinds for scoring errors.
var (
	ErrInvalidBands        = errors.New("invalid score bands")
	ErrEntryNotInPartition = errors.New("entry not in partition")
)
