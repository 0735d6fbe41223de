package simulate

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrVerification reports a ranked list that does not match the run.
var ErrVerification = errors.New("verification failed")

// ComparisonBound is the most comparisons a binary search over n entries
// may need, ceil(log2(n+1)).
func ComparisonBound(n int) int {
	return bits.Len(uint(n))
}

// Verify checks a fetched list against the hidden order and the recorded
// insertions: ranks run 1..N, titles follow the hidden order, no insertion
// exceeded the comparison bound, and scores never rise within a tier.
func Verify(entries []Entry, order []string, insertions []Insertion) error {
	if len(entries) != len(order) {
		return fmt.Errorf("%w: %d entries, want %d", ErrVerification, len(entries), len(order))
	}
	for i, e := range entries {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: position %d has rank %d", ErrVerification, i, e.Rank)
		}
		if e.ExternalID != order[i] {
			return fmt.Errorf("%w: rank %d holds %s, want %s", ErrVerification, e.Rank, e.ExternalID, order[i])
		}
	}

	for _, ins := range insertions {
		if bound := ComparisonBound(ins.Existing); ins.Comparisons > bound {
			return fmt.Errorf("%w: %s used %d comparisons over %d entries, bound %d",
				ErrVerification, ins.ExternalID, ins.Comparisons, ins.Existing, bound)
		}
	}

	last := make(map[string]float64)
	for _, e := range entries {
		if e.Score == nil {
			return fmt.Errorf("%w: rank %d has no score", ErrVerification, e.Rank)
		}
		if prev, ok := last[e.Tier]; ok && *e.Score > prev {
			return fmt.Errorf("%w: %s score rises at rank %d (%.3f > %.3f)",
				ErrVerification, e.Tier, e.Rank, *e.Score, prev)
		}
		last[e.Tier] = *e.Score
	}
	return nil
}
