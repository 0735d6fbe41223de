// Package ranking keeps a partition's ranks contiguous across inserts and
// deletes.
//
// Every function here is pure: it takes a partition snapshot and returns a
// new one, leaving the input untouched. Stores decide when to apply the
// result and must apply the shift and the accompanying insert or delete as
// one atomic unit.
package ranking

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/okian/tierank/internal/domain/model"
)

// Move is a single rank change produced by a shift.
type Move struct {
	ID   string
	From int
	To   int
}

// OpenGap frees slot r by moving every entry with rank >= r down one place.
// r must lie in [1, N+1].
func OpenGap(partition []model.RankedEntry, r int) ([]model.RankedEntry, error) {
	if err := Validate(partition); err != nil {
		return nil, err
	}
	if err := CheckInsertRank(len(partition), r); err != nil {
		return nil, err
	}

	out := make([]model.RankedEntry, len(partition))
	for i, e := range partition {
		if e.Rank >= r {
			e.Rank++
		}
		out[i] = e
	}
	return out, nil
}

// CloseGap removes the hole left at rank r after its entry was deleted by
// moving every entry with rank > r up one place.
func CloseGap(partition []model.RankedEntry, r int) ([]model.RankedEntry, error) {
	if r < 1 || r > len(partition)+1 {
		return nil, fmt.Errorf("%w: close gap at %d in partition of %d", ErrInvariantViolation, r, len(partition))
	}

	out := make([]model.RankedEntry, len(partition))
	for i, e := range partition {
		switch {
		case e.Rank == r:
			return nil, fmt.Errorf("%w: rank %d still occupied by %s", ErrInvariantViolation, r, e.ID)
		case e.Rank > r:
			e.Rank--
		}
		out[i] = e
	}
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckInsertRank rejects insert positions outside [1, n+1].
func CheckInsertRank(n, r int) error {
	if r < 1 || r > n+1 {
		return fmt.Errorf("%w: rank %d outside [1, %d]", ErrInvariantViolation, r, n+1)
	}
	return nil
}

// Validate checks that ranks form exactly 1..N and that all entries share
// one media kind.
func Validate(partition []model.RankedEntry) error {
	n := len(partition)
	seen := make([]bool, n+1)
	for i, e := range partition {
		if i > 0 && e.MediaKind != partition[0].MediaKind {
			return fmt.Errorf("%w: mixed media kinds %q and %q", ErrInvariantViolation, partition[0].MediaKind, e.MediaKind)
		}
		if e.Rank < 1 || e.Rank > n {
			return fmt.Errorf("%w: rank %d outside [1, %d]", ErrInvariantViolation, e.Rank, n)
		}
		if seen[e.Rank] {
			return fmt.Errorf("%w: duplicate rank %d", ErrInvariantViolation, e.Rank)
		}
		seen[e.Rank] = true
	}
	return nil
}

// Sorted returns a copy of partition ordered by rank ascending.
func Sorted(partition []model.RankedEntry) []model.RankedEntry {
	out := make([]model.RankedEntry, len(partition))
	copy(out, partition)
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// Moves lists the rank changes between two snapshots of the same entries.
//
// The order is safe for stores that enforce a unique (kind, rank) index and
// apply changes one row at a time: downward shifts (rank grows) are listed
// from the bottom up, upward shifts from the top down.
func Moves(before, after []model.RankedEntry) []Move {
	prev := make(map[string]int, len(before))
	for _, e := range before {
		prev[e.ID] = e.Rank
	}

	var down, up []Move
	for _, e := range after {
		from, ok := prev[e.ID]
		if !ok || from == e.Rank {
			continue
		}
		m := Move{ID: e.ID, From: from, To: e.Rank}
		if m.To > m.From {
			down = append(down, m)
		} else {
			up = append(up, m)
		}
	}
	sort.Slice(down, func(i, j int) bool { return down[i].From > down[j].From })
	sort.Slice(up, func(i, j int) bool { return up[i].From < up[j].From })
	return append(down, up...)
}

// EstimateComparisons is the comparison count recorded for an entry inserted
// into a partition that held n entries: floor(log2(max(n,1))) + 1.
func EstimateComparisons(n int) int {
	if n < 1 {
		n = 1
	}
	return bits.Len(uint(n))
}
