// Package comparison runs the binary-search protocol that places a new
// candidate into an ordered partition through pairwise user judgments.
package comparison

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/okian/tierank/internal/domain/model"
)

// Outcome is one user judgment of the candidate against the shown entry.
type Outcome string

// Judgments accepted by Decide.
const (
	Better Outcome = "better" // candidate ranks above the shown entry
	Worse  Outcome = "worse"  // candidate ranks below the shown entry
)

// ParseOutcome converts user input into an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case Better, Worse:
		return Outcome(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
}

// Range is a half-open index range [Lower, Upper) over the existing list.
type Range struct {
	Lower int
	Upper int
}

// Count returns the number of indices left in the range.
func (r Range) Count() int { return r.Upper - r.Lower }

// snapshot is the state restored by a single undo.
type snapshot struct {
	searchRange     Range
	current         int
	comparisonsMade int
}

// State is a read-only view of a controller.
type State struct {
	Range           Range
	ComparisonsMade int
	Version         int
	CanUndo         bool
	Done            bool
	FinalRank       int                // set once Done
	Current         *model.RankedEntry // entry to compare against, nil once Done
}

// Controller is the binary-search state machine for one candidate.
//
// All transitions are serialized; a decision is accepted only when it names
// the version the caller last observed, so a repeated submission of the same
// choice is rejected instead of narrowing the range twice.
type Controller struct {
	mu sync.Mutex

	existing        []model.RankedEntry // ascending by rank
	searchRange     Range
	current         int
	comparisonsMade int
	last            *snapshot
	version         int
	finalRank       int
}

// New starts a search over existing, which must be sorted by rank. An empty
// list finishes immediately with final rank 1.
func New(existing []model.RankedEntry) *Controller {
	list := make([]model.RankedEntry, len(existing))
	copy(list, existing)

	c := &Controller{
		existing:    list,
		searchRange: Range{Lower: 0, Upper: len(list)},
	}
	c.advance()
	return c
}

// advance either terminates or selects the next midpoint.
func (c *Controller) advance() {
	if c.searchRange.Count() == 0 {
		c.finalRank = c.searchRange.Lower + 1
		return
	}
	c.current = c.searchRange.Lower + c.searchRange.Count()/2
}

// Decide applies a judgment of the candidate against the current entry.
func (c *Controller) Decide(version int, outcome Outcome) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLive(version); err != nil {
		return c.state(), err
	}
	if _, err := ParseOutcome(string(outcome)); err != nil {
		return c.state(), err
	}

	c.last = &snapshot{searchRange: c.searchRange, current: c.current, comparisonsMade: c.comparisonsMade}
	mid := c.current
	if outcome == Better {
		c.searchRange = Range{Lower: c.searchRange.Lower, Upper: mid}
	} else {
		c.searchRange = Range{Lower: mid + 1, Upper: c.searchRange.Upper}
	}
	c.comparisonsMade++
	c.version++
	c.advance()
	return c.state(), nil
}

// Undo restores the state saved by the most recent decision. Only one level
// is kept; a second consecutive undo returns ErrNothingToUndo and changes
// nothing.
func (c *Controller) Undo(version int) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkLive(version); err != nil {
		return c.state(), err
	}
	if c.last == nil {
		return c.state(), ErrNothingToUndo
	}

	c.searchRange = c.last.searchRange
	c.current = c.last.current
	c.comparisonsMade = c.last.comparisonsMade
	c.last = nil
	c.version++
	return c.state(), nil
}

func (c *Controller) checkLive(version int) error {
	if c.finalRank > 0 {
		return fmt.Errorf("%w: search already finished at rank %d", ErrStaleComparison, c.finalRank)
	}
	if version != c.version {
		return fmt.Errorf("%w: version %d, current %d", ErrStaleComparison, version, c.version)
	}
	return nil
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state()
}

func (c *Controller) state() State {
	s := State{
		Range:           c.searchRange,
		ComparisonsMade: c.comparisonsMade,
		Version:         c.version,
		CanUndo:         c.last != nil && c.finalRank == 0,
		Done:            c.finalRank > 0,
		FinalRank:       c.finalRank,
	}
	if !s.Done {
		e := c.existing[c.current]
		s.Current = &e
	}
	return s
}

// Existing returns the list the search runs over.
func (c *Controller) Existing() []model.RankedEntry {
	out := make([]model.RankedEntry, len(c.existing))
	copy(out, c.existing)
	return out
}

// MaxComparisons is the worst-case number of judgments needed to place a
// candidate among n entries: ceil(log2(n+1)).
func MaxComparisons(n int) int {
	if n <= 0 {
		return 0
	}
	return bits.Len(uint(n))
}
