// Package repository persists ranked entries and applies rank shifts
// together with the insert, delete or move that caused them.
package repository

import (
	"context"
	"fmt"

	"github.com/okian/tierank/internal/domain/model"
	"github.com/okian/tierank/internal/domain/ranking"
)

// Store provides read/write access to the ranked partitions.
//
// Every mutation either completes with the partition's ranks forming 1..N
// again, or fails without changing anything.
type Store interface {
	// Partition returns all entries of kind ordered by rank ascending.
	Partition(ctx context.Context, kind model.MediaKind) ([]model.RankedEntry, error)

	// Get returns one entry by ID. Returns ErrNotFound if unknown.
	Get(ctx context.Context, id string) (model.RankedEntry, error)

	// FindByExternalID returns the entry of kind carrying externalID.
	FindByExternalID(ctx context.Context, kind model.MediaKind, externalID string) (model.RankedEntry, error)

	// Insert places entry at entry.Rank, shifting the entries at or below it.
	// Returns ErrDuplicate if the ID or the external ID is already ranked.
	Insert(ctx context.Context, entry model.RankedEntry) (model.RankedEntry, error)

	// Delete removes an entry and closes the gap it leaves.
	Delete(ctx context.Context, id string) (model.RankedEntry, error)

	// Move relocates an entry to toRank within its partition and adds
	// addComparisons to its comparison count.
	Move(ctx context.Context, id string, toRank, addComparisons int) (model.RankedEntry, error)

	// Count returns the partition size.
	Count(ctx context.Context, kind model.MediaKind) (int, error)

	Close() error
}

// plan is the outcome of a mutation computed over a partition snapshot.
type plan struct {
	entry  model.RankedEntry   // inserted, deleted or moved entry
	before []model.RankedEntry // entries other than entry, before the shift
	after  []model.RankedEntry // the same entries after the shift
}

// moves lists the row updates for the shifted entries.
func (p plan) moves() []ranking.Move {
	return ranking.Moves(p.before, p.after)
}

// result is the partition once the plan is applied.
func (p plan) result(keepEntry bool) []model.RankedEntry {
	out := make([]model.RankedEntry, 0, len(p.after)+1)
	out = append(out, p.after...)
	if keepEntry {
		out = append(out, p.entry)
	}
	return ranking.Sorted(out)
}

func planInsert(partition []model.RankedEntry, entry model.RankedEntry) (plan, error) {
	if entry.ID == "" || !entry.MediaKind.Valid() || !entry.Tier.Valid() {
		return plan{}, fmt.Errorf("insert %q: %w", entry.ID, model.ErrInvalidCandidate)
	}
	for _, e := range partition {
		if e.ID == entry.ID || e.ExternalID == entry.ExternalID {
			return plan{}, fmt.Errorf("insert %s: %w", entry.ExternalID, ErrDuplicate)
		}
	}

	shifted, err := ranking.OpenGap(partition, entry.Rank)
	if err != nil {
		return plan{}, fmt.Errorf("insert %s: %w", entry.ExternalID, err)
	}
	p := plan{entry: entry, before: partition, after: shifted}
	if err := ranking.Validate(p.result(true)); err != nil {
		return plan{}, fmt.Errorf("insert %s: %w", entry.ExternalID, err)
	}
	return p, nil
}

func planDelete(partition []model.RankedEntry, id string) (plan, error) {
	target, rest, err := split(partition, id)
	if err != nil {
		return plan{}, err
	}
	closed, err := ranking.CloseGap(rest, target.Rank)
	if err != nil {
		return plan{}, fmt.Errorf("delete %s: %w", id, err)
	}
	return plan{entry: target, before: rest, after: closed}, nil
}

func planMove(partition []model.RankedEntry, id string, toRank, addComparisons int) (plan, error) {
	target, rest, err := split(partition, id)
	if err != nil {
		return plan{}, err
	}
	if err := ranking.CheckInsertRank(len(rest), toRank); err != nil {
		return plan{}, fmt.Errorf("move %s: %w", id, err)
	}
	closed, err := ranking.CloseGap(rest, target.Rank)
	if err != nil {
		return plan{}, fmt.Errorf("move %s: %w", id, err)
	}
	opened, err := ranking.OpenGap(closed, toRank)
	if err != nil {
		return plan{}, fmt.Errorf("move %s: %w", id, err)
	}

	target.Rank = toRank
	target.ComparisonCount += addComparisons
	p := plan{entry: target, before: rest, after: opened}
	if err := ranking.Validate(p.result(true)); err != nil {
		return plan{}, fmt.Errorf("move %s: %w", id, err)
	}
	return p, nil
}

// split separates the entry with id from the rest of the partition.
func split(partition []model.RankedEntry, id string) (model.RankedEntry, []model.RankedEntry, error) {
	var (
		target model.RankedEntry
		found  bool
	)
	rest := make([]model.RankedEntry, 0, len(partition))
	for _, e := range partition {
		if e.ID == id {
			target, found = e, true
			continue
		}
		rest = append(rest, e)
	}
	if !found {
		return model.RankedEntry{}, nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return target, rest, nil
}
