package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/tierank/internal/domain/model"
	"github.com/okian/tierank/pkg/metrics"
)

const memoryDriver = "memory"

// snapshot is an immutable view of every partition. Writers build a new
// snapshot and publish it in one atomic store, so readers never observe a
// half-applied shift.
type snapshot struct {
	partitions map[model.MediaKind][]model.RankedEntry // ascending by rank
	byID       map[string]model.RankedEntry
}

// MemoryStore is an in-process Store. It is the default for tests and for
// running without a database file.
type MemoryStore struct {
	mu     sync.Mutex // serializes writers
	snap   atomic.Pointer[snapshot]
	closed atomic.Bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.snap.Store(&snapshot{
		partitions: make(map[model.MediaKind][]model.RankedEntry),
		byID:       make(map[string]model.RankedEntry),
	})
	return s
}

func (s *MemoryStore) Partition(ctx context.Context, kind model.MediaKind) ([]model.RankedEntry, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	src := s.snap.Load().partitions[kind]
	out := make([]model.RankedEntry, len(src))
	copy(out, src)
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (model.RankedEntry, error) {
	if err := s.check(ctx); err != nil {
		return model.RankedEntry{}, err
	}
	e, ok := s.snap.Load().byID[id]
	if !ok {
		return model.RankedEntry{}, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return e, nil
}

func (s *MemoryStore) FindByExternalID(ctx context.Context, kind model.MediaKind, externalID string) (model.RankedEntry, error) {
	if err := s.check(ctx); err != nil {
		return model.RankedEntry{}, err
	}
	for _, e := range s.snap.Load().partitions[kind] {
		if e.ExternalID == externalID {
			return e, nil
		}
	}
	return model.RankedEntry{}, fmt.Errorf("external id %s: %w", externalID, ErrNotFound)
}

func (s *MemoryStore) Insert(ctx context.Context, entry model.RankedEntry) (model.RankedEntry, error) {
	defer observe(memoryDriver, "insert", time.Now())
	if err := s.check(ctx); err != nil {
		return model.RankedEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	if _, ok := cur.byID[entry.ID]; ok {
		return model.RankedEntry{}, fmt.Errorf("insert %s: %w", entry.ID, ErrDuplicate)
	}
	p, err := planInsert(cur.partitions[entry.MediaKind], entry)
	if err != nil {
		return model.RankedEntry{}, err
	}
	s.publish(cur, entry.MediaKind, p.result(true), "")
	return p.entry, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) (model.RankedEntry, error) {
	defer observe(memoryDriver, "delete", time.Now())
	if err := s.check(ctx); err != nil {
		return model.RankedEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	existing, ok := cur.byID[id]
	if !ok {
		return model.RankedEntry{}, fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	p, err := planDelete(cur.partitions[existing.MediaKind], id)
	if err != nil {
		return model.RankedEntry{}, err
	}
	s.publish(cur, existing.MediaKind, p.result(false), id)
	return p.entry, nil
}

func (s *MemoryStore) Move(ctx context.Context, id string, toRank, addComparisons int) (model.RankedEntry, error) {
	defer observe(memoryDriver, "move", time.Now())
	if err := s.check(ctx); err != nil {
		return model.RankedEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	existing, ok := cur.byID[id]
	if !ok {
		return model.RankedEntry{}, fmt.Errorf("move %s: %w", id, ErrNotFound)
	}
	p, err := planMove(cur.partitions[existing.MediaKind], id, toRank, addComparisons)
	if err != nil {
		return model.RankedEntry{}, err
	}
	s.publish(cur, existing.MediaKind, p.result(true), "")
	return p.entry, nil
}

func (s *MemoryStore) Count(ctx context.Context, kind model.MediaKind) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	return len(s.snap.Load().partitions[kind]), nil
}

// Close marks the store closed. Later calls return ErrClosed.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *MemoryStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// publish swaps in a snapshot where kind's partition is replaced. removed
// names an entry that left the store. Must be called with s.mu held.
func (s *MemoryStore) publish(cur *snapshot, kind model.MediaKind, partition []model.RankedEntry, removed string) {
	next := &snapshot{
		partitions: make(map[model.MediaKind][]model.RankedEntry, len(cur.partitions)+1),
		byID:       make(map[string]model.RankedEntry, len(cur.byID)+1),
	}
	for k, p := range cur.partitions {
		next.partitions[k] = p
	}
	for id, e := range cur.byID {
		if id != removed {
			next.byID[id] = e
		}
	}
	next.partitions[kind] = partition
	for _, e := range partition {
		next.byID[e.ID] = e
	}

	s.snap.Store(next)
	metrics.UpdateEntriesTotal(string(kind), len(partition))
}

// observe records the latency of one store operation.
func observe(driver, op string, start time.Time) {
	metrics.RecordStoreLatency(driver, op, float64(time.Since(start).Microseconds())/1000)
}
