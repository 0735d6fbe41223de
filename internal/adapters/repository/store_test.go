package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/tierank/internal/domain/model"
	"github.com/okian/tierank/internal/domain/ranking"
	. "github.com/smartystreets/goconvey/convey"
)

var created = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func entry(id string, kind model.MediaKind, rank int) model.RankedEntry {
	return model.RankedEntry{
		ID:              id,
		ExternalID:      "ext-" + id,
		Title:           "Title " + id,
		MediaKind:       kind,
		Tier:            model.Medium,
		Rank:            rank,
		ComparisonCount: 1,
		CreatedAt:       created,
	}
}

// stores returns a fresh instance of every Store implementation.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "rank.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func ids(partition []model.RankedEntry) []string {
	out := make([]string, len(partition))
	for i, e := range partition {
		out[i] = e.ID
	}
	return out
}

func TestStoreOperations(t *testing.T) {
	ctx := context.Background()

	for name, store := range stores(t) {
		Convey("Given an empty "+name+" store", t, func() {
			Convey("When inserting into an empty partition", func() {
				got, err := store.Insert(ctx, entry("a", model.Movie, 1))
				So(err, ShouldBeNil)

				Convey("Then the entry holds rank 1", func() {
					So(got.Rank, ShouldEqual, 1)
					n, err := store.Count(ctx, model.Movie)
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 1)

					stored, err := store.Get(ctx, "a")
					So(err, ShouldBeNil)
					So(stored.CreatedAt.Equal(created), ShouldBeTrue)
					So(stored.Title, ShouldEqual, "Title a")
				})

				_, _ = store.Delete(ctx, "a")
			})

			Convey("When inserting at the top of a three entry list", func() {
				for i, id := range []string{"a", "b", "c"} {
					_, err := store.Insert(ctx, entry(id, model.Movie, i+1))
					So(err, ShouldBeNil)
				}
				_, err := store.Insert(ctx, entry("d", model.Movie, 1))
				So(err, ShouldBeNil)

				Convey("Then everything below shifts down by one", func() {
					p, err := store.Partition(ctx, model.Movie)
					So(err, ShouldBeNil)
					So(ids(p), ShouldResemble, []string{"d", "a", "b", "c"})
					So(ranking.Validate(p), ShouldBeNil)
				})

				Convey("And deleting the middle entry closes the gap", func() {
					removed, err := store.Delete(ctx, "a")
					So(err, ShouldBeNil)
					So(removed.Rank, ShouldEqual, 2)

					p, err := store.Partition(ctx, model.Movie)
					So(err, ShouldBeNil)
					So(ids(p), ShouldResemble, []string{"d", "b", "c"})
					So(p[1].Rank, ShouldEqual, 2)
					So(p[2].Rank, ShouldEqual, 3)
				})

				Convey("And moving an entry keeps ranks contiguous", func() {
					moved, err := store.Move(ctx, "d", 4, 2)
					So(err, ShouldBeNil)
					So(moved.Rank, ShouldEqual, 4)
					So(moved.ComparisonCount, ShouldEqual, 3)

					p, err := store.Partition(ctx, model.Movie)
					So(err, ShouldBeNil)
					So(ids(p), ShouldResemble, []string{"a", "b", "c", "d"})

					_, err = store.Move(ctx, "c", 1, 0)
					So(err, ShouldBeNil)
					p, err = store.Partition(ctx, model.Movie)
					So(err, ShouldBeNil)
					So(ids(p), ShouldResemble, []string{"c", "a", "b", "d"})
					So(ranking.Validate(p), ShouldBeNil)
				})

				Convey("And moving outside 1..N is rejected", func() {
					_, err := store.Move(ctx, "d", 5, 0)
					So(errors.Is(err, ranking.ErrInvariantViolation), ShouldBeTrue)
					_, err = store.Move(ctx, "d", 0, 0)
					So(errors.Is(err, ranking.ErrInvariantViolation), ShouldBeTrue)
				})

				Reset(func() {
					p, _ := store.Partition(ctx, model.Movie)
					for _, e := range p {
						_, _ = store.Delete(ctx, e.ID)
					}
				})
			})

			Convey("When inserting past N+1", func() {
				_, err := store.Insert(ctx, entry("x", model.Series, 2))

				Convey("Then it is rejected before any write", func() {
					So(errors.Is(err, ranking.ErrInvariantViolation), ShouldBeTrue)
					n, _ := store.Count(ctx, model.Series)
					So(n, ShouldEqual, 0)
				})
			})

			Convey("When the same external id is added twice", func() {
				_, err := store.Insert(ctx, entry("s1", model.Series, 1))
				So(err, ShouldBeNil)
				dup := entry("s2", model.Series, 1)
				dup.ExternalID = "ext-s1"
				_, err = store.Insert(ctx, dup)

				Convey("Then the second insert is refused", func() {
					So(errors.Is(err, ErrDuplicate), ShouldBeTrue)
					found, err := store.FindByExternalID(ctx, model.Series, "ext-s1")
					So(err, ShouldBeNil)
					So(found.ID, ShouldEqual, "s1")
				})

				Convey("And the same external id is allowed in the other partition", func() {
					other := entry("m1", model.Movie, 1)
					other.ExternalID = "ext-s1"
					_, err := store.Insert(ctx, other)
					So(err, ShouldBeNil)
					_, _ = store.Delete(ctx, "m1")
				})

				_, _ = store.Delete(ctx, "s1")
			})

			Convey("When looking up unknown entries", func() {
				_, err := store.Get(ctx, "nope")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				_, err = store.Delete(ctx, "nope")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				_, err = store.Move(ctx, "nope", 1, 0)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				_, err = store.FindByExternalID(ctx, model.Movie, "nope")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("When partitions are used side by side", func() {
				_, err := store.Insert(ctx, entry("m", model.Movie, 1))
				So(err, ShouldBeNil)
				_, err = store.Insert(ctx, entry("s", model.Series, 1))
				So(err, ShouldBeNil)

				Convey("Then each holds its own rank 1", func() {
					m, _ := store.Partition(ctx, model.Movie)
					s, _ := store.Partition(ctx, model.Series)
					So(ids(m), ShouldResemble, []string{"m"})
					So(ids(s), ShouldResemble, []string{"s"})
				})

				_, _ = store.Delete(ctx, "m")
				_, _ = store.Delete(ctx, "s")
			})
		})
	}
}

// TestStoreRandomSequences checks that ranks stay exactly 1..N across
// random inserts, deletes and moves, and that both stores agree.
func TestStoreRandomSequences(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	all := stores(t)
	memory, sqlite := all["memory"], all["sqlite"]

	var live []string
	next := 0
	for step := 0; step < 300; step++ {
		n := len(live)
		var errs [2]error
		switch op := rng.Intn(10); {
		case op < 5 || n == 0:
			id := fmt.Sprintf("e%d", next)
			next++
			e := entry(id, model.Movie, rng.Intn(n+1)+1)
			_, errs[0] = memory.Insert(ctx, e)
			_, errs[1] = sqlite.Insert(ctx, e)
			live = append(live, id)
		case op < 8:
			i := rng.Intn(n)
			_, errs[0] = memory.Delete(ctx, live[i])
			_, errs[1] = sqlite.Delete(ctx, live[i])
			live = append(live[:i], live[i+1:]...)
		default:
			id, to := live[rng.Intn(n)], rng.Intn(n)+1
			_, errs[0] = memory.Move(ctx, id, to, 1)
			_, errs[1] = sqlite.Move(ctx, id, to, 1)
		}
		for i, err := range errs {
			if err != nil {
				t.Fatalf("step %d store %d: %v", step, i, err)
			}
		}

		mp, err := memory.Partition(ctx, model.Movie)
		if err != nil {
			t.Fatal(err)
		}
		sp, err := sqlite.Partition(ctx, model.Movie)
		if err != nil {
			t.Fatal(err)
		}
		if err := ranking.Validate(mp); err != nil {
			t.Fatalf("step %d memory: %v", step, err)
		}
		if err := ranking.Validate(sp); err != nil {
			t.Fatalf("step %d sqlite: %v", step, err)
		}
		if len(mp) != len(live) || fmt.Sprint(ids(mp)) != fmt.Sprint(ids(sp)) {
			t.Fatalf("step %d: stores diverged\nmemory %v\nsqlite %v", step, ids(mp), ids(sp))
		}
	}
}

func TestSQLiteRollback(t *testing.T) {
	ctx := context.Background()

	Convey("Given a sqlite store with three entries", t, func() {
		store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "data", "rank.db"))
		So(err, ShouldBeNil)
		Reset(func() { _ = store.Close() })

		for i, id := range []string{"a", "b", "c"} {
			_, err := store.Insert(ctx, entry(id, model.Movie, i+1))
			So(err, ShouldBeNil)
		}

		for _, stage := range []string{"shift", "write", "verify"} {
			stage := stage
			Convey("When the "+stage+" step fails during an insert at the top", func() {
				store.fault = func(s string) error {
					if s == stage {
						return errors.New("disk full")
					}
					return nil
				}
				_, err := store.Insert(ctx, entry("d", model.Movie, 1))
				store.fault = nil

				Convey("Then the error is a persistence failure and nothing moved", func() {
					So(errors.Is(err, ErrPersistence), ShouldBeTrue)
					p, err := store.Partition(ctx, model.Movie)
					So(err, ShouldBeNil)
					So(ids(p), ShouldResemble, []string{"a", "b", "c"})
					So(ranking.Validate(p), ShouldBeNil)
				})
			})
		}

		Convey("When a move fails after the neighbours shifted", func() {
			store.fault = func(s string) error {
				if s == "write" {
					return errors.New("io error")
				}
				return nil
			}
			_, err := store.Move(ctx, "c", 1, 1)
			store.fault = nil

			Convey("Then the partition is untouched", func() {
				So(errors.Is(err, ErrPersistence), ShouldBeTrue)
				p, _ := store.Partition(ctx, model.Movie)
				So(ids(p), ShouldResemble, []string{"a", "b", "c"})
				c, _ := store.Get(ctx, "c")
				So(c.ComparisonCount, ShouldEqual, 1)
			})
		})

		Convey("When the store is reopened", func() {
			path := filepath.Join(t.TempDir(), "reopen.db")
			first, err := OpenSQLite(ctx, path)
			So(err, ShouldBeNil)
			_, err = first.Insert(ctx, entry("z", model.Series, 1))
			So(err, ShouldBeNil)
			So(first.Close(), ShouldBeNil)

			second, err := OpenSQLite(ctx, path, WithBusyTimeout(time.Second), WithJournalMode("DELETE"))
			So(err, ShouldBeNil)
			defer second.Close()

			Convey("Then committed entries survive", func() {
				z, err := second.Get(ctx, "z")
				So(err, ShouldBeNil)
				So(z.Rank, ShouldEqual, 1)
				So(z.MediaKind, ShouldEqual, model.Series)
			})
		})
	})
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Partition(context.Background(), model.Movie); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestMemoryStoreSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Insert(ctx, entry("a", model.Movie, 1)); err != nil {
		t.Fatal(err)
	}

	p, _ := store.Partition(ctx, model.Movie)
	p[0].Rank = 99

	if _, err := store.Insert(ctx, entry("b", model.Movie, 1)); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Get(ctx, "a")
	if got.Rank != 2 {
		t.Fatalf("expected a at rank 2, got %d", got.Rank)
	}
}
