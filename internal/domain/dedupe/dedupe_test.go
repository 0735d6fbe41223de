package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/tierank/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("When a decision id is submitted once", func() {
			seen := d.SeenAndRecord(ctx, "s1/decision-1")

			Convey("Then it is recorded as new", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When the same id is submitted twice", func() {
			d.SeenAndRecord(ctx, "s1/decision-1")
			seen := d.SeenAndRecord(ctx, "s1/decision-1")

			Convey("Then the second submission is reported as seen", func() {
				So(seen, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a recorded id is forgotten", func() {
			d.SeenAndRecord(ctx, "s1/decision-1")
			d.Forget(ctx, "s1/decision-1")

			Convey("Then it can be submitted again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "s1/decision-1"), ShouldBeFalse)
			})
		})

		Convey("When an unknown id is forgotten", func() {
			d.Forget(ctx, "missing")

			Convey("Then nothing changes", func() {
				So(d.Size(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a deduper bounded to three ids", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for i := 1; i <= 3; i++ {
			So(d.SeenAndRecord(ctx, fmt.Sprintf("d-%d", i)), ShouldBeFalse)
		}

		Convey("When a fourth id arrives", func() {
			So(d.SeenAndRecord(ctx, "d-4"), ShouldBeFalse)

			Convey("Then the oldest id is evicted and the rest are kept", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "d-4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "d-3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "d-2"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "d-1"), ShouldBeFalse)
			})
		})

		Convey("When an id is forgotten before the ring wraps", func() {
			d.Forget(ctx, "d-2")
			So(d.SeenAndRecord(ctx, "d-4"), ShouldBeFalse)

			Convey("Then eviction still follows insertion order", func() {
				So(d.Size(), ShouldEqual, 2)
				So(d.SeenAndRecord(ctx, "d-3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "d-4"), ShouldBeTrue)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))

		Convey("When many ids are recorded", func() {
			for i := 0; i < 1000; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("d-%d", i))
			}

			Convey("Then none is evicted", func() {
				So(d.Size(), ShouldEqual, 1000)
				So(d.SeenAndRecord(ctx, "d-0"), ShouldBeTrue)
			})
		})
	})
}

func TestDedupeEmptyID(t *testing.T) {
	ctx := context.Background()
	d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(1))

	if d.SeenAndRecord(ctx, "") {
		t.Fatal("empty id reported as seen on first use")
	}
	if !d.SeenAndRecord(ctx, "") {
		t.Fatal("empty id not remembered")
	}
	d.SeenAndRecord(ctx, "x")
	if d.Size() != 1 {
		t.Fatalf("expected eviction to keep size 1, got %d", d.Size())
	}
	if d.SeenAndRecord(ctx, "") {
		t.Fatal("evicted empty id still reported as seen")
	}
}

func TestDedupeConcurrency(t *testing.T) {
	ctx := context.Background()
	d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2000))

	const workers = 10
	var wg sync.WaitGroup
	dups := make([]int, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if d.SeenAndRecord(ctx, fmt.Sprintf("d-%d", j)) {
					dups[w]++
				}
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for _, n := range dups {
		total += n
	}
	// Each of the 100 ids is new for exactly one worker.
	if total != (workers-1)*100 {
		t.Fatalf("expected %d duplicates, got %d", (workers-1)*100, total)
	}
	if d.Size() != 100 {
		t.Fatalf("expected 100 ids, got %d", d.Size())
	}
}
