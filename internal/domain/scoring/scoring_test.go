package scoring

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/okian/tierank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func entry(id string, rank int, tier model.Tier) model.RankedEntry {
	return model.RankedEntry{ID: id, MediaKind: model.Movie, Rank: rank, Tier: tier}
}

func TestBandScorer_ReferenceDesign(t *testing.T) {
	Convey("Given the default scorer", t, func() {
		s, err := NewBandScorer()
		So(err, ShouldBeNil)

		Convey("When a tier has a single member", func() {
			p := []model.RankedEntry{entry("a", 1, model.Good), entry("b", 2, model.Medium), entry("c", 3, model.Bad)}

			Convey("Then it scores at the top of its band", func() {
				good, _ := s.Score(p[0], p)
				So(good, ShouldEqual, 10.0)

				medium, _ := s.Score(p[1], p)
				So(medium, ShouldBeLessThan, 7.0)
				So(medium, ShouldAlmostEqual, 7.0, 1e-9)

				bad, _ := s.Score(p[2], p)
				So(bad, ShouldBeLessThan, 4.0)
				So(bad, ShouldAlmostEqual, 4.0, 1e-9)
			})
		})

		Convey("When a tier has three members", func() {
			p := []model.RankedEntry{entry("a", 1, model.Good), entry("b", 2, model.Good), entry("c", 3, model.Good)}
			scores, err := s.ScorePartition(p)
			So(err, ShouldBeNil)

			Convey("Then scores spread evenly across the band", func() {
				So(scores[0].Score, ShouldEqual, 10.0)
				So(scores[1].Score, ShouldAlmostEqual, 8.5, 1e-9)
				So(scores[2].Score, ShouldEqual, 7.0)
			})
		})

		Convey("When the tiers interleave in rank", func() {
			// a medium entry ranked above a good one keeps its medium band
			p := []model.RankedEntry{entry("m", 1, model.Medium), entry("g", 2, model.Good)}
			m, _ := s.Score(p[0], p)
			g, _ := s.Score(p[1], p)
			So(g, ShouldBeGreaterThan, m)
		})

		Convey("When the entry is missing from the partition", func() {
			_, err := s.Score(entry("x", 1, model.Good), []model.RankedEntry{entry("a", 1, model.Good)})
			So(errors.Is(err, ErrEntryNotInPartition), ShouldBeTrue)
		})

		Convey("When the tier is unknown", func() {
			_, err := s.Score(entry("x", 1, "meh"), nil)
			So(errors.Is(err, model.ErrInvalidTier), ShouldBeTrue)
		})
	})
}

func TestBandScorer_Ordering(t *testing.T) {
	s, err := NewBandScorer()
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(3))

	for round := 0; round < 200; round++ {
		n := rng.Intn(30) + 1
		p := make([]model.RankedEntry, n)
		for i := range p {
			p[i] = entry(fmt.Sprint(i), i+1, model.Tiers[rng.Intn(len(model.Tiers))])
		}
		scored, err := s.ScorePartition(p)
		if err != nil {
			t.Fatal(err)
		}

		for _, a := range scored {
			single, err := s.Score(a.RankedEntry, p)
			if err != nil || single != a.Score {
				t.Fatalf("Score and ScorePartition disagree for %s: %v vs %v (%v)", a.ID, single, a.Score, err)
			}
			for _, b := range scored {
				if a.Tier.Above(b.Tier) && !(a.Score > b.Score) {
					t.Fatalf("tier %s scored %v, not above tier %s scored %v", a.Tier, a.Score, b.Tier, b.Score)
				}
				if a.Tier == b.Tier && a.Rank < b.Rank && a.Score < b.Score {
					t.Fatalf("rank %d scored %v below rank %d scored %v", a.Rank, a.Score, b.Rank, b.Score)
				}
			}
			band, _ := s.Band(a.Tier)
			if a.Score < band.Low || a.Score > band.High || (!band.IncludeHigh && a.Score == band.High) {
				t.Fatalf("score %v outside band %+v", a.Score, band)
			}
			if math.IsNaN(a.Score) {
				t.Fatal("NaN score")
			}
		}
	}
}

func TestNewBandScorer_Options(t *testing.T) {
	Convey("Given custom bounds", t, func() {
		Convey("When they are ordered", func() {
			s, err := NewBandScorer(WithBounds(0, 50, 80, 100))
			So(err, ShouldBeNil)
			b, ok := s.Band(model.Medium)
			So(ok, ShouldBeTrue)
			So(b, ShouldResemble, Band{Low: 50, High: 80})
		})

		Convey("When they overlap", func() {
			_, err := NewBandScorer(WithBounds(0, 8, 7, 10))
			So(errors.Is(err, ErrInvalidBands), ShouldBeTrue)
		})
	})
}
