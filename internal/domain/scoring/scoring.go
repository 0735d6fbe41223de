// Package scoring derives a display score from an entry's rank, tier and
// partition. Scores are computed on demand and never stored.
package scoring

import (
	"fmt"
	"math"

	"github.com/okian/tierank/internal/domain/model"
	"github.com/okian/tierank/internal/domain/ranking"
)

// Default band bounds.
const (
	defaultMax         = 10.0
	defaultGoodFloor   = 7.0
	defaultMediumFloor = 4.0
	defaultBadFloor    = 0.0
)

// Band is the score interval assigned to one tier. Only the top band
// includes its upper bound, so neighbouring bands never touch.
type Band struct {
	Low         float64
	High        float64
	IncludeHigh bool
}

// clamp keeps v inside the band.
func (b Band) clamp(v float64) float64 {
	hi := b.High
	if !b.IncludeHigh {
		hi = math.Nextafter(b.High, b.Low)
	}
	return math.Max(b.Low, math.Min(hi, v))
}

// Option applies a configuration option to the BandScorer.
type Option func(*BandScorer)

// WithBounds sets the band edges: bad=[badFloor, mediumFloor),
// medium=[mediumFloor, goodFloor), good=[goodFloor, ceiling].
func WithBounds(badFloor, mediumFloor, goodFloor, ceiling float64) Option {
	return func(s *BandScorer) {
		s.bands = map[model.Tier]Band{
			model.Good:   {Low: goodFloor, High: ceiling, IncludeHigh: true},
			model.Medium: {Low: mediumFloor, High: goodFloor},
			model.Bad:    {Low: badFloor, High: mediumFloor},
		}
	}
}

// Scored pairs an entry with its derived score.
type Scored struct {
	model.RankedEntry
	Score float64
}

// Scorer computes scores for entries of one partition.
type Scorer interface {
	// Score returns the score of entry among partition, which must contain it.
	Score(entry model.RankedEntry, partition []model.RankedEntry) (float64, error)
	// ScorePartition scores every entry, ordered by rank.
	ScorePartition(partition []model.RankedEntry) ([]Scored, error)
}

// BandScorer maps an entry's position inside its tier onto the tier's band:
//
//	percentile = 1 - (k-1)/max(M-1, 1)
//	score      = low + percentile*(high-low)
//
// where k is the entry's 1-based position by rank among same-tier entries of
// the partition and M is their count.
type BandScorer struct {
	bands map[model.Tier]Band
}

// NewBandScorer creates a scorer with the default 0-4-7-10 bands.
func NewBandScorer(opts ...Option) (*BandScorer, error) {
	s := &BandScorer{}
	WithBounds(defaultBadFloor, defaultMediumFloor, defaultGoodFloor, defaultMax)(s)

	for _, opt := range opts {
		opt(s)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BandScorer) validate() error {
	good, medium, bad := s.bands[model.Good], s.bands[model.Medium], s.bands[model.Bad]
	if !(bad.Low < bad.High && bad.High <= medium.Low && medium.Low < medium.High &&
		medium.High <= good.Low && good.Low < good.High) {
		return fmt.Errorf("%w: bad=[%g,%g) medium=[%g,%g) good=[%g,%g]",
			ErrInvalidBands, bad.Low, bad.High, medium.Low, medium.High, good.Low, good.High)
	}
	return nil
}

// Band returns the band used for tier.
func (s *BandScorer) Band(tier model.Tier) (Band, bool) {
	b, ok := s.bands[tier]
	return b, ok
}

// Score implements Scorer.
func (s *BandScorer) Score(entry model.RankedEntry, partition []model.RankedEntry) (float64, error) {
	band, ok := s.bands[entry.Tier]
	if !ok {
		return 0, fmt.Errorf("%w: %q", model.ErrInvalidTier, entry.Tier)
	}

	k, m, found := 0, 0, false
	for _, e := range partition {
		if e.Tier != entry.Tier || e.MediaKind != entry.MediaKind {
			continue
		}
		m++
		if e.ID == entry.ID {
			found = true
		}
		if e.Rank <= entry.Rank {
			k++
		}
	}
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrEntryNotInPartition, entry.ID)
	}
	return band.clamp(band.Low + percentile(k, m)*(band.High-band.Low)), nil
}

// ScorePartition implements Scorer.
func (s *BandScorer) ScorePartition(partition []model.RankedEntry) ([]Scored, error) {
	sorted := ranking.Sorted(partition)

	counts := make(map[model.Tier]int, len(s.bands))
	for _, e := range sorted {
		counts[e.Tier]++
	}

	seen := make(map[model.Tier]int, len(s.bands))
	out := make([]Scored, 0, len(sorted))
	for _, e := range sorted {
		band, ok := s.bands[e.Tier]
		if !ok {
			return nil, fmt.Errorf("%w: %q", model.ErrInvalidTier, e.Tier)
		}
		seen[e.Tier]++
		score := band.clamp(band.Low + percentile(seen[e.Tier], counts[e.Tier])*(band.High-band.Low))
		out = append(out, Scored{RankedEntry: e, Score: score})
	}
	return out, nil
}

// percentile is 1.0 for the best entry of a tier and 0.0 for the worst; a
// single-member tier gets 1.0.
func percentile(k, m int) float64 {
	return 1 - float64(k-1)/float64(max(m-1, 1))
}

// MustNewBandScorer is like NewBandScorer but panics on invalid bands.
func MustNewBandScorer(opts ...Option) *BandScorer {
	s, err := NewBandScorer(opts...)
	if err != nil {
		panic(err)
	}
	return s
}
