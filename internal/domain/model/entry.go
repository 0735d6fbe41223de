// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// MediaKind partitions the rank space. Ranks are only unique within one kind.
type MediaKind string

// Supported media kinds.
const (
	Movie  MediaKind = "movie"
	Series MediaKind = "series"
)

// MediaKinds lists every partition in display order.
var MediaKinds = []MediaKind{Movie, Series}

// ParseMediaKind converts user input into a MediaKind.
func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(strings.ToLower(strings.TrimSpace(s))) {
	case Movie:
		return Movie, nil
	case Series:
		return Series, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMediaKind, s)
}

// Valid reports whether k is a known media kind.
func (k MediaKind) Valid() bool {
	return k == Movie || k == Series
}

// Tier is the coarse judgment a user picks before comparisons start.
// It is a label only; it never constrains the entry's rank.
type Tier string

// Supported tiers, best first.
const (
	Good   Tier = "good"
	Medium Tier = "medium"
	Bad    Tier = "bad"
)

// Tiers lists tiers from best to worst.
var Tiers = []Tier{Good, Medium, Bad}

// ParseTier converts user input into a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case Good:
		return Good, nil
	case Medium:
		return Medium, nil
	case Bad:
		return Bad, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTier, s)
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t.Level() > 0
}

// Level orders tiers: good=3, medium=2, bad=1, unknown=0.
func (t Tier) Level() int {
	switch t {
	case Good:
		return 3
	case Medium:
		return 2
	case Bad:
		return 1
	}
	return 0
}

// Above reports whether t is strictly better than other.
func (t Tier) Above(other Tier) bool {
	return t.Level() > other.Level()
}

// RankedEntry is one ranked movie or show.
type RankedEntry struct {
	ID              string    // opaque identity, stable for the entry lifetime
	ExternalID      string    // catalog identifier used to refuse re-adds
	Title           string    // display title
	MediaKind       MediaKind // partition
	Tier            Tier      // coarse label, independent of Rank
	Rank            int       // 1-based position, lower is better
	ComparisonCount int       // judgments consumed placing this entry
	CreatedAt       time.Time // set once
}

// Candidate is a title waiting to be placed through comparisons.
type Candidate struct {
	ExternalID string
	Title      string
	MediaKind  MediaKind
	Tier       Tier
}

// Validate checks that the candidate can enter a comparison session.
func (c Candidate) Validate() error {
	switch {
	case strings.TrimSpace(c.ExternalID) == "":
		return fmt.Errorf("%w: missing external id", ErrInvalidCandidate)
	case strings.TrimSpace(c.Title) == "":
		return fmt.Errorf("%w: missing title", ErrInvalidCandidate)
	case !c.MediaKind.Valid():
		return fmt.Errorf("%w: %q", ErrInvalidMediaKind, c.MediaKind)
	case !c.Tier.Valid():
		return fmt.Errorf("%w: %q", ErrInvalidTier, c.Tier)
	}
	return nil
}
