// Package simulate ranks a generated catalogue through the HTTP API and
// checks the resulting lists against the order used to answer comparisons.
package simulate

import (
	"time"

	"github.com/okian/tierank/internal/domain/model"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL    string            // Base URL of the service
	Count      int               // Titles generated per media kind
	Kinds      []model.MediaKind // Media kinds to rank, one worker each
	Seed       uint64            // Seed for the hidden order and tiers
	UndoRate   float64           // Share of comparisons first answered wrong then undone
	Timeout    time.Duration     // HTTP request timeout
	OutputFile string            // Output file for generated titles, empty to skip
	Verbose    bool              // Log every comparison
}

// Title is a generated catalogue item. Position is its place in the hidden
// order, 0 being the best.
type Title struct {
	ExternalID string          `json:"external_id"`
	Name       string          `json:"title"`
	MediaKind  model.MediaKind `json:"media_kind"`
	Tier       model.Tier      `json:"tier"`
	Position   int             `json:"position"`
}

// Entry is a ranked entry as returned by the API.
type Entry struct {
	ID              string   `json:"id"`
	ExternalID      string   `json:"external_id"`
	Tier            string   `json:"tier"`
	Rank            int      `json:"rank"`
	ComparisonCount int      `json:"comparison_count"`
	Score           *float64 `json:"score"`
}

// session is the subset of the session view the simulator drives.
type session struct {
	ID              string `json:"id"`
	Version         int    `json:"version"`
	ComparisonsMade int    `json:"comparisons_made"`
	Remaining       int    `json:"remaining"`
	CanUndo         bool   `json:"can_undo"`
	Done            bool   `json:"done"`
	FinalRank       int    `json:"final_rank"`
	Current         *Entry `json:"current"`
}

type commitResult struct {
	Entry           Entry `json:"entry"`
	ComparisonsMade int   `json:"comparisons_made"`
}

// Insertion records one committed title.
type Insertion struct {
	ExternalID  string
	Existing    int // entries in the list when the session began
	Comparisons int
	FinalRank   int
}

// Stats holds run statistics.
type Stats struct {
	TitlesGenerated int
	TitlesRanked    int
	Comparisons     int
	Undos           int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
