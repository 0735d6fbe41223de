// Package types contains the JSON views shared by the service and the HTTP API.
package types

import (
	"time"

	"github.com/okian/tierank/internal/domain/model"
)

// Entry is a ranked title as returned to clients.
type Entry struct {
	ID              string    `json:"id"`
	ExternalID      string    `json:"external_id"`
	Title           string    `json:"title"`
	MediaKind       string    `json:"media_kind"`
	Tier            string    `json:"tier"`
	Rank            int       `json:"rank"`
	ComparisonCount int       `json:"comparison_count"`
	CreatedAt       time.Time `json:"created_at"`
	Score           *float64  `json:"score,omitempty"`
}

// NewEntry converts a model entry. score may be nil when it was not derived.
func NewEntry(e model.RankedEntry, score *float64) Entry {
	return Entry{
		ID:              e.ID,
		ExternalID:      e.ExternalID,
		Title:           e.Title,
		MediaKind:       string(e.MediaKind),
		Tier:            string(e.Tier),
		Rank:            e.Rank,
		ComparisonCount: e.ComparisonCount,
		CreatedAt:       e.CreatedAt,
		Score:           score,
	}
}

// Candidate is the title being placed.
type Candidate struct {
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	MediaKind  string `json:"media_kind"`
	Tier       string `json:"tier"`
}

// Session purposes.
const (
	PurposeInsert = "insert"
	PurposeRerank = "rerank"
)

// Session is the client view of an open comparison session.
type Session struct {
	ID              string    `json:"id"`
	Purpose         string    `json:"purpose"`
	Candidate       Candidate `json:"candidate"`
	EntryID         string    `json:"entry_id,omitempty"` // set for re-rank sessions
	Version         int       `json:"version"`
	ComparisonsMade int       `json:"comparisons_made"`
	MaxComparisons  int       `json:"max_comparisons"`
	Remaining       int       `json:"remaining"` // entries still inside the search range
	CanUndo         bool      `json:"can_undo"`
	Done            bool      `json:"done"`
	FinalRank       int       `json:"final_rank,omitempty"`
	Current         *Entry    `json:"current,omitempty"` // entry to compare against
	ExpiresAt       time.Time `json:"expires_at"`
}

// CommitResult is returned once a session is written to the store.
type CommitResult struct {
	Entry           Entry `json:"entry"`
	ComparisonsMade int   `json:"comparisons_made"`
}
