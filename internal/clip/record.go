// Package clip defines the clipboard record model shared by storage and the
// retrieval engine.
package clip

import (
	"fmt"
	"strings"
	"time"
)

// MaxRelated is the number of related record ids kept per record.
const MaxRelated = 5

// Vector is a fixed-width embedding.
type Vector []float64

// Record is a single clipboard history entry.
type Record struct {
	ID            string
	Text          string
	SecondaryText string // OCR output and similar; searchable, weighted lower
	Timestamp     time.Time
	SourceApp     string

	// Embedding is the persisted vector blob. Empty until computed.
	Embedding []byte

	RelatedIDs   []string
	ContextScore float64
	ProjectTag   string
	AccessCount  int
}

// HasEmbedding reports whether a persisted embedding blob is present.
func (r Record) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// MatchKind tells which strategy produced a search result.
type MatchKind string

const (
	MatchKeyword  MatchKind = "keyword"
	MatchSemantic MatchKind = "semantic"
	MatchHybrid   MatchKind = "hybrid"
)

// SearchMode selects the search strategy.
type SearchMode string

const (
	ModeKeyword  SearchMode = "keyword"
	ModeSemantic SearchMode = "semantic"
	ModeHybrid   SearchMode = "hybrid"
)

// ParseSearchMode parses a mode name, case-insensitively.
func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeKeyword:
		return ModeKeyword, nil
	case ModeSemantic:
		return ModeSemantic, nil
	case ModeHybrid, "":
		return ModeHybrid, nil
	}
	return "", fmt.Errorf("unknown search mode %q (want keyword, semantic or hybrid)", s)
}

// SearchResult is a ranked match for a query.
type SearchResult struct {
	ID        string    `json:"id"`
	Score     float64   `json:"score"`
	MatchKind MatchKind `json:"matchKind"`
	Snippet   string    `json:"snippet,omitempty"`
}

// TagSuggestion is a proposed project tag with its confidence in (0.5, 1].
type TagSuggestion struct {
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
