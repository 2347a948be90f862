// Package search ranks clipboard records against a query with keyword,
// semantic and hybrid strategies.
package search

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/mfenderov/recall/internal/clip"
	"github.com/mfenderov/recall/internal/similarity"
)

// Config holds the scoring constants.
type Config struct {
	KeywordWeight     float64 // multiplier on keyword scores in hybrid mode
	SemanticWeight    float64 // multiplier on semantic scores in hybrid mode
	RecencyWeight     float64 // recency bonus = weight / (1 + days)
	FrequencyCap      float64 // upper bound of the access-count bonus
	FrequencyDivisor  float64 // accessCount / divisor, capped
	SemanticThreshold float64 // semantic results must score strictly above this
	SnippetRadius     int     // characters kept either side of a substring match
	SnippetLength     int     // characters kept for exact, prefix and semantic matches
}

// DefaultConfig returns the default scoring configuration.
func DefaultConfig() Config {
	return Config{
		KeywordWeight:     0.4,
		SemanticWeight:    0.3,
		RecencyWeight:     0.2,
		FrequencyCap:      0.1,
		FrequencyDivisor:  100,
		SemanticThreshold: 0.3,
		SnippetRadius:     20,
		SnippetLength:     100,
	}
}

// Keyword tiers.
const (
	scoreExact              = 1.0
	scorePrefix             = 0.8
	scoreSubstring          = 0.7
	scoreSecondarySubstring = 0.6
)

// Engine runs searches. It holds no per-query state and is safe for
// concurrent use.
type Engine struct {
	sim *similarity.Engine
	cfg Config
	now func() time.Time
}

// New creates an Engine with the default configuration.
func New(sim *similarity.Engine) *Engine {
	return &Engine{sim: sim, cfg: DefaultConfig(), now: time.Now}
}

// WithConfig replaces the scoring configuration.
func (e *Engine) WithConfig(cfg Config) *Engine {
	e.cfg = cfg
	return e
}

// WithClock replaces the clock used for recency.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Search dispatches to the strategy named by mode. A blank query returns an
// empty list in every mode.
func (e *Engine) Search(ctx context.Context, query string, records []clip.Record, mode clip.SearchMode) []clip.SearchResult {
	if strings.TrimSpace(query) == "" {
		return []clip.SearchResult{}
	}

	switch mode {
	case clip.ModeKeyword:
		return e.Keyword(query, records)
	case clip.ModeSemantic:
		return e.Semantic(ctx, query, records)
	default:
		return e.Hybrid(ctx, query, records)
	}
}

// Keyword scores records by case-insensitive text matching. Records that do
// not match are left out rather than scored 0.
func (e *Engine) Keyword(query string, records []clip.Record) []clip.SearchResult {
	q := foldRunes(strings.TrimSpace(query))
	if len(q) == 0 {
		return []clip.SearchResult{}
	}

	results := make([]clip.SearchResult, 0)
	for _, rec := range records {
		score, snippet, ok := e.scoreKeyword(q, rec)
		if !ok {
			continue
		}
		results = append(results, clip.SearchResult{
			ID:        rec.ID,
			Score:     score,
			MatchKind: clip.MatchKeyword,
			Snippet:   snippet,
		})
	}

	sortByScore(results)
	return results
}

func (e *Engine) scoreKeyword(q []rune, rec clip.Record) (float64, string, bool) {
	text := []rune(rec.Text)
	secondary := []rune(rec.SecondaryText)
	lowerText := foldSlice(text)
	lowerSecondary := foldSlice(secondary)

	switch {
	case slices.Equal(lowerText, q) || (len(secondary) > 0 && slices.Equal(lowerSecondary, q)):
		return scoreExact, e.head(rec), true
	case hasPrefix(lowerText, q):
		return scorePrefix, e.head(rec), true
	}

	if i := indexRunes(lowerText, q); i >= 0 {
		return scoreSubstring, window(text, i, len(q), e.cfg.SnippetRadius), true
	}
	if i := indexRunes(lowerSecondary, q); i >= 0 {
		return scoreSecondarySubstring, window(secondary, i, len(q), e.cfg.SnippetRadius), true
	}
	return 0, "", false
}

// Semantic scores records by cosine similarity to the query embedding and
// keeps those above the threshold. Without an embedding provider it returns
// an empty list.
func (e *Engine) Semantic(ctx context.Context, query string, records []clip.Record) []clip.SearchResult {
	results := make([]clip.SearchResult, 0)

	queryVec, ok := e.sim.Store().Embed(ctx, query)
	if !ok {
		return results
	}

	for _, rec := range records {
		vec, ok := e.sim.Store().GetOrCompute(ctx, rec)
		if !ok {
			continue
		}
		score := similarity.Cosine(queryVec, vec)
		if score <= e.cfg.SemanticThreshold {
			continue
		}
		results = append(results, clip.SearchResult{
			ID:        rec.ID,
			Score:     score,
			MatchKind: clip.MatchSemantic,
			Snippet:   e.head(rec),
		})
	}

	sortByScore(results)
	return results
}

// Hybrid merges keyword and semantic results by record id with weighted
// scores, adds recency and access-frequency bonuses, and clamps the total to
// [0, 1]. Every result is labelled hybrid, whichever strategy found it.
func (e *Engine) Hybrid(ctx context.Context, query string, records []clip.Record) []clip.SearchResult {
	type fused struct {
		score   float64
		snippet string
	}

	byID := make(map[string]clip.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	docs := make(map[string]*fused)
	var order []string
	add := func(r clip.SearchResult, weight float64) {
		d, ok := docs[r.ID]
		if !ok {
			d = &fused{}
			docs[r.ID] = d
			order = append(order, r.ID)
		}
		d.score += r.Score * weight
		if d.snippet == "" {
			d.snippet = r.Snippet
		}
	}

	for _, r := range e.Keyword(query, records) {
		add(r, e.cfg.KeywordWeight)
	}
	for _, r := range e.Semantic(ctx, query, records) {
		add(r, e.cfg.SemanticWeight)
	}

	now := e.now()
	results := make([]clip.SearchResult, 0, len(order))
	for _, id := range order {
		d := docs[id]
		rec := byID[id]
		total := d.score + e.recencyBonus(rec, now) + e.frequencyBonus(rec)
		results = append(results, clip.SearchResult{
			ID:        id,
			Score:     clip.Clamp(total, 0, 1),
			MatchKind: clip.MatchHybrid,
			Snippet:   d.snippet,
		})
	}

	sortByScore(results)
	return results
}

func (e *Engine) recencyBonus(rec clip.Record, now time.Time) float64 {
	days := now.Sub(rec.Timestamp).Hours() / 24
	if days < 0 {
		days = 0
	}
	return e.cfg.RecencyWeight * (1 / (1 + days))
}

func (e *Engine) frequencyBonus(rec clip.Record) float64 {
	if rec.AccessCount <= 0 || e.cfg.FrequencyDivisor <= 0 {
		return 0
	}
	return min(e.cfg.FrequencyCap, float64(rec.AccessCount)/e.cfg.FrequencyDivisor)
}

// head returns the leading characters of the record's text, or of its
// secondary text when the primary text is empty.
func (e *Engine) head(rec clip.Record) string {
	text := rec.Text
	if text == "" {
		text = rec.SecondaryText
	}
	r := []rune(text)
	if len(r) > e.cfg.SnippetLength {
		r = r[:e.cfg.SnippetLength]
	}
	return string(r)
}

func sortByScore(results []clip.SearchResult) {
	slices.SortStableFunc(results, func(a, b clip.SearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
}

// window cuts radius characters either side of a match, marking cut ends
// with an ellipsis.
func window(text []rune, at, n, radius int) string {
	start := max(0, at-radius)
	end := min(len(text), at+n+radius)

	var sb strings.Builder
	if start > 0 {
		sb.WriteString("...")
	}
	sb.WriteString(string(text[start:end]))
	if end < len(text) {
		sb.WriteString("...")
	}
	return sb.String()
}

// foldSlice lowercases rune by rune so indexes stay aligned with the
// original text.
func foldSlice(r []rune) []rune {
	out := make([]rune, len(r))
	for i, c := range r {
		out[i] = unicode.ToLower(c)
	}
	return out
}

func foldRunes(s string) []rune {
	return foldSlice([]rune(s))
}

func hasPrefix(s, prefix []rune) bool {
	return len(s) >= len(prefix) && slices.Equal(s[:len(prefix)], prefix)
}

func indexRunes(s, sub []rune) int {
	if len(sub) == 0 {
		return -1
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if slices.Equal(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}
