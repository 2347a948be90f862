// Package similarity compares record embeddings.
package similarity

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/mfenderov/recall/internal/clip"
	"github.com/mfenderov/recall/internal/embedding"
)

// Cosine computes the cosine similarity between two vectors, in [-1, 1].
// Mismatched lengths, empty vectors, zero magnitudes and overflow yield 0.
func Cosine(a, b clip.Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	// One square root keeps Cosine(v, v) exactly 1. The product of the norms
	// can leave float range where each norm alone does not.
	denom := math.Sqrt(normA * normB)
	if denom == 0 || math.IsInf(denom, 0) {
		denom = math.Sqrt(normA) * math.Sqrt(normB)
	}
	sim := dotProduct / denom
	if math.IsNaN(sim) {
		return 0
	}
	return clip.Clamp(sim, -1, 1)
}

// Match is a candidate scored against a target.
type Match struct {
	Record clip.Record
	Score  float64
}

// Engine finds similar records using embeddings resolved through a Store.
type Engine struct {
	store *embedding.Store
}

// New creates an Engine backed by store.
func New(store *embedding.Store) *Engine {
	return &Engine{store: store}
}

// Store returns the embedding store the engine resolves vectors with.
func (e *Engine) Store() *embedding.Store {
	return e.store
}

// FindSimilar scores every candidate against target and keeps those with
// score >= threshold, best first. The target's own id is never returned.
// Ties keep candidate order. Candidates without a resolvable embedding are
// skipped; an unresolvable target yields nil.
func (e *Engine) FindSimilar(ctx context.Context, target clip.Record, candidates []clip.Record, threshold float64) []Match {
	targetVec, ok := e.store.GetOrCompute(ctx, target)
	if !ok {
		return nil
	}

	var matches []Match
	for _, c := range candidates {
		if c.ID == target.ID {
			continue
		}
		vec, ok := e.store.GetOrCompute(ctx, c)
		if !ok {
			continue
		}
		if score := Cosine(targetVec, vec); score >= threshold {
			matches = append(matches, Match{Record: c, Score: score})
		}
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return matches
}
