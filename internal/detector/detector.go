// Package detector mines clipboard history for working context: recurring
// app combinations, bursts of activity, clusters of similar content, project
// tag suggestions, and a per-record relevance score.
//
// Every detector is a local, greedy heuristic computed fresh per call; none
// of them attempts full-corpus clustering.
package detector

import (
	"time"

	"github.com/mfenderov/recall/internal/similarity"
)

// Config holds the heuristics' constants.
type Config struct {
	PatternSampleSize  int     // leading records considered by DetectAppPatterns
	PatternWindow      int     // consecutive records per app window
	PatternMinCount    int     // occurrences before a pattern is "common"
	WindowMergeJaccard float64 // adjacent time windows merge above this app overlap

	TagSimilarity    float64       // per-member similarity threshold for tag content match
	TagProximity     time.Duration // time distance for tag time match
	TagAppWeight     float64
	TagContentWeight float64
	TagTimeWeight    float64
	TagMinCriteria   int
	TagMinScore      float64 // suggestions must score strictly above this

	ContextRecencyBase  float64 // recency = max(0, base - decay * hours)
	ContextRecencyDecay float64
	ContextAppBonus     float64
	ContextFreqStep     float64 // frequency = min(cap, step * accessCount)
	ContextFreqCap      float64
	ContextTagBonus     float64
}

// DefaultConfig returns the default heuristic configuration.
func DefaultConfig() Config {
	return Config{
		PatternSampleSize:  50,
		PatternWindow:      3,
		PatternMinCount:    3,
		WindowMergeJaccard: 0.7,

		TagSimilarity:    0.7,
		TagProximity:     60 * time.Minute,
		TagAppWeight:     0.3,
		TagContentWeight: 0.4,
		TagTimeWeight:    0.3,
		TagMinCriteria:   2,
		TagMinScore:      0.5,

		ContextRecencyBase:  0.4,
		ContextRecencyDecay: 0.02,
		ContextAppBonus:     0.3,
		ContextFreqStep:     0.02,
		ContextFreqCap:      0.2,
		ContextTagBonus:     0.1,
	}
}

// Detector runs the context heuristics. It keeps no state between calls.
type Detector struct {
	sim *similarity.Engine
	cfg Config
	now func() time.Time
}

// New creates a Detector with the default configuration.
func New(sim *similarity.Engine) *Detector {
	return &Detector{sim: sim, cfg: DefaultConfig(), now: time.Now}
}

// WithConfig replaces the heuristic configuration.
func (d *Detector) WithConfig(cfg Config) *Detector {
	d.cfg = cfg
	return d
}

// WithClock replaces the clock used for recency.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}
