package detector

import (
	"context"
	"slices"
	"strings"

	"github.com/mfenderov/recall/internal/clip"
)

// PatternSeparator joins app names in a pattern key.
const PatternSeparator = " + "

// DetectAppPatterns finds app combinations that recur in the leading records.
// A window of consecutive records touching two or more distinct apps yields a
// key of the sorted app names; keys seen at least PatternMinCount times are
// common patterns. Each record whose app name appears in a common key's text
// joins that pattern's group, so a record can sit in several groups.
func (d *Detector) DetectAppPatterns(items []clip.Record) map[string][]clip.Record {
	patterns := make(map[string][]clip.Record)

	sample := items[:min(len(items), d.cfg.PatternSampleSize)]
	size := d.cfg.PatternWindow

	counts := make(map[string]int)
	for i := 0; i+size <= len(sample); i++ {
		apps := distinctApps(sample[i : i+size])
		if len(apps) < 2 {
			continue
		}
		slices.Sort(apps)
		counts[strings.Join(apps, PatternSeparator)]++
	}

	var common []string
	for key, n := range counts {
		if n >= d.cfg.PatternMinCount {
			common = append(common, key)
		}
	}
	slices.Sort(common)

	for _, item := range sample {
		if item.SourceApp == "" {
			continue
		}
		for _, key := range common {
			if strings.Contains(key, item.SourceApp) {
				patterns[key] = append(patterns[key], item)
			}
		}
	}

	return patterns
}

// DetectTimeWindows partitions records into bursts of activity. Records are
// sorted by time; a record joins the open window while it is within
// windowMinutes of that window's first record, otherwise it opens a new
// window. Adjacent windows whose app sets overlap by more than
// WindowMergeJaccard are then merged, left to right.
func (d *Detector) DetectTimeWindows(items []clip.Record, windowMinutes int) [][]clip.Record {
	if len(items) == 0 {
		return nil
	}

	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b clip.Record) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	var windows [][]clip.Record
	current := []clip.Record{sorted[0]}
	for _, item := range sorted[1:] {
		if item.Timestamp.Sub(current[0].Timestamp).Minutes() <= float64(windowMinutes) {
			current = append(current, item)
			continue
		}
		windows = append(windows, current)
		current = []clip.Record{item}
	}
	windows = append(windows, current)

	merged := [][]clip.Record{windows[0]}
	for _, w := range windows[1:] {
		last := len(merged) - 1
		if jaccard(distinctApps(merged[last]), distinctApps(w)) > d.cfg.WindowMergeJaccard {
			merged[last] = append(merged[last], w...)
			continue
		}
		merged = append(merged, w)
	}

	return merged
}

// DetectContentClusters groups records around seeds in input order. Each
// unprocessed record seeds a cluster of itself plus every record similar to
// it at threshold; all members are then marked processed. Seeds without a
// match are dropped, so there are no singleton clusters. Members are linked
// to the seed only, never to each other.
func (d *Detector) DetectContentClusters(ctx context.Context, items []clip.Record, threshold float64) [][]clip.Record {
	var clusters [][]clip.Record
	processed := make(map[string]bool, len(items))

	for _, item := range items {
		if processed[item.ID] {
			continue
		}
		processed[item.ID] = true

		matches := d.sim.FindSimilar(ctx, item, items, threshold)
		if len(matches) == 0 {
			continue
		}

		cluster := []clip.Record{item}
		for _, m := range matches {
			cluster = append(cluster, m.Record)
			processed[m.Record.ID] = true
		}
		clusters = append(clusters, cluster)
	}

	return clusters
}

// distinctApps returns the distinct non-empty app names in first-seen order.
func distinctApps(items []clip.Record) []string {
	var apps []string
	for _, item := range items {
		if item.SourceApp != "" && !slices.Contains(apps, item.SourceApp) {
			apps = append(apps, item.SourceApp)
		}
	}
	return apps
}

// jaccard is |a∩b| / |a∪b| over two sets of names; 0 when either is empty.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	union := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		union[s] = true
	}
	intersection := 0
	for _, s := range b {
		if union[s] {
			intersection++
		}
		union[s] = true
	}
	return float64(intersection) / float64(len(union))
}
