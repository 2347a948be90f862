package detector

import (
	"cmp"
	"context"
	"slices"

	"github.com/mfenderov/recall/internal/clip"
)

// AppSignal reports the application currently in the foreground.
type AppSignal interface {
	CurrentApp() (string, bool)
}

// StaticApp is an AppSignal that always reports the same app.
type StaticApp string

// CurrentApp implements AppSignal. An empty name counts as unavailable.
func (a StaticApp) CurrentApp() (string, bool) {
	return string(a), a != ""
}

// NoApp is an AppSignal with no foreground app.
var NoApp AppSignal = StaticApp("")

// SuggestProjectTags proposes tags from tagged history. For each tag group
// three criteria are checked: the candidate's app is among the group's apps,
// some members are similar to the candidate (weighted by the fraction that
// are), and some member lies within TagProximity of the candidate. A tag is
// suggested only when at least TagMinCriteria criteria fired and the score
// exceeds TagMinScore. History entries with the candidate's own id are
// ignored.
func (d *Detector) SuggestProjectTags(ctx context.Context, candidate clip.Record, history []clip.Record) []clip.TagSuggestion {
	groups := make(map[string][]clip.Record)
	var tags []string
	for _, item := range history {
		if item.ProjectTag == "" || item.ID == candidate.ID {
			continue
		}
		if _, seen := groups[item.ProjectTag]; !seen {
			tags = append(tags, item.ProjectTag)
		}
		groups[item.ProjectTag] = append(groups[item.ProjectTag], item)
	}

	suggestions := make([]clip.TagSuggestion, 0)
	for _, tag := range tags {
		members := groups[tag]
		score := 0.0
		fired := 0

		if candidate.SourceApp != "" && slices.Contains(distinctApps(members), candidate.SourceApp) {
			score += d.cfg.TagAppWeight
			fired++
		}

		if matches := d.sim.FindSimilar(ctx, candidate, members, d.cfg.TagSimilarity); len(matches) > 0 {
			score += d.cfg.TagContentWeight * float64(len(matches)) / float64(len(members))
			fired++
		}

		if d.anyWithin(candidate, members) {
			score += d.cfg.TagTimeWeight
			fired++
		}

		if fired >= d.cfg.TagMinCriteria && score > d.cfg.TagMinScore {
			suggestions = append(suggestions, clip.TagSuggestion{
				Tag:        tag,
				Confidence: clip.Clamp(score, 0, 1),
			})
		}
	}

	slices.SortStableFunc(suggestions, func(a, b clip.TagSuggestion) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	return suggestions
}

func (d *Detector) anyWithin(candidate clip.Record, members []clip.Record) bool {
	for _, m := range members {
		delta := m.Timestamp.Sub(candidate.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if delta <= d.cfg.TagProximity {
			return true
		}
	}
	return false
}

// CalculateContextScores rates how relevant each record is right now, from
// recency, a match with the foreground app, access count and tagging. Scores
// are clamped to [0, 1]. Without a foreground app the result is empty.
func (d *Detector) CalculateContextScores(items []clip.Record, app AppSignal) map[string]float64 {
	scores := make(map[string]float64)
	if app == nil {
		return scores
	}
	current, ok := app.CurrentApp()
	if !ok {
		return scores
	}

	now := d.now()
	for _, item := range items {
		hours := max(0, now.Sub(item.Timestamp).Hours())

		score := max(0, d.cfg.ContextRecencyBase-d.cfg.ContextRecencyDecay*hours)
		if item.SourceApp == current {
			score += d.cfg.ContextAppBonus
		}
		score += min(d.cfg.ContextFreqCap, d.cfg.ContextFreqStep*float64(item.AccessCount))
		if item.ProjectTag != "" {
			score += d.cfg.ContextTagBonus
		}

		scores[item.ID] = clip.Clamp(score, 0, 1)
	}
	return scores
}
