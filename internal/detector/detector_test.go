package detector

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/mfenderov/recall/internal/clip"
	"github.com/mfenderov/recall/internal/embedding"
	"github.com/mfenderov/recall/internal/similarity"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type vectorsByText map[string][]float64

func (v vectorsByText) CreateEmbedding(_ context.Context, text string) ([]float64, error) {
	if vec, ok := v[text]; ok {
		return vec, nil
	}
	return nil, errors.New("unknown text")
}

func newDetector(provider embedding.Provider) *Detector {
	sim := similarity.New(embedding.NewStore(provider, nil))
	return New(sim).WithClock(func() time.Time { return fixedNow })
}

func appRec(id, app string) clip.Record {
	return clip.Record{ID: id, Text: id, SourceApp: app, Timestamp: fixedNow}
}

func at(id string, minutes int, app string) clip.Record {
	return clip.Record{ID: id, Text: id, SourceApp: app, Timestamp: fixedNow.Add(time.Duration(minutes) * time.Minute)}
}

func ids(records []clip.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func expectIDs(t *testing.T, want []string, got []clip.Record) {
	t.Helper()
	if !slices.Equal(ids(got), want) {
		t.Errorf("expected %v, got %v", want, ids(got))
	}
}

func expectScore(t *testing.T, name string, want, got float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s: expected %f, got %f", name, want, got)
	}
}

func TestDetectAppPatterns(t *testing.T) {
	d := newDetector(nil)
	items := []clip.Record{
		appRec("1", "Xcode"), appRec("2", "Safari"), appRec("3", "Xcode"),
		appRec("4", "Safari"), appRec("5", "Xcode"), appRec("6", "Safari"),
		appRec("7", "code"),
	}

	patterns := d.DetectAppPatterns(items)
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %v", patterns)
	}

	group, ok := patterns["Safari + Xcode"]
	if !ok {
		t.Fatalf("expected Safari + Xcode pattern, got %v", patterns)
	}
	// "code" is textually contained in "Xcode", so it joins the group too.
	expectIDs(t, []string{"1", "2", "3", "4", "5", "6", "7"}, group)
}

func TestDetectAppPatterns_RareCombinationIgnored(t *testing.T) {
	d := newDetector(nil)
	items := []clip.Record{
		appRec("1", "Xcode"), appRec("2", "Safari"), appRec("3", "Xcode"),
		appRec("4", "Notes"), appRec("5", "Notes"),
	}
	if patterns := d.DetectAppPatterns(items); len(patterns) != 0 {
		t.Errorf("expected no patterns, got %v", patterns)
	}
}

func TestDetectAppPatterns_SingleAppWindowsIgnored(t *testing.T) {
	d := newDetector(nil)
	items := []clip.Record{
		appRec("1", "Terminal"), appRec("2", "Terminal"), appRec("3", ""),
		appRec("4", "Terminal"), appRec("5", "Terminal"),
	}
	if patterns := d.DetectAppPatterns(items); len(patterns) != 0 {
		t.Errorf("expected no patterns, got %v", patterns)
	}
}

func TestDetectAppPatterns_OnlyLeadingSample(t *testing.T) {
	d := newDetector(nil)
	var items []clip.Record
	for i := range 50 {
		items = append(items, appRec(string(rune('A'+i)), "Xcode"))
	}
	for i := range 10 {
		app := "Safari"
		if i%2 == 0 {
			app = "Slack"
		}
		items = append(items, appRec(string(rune('a'+i)), app))
	}

	if patterns := d.DetectAppPatterns(items); len(patterns) != 0 {
		t.Errorf("expected only the leading sample to count, got %v", patterns)
	}
}

func TestDetectTimeWindows_AllWithinWindow(t *testing.T) {
	d := newDetector(nil)
	items := []clip.Record{at("1", 0, ""), at("2", 10, ""), at("3", 20, ""), at("4", 30, "")}

	windows := d.DetectTimeWindows(items, 30)
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	expectIDs(t, []string{"1", "2", "3", "4"}, windows[0])
}

func TestDetectTimeWindows_SplitsOnGap(t *testing.T) {
	d := newDetector(nil)
	items := []clip.Record{
		at("1", 0, "Xcode"), at("2", 5, "Xcode"),
		at("3", 90, "Slack"), at("4", 95, "Slack"),
	}

	windows := d.DetectTimeWindows(items, 30)
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	expectIDs(t, []string{"1", "2"}, windows[0])
	expectIDs(t, []string{"3", "4"}, windows[1])
}

func TestDetectTimeWindows_AnchoredOnFirstItem(t *testing.T) {
	d := newDetector(nil)
	// Each item is 20 minutes after the previous one, but the third is 40
	// minutes after the window's first.
	items := []clip.Record{at("1", 0, ""), at("2", 20, ""), at("3", 40, "")}

	windows := d.DetectTimeWindows(items, 30)
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	expectIDs(t, []string{"1", "2"}, windows[0])
	expectIDs(t, []string{"3"}, windows[1])
}

func TestDetectTimeWindows_MergesWindowsWithSameApps(t *testing.T) {
	d := newDetector(nil)
	items := []clip.Record{
		at("1", 0, "Xcode"), at("2", 5, "Safari"),
		at("3", 120, "Safari"), at("4", 125, "Xcode"),
		at("5", 300, "Slack"),
	}

	windows := d.DetectTimeWindows(items, 30)
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	expectIDs(t, []string{"1", "2", "3", "4"}, windows[0])
	expectIDs(t, []string{"5"}, windows[1])
}

func TestDetectTimeWindows_SortsInput(t *testing.T) {
	d := newDetector(nil)
	items := []clip.Record{at("late", 100, ""), at("early", 0, ""), at("mid", 10, "")}

	windows := d.DetectTimeWindows(items, 30)
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	expectIDs(t, []string{"early", "mid"}, windows[0])
	expectIDs(t, []string{"late"}, windows[1])
}

func TestDetectTimeWindows_Empty(t *testing.T) {
	if windows := newDetector(nil).DetectTimeWindows(nil, 30); len(windows) != 0 {
		t.Errorf("expected no windows, got %d", len(windows))
	}
}

func TestJaccard(t *testing.T) {
	expectScore(t, "empty side", 0, jaccard(nil, []string{"a"}))
	expectScore(t, "same sets", 1, jaccard([]string{"a", "b"}, []string{"b", "a"}))
	expectScore(t, "one shared of three", 1.0/3, jaccard([]string{"a", "b"}, []string{"b", "c"}))
}

func TestDetectContentClusters(t *testing.T) {
	d := newDetector(vectorsByText{
		"a": {1, 0},
		"b": {0.99, 0.1},
		"c": {0, 1},
		"d": {0.1, 0.99},
		"e": {0.7, -0.7},
	})
	items := []clip.Record{appRec("a", ""), appRec("c", ""), appRec("b", ""), appRec("e", ""), appRec("d", "")}

	clusters := d.DetectContentClusters(context.Background(), items, 0.9)
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
	expectIDs(t, []string{"a", "b"}, clusters[0])
	expectIDs(t, []string{"c", "d"}, clusters[1])
}

func TestDetectContentClusters_SeedLinkageOnly(t *testing.T) {
	// b is close to both a and c, but a and c are not close to each other.
	d := newDetector(vectorsByText{
		"a": {1, 0},
		"b": {0.9, 0.436},
		"c": {0.62, 0.785},
	})
	items := []clip.Record{appRec("a", ""), appRec("b", ""), appRec("c", "")}

	clusters := d.DetectContentClusters(context.Background(), items, 0.85)
	if len(clusters) == 0 {
		t.Fatal("expected at least one cluster")
	}
	expectIDs(t, []string{"a", "b"}, clusters[0])
}

func TestDetectContentClusters_NoProvider(t *testing.T) {
	d := newDetector(nil)
	items := []clip.Record{appRec("a", ""), appRec("b", "")}
	if clusters := d.DetectContentClusters(context.Background(), items, 0.5); len(clusters) != 0 {
		t.Errorf("expected no clusters without a provider, got %d", len(clusters))
	}
}

func TestSuggestProjectTags(t *testing.T) {
	d := newDetector(vectorsByText{
		"candidate": {1, 0},
		"similar-1": {1, 0},
		"similar-2": {0.95, 0.05},
		"unrelated": {0, 1},
	})
	candidate := clip.Record{ID: "cand", Text: "candidate", SourceApp: "Xcode", Timestamp: fixedNow}

	tagged := func(id, text, app, tag string, minutes int) clip.Record {
		return clip.Record{ID: id, Text: text, SourceApp: app, ProjectTag: tag,
			Timestamp: fixedNow.Add(time.Duration(minutes) * time.Minute)}
	}
	history := []clip.Record{
		// app + time: 0.3 + 0.3
		tagged("a1", "note", "Xcode", "alpha", -30),
		// content 2/3 + time: 0.4*2/3 + 0.3
		tagged("g1", "similar-1", "Figma", "gamma", -30),
		tagged("g2", "similar-2", "Figma", "gamma", -300),
		tagged("g3", "unrelated", "Figma", "gamma", -300),
		// app only
		tagged("b1", "other", "Xcode", "beta", -300),
		// untagged entries are ignored
		{ID: "u1", Text: "similar-1", SourceApp: "Xcode", Timestamp: fixedNow},
	}

	suggestions := d.SuggestProjectTags(context.Background(), candidate, history)
	if len(suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %+v", suggestions)
	}
	if suggestions[0].Tag != "alpha" || suggestions[1].Tag != "gamma" {
		t.Errorf("expected [alpha gamma], got [%s %s]", suggestions[0].Tag, suggestions[1].Tag)
	}
	expectScore(t, "alpha", 0.6, suggestions[0].Confidence)
	expectScore(t, "gamma", 0.4*2.0/3.0+0.3, suggestions[1].Confidence)
}

func TestSuggestProjectTags_ScoreMustExceedFloor(t *testing.T) {
	d := newDetector(vectorsByText{
		"candidate": {1, 0},
		"similar":   {1, 0},
		"unrelated": {0, 1},
	})
	candidate := clip.Record{ID: "cand", Text: "candidate", SourceApp: "Xcode", Timestamp: fixedNow}
	history := []clip.Record{
		// content 1/2 + time = exactly 0.5
		{ID: "1", Text: "similar", SourceApp: "Figma", ProjectTag: "p", Timestamp: fixedNow},
		{ID: "2", Text: "unrelated", SourceApp: "Figma", ProjectTag: "p", Timestamp: fixedNow.Add(-5 * time.Hour)},
	}

	if got := d.SuggestProjectTags(context.Background(), candidate, history); len(got) != 0 {
		t.Errorf("expected a score of exactly 0.5 to be dropped, got %+v", got)
	}
}

func TestSuggestProjectTags_SingleCriterionNeverSuggested(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TagAppWeight = 0.9
	d := newDetector(nil).WithConfig(cfg)

	candidate := clip.Record{ID: "cand", Text: "candidate", SourceApp: "Xcode", Timestamp: fixedNow}
	history := []clip.Record{
		{ID: "1", Text: "x", SourceApp: "Xcode", ProjectTag: "p", Timestamp: fixedNow.Add(-24 * time.Hour)},
	}

	if got := d.SuggestProjectTags(context.Background(), candidate, history); len(got) != 0 {
		t.Errorf("expected no suggestion from one criterion, got %+v", got)
	}
}

func TestSuggestProjectTags_IgnoresCandidateItself(t *testing.T) {
	d := newDetector(nil)
	candidate := clip.Record{ID: "cand", Text: "x", SourceApp: "Xcode", ProjectTag: "mine", Timestamp: fixedNow}

	if got := d.SuggestProjectTags(context.Background(), candidate, []clip.Record{candidate}); len(got) != 0 {
		t.Errorf("expected the candidate to be skipped, got %+v", got)
	}
}

func TestCalculateContextScores(t *testing.T) {
	d := newDetector(nil)
	items := []clip.Record{
		{ID: "fresh", SourceApp: "Xcode", AccessCount: 5, ProjectTag: "p", Timestamp: fixedNow},
		{ID: "older", SourceApp: "Slack", AccessCount: 50, Timestamp: fixedNow.Add(-10 * time.Hour)},
		{ID: "stale", SourceApp: "Slack", Timestamp: fixedNow.Add(-100 * time.Hour)},
		{ID: "max", SourceApp: "Xcode", AccessCount: 1000, ProjectTag: "p", Timestamp: fixedNow.Add(time.Hour)},
	}

	scores := d.CalculateContextScores(items, StaticApp("Xcode"))
	if len(scores) != 4 {
		t.Fatalf("expected 4 scores, got %v", scores)
	}
	expectScore(t, "fresh", 0.4+0.3+0.1+0.1, scores["fresh"])
	expectScore(t, "older", 0.2+0.2, scores["older"])
	expectScore(t, "stale", 0, scores["stale"])
	expectScore(t, "max", 1, scores["max"])
}

func TestCalculateContextScores_NoForegroundApp(t *testing.T) {
	d := newDetector(nil)
	items := []clip.Record{appRec("1", "Xcode")}

	for name, app := range map[string]AppSignal{"no app": NoApp, "nil signal": nil} {
		scores := d.CalculateContextScores(items, app)
		if scores == nil || len(scores) != 0 {
			t.Errorf("%s: expected empty non-nil scores, got %#v", name, scores)
		}
	}
}
