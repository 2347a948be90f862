package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/mfenderov/recall/internal/clip"
	"github.com/mfenderov/recall/internal/detector"
	"github.com/mfenderov/recall/internal/embedding"
	"github.com/mfenderov/recall/internal/indexer"
	"github.com/mfenderov/recall/internal/mcp"
	"github.com/mfenderov/recall/internal/search"
	"github.com/mfenderov/recall/internal/similarity"
	"github.com/mfenderov/recall/internal/storage"
)

var ctx = context.Background()

// vectorsByText embeds only the texts it knows.
type vectorsByText map[string][]float64

func (v vectorsByText) CreateEmbedding(_ context.Context, text string) ([]float64, error) {
	if vec, ok := v[text]; ok {
		return vec, nil
	}
	return nil, errors.New("unknown text")
}

// newTestHandler creates a handler with a fresh test store
func newTestHandler(t *testing.T, provider embedding.Provider) (*mcp.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sim := similarity.New(embedding.NewStore(provider, nil))
	return mcp.NewHandler(store, search.New(sim), detector.New(sim)), store
}

func addClip(t *testing.T, store *storage.Store, rec clip.Record) clip.Record {
	t.Helper()
	stored, err := store.AddRecord(ctx, rec)
	if err != nil {
		t.Fatalf("AddRecord failed: %v", err)
	}
	return stored
}

func call(t *testing.T, h *mcp.Handler, name, args string) string {
	t.Helper()
	res, err := h.CallTool(ctx, name, json.RawMessage(args))
	if err != nil {
		t.Fatalf("%s failed: %v", name, err)
	}
	return resultText(t, res)
}

func resultText(t *testing.T, res *mcpgo.CallToolResult) string {
	t.Helper()
	for _, c := range res.Content {
		switch tc := c.(type) {
		case mcpgo.TextContent:
			return tc.Text
		case *mcpgo.TextContent:
			return tc.Text
		}
	}
	t.Fatalf("result has no text content: %+v", res.Content)
	return ""
}

func decodeResult[T any](t *testing.T, text string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, text)
	}
	return v
}

// --- Tools() tests ---

func TestHandler_Tools(t *testing.T) {
	handler, _ := newTestHandler(t, nil)

	expected := []string{
		"search_clipboard",
		"related_items",
		"suggest_tags",
		"time_windows",
		"app_patterns",
		"add_clip",
	}

	tools := handler.Tools()
	if len(tools) != len(expected) {
		t.Errorf("expected %d tools, got %d", len(expected), len(tools))
	}

	names := make(map[string]bool)
	for _, tool := range tools {
		names[tool.Name] = true
		if tool.Description == "" {
			t.Errorf("tool %q has no description", tool.Name)
		}
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("expected tool %q not found", name)
		}
	}
}

func TestHandler_CallTool_UnknownTool(t *testing.T) {
	handler, _ := newTestHandler(t, nil)

	_, err := handler.CallTool(ctx, "nonexistent_tool", json.RawMessage(`{}`))
	if err == nil || !strings.Contains(err.Error(), "unknown tool") {
		t.Errorf("expected 'unknown tool' error, got: %v", err)
	}
}

// --- search_clipboard tests ---

func TestHandler_SearchClipboard_Keyword(t *testing.T) {
	handler, store := newTestHandler(t, nil)
	addClip(t, store, clip.Record{ID: "1", Text: "kubectl get pods"})
	addClip(t, store, clip.Record{ID: "2", Text: "shopping list"})

	out := decodeResult[mcp.SearchClipboardResult](t,
		call(t, handler, "search_clipboard", `{"query": "kubectl", "mode": "keyword"}`))

	if out.Mode != clip.ModeKeyword {
		t.Errorf("expected keyword mode, got %q", out.Mode)
	}
	if len(out.Results) != 1 || out.Results[0].ID != "1" {
		t.Fatalf("expected only clip 1, got %+v", out.Results)
	}
	if out.Results[0].MatchKind != clip.MatchKeyword {
		t.Errorf("expected keyword match, got %q", out.Results[0].MatchKind)
	}
}

func TestHandler_SearchClipboard_Limit(t *testing.T) {
	handler, store := newTestHandler(t, nil)
	for _, id := range []string{"a", "b", "c", "d"} {
		addClip(t, store, clip.Record{ID: id, Text: "docker compose up " + id})
	}

	out := decodeResult[mcp.SearchClipboardResult](t,
		call(t, handler, "search_clipboard", `{"query": "docker", "limit": 2}`))

	if len(out.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(out.Results))
	}
	if out.Mode != clip.ModeHybrid {
		t.Errorf("expected hybrid default, got %q", out.Mode)
	}
}

func TestHandler_SearchClipboard_Semantic(t *testing.T) {
	provider := vectorsByText{
		"container orchestration": {1, 0},
		"kubectl get pods":        {0.9, 0.1},
		"banana bread recipe":     {0, 1},
	}
	handler, store := newTestHandler(t, provider)
	addClip(t, store, clip.Record{ID: "k8s", Text: "kubectl get pods"})
	addClip(t, store, clip.Record{ID: "food", Text: "banana bread recipe"})

	out := decodeResult[mcp.SearchClipboardResult](t,
		call(t, handler, "search_clipboard", `{"query": "container orchestration", "mode": "semantic"}`))

	if len(out.Results) == 0 || out.Results[0].ID != "k8s" {
		t.Fatalf("expected k8s first, got %+v", out.Results)
	}
}

func TestHandler_SearchClipboard_InvalidParams(t *testing.T) {
	handler, _ := newTestHandler(t, nil)

	tests := []struct {
		name string
		args string
	}{
		{"unknown mode", `{"query": "x", "mode": "fuzzy"}`},
		{"limit too large", `{"query": "x", "limit": 1000}`},
		{"negative limit", `{"query": "x", "limit": -1}`},
		{"malformed json", `{"query": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.CallTool(ctx, "search_clipboard", json.RawMessage(tt.args))
			if !errors.Is(err, mcp.ErrInvalidParams) {
				t.Errorf("expected ErrInvalidParams, got %v", err)
			}
		})
	}
}

func TestHandler_SearchClipboard_BlankQuery(t *testing.T) {
	handler, store := newTestHandler(t, nil)
	addClip(t, store, clip.Record{ID: "1", Text: "kubectl get pods"})

	for _, args := range []string{
		`{}`,
		`{"query": "   ", "mode": "keyword"}`,
		`{"query": "", "mode": "semantic"}`,
		`{"query": "\t", "mode": "hybrid"}`,
	} {
		out := decodeResult[mcp.SearchClipboardResult](t, call(t, handler, "search_clipboard", args))
		if out.Results == nil || len(out.Results) != 0 {
			t.Errorf("%s: expected empty results, got %+v", args, out.Results)
		}
	}
}

// --- related_items tests ---

func TestHandler_RelatedItems(t *testing.T) {
	handler, store := newTestHandler(t, nil)
	addClip(t, store, clip.Record{ID: "a", Text: "first"})
	addClip(t, store, clip.Record{ID: "b", Text: "second"})
	addClip(t, store, clip.Record{ID: "main", Text: "main clip"})
	if err := store.SaveRelatedIDs(ctx, "main", []string{"b", "gone", "a"}); err != nil {
		t.Fatalf("SaveRelatedIDs failed: %v", err)
	}

	out := decodeResult[mcp.RelatedItemsResult](t,
		call(t, handler, "related_items", `{"id": "main"}`))

	if len(out.Related) != 2 {
		t.Fatalf("expected 2 related clips, got %+v", out.Related)
	}
	if out.Related[0].ID != "b" || out.Related[1].ID != "a" {
		t.Errorf("expected stored order [b a], got [%s %s]", out.Related[0].ID, out.Related[1].ID)
	}
}

func TestHandler_RelatedItems_NotFound(t *testing.T) {
	handler, _ := newTestHandler(t, nil)

	_, err := handler.CallTool(ctx, "related_items", json.RawMessage(`{"id": "missing"}`))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}

	_, err = handler.CallTool(ctx, "related_items", json.RawMessage(`{}`))
	if !errors.Is(err, mcp.ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams for missing id, got %v", err)
	}
}

// --- suggest_tags tests ---

func TestHandler_SuggestTags(t *testing.T) {
	handler, store := newTestHandler(t, nil)
	now := time.Now()
	for i, id := range []string{"t1", "t2"} {
		addClip(t, store, clip.Record{
			ID: id, Text: "tagged " + id, SourceApp: "Xcode", ProjectTag: "ios-app",
			Timestamp: now.Add(-time.Duration(i+1) * time.Minute),
		})
	}
	addClip(t, store, clip.Record{ID: "new", Text: "untagged", SourceApp: "Xcode", Timestamp: now})

	out := decodeResult[mcp.SuggestTagsResult](t,
		call(t, handler, "suggest_tags", `{"id": "new"}`))

	if len(out.Suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %+v", out.Suggestions)
	}
	if out.Suggestions[0].Tag != "ios-app" {
		t.Errorf("expected ios-app, got %q", out.Suggestions[0].Tag)
	}
	if out.Suggestions[0].Confidence <= 0.5 {
		t.Errorf("expected confidence above 0.5, got %f", out.Suggestions[0].Confidence)
	}
}

func TestHandler_SuggestTags_NoHistory(t *testing.T) {
	handler, store := newTestHandler(t, nil)
	addClip(t, store, clip.Record{ID: "only", Text: "alone"})

	text := call(t, handler, "suggest_tags", `{"id": "only"}`)
	if !strings.Contains(text, `"suggestions": []`) {
		t.Errorf("expected empty suggestions array, got %s", text)
	}
}

// --- time_windows tests ---

func TestHandler_TimeWindows(t *testing.T) {
	handler, store := newTestHandler(t, nil)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	addClip(t, store, clip.Record{ID: "m1", Text: "a", SourceApp: "Mail", Timestamp: base})
	addClip(t, store, clip.Record{ID: "m2", Text: "b", SourceApp: "Safari", Timestamp: base.Add(10 * time.Minute)})
	addClip(t, store, clip.Record{ID: "e1", Text: "c", SourceApp: "Terminal", Timestamp: base.Add(3 * time.Hour)})

	windows := decodeResult[[]mcp.TimeWindow](t,
		call(t, handler, "time_windows", `{"minutes": 30}`))

	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if got := strings.Join(windows[0].IDs, ","); got != "m1,m2" {
		t.Errorf("expected first window m1,m2, got %s", got)
	}
	if got := strings.Join(windows[0].Apps, ","); got != "Mail,Safari" {
		t.Errorf("expected apps Mail,Safari, got %s", got)
	}
	if !windows[0].Start.Equal(base) || !windows[0].End.Equal(base.Add(10*time.Minute)) {
		t.Errorf("unexpected bounds %v - %v", windows[0].Start, windows[0].End)
	}
}

func TestHandler_TimeWindows_Empty(t *testing.T) {
	handler, _ := newTestHandler(t, nil)

	windows := decodeResult[[]mcp.TimeWindow](t, call(t, handler, "time_windows", `{}`))
	if len(windows) != 0 {
		t.Errorf("expected no windows, got %d", len(windows))
	}

	_, err := handler.CallTool(ctx, "time_windows", json.RawMessage(`{"minutes": -5}`))
	if !errors.Is(err, mcp.ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}

// --- app_patterns tests ---

func TestHandler_AppPatterns(t *testing.T) {
	handler, store := newTestHandler(t, nil)
	base := time.Now().Add(-time.Hour)
	apps := []string{"Terminal", "Browser", "Terminal", "Browser", "Terminal", "Browser"}
	for i, app := range apps {
		addClip(t, store, clip.Record{
			Text: "clip", SourceApp: app, Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	patterns := decodeResult[[]mcp.AppPattern](t, call(t, handler, "app_patterns", ``))

	if len(patterns) == 0 {
		t.Fatal("expected at least one pattern")
	}
	for i := 1; i < len(patterns); i++ {
		if patterns[i].Count > patterns[i-1].Count {
			t.Errorf("patterns not sorted by count: %+v", patterns)
		}
	}
	for _, p := range patterns {
		if !strings.Contains(p.Pattern, detector.PatternSeparator) {
			t.Errorf("expected a multi-app pattern, got %q", p.Pattern)
		}
		if p.Count != len(p.IDs) {
			t.Errorf("count %d does not match %d ids", p.Count, len(p.IDs))
		}
	}
}

// --- add_clip tests ---

func TestHandler_AddClip(t *testing.T) {
	handler, store := newTestHandler(t, nil)

	out := decodeResult[mcp.AddClipResult](t,
		call(t, handler, "add_clip", `{"text": "git rebase -i HEAD~3", "app": "Terminal"}`))

	if out.ID == "" {
		t.Fatal("expected generated id")
	}
	rec, err := store.GetRecord(ctx, out.ID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if rec.Text != "git rebase -i HEAD~3" || rec.SourceApp != "Terminal" {
		t.Errorf("unexpected stored record %+v", rec)
	}
}

func TestHandler_AddClip_IndexesWithPipeline(t *testing.T) {
	provider := vectorsByText{
		"go test ./...": {1, 0},
		"go vet ./...":  {0.98, 0.1},
	}
	handler, store := newTestHandler(t, provider)
	addClip(t, store, clip.Record{ID: "vet", Text: "go vet ./...", SourceApp: "Terminal"})

	sim := similarity.New(embedding.NewStore(provider, nil))
	pipeline := indexer.New(store, sim, detector.New(sim), detector.StaticApp("Terminal"), nil, indexer.DefaultConfig())
	t.Cleanup(func() { pipeline.Close() })
	handler.WithPipeline(pipeline)

	out := decodeResult[mcp.AddClipResult](t,
		call(t, handler, "add_clip", `{"text": "go test ./...", "app": "Terminal"}`))

	if !out.Embedded {
		t.Errorf("expected clip to be embedded, warning: %s", out.Warning)
	}
	if len(out.RelatedIDs) != 1 || out.RelatedIDs[0] != "vet" {
		t.Errorf("expected related [vet], got %v", out.RelatedIDs)
	}
	if out.ContextScores != 2 {
		t.Errorf("expected 2 context scores, got %d", out.ContextScores)
	}

	rec, err := store.GetRecord(ctx, out.ID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if !rec.HasEmbedding() {
		t.Error("expected persisted embedding")
	}
}

func TestHandler_AddClip_Empty(t *testing.T) {
	handler, _ := newTestHandler(t, nil)

	_, err := handler.CallTool(ctx, "add_clip", json.RawMessage(`{"text": "  "}`))
	if !errors.Is(err, mcp.ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}

// --- server wiring ---

func TestNewServer_ListsAndCallsTools(t *testing.T) {
	handler, store := newTestHandler(t, nil)
	addClip(t, store, clip.Record{ID: "1", Text: "ssh deploy@prod"})
	s := mcp.NewServer(handler, "test", nil)

	list := s.HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, _ := json.Marshal(list)
	if !strings.Contains(string(data), "search_clipboard") {
		t.Errorf("tools/list did not include search_clipboard: %s", data)
	}

	ok := s.HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/call",
		"params":{"name":"search_clipboard","arguments":{"query":"deploy","mode":"keyword"}}}`))
	data, _ = json.Marshal(ok)
	if !strings.Contains(string(data), `\"id\": \"1\"`) {
		t.Errorf("expected clip 1 in result: %s", data)
	}

	bad := s.HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":3,"method":"tools/call",
		"params":{"name":"search_clipboard","arguments":{"query":"deploy","mode":"fuzzy"}}}`))
	data, _ = json.Marshal(bad)
	if !strings.Contains(string(data), `"isError":true`) {
		t.Errorf("expected tool error for unknown mode: %s", data)
	}
}
