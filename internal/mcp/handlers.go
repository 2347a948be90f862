package mcp

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mfenderov/recall/internal/clip"
	"github.com/mfenderov/recall/internal/detector"
	"github.com/mfenderov/recall/internal/indexer"
	"github.com/mfenderov/recall/internal/search"
	"github.com/mfenderov/recall/internal/storage"
)

// ErrInvalidParams marks a tool call with missing or malformed arguments.
var ErrInvalidParams = errors.New("invalid arguments")

const (
	defaultLimit       = 10
	maxLimit           = 100
	defaultWindowMins  = 30
	maxWindowMinutes   = 24 * 60
	addClipWaitTimeout = 30 * time.Second
)

// Handler processes MCP tool calls against the clipboard store.
type Handler struct {
	store    *storage.Store
	search   *search.Engine
	detector *detector.Detector
	pipeline *indexer.Pipeline // Optional: indexes clips added through add_clip

	limit   int
	minutes int
}

// NewHandler creates a handler over store using the given engines.
func NewHandler(store *storage.Store, engine *search.Engine, det *detector.Detector) *Handler {
	return &Handler{
		store:    store,
		search:   engine,
		detector: det,
		limit:    defaultLimit,
		minutes:  defaultWindowMins,
	}
}

// WithPipeline indexes every clip added through add_clip.
func (h *Handler) WithPipeline(p *indexer.Pipeline) *Handler {
	h.pipeline = p
	return h
}

// WithDefaults overrides the result limit and time window used when a call
// omits them. Non-positive values are ignored.
func (h *Handler) WithDefaults(limit, windowMinutes int) *Handler {
	if limit > 0 {
		h.limit = limit
	}
	if windowMinutes > 0 {
		h.minutes = windowMinutes
	}
	return h
}

// Tools returns the list of available clipboard tools.
func (h *Handler) Tools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool("search_clipboard",
			mcp.WithDescription("Search clipboard history by keyword, meaning, or both"),
			mcp.WithString("query", mcp.Required(), mcp.Description("Text to search for")),
			mcp.WithString("mode",
				mcp.Description("Search strategy (default hybrid)"),
				mcp.Enum(string(clip.ModeKeyword), string(clip.ModeSemantic), string(clip.ModeHybrid)),
			),
			mcp.WithNumber("limit", mcp.Description("Maximum results to return (1-100)"), mcp.Min(1), mcp.Max(maxLimit)),
		),
		mcp.NewTool("related_items",
			mcp.WithDescription("List the clips most similar to a clip, as computed when it was indexed"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Clip id")),
		),
		mcp.NewTool("suggest_tags",
			mcp.WithDescription("Suggest project tags for a clip based on tagged history"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Clip id")),
		),
		mcp.NewTool("time_windows",
			mcp.WithDescription("Group clipboard history into working sessions"),
			mcp.WithNumber("minutes", mcp.Description("Window length in minutes (default 30)"), mcp.Min(1), mcp.Max(maxWindowMinutes)),
		),
		mcp.NewTool("app_patterns",
			mcp.WithDescription("Find applications that are repeatedly copied from together"),
		),
		mcp.NewTool("add_clip",
			mcp.WithDescription("Add a clip to the history and index it"),
			mcp.WithString("text", mcp.Required(), mcp.Description("Clip text")),
			mcp.WithString("app", mcp.Description("Source application")),
			mcp.WithString("secondary", mcp.Description("Secondary text such as OCR output")),
		),
	}
}

// CallTool executes a tool by name with the given arguments.
func (h *Handler) CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	switch name {
	case "search_clipboard":
		return h.searchClipboard(ctx, args)
	case "related_items":
		return h.relatedItems(ctx, args)
	case "suggest_tags":
		return h.suggestTags(ctx, args)
	case "time_windows":
		return h.timeWindows(ctx, args)
	case "app_patterns":
		return h.appPatterns(ctx)
	case "add_clip":
		return h.addClip(ctx, args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func decode(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

func (h *Handler) searchClipboard(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	var input SearchClipboardInput
	if err := decode(args, &input); err != nil {
		return nil, err
	}
	mode, err := clip.ParseSearchMode(input.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	limit := input.Limit
	switch {
	case limit == 0:
		limit = h.limit
	case limit < 0 || limit > maxLimit:
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidParams, maxLimit)
	}

	records, err := h.store.AllRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	results := h.search.Search(ctx, input.Query, records, mode)
	results = results[:min(len(results), limit)]
	if results == nil {
		results = []clip.SearchResult{}
	}

	return jsonResult(SearchClipboardResult{Query: input.Query, Mode: mode, Results: results})
}

func (h *Handler) relatedItems(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	rec, err := h.lookup(ctx, args)
	if err != nil {
		return nil, err
	}

	related, err := h.store.GetRecords(ctx, rec.RelatedIDs)
	if err != nil {
		return nil, fmt.Errorf("load related records: %w", err)
	}

	out := RelatedItemsResult{ID: rec.ID, Related: make([]ClipSummary, 0, len(related))}
	for _, r := range related {
		out.Related = append(out.Related, summarize(r))
	}
	return jsonResult(out)
}

func (h *Handler) suggestTags(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	rec, err := h.lookup(ctx, args)
	if err != nil {
		return nil, err
	}

	history, err := h.store.AllRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	return jsonResult(SuggestTagsResult{
		ID:          rec.ID,
		Suggestions: h.detector.SuggestProjectTags(ctx, rec, history),
	})
}

func (h *Handler) timeWindows(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	var input TimeWindowsInput
	if err := decode(args, &input); err != nil {
		return nil, err
	}
	minutes := input.Minutes
	switch {
	case minutes == 0:
		minutes = h.minutes
	case minutes < 0 || minutes > maxWindowMinutes:
		return nil, fmt.Errorf("%w: minutes must be between 1 and %d", ErrInvalidParams, maxWindowMinutes)
	}

	records, err := h.store.AllRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	windows := h.detector.DetectTimeWindows(records, minutes)
	out := make([]TimeWindow, 0, len(windows))
	for _, w := range windows {
		tw := TimeWindow{Start: w[0].Timestamp, End: w[len(w)-1].Timestamp}
		for _, r := range w {
			tw.IDs = append(tw.IDs, r.ID)
			if r.SourceApp != "" && !slices.Contains(tw.Apps, r.SourceApp) {
				tw.Apps = append(tw.Apps, r.SourceApp)
			}
		}
		out = append(out, tw)
	}
	return jsonResult(out)
}

func (h *Handler) appPatterns(ctx context.Context) (*mcp.CallToolResult, error) {
	records, err := h.store.AllRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	patterns := h.detector.DetectAppPatterns(records)
	out := make([]AppPattern, 0, len(patterns))
	for pattern, members := range patterns {
		p := AppPattern{Pattern: pattern, Count: len(members)}
		for _, r := range members {
			p.IDs = append(p.IDs, r.ID)
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b AppPattern) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Pattern, b.Pattern)
	})
	return jsonResult(out)
}

func (h *Handler) addClip(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error) {
	var input AddClipInput
	if err := decode(args, &input); err != nil {
		return nil, err
	}

	rec, err := h.store.AddRecord(ctx, clip.Record{
		Text:          input.Text,
		SecondaryText: input.Secondary,
		SourceApp:     input.App,
	})
	if errors.Is(err, storage.ErrEmptyRecord) {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidParams)
	}
	if err != nil {
		return nil, fmt.Errorf("add clip: %w", err)
	}

	out := AddClipResult{ID: rec.ID, RelatedIDs: []string{}}
	if h.pipeline == nil {
		return jsonResult(out)
	}

	wait, cancel := context.WithTimeout(ctx, addClipWaitTimeout)
	defer cancel()

	select {
	case res := <-h.pipeline.OnNewItem(rec):
		out.Embedded = res.Embedded
		out.ContextScores = res.ContextScores
		if res.RelatedIDs != nil {
			out.RelatedIDs = res.RelatedIDs
		}
		if res.Err != nil {
			out.Warning = res.Err.Error()
		}
	case <-wait.Done():
		out.Warning = "indexing still running"
	}
	return jsonResult(out)
}

func (h *Handler) lookup(ctx context.Context, args json.RawMessage) (clip.Record, error) {
	var input RecordIDInput
	if err := decode(args, &input); err != nil {
		return clip.Record{}, err
	}
	if input.ID == "" {
		return clip.Record{}, fmt.Errorf("%w: id is required", ErrInvalidParams)
	}

	rec, err := h.store.GetRecord(ctx, input.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return clip.Record{}, fmt.Errorf("clip not found: %s", input.ID)
	}
	if err != nil {
		return clip.Record{}, fmt.Errorf("load clip: %w", err)
	}
	return rec, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
