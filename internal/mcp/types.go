package mcp

import (
	"time"

	"github.com/mfenderov/recall/internal/clip"
)

// Tool input types

type SearchClipboardInput struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type RecordIDInput struct {
	ID string `json:"id"`
}

type TimeWindowsInput struct {
	Minutes int `json:"minutes,omitempty"`
}

type AddClipInput struct {
	Text      string `json:"text"`
	App       string `json:"app,omitempty"`
	Secondary string `json:"secondary,omitempty"`
}

// Tool output types

type ClipSummary struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	SourceApp  string    `json:"sourceApp,omitempty"`
	ProjectTag string    `json:"projectTag,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type SearchClipboardResult struct {
	Query   string              `json:"query"`
	Mode    clip.SearchMode     `json:"mode"`
	Results []clip.SearchResult `json:"results"`
}

type RelatedItemsResult struct {
	ID      string        `json:"id"`
	Related []ClipSummary `json:"related"`
}

type SuggestTagsResult struct {
	ID          string               `json:"id"`
	Suggestions []clip.TagSuggestion `json:"suggestions"`
}

type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Apps  []string  `json:"apps"`
	IDs   []string  `json:"ids"`
}

type AppPattern struct {
	Pattern string   `json:"pattern"`
	Count   int      `json:"count"`
	IDs     []string `json:"ids"`
}

type AddClipResult struct {
	ID            string   `json:"id"`
	Embedded      bool     `json:"embedded"`
	RelatedIDs    []string `json:"relatedIds"`
	ContextScores int      `json:"contextScores"`
	Warning       string   `json:"warning,omitempty"`
}

// summaryChars bounds the text echoed back for each clip.
const summaryChars = 200

func summarize(rec clip.Record) ClipSummary {
	text := []rune(rec.Text)
	if len(text) > summaryChars {
		text = append(text[:summaryChars], '…')
	}
	return ClipSummary{
		ID:         rec.ID,
		Text:       string(text),
		SourceApp:  rec.SourceApp,
		ProjectTag: rec.ProjectTag,
		Timestamp:  rec.Timestamp,
	}
}
