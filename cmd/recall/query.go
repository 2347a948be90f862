package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mfenderov/recall/internal/clip"
	"github.com/mfenderov/recall/internal/detector"
)

// --- Search commands ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search clips by keyword, meaning, or both",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modeFlag, _ := cmd.Flags().GetString("mode")
		mode, err := clip.ParseSearchMode(modeFlag)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		if format != "default" && format != "json" {
			return fmt.Errorf("unknown format %q (want default or json)", format)
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			limit = a.cfg.Search.DefaultLimit
		}

		records, err := a.store.AllRecords(cmd.Context())
		if err != nil {
			return err
		}

		query := strings.Join(args, " ")
		results := a.search.Search(cmd.Context(), query, records, mode)
		results = results[:min(len(results), limit)]

		out := cmd.OutOrStdout()
		if format == "json" {
			return writeJSON(out, nonNilResults(results))
		}

		if len(results) == 0 {
			logger.Info("No results found", "query", query)
			return nil
		}

		fmt.Fprintln(out, titleStyle.Render("Search results for: ")+query)
		for _, r := range results {
			fmt.Fprintf(out, "%s %s %s\n",
				idStyle.Render(r.ID),
				successStyle.Render(fmt.Sprintf("%.3f", r.Score)),
				dimStyle.Render(string(r.MatchKind)))
			if r.Snippet != "" {
				fmt.Fprintln(out, "  "+textStyle.Render(preview(r.Snippet, 120)))
			}
		}
		return nil
	},
}

var similarCmd = &cobra.Command{
	Use:   "similar <id>",
	Short: "Find clips similar to a clip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		target, err := a.record(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !a.embeddings.Available() {
			logger.Warn("Embedding provider disabled, only stored embeddings are compared")
		}

		threshold, _ := cmd.Flags().GetFloat64("threshold")
		if !cmd.Flags().Changed("threshold") {
			threshold = a.cfg.Search.SimilarThreshold
		}
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			limit = a.cfg.Search.DefaultLimit
		}

		records, err := a.store.AllRecords(cmd.Context())
		if err != nil {
			return err
		}

		matches := a.sim.FindSimilar(cmd.Context(), target, records, threshold)
		if len(matches) == 0 {
			logger.Info("No similar clips found", "id", target.ID, "threshold", threshold)
			return nil
		}

		out := cmd.OutOrStdout()
		for _, m := range matches[:min(len(matches), limit)] {
			fmt.Fprint(out, successStyle.Render(fmt.Sprintf("%.3f ", m.Score)))
			printRecord(out, m.Record)
		}
		return nil
	},
}

var relatedCmd = &cobra.Command{
	Use:   "related <id>",
	Short: "Show the related clips computed when a clip was indexed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.record(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		related, err := a.store.GetRecords(cmd.Context(), rec.RelatedIDs)
		if err != nil {
			return err
		}

		if len(related) == 0 {
			logger.Info("No related clips", "id", rec.ID)
			return nil
		}
		printRecords(cmd.OutOrStdout(), related)
		return nil
	},
}

var suggestTagsCmd = &cobra.Command{
	Use:   "suggest-tags <id>",
	Short: "Suggest project tags for a clip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.record(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		history, err := a.store.AllRecords(cmd.Context())
		if err != nil {
			return err
		}

		suggestions := a.detector.SuggestProjectTags(cmd.Context(), rec, history)
		if len(suggestions) == 0 {
			logger.Info("No tag suggestions", "id", rec.ID)
			return nil
		}

		out := cmd.OutOrStdout()
		for _, s := range suggestions {
			fmt.Fprintln(out, successStyle.Render("#"+s.Tag)+" "+dimStyle.Render(fmt.Sprintf("%.0f%%", s.Confidence*100)))
		}
		return nil
	},
}

// --- Pattern commands ---

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "Group clips into working sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		minutes, _ := cmd.Flags().GetInt("minutes")
		if minutes <= 0 {
			minutes = a.cfg.Search.TimeWindowMinutes
		}

		records, err := a.store.AllRecords(cmd.Context())
		if err != nil {
			return err
		}

		windows := a.detector.DetectTimeWindows(records, minutes)
		if len(windows) == 0 {
			logger.Info("No clips found")
			return nil
		}

		out := cmd.OutOrStdout()
		for i, w := range windows {
			first, last := w[0].Timestamp, w[len(w)-1].Timestamp
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Window %d", i+1))+" "+
				dimStyle.Render(first.Format("2006-01-02 15:04")+" - "+last.Format("15:04")+", "+itoa(len(w))+" clips"))
			printApps(out, w)
		}
		return nil
	},
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Show applications repeatedly copied from together",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.store.AllRecords(cmd.Context())
		if err != nil {
			return err
		}

		patterns := a.detector.DetectAppPatterns(records)
		if len(patterns) == 0 {
			logger.Info("No app patterns found")
			return nil
		}

		keys := make([]string, 0, len(patterns))
		for k := range patterns {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(x, y string) int {
			if c := cmp.Compare(len(patterns[y]), len(patterns[x])); c != 0 {
				return c
			}
			return cmp.Compare(x, y)
		})

		out := cmd.OutOrStdout()
		for _, k := range keys {
			fmt.Fprintln(out, appStyle.Render(k)+" "+dimStyle.Render(itoa(len(patterns[k]))+" clips"))
		}
		return nil
	},
}

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Group clips with similar content",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		threshold, _ := cmd.Flags().GetFloat64("threshold")
		if !cmd.Flags().Changed("threshold") {
			threshold = a.cfg.Search.ClusterThreshold
		}

		records, err := a.store.AllRecords(cmd.Context())
		if err != nil {
			return err
		}

		clusters := a.detector.DetectContentClusters(cmd.Context(), records, threshold)
		if len(clusters) == 0 {
			logger.Info("No clusters found", "threshold", threshold)
			return nil
		}

		out := cmd.OutOrStdout()
		for i, c := range clusters {
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Cluster %d", i+1))+" "+dimStyle.Render(itoa(len(c))+" clips"))
			for _, rec := range c {
				fmt.Fprintln(out, "  "+idStyle.Render(rec.ID)+" "+textStyle.Render(preview(rec.Text, 80)))
			}
		}
		return nil
	},
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Recompute context scores for the foreground app and show the top clips",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if _, ok := detector.StaticApp(foregroundApp).CurrentApp(); !ok {
			logger.Warn("No foreground app given, scores are unchanged (use --foreground)")
		}

		n, err := a.pipeline.RefreshContextScores(cmd.Context())
		if err != nil {
			return err
		}
		logger.Debug("Context scores refreshed", "count", n)

		records, err := a.store.AllRecords(cmd.Context())
		if err != nil {
			return err
		}
		slices.SortStableFunc(records, func(x, y clip.Record) int {
			return cmp.Compare(y.ContextScore, x.ContextScore)
		})

		limit, _ := cmd.Flags().GetInt("limit")
		out := cmd.OutOrStdout()
		for _, rec := range records[:min(len(records), limit)] {
			fmt.Fprint(out, successStyle.Render(fmt.Sprintf("%.2f ", rec.ContextScore)))
			printRecord(out, rec)
		}
		return nil
	},
}

func printApps(out io.Writer, records []clip.Record) {
	var apps []string
	for _, r := range records {
		if r.SourceApp != "" && !slices.Contains(apps, r.SourceApp) {
			apps = append(apps, r.SourceApp)
		}
	}
	if len(apps) > 0 {
		fmt.Fprintln(out, "  "+appStyle.Render(strings.Join(apps, ", ")))
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNilResults(results []clip.SearchResult) []clip.SearchResult {
	if results == nil {
		return []clip.SearchResult{}
	}
	return results
}

func init() {
	searchCmd.Flags().String("mode", "hybrid", "search mode: keyword, semantic or hybrid")
	searchCmd.Flags().Int("limit", 0, "maximum results (default from config)")
	searchCmd.Flags().String("format", "default", "output format: default or json")
	similarCmd.Flags().Float64("threshold", 0, "minimum cosine similarity (default from config)")
	similarCmd.Flags().Int("limit", 0, "maximum results (default from config)")
	windowsCmd.Flags().Int("minutes", 0, "window length in minutes (default from config)")
	clustersCmd.Flags().Float64("threshold", 0, "minimum cosine similarity (default from config)")
	contextCmd.Flags().Int("limit", 10, "clips to show")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(similarCmd)
	rootCmd.AddCommand(relatedCmd)
	rootCmd.AddCommand(suggestTagsCmd)
	rootCmd.AddCommand(windowsCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(clustersCmd)
	rootCmd.AddCommand(contextCmd)
}
