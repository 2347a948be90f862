package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mfenderov/recall/internal/clip"
)

// --- Clip commands ---

var addCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a clip and index it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		secondary, _ := cmd.Flags().GetString("secondary")
		sourceApp, _ := cmd.Flags().GetString("app")
		tag, _ := cmd.Flags().GetString("tag")

		rec, err := a.store.AddRecord(cmd.Context(), clip.Record{
			Text:          strings.Join(args, " "),
			SecondaryText: secondary,
			SourceApp:     sourceApp,
			ProjectTag:    strings.TrimSpace(tag),
		})
		if err != nil {
			return err
		}

		select {
		case res := <-a.pipeline.OnNewItem(rec):
			if res.Err != nil {
				logger.Warn("Indexing incomplete", "id", rec.ID, "err", res.Err)
			}
			logger.Debug("Indexed clip", "id", rec.ID, "embedded", res.Embedded, "related", len(res.RelatedIDs))
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}

		logger.Info("Added clip", "id", idStyle.Render(rec.ID))
		fmt.Fprintln(cmd.OutOrStdout(), rec.ID)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a clip",
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
		if err := a.store.RecordAccess(cmd.Context(), rec.ID); err != nil {
			logger.Warn("Failed to record access", "id", rec.ID, "err", err)
		}

		out := cmd.OutOrStdout()
		printRecord(out, rec)
		fmt.Fprintln(out)
		fmt.Fprintln(out, textStyle.Render(rec.Text))
		if rec.SecondaryText != "" {
			fmt.Fprintln(out, dimStyle.Render("secondary: ")+rec.SecondaryText)
		}
		if len(rec.RelatedIDs) > 0 {
			fmt.Fprintln(out, dimStyle.Render("related: ")+strings.Join(rec.RelatedIDs, ", "))
		}
		fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("accessed %d times, context score %.2f", rec.AccessCount+1, rec.ContextScore)))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent clips",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		records, err := a.store.RecentRecords(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(records) == 0 {
			logger.Info("No clips found")
			return nil
		}
		printRecords(cmd.OutOrStdout(), records)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a clip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.record(cmd.Context(), args[0]); err != nil {
			return err
		}
		if err := a.store.DeleteRecord(cmd.Context(), args[0]); err != nil {
			return err
		}

		logger.Info("Deleted clip", "id", args[0])
		return nil
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag <id> <tag>",
	Short: "Set a clip's project tag (empty string clears it)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.record(cmd.Context(), args[0]); err != nil {
			return err
		}
		if err := a.store.SetProjectTag(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}

		logger.Info("Tagged clip", "id", args[0], "tag", successStyle.Render(strings.TrimSpace(args[1])))
		return nil
	},
}

func init() {
	addCmd.Flags().String("secondary", "", "secondary text such as OCR output")
	addCmd.Flags().String("app", "", "source application")
	addCmd.Flags().String("tag", "", "project tag")
	listCmd.Flags().Int("limit", 20, "maximum clips to show")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(tagCmd)
}
