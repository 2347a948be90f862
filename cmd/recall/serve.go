package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfenderov/recall/internal/mcp"
	"github.com/mfenderov/recall/internal/metrics"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed every clip that has no stored embedding, then refresh context scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.embeddings.Available() {
			logger.Warn("Embedding provider disabled, only context scores will be refreshed")
		}

		pending, err := a.store.RecordsWithoutEmbedding(cmd.Context())
		if err != nil {
			return err
		}

		done, ok := a.pipeline.Backfill(pending)
		if !ok {
			return errors.New("a backfill is already running")
		}

		select {
		case res := <-done:
			if res.Err != nil {
				return res.Err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Backfill complete")+" "+
				dimStyle.Render(fmt.Sprintf("embedded %d, failed %d, scored %d", res.Embedded, res.Failed, res.ContextScores)))
			return nil
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP tool server on stdio",
	Long: "Run the MCP tool server on stdin/stdout. Clips added through the\n" +
		"add_clip tool are indexed in the background. With --metrics-addr a\n" +
		"Prometheus endpoint is served at /metrics.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		addr, _ := cmd.Flags().GetString("metrics-addr")
		if addr == "" {
			addr = a.cfg.Metrics.Addr
		}
		metrics.Register()
		if addr != "" {
			srv := &http.Server{
				Addr:              addr,
				Handler:           metrics.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				logger.Info("Serving metrics", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Metrics server failed", "err", err)
				}
			}()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()
		}

		handler := mcp.NewHandler(a.store, a.search, a.detector).
			WithPipeline(a.pipeline).
			WithDefaults(a.cfg.Search.DefaultLimit, a.cfg.Search.TimeWindowMinutes)

		logger.Info("MCP server ready", "db", a.store.Path(), "embedder", a.cfg.EmbeddingEnabled())
		return mcp.Serve(mcp.NewServer(handler, Version, logger))
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", "", "address for the Prometheus endpoint, e.g. :9090 (default from config)")

	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(serveCmd)
}
