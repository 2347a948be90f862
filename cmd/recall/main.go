package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mfenderov/recall/internal/clip"
	"github.com/mfenderov/recall/internal/config"
	"github.com/mfenderov/recall/internal/detector"
	"github.com/mfenderov/recall/internal/embedding"
	"github.com/mfenderov/recall/internal/indexer"
	"github.com/mfenderov/recall/internal/search"
	"github.com/mfenderov/recall/internal/similarity"
	"github.com/mfenderov/recall/internal/storage"
)

var (
	cfgPath       string
	dbPath        string
	foregroundApp string
	Version       = "dev"
	logger        = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: false,
	})
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	appStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("219"))

	textStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("78"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Semantic memory for your clipboard history",
	Long: titleStyle.Render("recall") + " - a local, SQLite-based clipboard memory\n\n" +
		"Stores clips, embeds them through an OpenAI-compatible endpoint,\n" +
		"and finds them again by keyword, meaning, time and application.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default ~/.config/recall/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to database file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&foregroundApp, "foreground", "", "application currently in focus, used for context scores")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

// app bundles the store and the engines built on it.
type app struct {
	cfg        config.Config
	store      *storage.Store
	embeddings *embedding.Store
	sim        *similarity.Engine
	search     *search.Engine
	detector   *detector.Detector
	pipeline   *indexer.Pipeline
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	logger.SetLevel(cfg.LogLevel())
	return cfg, nil
}

func getStore(cfg config.Config) (*storage.Store, error) {
	dir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return storage.NewStore(cfg.Database.Path)
}

func newProvider(cfg config.Config) embedding.Provider {
	if !cfg.EmbeddingEnabled() {
		return nil
	}
	p := embedding.NewOpenAIProvider(cfg.Embedding.URL, cfg.Embedding.APIKey)
	p.SetModel(cfg.Embedding.Model)
	return p
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := getStore(cfg)
	if err != nil {
		return nil, err
	}

	embeddings := embedding.NewStore(newProvider(cfg), logger).
		WithCache(embedding.NewCache(cfg.Embedding.CacheSize))
	sim := similarity.New(embeddings)
	det := detector.New(sim)

	pipeline := indexer.New(store, sim, det, detector.StaticApp(foregroundApp), logger, indexer.Config{
		RelatedLimit:     cfg.Indexing.RelatedLimit,
		RelatedWindow:    cfg.Indexing.RelatedWindow,
		RelatedThreshold: cfg.Indexing.RelatedThreshold,
		ContextWindow:    cfg.Indexing.ContextWindow,
		QueueSize:        cfg.Indexing.QueueSize,
		Model:            cfg.Embedding.Model,
	})

	return &app{
		cfg:        cfg,
		store:      store,
		embeddings: embeddings,
		sim:        sim,
		search:     search.New(sim),
		detector:   det,
		pipeline:   pipeline,
	}, nil
}

// Close drains the pipeline before closing the database it writes to.
func (a *app) Close() error {
	return errors.Join(a.pipeline.Close(), a.store.Close())
}

// record loads a clip, exiting when it does not exist.
func (a *app) record(ctx context.Context, id string) (clip.Record, error) {
	rec, err := a.store.GetRecord(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Error("Clip not found", "id", id)
		os.Exit(1)
	}
	return rec, err
}

// --- Init command ---

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := getStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		version, err := store.SchemaVersion(cmd.Context())
		if err != nil {
			return err
		}

		logger.Info("Database initialized", "path", store.Path(), "schema", version)
		return nil
	},
}

// --- Stats command ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		version, err := a.store.SchemaVersion(cmd.Context())
		if err != nil {
			return err
		}

		embedder := dimStyle.Render("disabled")
		if a.cfg.EmbeddingEnabled() {
			embedder = a.cfg.Embedding.Model + dimStyle.Render(" @ "+a.cfg.Embedding.URL)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, titleStyle.Render("Recall Statistics"))
		fmt.Fprintln(out, "  Clips:      "+successStyle.Render(itoa(stats.Records)))
		fmt.Fprintln(out, "  Embedded:   "+successStyle.Render(itoa(stats.WithEmbedding)))
		fmt.Fprintln(out, "  Tagged:     "+successStyle.Render(itoa(stats.Tagged)))
		fmt.Fprintln(out, "  Apps:       "+successStyle.Render(itoa(stats.Apps)))
		fmt.Fprintln(out, "  Dimensions: "+successStyle.Render(itoa(stats.Dimensions)))
		fmt.Fprintln(out, "  Schema:     "+dimStyle.Render("v"+strconv.FormatInt(version, 10)))
		fmt.Fprintln(out, "  Embedder:   "+embedder)
		fmt.Fprintln(out, "  Database:   "+dimStyle.Render(a.store.Path()))
		return nil
	},
}

// --- Version command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("recall")+" "+Version)
	},
}

// --- Output helpers ---

func printRecord(out io.Writer, rec clip.Record) {
	line := idStyle.Render(rec.ID)
	if rec.SourceApp != "" {
		line += " " + appStyle.Render("["+rec.SourceApp+"]")
	}
	if rec.ProjectTag != "" {
		line += " " + successStyle.Render("#"+rec.ProjectTag)
	}
	line += " " + dimStyle.Render(ago(rec.Timestamp))
	fmt.Fprintln(out, line)
	fmt.Fprintln(out, "  "+textStyle.Render(preview(rec.Text, 120)))
}

func printRecords(out io.Writer, records []clip.Record) {
	for _, rec := range records {
		printRecord(out, rec)
	}
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func ago(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return itoa(int(d.Minutes())) + "m ago"
	case d < 48*time.Hour:
		return itoa(int(d.Hours())) + "h ago"
	default:
		return t.Format("2006-01-02")
	}
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
