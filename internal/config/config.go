// Package config loads recall's settings from an optional YAML file, a .env
// file and RECALL_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// DisabledURL as the embedder URL turns the embedding provider off.
const DisabledURL = "disabled"

// Config holds recall's settings.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// DatabaseConfig holds the record database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EmbeddingConfig holds the OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	URL       string `yaml:"url"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	Disabled  bool   `yaml:"disabled"`
	CacheSize int    `yaml:"cache_size"`
}

// IndexingConfig holds the background pipeline's sizes and thresholds.
type IndexingConfig struct {
	RelatedLimit     int     `yaml:"related_limit"`
	RelatedWindow    int     `yaml:"related_window"`
	RelatedThreshold float64 `yaml:"related_threshold"`
	ContextWindow    int     `yaml:"context_window"`
	QueueSize        int     `yaml:"queue_size"`
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	DefaultLimit      int     `yaml:"default_limit"`
	SimilarThreshold  float64 `yaml:"similar_threshold"`
	ClusterThreshold  float64 `yaml:"cluster_threshold"`
	TimeWindowMinutes int     `yaml:"time_window_minutes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// MetricsConfig holds the Prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultPath returns $HOME/.config/recall/config.yaml.
func DefaultPath() string {
	return filepath.Join(homeDir(), ".config", "recall", "config.yaml")
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// Load reads the YAML file at path, then .env, then environment overrides.
// An empty path means DefaultPath, which may be absent; an explicit path
// must exist.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	var cfg Config
	data, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		// Substitute env variables of the form ${VAR}
		data = expandEnvVars(data)
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from RECALL_* variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("RECALL_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("RECALL_EMBEDDER_URL"); v != "" {
		if strings.EqualFold(v, DisabledURL) {
			c.Embedding.Disabled = true
		} else {
			c.Embedding.URL = v
			c.Embedding.Disabled = false
		}
	}
	if v := os.Getenv("RECALL_EMBEDDER_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("RECALL_EMBEDDER_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("RECALL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RECALL_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(homeDir(), ".recall", "recall.db")
	}
	if c.Embedding.URL == "" {
		c.Embedding.URL = "http://localhost:11434/v1"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "nomic-embed-text"
	}
	if c.Embedding.CacheSize == 0 {
		c.Embedding.CacheSize = 100
	}
	if c.Indexing.RelatedLimit == 0 {
		c.Indexing.RelatedLimit = 5
	}
	if c.Indexing.RelatedWindow == 0 {
		c.Indexing.RelatedWindow = 100
	}
	if c.Indexing.RelatedThreshold == 0 {
		c.Indexing.RelatedThreshold = 0.75
	}
	if c.Indexing.ContextWindow == 0 {
		c.Indexing.ContextWindow = 50
	}
	if c.Indexing.QueueSize == 0 {
		c.Indexing.QueueSize = 64
	}
	if c.Search.DefaultLimit == 0 {
		c.Search.DefaultLimit = 10
	}
	if c.Search.SimilarThreshold == 0 {
		c.Search.SimilarThreshold = 0.75
	}
	if c.Search.ClusterThreshold == 0 {
		c.Search.ClusterThreshold = 0.8
	}
	if c.Search.TimeWindowMinutes == 0 {
		c.Search.TimeWindowMinutes = 30
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	positive := map[string]int{
		"embedding.cache_size":       c.Embedding.CacheSize,
		"indexing.related_limit":     c.Indexing.RelatedLimit,
		"indexing.related_window":    c.Indexing.RelatedWindow,
		"indexing.context_window":    c.Indexing.ContextWindow,
		"indexing.queue_size":        c.Indexing.QueueSize,
		"search.default_limit":       c.Search.DefaultLimit,
		"search.time_window_minutes": c.Search.TimeWindowMinutes,
	}
	for _, name := range slices.Sorted(maps.Keys(positive)) {
		if positive[name] <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, name, positive[name])
		}
	}

	unit := map[string]float64{
		"indexing.related_threshold": c.Indexing.RelatedThreshold,
		"search.similar_threshold":   c.Search.SimilarThreshold,
		"search.cluster_threshold":   c.Search.ClusterThreshold,
	}
	for _, name := range slices.Sorted(maps.Keys(unit)) {
		if v := unit[name]; v < -1 || v > 1 {
			return fmt.Errorf("%w: %s must be between -1 and 1, got %g", ErrInvalid, name, v)
		}
	}

	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level %q: %v", ErrInvalid, c.Logging.Level, err)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalid)
	}
	return nil
}

// LogLevel returns the parsed logging level, info when unparseable.
func (c *Config) LogLevel() log.Level {
	lvl, err := log.ParseLevel(c.Logging.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// EmbeddingEnabled reports whether an embedding provider should be built.
func (c *Config) EmbeddingEnabled() bool {
	return !c.Embedding.Disabled && c.Embedding.URL != ""
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.Getenv("HOME")
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
