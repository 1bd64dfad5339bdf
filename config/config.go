// Package config loads the service configuration from a YAML file with
// ${VAR} / ${VAR:-default} environment substitution.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "configs/config.yaml"

// Config is the root configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Logging     LoggingConfig     `yaml:"logging"`
	Corpus      CorpusConfig      `yaml:"corpus"`
	Extractor   ExtractorConfig   `yaml:"extractor"`
	Encoder     EncoderConfig     `yaml:"encoder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Query       QueryConfig       `yaml:"query"`
	Explain     ExplainConfig     `yaml:"explain"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	// MaxUploadMB bounds the decoded size of a submitted document.
	MaxUploadMB int `yaml:"max_upload_mb"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// CorpusConfig points at the folder of reference documents.
type CorpusConfig struct {
	Folder          string `yaml:"folder"`
	WatchDebounceMS int    `yaml:"watch_debounce_ms"`
}

// ExtractorConfig configures PDF text extraction.
type ExtractorConfig struct {
	LicenseKey string `yaml:"license_key"`
	CacheSize  int    `yaml:"cache_size"`
}

// EncoderConfig selects the embedding backend.
type EncoderConfig struct {
	Provider   string `yaml:"provider"` // ollama, openai
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Dimension  int    `yaml:"dimension"`
	Normalize  *bool  `yaml:"normalize"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// VectorStoreConfig selects the vector database.
type VectorStoreConfig struct {
	Driver     string `yaml:"driver"` // chroma, qdrant, chromem
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
}

// QueryConfig tunes the similarity query engine.
type QueryConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
	Workers     int `yaml:"workers"`
}

// ExplainConfig selects the text generator used for explanations.
type ExplainConfig struct {
	Provider     string `yaml:"provider"` // ollama, gemini
	Model        string `yaml:"model"`
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	TimeoutSec   int    `yaml:"timeout_sec"`
	Workers      int    `yaml:"workers"`
	MaxPageChars int    `yaml:"max_page_chars"`
}

// Load reads the configuration at path. A missing file yields the defaults.
// Variables from a .env file in the working directory are visible to the
// ${VAR} substitution.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(filepath.Clean(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(expandEnvVars(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8005
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 600
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 50
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Corpus.Folder == "" {
		c.Corpus.Folder = "dataset"
	}
	if c.Corpus.WatchDebounceMS <= 0 {
		c.Corpus.WatchDebounceMS = 2000
	}
	if c.Extractor.CacheSize <= 0 {
		c.Extractor.CacheSize = 64
	}
	if c.Encoder.Provider == "" {
		c.Encoder.Provider = "ollama"
	}
	if c.Encoder.Model == "" {
		c.Encoder.Model = "nomic-embed-text:v1.5"
	}
	if c.Encoder.BaseURL == "" && c.Encoder.Provider == "ollama" {
		c.Encoder.BaseURL = "http://localhost:11434"
	}
	if c.Encoder.Dimension == 0 {
		c.Encoder.Dimension = 768
	}
	if c.Encoder.Normalize == nil {
		normalize := true
		c.Encoder.Normalize = &normalize
	}
	if c.Encoder.TimeoutSec <= 0 {
		c.Encoder.TimeoutSec = 30
	}
	if c.VectorStore.Driver == "" {
		c.VectorStore.Driver = "chroma"
	}
	if c.VectorStore.Endpoint == "" {
		switch c.VectorStore.Driver {
		case "chroma":
			c.VectorStore.Endpoint = "http://localhost:8000"
		case "qdrant":
			c.VectorStore.Endpoint = "localhost:6334"
		}
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "pdf_pages"
	}
	if c.Query.DefaultTopK == 0 {
		c.Query.DefaultTopK = 5
	}
	if c.Query.MaxTopK <= 0 {
		c.Query.MaxTopK = 100
	}
	if c.Query.Workers <= 0 {
		c.Query.Workers = 4
	}
	if c.Explain.Provider == "" {
		c.Explain.Provider = "ollama"
	}
	if c.Explain.Model == "" {
		c.Explain.Model = "qwen3:0.6b-q4_K_M"
	}
	if c.Explain.BaseURL == "" && c.Explain.Provider == "ollama" {
		c.Explain.BaseURL = "http://localhost:11434"
	}
	if c.Explain.TimeoutSec <= 0 {
		c.Explain.TimeoutSec = 120
	}
	if c.Explain.Workers <= 0 {
		c.Explain.Workers = 2
	}
	if c.Explain.MaxPageChars <= 0 {
		c.Explain.MaxPageChars = 4000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Encoder.Dimension <= 0 {
		return fmt.Errorf("encoder.dimension must be positive, got %d", c.Encoder.Dimension)
	}
	switch c.Encoder.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("encoder.provider must be \"ollama\" or \"openai\", got %q", c.Encoder.Provider)
	}
	switch c.VectorStore.Driver {
	case "chroma", "qdrant", "chromem":
	default:
		return fmt.Errorf("vector_store.driver must be one of chroma, qdrant, chromem, got %q", c.VectorStore.Driver)
	}
	switch c.Explain.Provider {
	case "ollama", "gemini":
	default:
		return fmt.Errorf("explain.provider must be \"ollama\" or \"gemini\", got %q", c.Explain.Provider)
	}
	if c.Query.DefaultTopK < 0 || c.Query.DefaultTopK > c.Query.MaxTopK {
		return fmt.Errorf("query.default_top_k must be between 0 and %d, got %d", c.Query.MaxTopK, c.Query.DefaultTopK)
	}
	return nil
}

// WatchDebounce returns the reindex debounce window of watch mode.
func (c CorpusConfig) WatchDebounce() time.Duration {
	return time.Duration(c.WatchDebounceMS) * time.Millisecond
}

// Timeout returns the per-call encoder timeout.
func (c EncoderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// Timeout returns the per-explanation generator timeout.
func (c ExplainConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		name, def, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(name)
		if val == "" && hasDefault {
			val = def
		}
		return []byte(val)
	})
}
