// Package config loads, validates, and persists dtagent configuration.
//
// Precedence, lowest to highest:
//  1. Built-in defaults
//  2. Config file (~/.dtagent/config.yaml)
//  3. DTAGENT_* environment variables
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is the config schema version.
const CurrentVersion = 1

// Config represents the complete dtagent configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	StateDir   string           `yaml:"state_dir" json:"state_dir"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Bridge     BridgeConfig     `yaml:"bridge" json:"bridge"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// BridgeConfig locates the external helper that talks to the knowledge
// base's scripting interface. dtagent only consumes its JSON output;
// the helper itself ships separately.
type BridgeConfig struct {
	// Command is the helper executable, resolved via PATH if relative.
	Command string `yaml:"command" json:"command"`

	// Args are prepended to every invocation.
	Args []string `yaml:"args" json:"args"`

	// Timeout bounds one helper invocation.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend: "openai", "gemini", "static".
	Provider string `yaml:"provider" json:"provider"`

	// Model is the provider model name (e.g. text-embedding-3-small).
	Model string `yaml:"model" json:"model"`

	// Dimensions overrides the provider-declared dimensionality (0 = provider default).
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// BatchSize is the number of chunks per embedding API call.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// InterBatchDelay is the pause between embedding batches (rate-limit headroom).
	InterBatchDelay time.Duration `yaml:"inter_batch_delay" json:"inter_batch_delay"`

	// MaxRetries is the retry budget per embedding call for transient failures.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// CacheSize is the number of query embeddings kept in the LRU cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// OpenAIBaseURL overrides the OpenAI-compatible endpoint.
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`

	// GeminiBaseURL overrides the Gemini endpoint.
	GeminiBaseURL string `yaml:"gemini_base_url" json:"gemini_base_url"`
}

// IndexingConfig configures the build pipeline.
type IndexingConfig struct {
	// MaxContentChars caps how much of a document is read for indexing.
	MaxContentChars int `yaml:"max_content_chars" json:"max_content_chars"`

	// CheckpointInterval is the number of indexed documents between
	// intermediate saves (bounds data loss on crash).
	CheckpointInterval int `yaml:"checkpoint_interval" json:"checkpoint_interval"`

	// MinWordCount skips documents below this word count.
	MinWordCount int `yaml:"min_word_count" json:"min_word_count"`

	// ChunkMaxChars is the target upper bound per chunk.
	ChunkMaxChars int `yaml:"chunk_max_chars" json:"chunk_max_chars"`

	// ChunkOverlapChars is the overlap prepended from the previous chunk.
	ChunkOverlapChars int `yaml:"chunk_overlap_chars" json:"chunk_overlap_chars"`

	// ChunkMinChars discards chunks shorter than this.
	ChunkMinChars int `yaml:"chunk_min_chars" json:"chunk_min_chars"`
}

// SearchConfig configures hybrid search defaults.
type SearchConfig struct {
	// TopK is the default number of results returned.
	TopK int `yaml:"top_k" json:"top_k"`

	// EnableSemantic toggles the vector path by default.
	EnableSemantic bool `yaml:"enable_semantic" json:"enable_semantic"`

	// EnableRelated toggles the related-document path by default.
	EnableRelated bool `yaml:"enable_related" json:"enable_related"`

	// PathTimeout bounds each search path's collaborator call.
	PathTimeout time.Duration `yaml:"path_timeout" json:"path_timeout"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// DefaultStateDir returns ~/.dtagent, falling back to the temp dir.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".dtagent")
	}
	return filepath.Join(home, ".dtagent")
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(DefaultStateDir(), "config.yaml")
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Version:  CurrentVersion,
		StateDir: DefaultStateDir(),
		Embeddings: EmbeddingsConfig{
			Provider:        "openai",
			Model:           "text-embedding-3-small",
			BatchSize:       16,
			InterBatchDelay: 200 * time.Millisecond,
			MaxRetries:      3,
			CacheSize:       1000,
		},
		Indexing: IndexingConfig{
			MaxContentChars:    100_000,
			CheckpointInterval: 20,
			MinWordCount:       10,
			ChunkMaxChars:      2000,
			ChunkOverlapChars:  400,
			ChunkMinChars:      100,
		},
		Search: SearchConfig{
			TopK:           10,
			EnableSemantic: true,
			EnableRelated:  true,
			PathTimeout:    15 * time.Second,
		},
		Bridge: BridgeConfig{
			Command: "dtagent-bridge",
			Timeout: 60 * time.Second,
		},
		Server: ServerConfig{
			Transport: "stdio",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path, applying defaults for missing
// fields and environment overrides on top. A missing file is not an
// error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path atomically (temp file + rename).
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Embeddings.Provider {
	case "openai", "gemini", "static":
	default:
		return fmt.Errorf("embeddings.provider must be openai, gemini, or static, got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.MaxRetries < 0 {
		return fmt.Errorf("embeddings.max_retries must be non-negative, got %d", c.Embeddings.MaxRetries)
	}
	if c.Indexing.ChunkMaxChars <= 0 {
		return fmt.Errorf("indexing.chunk_max_chars must be positive, got %d", c.Indexing.ChunkMaxChars)
	}
	if c.Indexing.ChunkOverlapChars < 0 || c.Indexing.ChunkOverlapChars >= c.Indexing.ChunkMaxChars {
		return fmt.Errorf("indexing.chunk_overlap_chars must be in [0, chunk_max_chars), got %d", c.Indexing.ChunkOverlapChars)
	}
	if c.Indexing.CheckpointInterval <= 0 {
		return fmt.Errorf("indexing.checkpoint_interval must be positive, got %d", c.Indexing.CheckpointInterval)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}
	return nil
}

// IndexDir returns the directory holding the persisted index artifacts.
func (c *Config) IndexDir() string {
	return filepath.Join(c.StateDir, "index")
}

// TelemetryPath returns the sqlite query-metrics database path.
func (c *Config) TelemetryPath() string {
	return filepath.Join(c.StateDir, "telemetry.db")
}

// LogPath returns the log file path under the state directory.
func (c *Config) LogPath() string {
	return filepath.Join(c.StateDir, "logs", "dtagent.log")
}

// applyEnvOverrides applies DTAGENT_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DTAGENT_STATE_DIR"); v != "" {
		cfg.StateDir = v
	}
	if v := os.Getenv("DTAGENT_EMBED_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv("DTAGENT_EMBED_MODEL"); v != "" {
		cfg.Embeddings.Model = v
	}
	if v := os.Getenv("DTAGENT_EMBED_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Embeddings.BatchSize = n
		}
	}
	if v := os.Getenv("DTAGENT_BRIDGE_COMMAND"); v != "" {
		cfg.Bridge.Command = v
	}
	if v := os.Getenv("DTAGENT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DTAGENT_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Search.TopK = n
		}
	}
}
