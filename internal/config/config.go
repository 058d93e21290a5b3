// Package config provides configuration loading and structs for the docchat server and workers.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Vector     VectorConfig     `yaml:"vector"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Query      QueryConfig      `yaml:"query"`
	Worker     WorkerConfig     `yaml:"worker"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig holds paths for the database, the queue and uploaded files.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	QueuePath    string `yaml:"queue_path"`
	UploadDir    string `yaml:"upload_dir"`
}

// EmbeddingConfig selects and configures the embedding model.
// Provider is one of "hashing", "onnx", "gemini" or "ollama".
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	ModelPath         string        `yaml:"model_path"`
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Dimensions        int           `yaml:"dimensions"`
	MaxTokens         int           `yaml:"max_tokens"`
	CacheSize         int           `yaml:"cache_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// GenerationConfig selects and configures the chat model.
// Provider is one of "gemini" or "ollama".
type GenerationConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Temperature       *float64      `yaml:"temperature"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// VectorConfig selects the vector index. Type is "local" or "qdrant".
type VectorConfig struct {
	Type       string        `yaml:"type"`
	QdrantURL  string        `yaml:"qdrant_url"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ChunkingConfig holds chunker settings, measured in characters.
// ChunkOverlap is a pointer so an explicit 0 is kept.
type ChunkingConfig struct {
	ChunkSize      int  `yaml:"chunk_size"`
	ChunkOverlap   *int `yaml:"chunk_overlap"`
	BoundaryWindow int  `yaml:"boundary_window"`
}

// OverlapOrDefault returns the chunk overlap; defaults to 50 when unset.
func (c *ChunkingConfig) OverlapOrDefault() int {
	if c.ChunkOverlap != nil {
		return *c.ChunkOverlap
	}
	return 50
}

// QueryConfig holds retrieval and prompt settings.
type QueryConfig struct {
	TopK          int `yaml:"top_k"`
	MaxChunkChars int `yaml:"max_chunk_chars"`
}

// WorkerConfig holds ingestion worker and queue settings. LeaseDuration must exceed
// JobTimeout, otherwise a job still running is redelivered to another worker.
type WorkerConfig struct {
	Concurrency   int           `yaml:"concurrency"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	LeaseDuration time.Duration `yaml:"lease_duration"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	JobTimeout    time.Duration `yaml:"job_timeout"`
}

// WatchConfig holds inbox directory settings. PDFs dropped into these directories are
// moved into the upload directory and queued for ingestion.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to false when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return false
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// A .env file next to the config is loaded into the environment first when present.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := LoadEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.QueuePath = expandPath(cfg.Storage.QueuePath, configDir)
	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	if c.Worker.LeaseDuration <= c.Worker.JobTimeout {
		return fmt.Errorf("invalid config: worker.lease_duration (%s) must exceed worker.job_timeout (%s)",
			c.Worker.LeaseDuration, c.Worker.JobTimeout)
	}
	if c.Chunking.ChunkOverlap != nil && *c.Chunking.ChunkOverlap < 0 {
		return fmt.Errorf("invalid config: chunking.chunk_overlap must not be negative")
	}
	return nil
}

// LoadEnv loads KEY=VALUE pairs from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// APIKey returns the value of the environment variable named by envName, or "" when
// envName is empty or unset.
func APIKey(envName string) string {
	if envName == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(envName))
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
