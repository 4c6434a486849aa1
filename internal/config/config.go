package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration errors. They are fatal at startup and never
// retried or silently clamped.
var ErrInvalid = errors.New("invalid configuration")

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ChunkingConfig controls how documents are split into overlapping windows.
// WindowSize and Overlap are counted in runes.
type ChunkingConfig struct {
	WindowSize int `yaml:"window_size"`
	Overlap    int `yaml:"overlap"`
}

// EmbeddingConfig configures the OpenAI-compatible embedding provider. The
// dimension is authoritative: vectors of any other length are rejected.
type EmbeddingConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Config is the root application configuration.
type Config struct {
	Server       ServerConfig    `yaml:"server"`
	DataDir      string          `yaml:"data_dir"`
	KnowledgeDir string          `yaml:"knowledge_dir"`
	Chunking     ChunkingConfig  `yaml:"chunking"`
	Embedding    EmbeddingConfig `yaml:"embedding"`
}

// Load reads a YAML config from path. A missing file yields the defaults.
// Environment overrides (EMBED_MODEL, EMBED_DIM, EMBED_BASE_URL) are applied
// after the file, matching how the embedding model is usually selected per
// deployment. An EMBED_DIM that is set but not an integer fails Load.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %v: %w", path, err, ErrInvalid)
	}
	applyDefaults(cfg)
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration: 1000-rune windows with 200-rune
// overlap and a local OpenAI-compatible embedding server producing
// 1024-dimensional vectors.
func Default() *Config {
	return &Config{
		Server:       ServerConfig{Addr: ":8080"},
		DataDir:      "data",
		KnowledgeDir: "data/knowledge",
		Chunking:     ChunkingConfig{WindowSize: 1000, Overlap: 200},
		Embedding: EmbeddingConfig{
			BaseURL:     "http://localhost:8081/v1",
			Model:       "BAAI/bge-m3",
			Dimension:   1024,
			TimeoutSecs: 30,
		},
	}
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.KnowledgeDir == "" {
		cfg.KnowledgeDir = def.KnowledgeDir
	}
	if cfg.Chunking.WindowSize == 0 {
		cfg.Chunking.WindowSize = def.Chunking.WindowSize
		if cfg.Chunking.Overlap == 0 {
			cfg.Chunking.Overlap = def.Chunking.Overlap
		}
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = def.Embedding.BaseURL
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = def.Embedding.Model
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = def.Embedding.Dimension
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = def.Embedding.TimeoutSecs
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("EMBED_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("EMBED_DIM"); v != "" {
		dim, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EMBED_DIM=%q is not an integer: %w", v, ErrInvalid)
		}
		cfg.Embedding.Dimension = dim
	}
	return nil
}

// Validate reports the first configuration error found. Bad window/overlap
// and a non-positive dimension are rejected here so the process refuses to
// start instead of clamping.
func (c *Config) Validate() error {
	if c.Chunking.WindowSize <= 0 {
		return fmt.Errorf("chunking.window_size must be positive, got %d: %w", c.Chunking.WindowSize, ErrInvalid)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking.overlap must not be negative, got %d: %w", c.Chunking.Overlap, ErrInvalid)
	}
	if c.Chunking.Overlap >= c.Chunking.WindowSize {
		return fmt.Errorf("chunking.overlap %d must be smaller than window_size %d: %w",
			c.Chunking.Overlap, c.Chunking.WindowSize, ErrInvalid)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d: %w", c.Embedding.Dimension, ErrInvalid)
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url must be set: %w", ErrInvalid)
	}
	return nil
}

// EmbeddingTimeout returns the configured provider timeout as a duration.
func (c *Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.Embedding.TimeoutSecs) * time.Second
}
