package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	def := Default()
	if cfg.Server.Addr != def.Server.Addr {
		t.Errorf("addr = %q, want %q", cfg.Server.Addr, def.Server.Addr)
	}
	if cfg.Chunking.WindowSize != 1000 || cfg.Chunking.Overlap != 200 {
		t.Errorf("chunking = %+v", cfg.Chunking)
	}
	if cfg.Embedding.Dimension != 1024 {
		t.Errorf("dimension = %d, want 1024", cfg.Embedding.Dimension)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
chunking:
  window_size: 500
  overlap: 50
embedding:
  model: custom-model
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Chunking.WindowSize != 500 || cfg.Chunking.Overlap != 50 {
		t.Errorf("chunking = %+v", cfg.Chunking)
	}
	if cfg.Embedding.Model != "custom-model" {
		t.Errorf("model = %q", cfg.Embedding.Model)
	}
	// Fields the file omits keep their defaults.
	if cfg.DataDir != "data" || cfg.Embedding.Dimension != 1024 {
		t.Errorf("defaults not preserved: data=%q dim=%d", cfg.DataDir, cfg.Embedding.Dimension)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Expected ErrInvalid, got %v", err)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("EMBED_MODEL", "env-model")
	t.Setenv("EMBED_BASE_URL", "http://embedder:9000/v1")
	t.Setenv("EMBED_DIM", "384")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Embedding.Model != "env-model" {
		t.Errorf("model = %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.BaseURL != "http://embedder:9000/v1" {
		t.Errorf("base url = %q", cfg.Embedding.BaseURL)
	}
	if cfg.Embedding.Dimension != 384 {
		t.Errorf("dimension = %d", cfg.Embedding.Dimension)
	}
}

func TestLoadRejectsMalformedEnvDimension(t *testing.T) {
	// A typo like a letter O must stop startup, not fall back to the file or
	// default dimension.
	t.Setenv("EMBED_DIM", "1O24")

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Expected ErrInvalid, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero window", func(c *Config) { c.Chunking.WindowSize = 0 }},
		{"negative window", func(c *Config) { c.Chunking.WindowSize = -10 }},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }},
		{"overlap equals window", func(c *Config) { c.Chunking.Overlap = c.Chunking.WindowSize }},
		{"overlap beyond window", func(c *Config) { c.Chunking.Overlap = c.Chunking.WindowSize + 5 }},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }},
		{"empty base url", func(c *Config) { c.Embedding.BaseURL = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadRejectsInvalidFileValues(t *testing.T) {
	path := writeConfig(t, `
chunking:
  window_size: 100
  overlap: 100
`)
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Expected ErrInvalid, got %v", err)
	}
}

func TestEmbeddingTimeout(t *testing.T) {
	cfg := Default()
	cfg.Embedding.TimeoutSecs = 12
	if got := cfg.EmbeddingTimeout(); got != 12*time.Second {
		t.Errorf("timeout = %v, want 12s", got)
	}
}
