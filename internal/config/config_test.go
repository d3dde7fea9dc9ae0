package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
  rate_limit: 50
embedding:
  text_path: "/data/glove.txt"
  dimensions: 50
search:
  k: 6
  backend: sequential
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Server.RateLimit != 50 || cfg.Server.RateBurst != 0 {
		t.Errorf("unexpected rate limit: %+v", cfg.Server)
	}
	if cfg.Embedding.TextPath != "/data/glove.txt" || cfg.Embedding.Dimensions != 50 {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Search.K != 6 || cfg.Search.Backend != "sequential" {
		t.Errorf("unexpected search config: %+v", cfg.Search)
	}
	if cfg.Embedding.Norm != "sumabs" {
		t.Errorf("norm should default to sumabs, got %q", cfg.Embedding.Norm)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("debug: true\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
embedding:
  words_path: "./data/words.txt"
  binary_path: "./data/vectors.bin"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantWords := filepath.Join(dir, "data", "words.txt")
	if cfg.Embedding.WordsPath != wantWords {
		t.Errorf("words_path = %s, want %s", cfg.Embedding.WordsPath, wantWords)
	}
	if cfg.Embedding.TextPath != "" || cfg.Embedding.DatabasePath != "" {
		t.Error("unset paths should stay empty")
	}
	if cfg.Embedding.Source() != "binary" {
		t.Errorf("Source() = %q, want binary", cfg.Embedding.Source())
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config")
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Search.K != 11 {
		t.Errorf("default k: got %d", cfg.Search.K)
	}
	if cfg.Search.Backend != "parallel" {
		t.Errorf("default backend: got %s", cfg.Search.Backend)
	}
	if cfg.Embedding.Dimensions != 300 {
		t.Errorf("default dimensions: got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Search.Suggestions != 3 || cfg.Search.MaxDistance != 2 {
		t.Errorf("default suggestions: %+v", cfg.Search)
	}
}

func TestEmbeddingConfig_Source(t *testing.T) {
	tests := []struct {
		name string
		cfg  EmbeddingConfig
		want string
	}{
		{"none", EmbeddingConfig{}, ""},
		{"text", EmbeddingConfig{TextPath: "a"}, "text"},
		{"binary needs both", EmbeddingConfig{WordsPath: "w", TextPath: "a"}, "text"},
		{"binary", EmbeddingConfig{WordsPath: "w", BinaryPath: "b", TextPath: "a"}, "binary"},
		{"database wins", EmbeddingConfig{DatabasePath: "d", WordsPath: "w", BinaryPath: "b"}, "database"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Source(); got != tt.want {
				t.Errorf("Source() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:    ServerConfig{Host: "localhost", Port: 9090},
		Embedding: EmbeddingConfig{DatabasePath: "/tmp/embeddings.db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Embedding.DatabasePath != "/tmp/embeddings.db" {
		t.Errorf("loaded database_path: got %s", loaded.Embedding.DatabasePath)
	}
}
