// Package config provides configuration loading and structs for nearest.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string  `yaml:"host"`
	Port      int     `yaml:"port"`
	// RateLimit caps neighbour queries per second across all clients. 0 disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// EmbeddingConfig says where embeddings are loaded from. The first configured source wins,
// in this order: database, binary (words + binary file), text.
type EmbeddingConfig struct {
	TextPath     string `yaml:"text_path"`
	WordsPath    string `yaml:"words_path"`
	BinaryPath   string `yaml:"binary_path"`
	DatabasePath string `yaml:"database_path"`
	Dimensions   int    `yaml:"dimensions"`
	Norm         string `yaml:"norm"`
}

// SearchConfig holds neighbour search settings.
type SearchConfig struct {
	K           int    `yaml:"k"`
	MaxK        int    `yaml:"max_k"`
	Backend     string `yaml:"backend"`
	Workers     int    `yaml:"workers"`
	Compare     bool   `yaml:"compare"`
	CacheSize   int    `yaml:"cache_size"`
	Suggestions int    `yaml:"suggestions"`
	MaxDistance int    `yaml:"max_distance"`
}

// Source names the configured embedding source, or "" if none is set.
func (e *EmbeddingConfig) Source() string {
	switch {
	case e.DatabasePath != "":
		return "database"
	case e.WordsPath != "" && e.BinaryPath != "":
		return "binary"
	case e.TextPath != "":
		return "text"
	default:
		return ""
	}
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Embedding.TextPath = expandPath(cfg.Embedding.TextPath, configDir)
	cfg.Embedding.WordsPath = expandPath(cfg.Embedding.WordsPath, configDir)
	cfg.Embedding.BinaryPath = expandPath(cfg.Embedding.BinaryPath, configDir)
	cfg.Embedding.DatabasePath = expandPath(cfg.Embedding.DatabasePath, configDir)

	return &cfg, nil
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

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
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
