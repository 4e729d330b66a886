// Package config loads engram.yaml and supplies defaults for every
// section, so a bare repository works without any configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"engram/internal/scanner"
)

// DefaultPath is where engram.yaml is looked up relative to the
// workspace root.
const DefaultPath = "engram.yaml"

// Config holds all engram configuration.
type Config struct {
	// Actor is recorded on CLI mutations when no --actor flag is given.
	Actor string `yaml:"actor"`

	Schema  SchemaConfig  `yaml:"schema"`
	Storage StorageConfig `yaml:"storage"`
	Docs    DocsConfig    `yaml:"docs"`
	Sync    SyncConfig    `yaml:"sync"`
	Scan    ScanConfig    `yaml:"scan"`
	Logging LoggingConfig `yaml:"logging"`
}

// SchemaConfig points at the graph schema definition.
type SchemaConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DocsConfig configures the document projection.
type DocsConfig struct {
	OutputDir    string `yaml:"output_dir"`
	Format       string `yaml:"format"`        // adapter name; unknown falls back to markdown
	PathTemplate string `yaml:"path_template"` // {label}, {id}, {ext} placeholders
}

// SyncConfig configures graph<->docs reconciliation.
type SyncConfig struct {
	ConflictStrategy string `yaml:"conflict_strategy"` // graph-wins, docs-wins, merge, fail
	WatchDebounce    string `yaml:"watch_debounce"`
}

// ScanConfig configures the codebase scanner.
type ScanConfig struct {
	Include   []string              `yaml:"include,omitempty"`
	Exclude   []string              `yaml:"exclude,omitempty"`
	Languages []string              `yaml:"languages,omitempty"`
	Mappings  []scanner.MappingRule `yaml:"mappings,omitempty"`
	Remote    RemoteConfig          `yaml:"remote"`
}

// RemoteConfig bounds remote clones.
type RemoteConfig struct {
	Depth  int    `yaml:"depth"`
	Branch string `yaml:"branch"`
}

// LoggingConfig mirrors the logging section the logging package reads
// from engram.yaml on its own.
type LoggingConfig struct {
	Enabled    bool            `yaml:"enabled"`
	Categories map[string]bool `yaml:"categories,omitempty"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Schema:  SchemaConfig{Path: "schema.yaml"},
		Storage: StorageConfig{Path: ".engram/graph.db"},
		Docs: DocsConfig{
			OutputDir:    "docs/memory",
			Format:       "markdown",
			PathTemplate: "{label}/{id}.{ext}",
		},
		Sync: SyncConfig{
			ConflictStrategy: "graph-wins",
			WatchDebounce:    "750ms",
		},
		Scan: ScanConfig{
			Remote: RemoteConfig{Depth: 1},
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
	}
}

// Load reads configuration from a YAML file, merging it over the
// defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("ENGRAM_DB"); path != "" {
		c.Storage.Path = path
	}
	if dir := os.Getenv("ENGRAM_DOCS_DIR"); dir != "" {
		c.Docs.OutputDir = dir
	}
	if actor := os.Getenv("ENGRAM_ACTOR"); actor != "" {
		c.Actor = actor
	}
}

// GetWatchDebounce returns the watch debounce window as a duration.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Sync.WatchDebounce)
	if err != nil || d <= 0 {
		return 750 * time.Millisecond
	}
	return d
}

// Validate checks what the config alone can judge. Strategy and format
// names are validated where they are consumed.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty")
	}
	if c.Sync.WatchDebounce != "" {
		if _, err := time.ParseDuration(c.Sync.WatchDebounce); err != nil {
			return fmt.Errorf("sync.watch_debounce: %w", err)
		}
	}
	if c.Scan.Remote.Depth < 0 {
		return fmt.Errorf("scan.remote.depth must not be negative")
	}
	return nil
}
