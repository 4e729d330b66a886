// Command engram is the CLI surface of the shared memory graph. Every
// agent-facing operation maps to one subcommand; output is human tables
// by default and plain JSON with --json.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"engram/internal/config"
	"engram/internal/logging"
	"engram/internal/memory"
	"engram/internal/schema"
	"engram/internal/store"
)

var (
	// Global flags
	verbose    bool
	jsonOut    bool
	configPath string
	dbPath     string
	actorFlag  string

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "engram - schema-enforced temporal memory graph for agents",
	Long: `engram is a shared, versioned memory graph.

Entities live under a declared schema, every change creates a new
immutable version with a full audit trail, and the graph projects into
a human-readable document tree that syncs both ways.

Typical flow:
  engram init
  engram upsert Service name=auth port=8080
  engram query Service
  engram sync --watch`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Emit plain JSON instead of tables")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to engram.yaml")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Actor recorded on mutations (overrides config)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(upsertCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(relateCmd)
	rootCmd.AddCommand(unrelateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(getAtCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(changelogCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(changesSinceCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(scanCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles everything a data-touching command needs.
type app struct {
	cfg      *config.Config
	store    *store.Store
	registry *schema.Registry
	pipeline *memory.Pipeline
	reader   *memory.Reader
}

// openApp loads config, compiles the schema, and opens the store. The
// categorized file logger initializes from the same workspace so its
// output lands next to the database.
func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}

	ws := filepath.Dir(configPath)
	if ws == "" || ws == "." {
		if wd, err := os.Getwd(); err == nil {
			ws = wd
		}
	}
	if err := logging.Initialize(ws); err != nil {
		logger.Debug("File logging unavailable", zap.Error(err))
	}

	def, err := schema.Load(cfg.Schema.Path)
	if err != nil {
		return nil, fmt.Errorf("schema: %w (run 'engram init' to create a starter schema)", err)
	}
	reg, err := schema.NewRegistry(def)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	st, err := store.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if err := st.ApplyConstraints(context.Background(), def); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("constraints: %w", err)
	}

	return &app{
		cfg:      cfg,
		store:    st,
		registry: reg,
		pipeline: memory.NewPipeline(reg, st),
		reader:   memory.NewReader(st),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("Failed to close store", zap.Error(err))
	}
}

// actor resolves the actor for a mutation: flag, then config, then a
// generic fallback.
func (a *app) actor() string {
	if actorFlag != "" {
		return actorFlag
	}
	if a.cfg.Actor != "" {
		return a.cfg.Actor
	}
	return "cli"
}

// parseProps merges a --props JSON object with key=value arguments.
// Values in key=value pairs are decoded as JSON when they parse, so
// port=8080 is a number and active=true a boolean; anything else stays
// a string. key=value pairs win over --props on the same key.
func parseProps(propsJSON string, pairs []string) (map[string]interface{}, error) {
	props := make(map[string]interface{})
	if propsJSON != "" {
		if err := json.Unmarshal([]byte(propsJSON), &props); err != nil {
			return nil, fmt.Errorf("invalid --props: %w", err)
		}
		if props == nil {
			props = make(map[string]interface{})
		}
	}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid property %q, want key=value", pair)
		}
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		props[key] = v
	}
	return props, nil
}

// parseTime accepts RFC 3339 (with or without a time part) and the
// literal "now".
func parseTime(s string) (time.Time, error) {
	if strings.EqualFold(s, "now") {
		return time.Now().UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q, want RFC 3339 or YYYY-MM-DD", s)
}

// parseFilter turns "port>=8080" style expressions into store filters.
// Operators: = (equals), ~ (contains), >, <, >=, <=.
func parseFilter(expr string) (store.Filter, error) {
	ops := []struct {
		token string
		op    string
	}{
		{">=", "gte"}, {"<=", "lte"}, {"=", "eq"}, {"~", "contains"}, {">", "gt"}, {"<", "lt"},
	}
	for _, o := range ops {
		idx := strings.Index(expr, o.token)
		if idx <= 0 {
			continue
		}
		prop := strings.TrimSpace(expr[:idx])
		raw := strings.TrimSpace(expr[idx+len(o.token):])
		if prop == "" || raw == "" {
			break
		}
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		return store.Filter{Property: prop, Op: o.op, Value: v}, nil
	}
	return store.Filter{}, fmt.Errorf("invalid filter %q, want prop=value, prop~value, or a comparison", expr)
}
