// Package scanner ingests a codebase into the graph. A scan runs five
// stages over a local directory or a freshly cloned remote: discover
// files and fingerprint them, restrict to what changed since the last
// scan, parse per language into raw artifacts, map artifacts to schema
// labels through user rules, and upsert the result with relationships
// resolved inside the batch.
package scanner

import (
	"context"
	"fmt"
	"time"

	"engram/internal/logging"
	"engram/internal/memory"
)

// TargetError means the scan target could not be resolved: a missing
// local directory or a failed clone.
type TargetError struct {
	Target string
	Err    error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("scan target %s: %v", e.Target, e.Err)
}

func (e *TargetError) Unwrap() error {
	return e.Err
}

// RemoteOptions bound a remote clone.
type RemoteOptions struct {
	Depth   int           `yaml:"depth"`
	Branch  string        `yaml:"branch"`
	Timeout time.Duration `yaml:"timeout"`
}

// Options configures a single scan.
type Options struct {
	// Target is a local directory or a remote git URL.
	Target string
	// DryRun runs every stage through mapping and resolution but
	// writes nothing: no upserts, no relates, no fingerprint store.
	DryRun bool
	// Actor is recorded on every write the scan performs.
	Actor string
	// Include globs. Empty selects the default source and manifest set.
	Include []string
	// Exclude globs, applied on top of the unconditional exclude set.
	Exclude []string
	// Languages restricts parsing to the named languages when set.
	Languages []string
	// Mappings turn artifacts into entities. No rules, no entities.
	Mappings []MappingRule
	// Remote bounds the clone when Target is a URL.
	Remote RemoteOptions
	// Credential is injected into https clone URLs, never logged.
	Credential string
}

// ScanResult reports what one scan did at every stage.
type ScanResult struct {
	Root                 string        `json:"root"`
	FilesScanned         int           `json:"filesScanned"`
	FilesParsed          int           `json:"filesParsed"`
	ArtifactsExtracted   int           `json:"artifactsExtracted"`
	EntitiesUpserted     int           `json:"entitiesUpserted"`
	EntitiesSkipped      int           `json:"entitiesSkipped"`
	RelationshipsCreated int           `json:"relationshipsCreated"`
	Unmapped             int           `json:"unmapped"`
	Removed              int           `json:"removed"`
	Errors               []string      `json:"errors,omitempty"`
	Duration             time.Duration `json:"duration"`
}

// Scanner runs codebase scans through the mutation pipeline.
type Scanner struct {
	pipeline *memory.Pipeline
	reader   *memory.Reader
	parsers  map[string]LanguageParser
}

// NewScanner creates a scanner. Extra parsers override the built-ins on
// the languages they declare, later ones winning.
func NewScanner(pipeline *memory.Pipeline, reader *memory.Reader, extra ...LanguageParser) *Scanner {
	parsers := builtinParsers()
	for _, p := range extra {
		for _, lang := range p.Languages() {
			parsers[lang] = p
		}
	}
	logging.ScannerDebug("Scanner created with %d parsers", len(parsers))
	return &Scanner{pipeline: pipeline, reader: reader, parsers: parsers}
}

// Scan runs the full pipeline against opts.Target.
func (s *Scanner) Scan(ctx context.Context, opts Options) (ScanResult, error) {
	start := time.Now()
	var res ScanResult

	if err := compileRules(opts.Mappings); err != nil {
		return res, fmt.Errorf("mapping rules: %w", err)
	}

	root, cleanup, err := resolveTarget(ctx, opts)
	if err != nil {
		return res, err
	}
	defer cleanup()
	res.Root = root
	logging.Scanner("Scan starting: %s (dryRun=%v)", opts.Target, opts.DryRun)

	files, err := s.discover(ctx, root, opts)
	if err != nil {
		return res, err
	}
	res.FilesScanned = len(files)

	previous := loadFingerprints(root)
	parseSet, recordSet, removed := changedFiles(previous, files, opts.Languages)
	res.Removed = len(removed)
	for _, rel := range removed {
		logging.ScannerDebug("File removed since last scan: %s", rel)
	}

	artifacts := s.parseFiles(parseSet, &res)
	res.ArtifactsExtracted = len(artifacts)

	mapped := s.applyMappings(artifacts, opts.Mappings, opts.Target, &res)
	s.ingest(ctx, mapped, opts, &res)

	if !opts.DryRun {
		if err := saveFingerprints(root, recordSet); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("fingerprint store: %v", err))
		}
	}

	res.Duration = time.Since(start)
	logging.Scanner("Scan complete: %d scanned, %d parsed, %d artifacts, %d upserted, %d skipped, %d related, %d unmapped, %d removed in %v",
		res.FilesScanned, res.FilesParsed, res.ArtifactsExtracted, res.EntitiesUpserted,
		res.EntitiesSkipped, res.RelationshipsCreated, res.Unmapped, res.Removed, res.Duration)
	return res, nil
}

// parseFiles runs the per-language parsers over the parse set. A parser
// failure skips the file and the scan continues.
func (s *Scanner) parseFiles(files []discoveredFile, res *ScanResult) []RawArtifact {
	var artifacts []RawArtifact
	for _, f := range files {
		parser, ok := s.parsers[f.language]
		if !ok {
			parser = s.parsers["generic"]
		}
		arts, err := parser.Parse(f.relPath, f.content)
		if err != nil {
			logging.Get(logging.CategoryScanner).Warn("Parse failed for %s: %v", f.relPath, err)
			continue
		}
		res.FilesParsed++
		artifacts = append(artifacts, arts...)
	}
	return artifacts
}
