package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"engram/internal/reconcile"
	"engram/internal/scanner"
)

var (
	syncStrategy string
	syncDocsDir  string
	syncFormat   string
	syncLabels   []string
	syncWatch    bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the graph with its document projection",
	Long: `Sync walks both sides and converges them: entities without docs get
rendered, docs without entities get upserted, one-sided edits follow
the side that moved. When both sides changed the conflict strategy
decides: graph-wins, docs-wins, merge, or fail.

With --watch the docs directory is watched and edits sync back
automatically after a debounce window. Ctrl-C stops the watcher.`,
	Example: `  engram sync
  engram sync --strategy docs-wins --labels Service
  engram sync --watch`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	opts := reconcile.Options{
		DocsDir:  a.cfg.Docs.OutputDir,
		Format:   a.cfg.Docs.Format,
		Strategy: reconcile.Strategy(a.cfg.Sync.ConflictStrategy),
		Actor:    a.actor(),
		Labels:   syncLabels,
	}
	if syncDocsDir != "" {
		opts.DocsDir = syncDocsDir
	}
	if syncFormat != "" {
		opts.Format = syncFormat
	}
	if syncStrategy != "" {
		opts.Strategy = reconcile.Strategy(syncStrategy)
	}

	engine := reconcile.NewEngine(a.reader, a.pipeline, a.cfg.Docs.PathTemplate)

	if syncWatch {
		return runWatch(engine, opts, a)
	}

	res, err := engine.Sync(context.Background(), opts)
	var cerr *reconcile.ConflictError
	if errors.As(err, &cerr) {
		if jsonOut {
			_ = emitJSON(res)
		} else {
			printSyncResult(res)
		}
		fmt.Fprintln(os.Stderr, cerr)
		a.close()
		os.Exit(1)
	}
	if err != nil {
		return err
	}
	if jsonOut {
		return emitJSON(res)
	}
	printSyncResult(res)
	return nil
}

// runWatch runs one full sync, then watches the docs directory until
// interrupted.
func runWatch(engine *reconcile.Engine, opts reconcile.Options, a *app) error {
	watcher, err := reconcile.NewWatcher(engine, opts, a.cfg.GetWatchDebounce())
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := watcher.TriggerSync(ctx)
	if err != nil {
		return err
	}
	printSyncResult(res)

	if err := watcher.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("Watching %s (debounce %s), Ctrl-C to stop\n", opts.DocsDir, a.cfg.GetWatchDebounce())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nStopping watcher...")
	watcher.Stop()

	stats := watcher.Stats()
	logger.Info("Watcher stopped",
		zap.Int("events", stats.EventsSeen),
		zap.Int("syncs", stats.SyncsRun),
		zap.Int("errors", stats.Errors))
	if !jsonOut {
		fmt.Printf("Saw %d events, ran %d syncs (%d errors)\n", stats.EventsSeen, stats.SyncsRun, stats.Errors)
		return nil
	}
	return emitJSON(stats)
}

func printSyncResult(res reconcile.SyncResult) {
	if jsonOut {
		return
	}
	fmt.Printf("Sync complete: %d created, %d updated, %d deleted\n", res.Created, res.Updated, res.Deleted)
	for _, c := range res.Conflicts {
		fmt.Printf("  conflict %s (%s): resolved %s\n", c.EntityID, c.Label, c.Resolution)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(os.Stderr, "  error: %v\n", e)
	}
}

var (
	scanDryRun     bool
	scanInclude    []string
	scanExclude    []string
	scanLanguages  []string
	scanDepth      int
	scanBranch     string
	scanCredential string
)

var scanCmd = &cobra.Command{
	Use:   "scan <target>",
	Short: "Scan a codebase into the graph",
	Long: `Scan walks a local directory or clones a remote git URL, parses the
sources it understands, and ingests entities and relationships through
the mapping rules in the config's scan section. Unchanged files are
skipped via content fingerprints, so rescans touch only what moved.

--dry-run reports what a scan would do without writing anything.`,
	Example: `  engram scan .
  engram scan . --dry-run
  engram scan https://github.com/acme/svc.git --depth 1 --language go`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	if len(a.cfg.Scan.Mappings) == 0 {
		return fmt.Errorf("no mapping rules configured; add a scan.mappings section to %s", configPath)
	}

	opts := scanner.Options{
		Target:     args[0],
		DryRun:     scanDryRun,
		Actor:      a.actor(),
		Include:    a.cfg.Scan.Include,
		Exclude:    a.cfg.Scan.Exclude,
		Languages:  a.cfg.Scan.Languages,
		Mappings:   a.cfg.Scan.Mappings,
		Credential: scanCredential,
		Remote: scanner.RemoteOptions{
			Depth:  a.cfg.Scan.Remote.Depth,
			Branch: a.cfg.Scan.Remote.Branch,
		},
	}
	if len(scanInclude) > 0 {
		opts.Include = scanInclude
	}
	if len(scanExclude) > 0 {
		opts.Exclude = scanExclude
	}
	if len(scanLanguages) > 0 {
		opts.Languages = scanLanguages
	}
	if cmd.Flags().Changed("depth") {
		opts.Remote.Depth = scanDepth
	}
	if scanBranch != "" {
		opts.Remote.Branch = scanBranch
	}

	// Interrupt cancels the clone or the walk; partial writes stay,
	// fingerprints are only saved on full completion.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	sc := scanner.NewScanner(a.pipeline, a.reader)
	res, err := sc.Scan(ctx, opts)
	if err != nil {
		return err
	}
	if jsonOut {
		return emitJSON(res)
	}
	printScanResult(res, scanDryRun)
	return nil
}

func printScanResult(res scanner.ScanResult, dryRun bool) {
	verb := "Scan complete"
	if dryRun {
		verb = "Dry run complete (nothing written)"
	}
	fmt.Printf("%s in %s\n", verb, res.Duration.Round(time.Millisecond))
	fmt.Printf("  files:         %d scanned, %d parsed\n", res.FilesScanned, res.FilesParsed)
	fmt.Printf("  artifacts:     %d extracted, %d unmapped\n", res.ArtifactsExtracted, res.Unmapped)
	fmt.Printf("  entities:      %d upserted, %d unchanged\n", res.EntitiesUpserted, res.EntitiesSkipped)
	fmt.Printf("  relationships: %d created\n", res.RelationshipsCreated)
	if res.Removed > 0 {
		fmt.Printf("  removed files: %d (entities kept, delete manually if stale)\n", res.Removed)
	}
	if len(res.Errors) > 0 {
		fmt.Fprintf(os.Stderr, "%d artifacts rejected:\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", e)
		}
	}
}

func init() {
	syncCmd.Flags().StringVar(&syncStrategy, "strategy", "", "Conflict strategy: "+strategyNames()+" (overrides config)")
	syncCmd.Flags().StringVar(&syncDocsDir, "docs-dir", "", "Docs directory (overrides config)")
	syncCmd.Flags().StringVar(&syncFormat, "format", "", "Doc format: markdown, obsidian (overrides config)")
	syncCmd.Flags().StringArrayVar(&syncLabels, "labels", nil, "Restrict to a label (repeatable)")
	syncCmd.Flags().BoolVar(&syncWatch, "watch", false, "Keep watching the docs directory for edits")

	scanCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "Report without writing")
	scanCmd.Flags().StringArrayVar(&scanInclude, "include", nil, "Include glob (repeatable, overrides config)")
	scanCmd.Flags().StringArrayVar(&scanExclude, "exclude", nil, "Exclude glob (repeatable, overrides config)")
	scanCmd.Flags().StringArrayVar(&scanLanguages, "language", nil, "Restrict to a language (repeatable, overrides config)")
	scanCmd.Flags().IntVar(&scanDepth, "depth", 1, "Clone depth for remote targets")
	scanCmd.Flags().StringVar(&scanBranch, "branch", "", "Branch for remote targets")
	scanCmd.Flags().StringVar(&scanCredential, "credential", "", "Credential for private https remotes (user:token or token)")
}

func strategyNames() string {
	return strings.Join([]string{
		string(reconcile.GraphWins), string(reconcile.DocsWins), string(reconcile.Merge), string(reconcile.Fail),
	}, ", ")
}
