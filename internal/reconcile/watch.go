package reconcile

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"engram/internal/docs"
	"engram/internal/logging"
)

// DefaultDebounce is how long the watcher waits after the last docs
// event before running a sync. Editors tend to write files in bursts.
const DefaultDebounce = 750 * time.Millisecond

// Watcher re-syncs the graph whenever files under the docs directory
// change. Events produced by the sync's own render pass are suppressed;
// any stragglers trigger one extra pass that finds nothing to do.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	engine      *Engine
	opts        Options
	ext         string
	debounceDur time.Duration
	pending     bool
	lastEvent   time.Time
	syncing     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       WatcherStats

	// OnSync, when set before Start, is called after every sync pass
	// with its result. Used by the CLI to print pass summaries.
	OnSync func(SyncResult, error)
}

// WatcherStats tracks watcher activity for debugging and tests.
type WatcherStats struct {
	EventsSeen    int
	Suppressed    int
	SyncsRun      int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
	LastSyncTime  time.Time
	LastResult    SyncResult
}

// NewWatcher creates a watcher over opts.DocsDir. A debounce of zero or
// less selects DefaultDebounce.
func NewWatcher(engine *Engine, opts Options, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		watcher:     fw,
		engine:      engine,
		opts:        opts,
		ext:         docs.AdapterFor(opts.Format).Extension(),
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching and returns immediately. Safe to call once;
// subsequent calls are no-ops.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.opts.DocsDir, 0755); err != nil {
		logging.Get(logging.CategoryReconcile).Warn("Watcher: failed to create docs dir %s: %v", w.opts.DocsDir, err)
	}
	if err := w.watcher.Add(w.opts.DocsDir); err != nil {
		logging.Get(logging.CategoryReconcile).Warn("Watcher: initial watch failed: %v", err)
	} else {
		logging.Reconcile("Watcher: watching %s (debounce %s)", w.opts.DocsDir, w.debounceDur)
	}
	// fsnotify watches are not recursive; existing subdirectories need
	// their own entries. New ones are added as their create events arrive.
	w.addSubdirs()

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryReconcile).Error("Watcher: error closing: %v", err)
	}
	logging.Reconcile("Watcher: stopped")
}

func (w *Watcher) addSubdirs() {
	root := w.opts.DocsDir
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == root {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			logging.Get(logging.CategoryReconcile).Warn("Watcher: cannot watch %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	logging.ReconcileDebug("Watcher: event loop started")

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.ReconcileDebug("Watcher: context cancelled")
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryReconcile).Error("Watcher: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New directories must be watched immediately, even our own render
	// output, or edits inside them would go unseen.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			base := filepath.Base(event.Name)
			if !strings.HasPrefix(base, ".") && !strings.HasPrefix(base, "_") {
				if err := w.watcher.Add(event.Name); err != nil {
					logging.Get(logging.CategoryReconcile).Warn("Watcher: cannot watch %s: %v", event.Name, err)
				}
			}
			return
		}
	}
	if event.Op == fsnotify.Chmod {
		return
	}
	base := filepath.Base(event.Name)
	if !strings.HasSuffix(base, "."+w.ext) || strings.HasPrefix(base, ".") || strings.HasPrefix(base, "_") {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.EventsSeen++
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = event.Name
	if w.syncing {
		// Our own render pass writing docs.
		w.stats.Suppressed++
		return
	}
	logging.ReconcileDebug("Watcher: %s %s", event.Op, event.Name)
	w.pending = true
	w.lastEvent = time.Now()
}

// processPending runs a sync once events have settled past the debounce
// window. Called only from the event loop, so passes never overlap.
func (w *Watcher) processPending(ctx context.Context) {
	w.mu.Lock()
	if !w.pending || time.Since(w.lastEvent) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.syncing = true
	w.mu.Unlock()

	res, err := w.engine.Sync(ctx, w.opts)

	w.mu.Lock()
	w.syncing = false
	w.stats.SyncsRun++
	w.stats.LastSyncTime = time.Now()
	w.stats.LastResult = res
	if err != nil {
		w.stats.Errors++
		logging.Get(logging.CategoryReconcile).Error("Watcher: sync failed: %v", err)
	}
	onSync := w.OnSync
	w.mu.Unlock()

	if onSync != nil {
		onSync(res, err)
	}
}

// TriggerSync runs a sync pass immediately, outside the debounce window.
func (w *Watcher) TriggerSync(ctx context.Context) (SyncResult, error) {
	logging.Reconcile("Watcher: manual sync triggered")
	w.mu.Lock()
	w.syncing = true
	w.mu.Unlock()

	res, err := w.engine.Sync(ctx, w.opts)

	w.mu.Lock()
	w.syncing = false
	w.stats.SyncsRun++
	w.stats.LastSyncTime = time.Now()
	w.stats.LastResult = res
	if err != nil {
		w.stats.Errors++
	}
	w.mu.Unlock()
	return res, err
}

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// IsWatching reports whether the event loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// WatchedDirs returns the directories currently being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.watcher.WatchList()
}
