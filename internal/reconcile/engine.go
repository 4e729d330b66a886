// Package reconcile keeps the graph and the rendered document tree
// convergent in both directions. A sync builds a changeset from the id
// union of both sides, classifies each entity by comparing the stored
// sync hash against hashes recomputed from graph and doc properties,
// resolves genuine conflicts by strategy, applies graph writes through
// the mutation pipeline, and finishes with a full re-render so every
// doc reflects the post-sync graph.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"engram/internal/docs"
	"engram/internal/logging"
	"engram/internal/memory"
	"engram/internal/store"
)

// Strategy selects how a sync resolves entities where both the graph
// and the doc changed since the last render.
type Strategy string

const (
	// GraphWins re-renders the doc from graph state, discarding doc edits.
	GraphWins Strategy = "graph-wins"
	// DocsWins writes the doc's properties into the graph as a new version.
	DocsWins Strategy = "docs-wins"
	// Merge overlays doc properties onto graph properties and writes the union.
	Merge Strategy = "merge"
	// Fail aborts the sync on the first conflict without applying anything.
	Fail Strategy = "fail"
)

// ValidStrategy reports whether s names a known conflict strategy.
func ValidStrategy(s Strategy) bool {
	switch s {
	case GraphWins, DocsWins, Merge, Fail:
		return true
	}
	return false
}

// Options configures a single sync pass.
type Options struct {
	// DocsDir is the root of the rendered document tree.
	DocsDir string
	// Format selects the output adapter ("markdown", "obsidian").
	Format string
	// Strategy resolves two-sided edits. Defaults to GraphWins.
	Strategy Strategy
	// Actor is recorded on every graph write the sync performs.
	Actor string
	// Labels restricts the sync to the given node labels. Empty means
	// every label the registry declares.
	Labels []string
}

// ConflictRecord describes one entity where both sides changed, and how
// the sync resolved it.
type ConflictRecord struct {
	EntityID   string   `json:"entityId"`
	Label      string   `json:"label"`
	GraphHash  string   `json:"graphHash"`
	DocHash    string   `json:"docHash"`
	Resolution Strategy `json:"resolution"`
}

// ChangeError records a change that could not be applied. The sync
// continues past these; they surface in SyncResult.Errors.
type ChangeError struct {
	EntityID string `json:"entityId"`
	Err      error  `json:"-"`
}

func (e ChangeError) Error() string {
	return fmt.Sprintf("entity %s: %v", e.EntityID, e.Err)
}

func (e ChangeError) Unwrap() error {
	return e.Err
}

// SyncResult summarizes what a sync pass did.
type SyncResult struct {
	Created   int              `json:"created"`
	Updated   int              `json:"updated"`
	Deleted   int              `json:"deleted"`
	Conflicts []ConflictRecord `json:"conflicts,omitempty"`
	Errors    []ChangeError    `json:"errors,omitempty"`
}

// ConflictError aborts a Fail-strategy sync. It names the first
// conflicted entity; SyncResult.Conflicts carries the full list.
type ConflictError struct {
	EntityID  string
	Label     string
	GraphHash string
	DocHash   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("sync conflict on %s (%s): graph hash %s, doc hash %s", e.EntityID, e.Label, e.GraphHash, e.DocHash)
}

// Engine performs bidirectional syncs between the graph and a document
// tree.
type Engine struct {
	reader       *memory.Reader
	pipeline     *memory.Pipeline
	pathTemplate string
}

// NewEngine creates a sync engine. pathTemplate is passed to the
// renderer; empty selects the default layout.
func NewEngine(reader *memory.Reader, pipeline *memory.Pipeline, pathTemplate string) *Engine {
	logging.ReconcileDebug("Sync engine created (pathTemplate=%q)", pathTemplate)
	return &Engine{reader: reader, pipeline: pipeline, pathTemplate: pathTemplate}
}

type changeKind int

const (
	// changeCreateDoc: entity has no doc; the render pass creates one.
	changeCreateDoc changeKind = iota
	// changeCreateGraph: doc has no entity; upsert one from its properties.
	changeCreateGraph
	// changeUpdateGraph: doc edited while the graph held still; graph follows.
	changeUpdateGraph
	// changeRefreshDoc: graph moved while the doc held still; doc follows.
	changeRefreshDoc
	// changeConflict: both sides moved; strategy decides.
	changeConflict
)

type change struct {
	id        string
	label     string
	kind      changeKind
	docProps  map[string]interface{}
	graphHash string
	docHash   string
}

// Sync runs one reconciliation pass and reports what changed.
//
// Classification per entity in the id union, against the _syncHash
// stamped into the doc at its last render:
//
//	graph hash == stored, props equal     -> in sync, nothing to do
//	graph hash == stored, props differ    -> doc edited; graph follows doc
//	graph hash != stored, doc hash == stored -> doc untouched; re-render it
//	graph hash != stored, doc hash != stored -> conflict, resolved by strategy
//
// Graph writes go through the validating pipeline, so a doc edit that
// violates the schema becomes a ChangeError rather than a bad version.
// The pass ends with a full re-render from fresh graph reads; docs whose
// bytes did not change are left untouched on disk.
func (e *Engine) Sync(ctx context.Context, opts Options) (SyncResult, error) {
	var res SyncResult
	if opts.Strategy == "" {
		opts.Strategy = GraphWins
	}
	if !ValidStrategy(opts.Strategy) {
		return res, fmt.Errorf("unknown conflict strategy %q", opts.Strategy)
	}
	timer := logging.StartTimer(logging.CategoryReconcile, "sync")
	defer timer.Stop()

	renderer := docs.NewRenderer(opts.Format, e.pathTemplate)

	labels := opts.Labels
	if len(labels) == 0 {
		labels = e.pipeline.Registry().NodeLabels()
	}
	logging.Reconcile("Sync starting: dir=%s format=%s strategy=%s labels=%v", opts.DocsDir, renderer.Adapter().Name(), opts.Strategy, labels)

	graph, err := e.loadGraphSide(ctx, labels)
	if err != nil {
		return res, err
	}
	docSide, err := e.loadDocSide(opts.DocsDir, renderer, labels)
	if err != nil {
		return res, err
	}

	changes := e.classify(graph, docSide, renderer)

	// Conflicts are recorded before anything is applied so Fail can
	// abort with the complete picture in hand.
	for _, c := range changes {
		if c.kind != changeConflict {
			continue
		}
		res.Conflicts = append(res.Conflicts, ConflictRecord{
			EntityID:   c.id,
			Label:      c.label,
			GraphHash:  c.graphHash,
			DocHash:    c.docHash,
			Resolution: opts.Strategy,
		})
	}
	if opts.Strategy == Fail && len(res.Conflicts) > 0 {
		first := res.Conflicts[0]
		logging.Get(logging.CategoryReconcile).Warn("Sync aborted: %d conflict(s), first on %s", len(res.Conflicts), first.EntityID)
		return res, &ConflictError{
			EntityID:  first.EntityID,
			Label:     first.Label,
			GraphHash: first.GraphHash,
			DocHash:   first.DocHash,
		}
	}

	e.applyGraphWrites(ctx, changes, graph, opts, &res)

	// Every doc is re-rendered from post-write graph state. Unchanged
	// files are byte-compared and skipped, so this also restores docs
	// under graph-wins without touching the in-sync ones.
	entities, edges, err := e.loadRenderInput(ctx, labels, &res)
	if err != nil {
		return res, err
	}
	stats, err := renderer.RenderTree(opts.DocsDir, entities, edges, labels)
	if err != nil {
		return res, err
	}
	res.Deleted = stats.Removed

	logging.Reconcile("Sync complete: created=%d updated=%d deleted=%d conflicts=%d errors=%d",
		res.Created, res.Updated, res.Deleted, len(res.Conflicts), len(res.Errors))
	return res, nil
}

func (e *Engine) loadGraphSide(ctx context.Context, labels []string) (map[string]store.EntityState, error) {
	graph := make(map[string]store.EntityState)
	for _, label := range labels {
		states, err := e.reader.ByLabel(ctx, label)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s entities: %w", label, err)
		}
		for _, es := range states {
			graph[es.Entity.ID] = es
		}
	}
	return graph, nil
}

func (e *Engine) loadDocSide(dir string, renderer *docs.Renderer, labels []string) (map[string]docs.ParsedDoc, error) {
	parsed, err := docs.ParseTree(dir, renderer.Adapter().Extension())
	if err != nil {
		return nil, fmt.Errorf("failed to parse docs tree: %w", err)
	}
	inScope := make(map[string]bool, len(labels))
	for _, l := range labels {
		inScope[l] = true
	}
	docSide := make(map[string]docs.ParsedDoc, len(parsed))
	for _, d := range parsed {
		if !inScope[d.Label()] {
			continue
		}
		if prev, dup := docSide[d.ID()]; dup {
			logging.Get(logging.CategoryReconcile).Warn("Duplicate doc id %s: keeping %s, ignoring %s", d.ID(), prev.RelativePath, d.RelativePath)
			continue
		}
		docSide[d.ID()] = d
	}
	return docSide, nil
}

// classify walks the id union in sorted order and decides what each
// entity needs.
func (e *Engine) classify(graph map[string]store.EntityState, docSide map[string]docs.ParsedDoc, renderer *docs.Renderer) []change {
	ids := make([]string, 0, len(graph)+len(docSide))
	seen := make(map[string]bool, len(graph)+len(docSide))
	for id := range graph {
		ids = append(ids, id)
		seen[id] = true
	}
	for id := range docSide {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var changes []change
	for _, id := range ids {
		es, inGraph := graph[id]
		doc, inDocs := docSide[id]
		switch {
		case inGraph && !inDocs:
			changes = append(changes, change{id: id, label: es.Entity.Label, kind: changeCreateDoc})
		case inDocs && !inGraph:
			changes = append(changes, change{id: id, label: doc.Label(), kind: changeCreateGraph, docProps: renderer.DocProps(doc)})
		default:
			stored := doc.SyncHash()
			graphHash := docs.ComputeSyncHash(es.State.Props)
			docProps := renderer.DocProps(doc)
			if graphHash == stored {
				if store.PropsEqual(es.State.Props, docProps) {
					continue
				}
				// Only the doc moved since the last render.
				changes = append(changes, change{id: id, label: es.Entity.Label, kind: changeUpdateGraph, docProps: docProps})
				continue
			}
			docHash := docs.ComputeSyncHash(docProps)
			if docHash == stored {
				// Only the graph moved; the doc still matches its render.
				changes = append(changes, change{id: id, label: es.Entity.Label, kind: changeRefreshDoc})
				continue
			}
			changes = append(changes, change{
				id:        id,
				label:     es.Entity.Label,
				kind:      changeConflict,
				docProps:  docProps,
				graphHash: graphHash,
				docHash:   docHash,
			})
		}
	}
	return changes
}

func (e *Engine) applyGraphWrites(ctx context.Context, changes []change, graph map[string]store.EntityState, opts Options, res *SyncResult) {
	for _, c := range changes {
		switch c.kind {
		case changeCreateGraph, changeUpdateGraph:
			if _, err := e.pipeline.Upsert(ctx, c.label, c.id, c.docProps, opts.Actor); err != nil {
				logging.Get(logging.CategoryReconcile).Warn("Failed to apply doc %s to graph: %v", c.id, err)
				res.Errors = append(res.Errors, ChangeError{EntityID: c.id, Err: err})
				continue
			}
			if c.kind == changeCreateGraph {
				res.Created++
			} else {
				res.Updated++
			}
		case changeConflict:
			switch opts.Strategy {
			case DocsWins:
				e.writeResolved(ctx, c.label, c.id, c.docProps, opts.Actor, res)
			case Merge:
				merged := mergeProps(graph[c.id].State.Props, c.docProps)
				e.writeResolved(ctx, c.label, c.id, merged, opts.Actor, res)
			}
			// GraphWins writes nothing; the render pass restores the doc.
		case changeCreateDoc:
			res.Created++
		case changeRefreshDoc:
			res.Updated++
		}
	}
}

// writeResolved applies a conflict resolution to the graph. The entity
// stays counted under Conflicts, not Updated.
func (e *Engine) writeResolved(ctx context.Context, label, id string, props map[string]interface{}, actor string, res *SyncResult) {
	if _, err := e.pipeline.Upsert(ctx, label, id, props, actor); err != nil {
		logging.Get(logging.CategoryReconcile).Warn("Failed to resolve conflict on %s: %v", id, err)
		res.Errors = append(res.Errors, ChangeError{EntityID: id, Err: err})
	}
}

// mergeProps overlays doc properties onto graph properties. Keys present
// on both sides take the doc's value.
func mergeProps(graphProps, docProps map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(graphProps)+len(docProps))
	for k, v := range graphProps {
		if strings.HasPrefix(k, "_") {
			continue
		}
		merged[k] = v
	}
	for k, v := range docProps {
		merged[k] = v
	}
	return merged
}

func (e *Engine) loadRenderInput(ctx context.Context, labels []string, res *SyncResult) ([]store.EntityState, map[string][]store.Relationship, error) {
	var entities []store.EntityState
	for _, label := range labels {
		states, err := e.reader.ByLabel(ctx, label)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to reload %s entities: %w", label, err)
		}
		entities = append(entities, states...)
	}
	edges := make(map[string][]store.Relationship)
	for _, es := range entities {
		rels, err := e.reader.Relationships(ctx, es.Entity.ID)
		if err != nil {
			res.Errors = append(res.Errors, ChangeError{EntityID: es.Entity.ID, Err: err})
			continue
		}
		if len(rels) > 0 {
			edges[es.Entity.ID] = rels
		}
	}
	return entities, edges, nil
}
