// Package memory is the mutation and read surface of the engram graph.
// Every write goes through the Pipeline, which validates properties against
// the compiled schema before anything reaches storage; reads and the derived
// temporal operations (diff, changelog) live on the Reader.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"engram/internal/logging"
	"engram/internal/schema"
	"engram/internal/store"
)

// Pipeline is the validate-then-version write path. Mutations validate
// against the schema registry, apply in a single store transaction, and
// leave an audit entry in that same transaction.
type Pipeline struct {
	registry *schema.Registry
	store    *store.Store
}

// NewPipeline wires a compiled registry to a store.
func NewPipeline(registry *schema.Registry, st *store.Store) *Pipeline {
	return &Pipeline{registry: registry, store: st}
}

// UpsertResult reports the outcome of one upsert.
type UpsertResult struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
	Created bool   `json:"created"`
}

// Upsert validates props against the node schema for label and writes the
// entity: version 1 for a new id, head+1 for a known one. An empty id asks
// the pipeline to mint one.
func (p *Pipeline) Upsert(ctx context.Context, label, id string, props map[string]interface{}, actor string) (UpsertResult, error) {
	v, err := p.registry.NodeValidator(label)
	if err != nil {
		return UpsertResult{}, err
	}
	normalized, err := v.Validate(props)
	if err != nil {
		logging.MemoryDebug("Upsert of %s/%s rejected: %v", label, id, err)
		return UpsertResult{}, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	version, created, err := p.store.UpsertEntity(ctx, id, label, normalized, actor, time.Now().UTC(), uuid.NewString())
	if err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{ID: id, Version: version, Created: created}, nil
}

// UpsertItem is one member of a batch upsert.
type UpsertItem struct {
	ID    string                 `json:"id,omitempty"`
	Props map[string]interface{} `json:"props"`
}

// BatchError ties a failure to the batch index it came from.
type BatchError struct {
	Index int
	ID    string
	Err   error
}

func (e BatchError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e BatchError) Unwrap() error { return e.Err }

// BatchResult reports per-item outcomes of a batch upsert: one Results entry
// per committed item, one Errors entry per failed item.
type BatchResult struct {
	Results []UpsertResult
	Errors  []BatchError
}

// UpsertMany validates every item first, then commits each surviving item in
// its own transaction. Failures accumulate per item; one bad member never
// aborts the rest. An unknown label fails the whole batch up front.
func (p *Pipeline) UpsertMany(ctx context.Context, label string, items []UpsertItem, actor string) (BatchResult, error) {
	v, err := p.registry.NodeValidator(label)
	if err != nil {
		return BatchResult{}, err
	}

	var res BatchResult
	normalized := make([]map[string]interface{}, len(items))
	for i, item := range items {
		props, err := v.Validate(item.Props)
		if err != nil {
			res.Errors = append(res.Errors, BatchError{Index: i, ID: item.ID, Err: err})
			continue
		}
		normalized[i] = props
	}

	for i, item := range items {
		if normalized[i] == nil {
			continue
		}
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		version, created, err := p.store.UpsertEntity(ctx, id, label, normalized[i], actor, time.Now().UTC(), uuid.NewString())
		if err != nil {
			res.Errors = append(res.Errors, BatchError{Index: i, ID: id, Err: err})
			continue
		}
		res.Results = append(res.Results, UpsertResult{ID: id, Version: version, Created: created})
	}

	logging.Memory("Batch upsert %s: %d items, %d committed, %d failed",
		label, len(items), len(res.Results), len(res.Errors))
	return res, nil
}

// Delete soft-deletes the entity. Already-deleted entities are tolerated
// silently; an id that never existed is store.ErrNotFound.
func (p *Pipeline) Delete(ctx context.Context, id, actor string) error {
	return p.store.SoftDeleteEntity(ctx, id, actor, time.Now().UTC(), uuid.NewString())
}

// Relate validates edge props against the schema for the
// (fromLabel, type, toLabel) triple and creates the active edge. Both
// endpoints must already exist.
func (p *Pipeline) Relate(ctx context.Context, fromID, toID, edgeType, fromLabel, toLabel string, props map[string]interface{}, actor string) error {
	v, err := p.registry.EdgeValidator(fromLabel, edgeType, toLabel)
	if err != nil {
		return err
	}
	normalized, err := v.Validate(props)
	if err != nil {
		return err
	}
	return p.store.CreateRelationship(ctx, fromID, toID, edgeType, normalized, actor, time.Now().UTC(), uuid.NewString())
}

// Unrelate closes the active edge of the given type between the ordered
// pair. A missing active edge is a silent no-op.
func (p *Pipeline) Unrelate(ctx context.Context, fromID, toID, edgeType, actor string) error {
	_, err := p.store.CloseRelationship(ctx, fromID, toID, edgeType, actor, time.Now().UTC(), uuid.NewString())
	return err
}

// Validate runs node-schema validation for label without writing anything.
// Returns the normalized property map the store would have received.
func (p *Pipeline) Validate(label string, props map[string]interface{}) (map[string]interface{}, error) {
	v, err := p.registry.NodeValidator(label)
	if err != nil {
		return nil, err
	}
	return v.Validate(props)
}

// Registry exposes the compiled schema backing this pipeline.
func (p *Pipeline) Registry() *schema.Registry {
	return p.registry
}
