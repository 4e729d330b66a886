package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"engram/internal/store"
)

// Reader is the temporal read surface: thin passthroughs to the store plus
// the derived diff and changelog operations.
type Reader struct {
	store *store.Store
}

// NewReader wraps a store for reading.
func NewReader(st *store.Store) *Reader {
	return &Reader{store: st}
}

// Current returns the entity and its head state, or nil when the id is
// unknown or soft-deleted.
func (r *Reader) Current(ctx context.Context, id string) (*store.EntityState, error) {
	return r.store.GetCurrent(ctx, id)
}

// AtTime returns the state whose validity interval covers t, or nil.
func (r *Reader) AtTime(ctx context.Context, id string, t time.Time) (*store.EntityState, error) {
	return r.store.GetAtTime(ctx, id, t)
}

// History returns every state of the entity, newest version first.
func (r *Reader) History(ctx context.Context, id string) ([]store.State, error) {
	return r.store.GetHistory(ctx, id)
}

// ByLabel returns the head states of all non-deleted entities with label.
func (r *Reader) ByLabel(ctx context.Context, label string) ([]store.EntityState, error) {
	return r.store.QueryByLabel(ctx, label)
}

// Relationships returns the active edges touching the entity, direction
// tagged.
func (r *Reader) Relationships(ctx context.Context, id string) ([]store.Relationship, error) {
	return r.store.GetRelationships(ctx, id)
}

// ChangesSince lists entities with audit activity after t, most recent
// first, optionally filtered by labels and actors.
func (r *Reader) ChangesSince(ctx context.Context, t time.Time, labels, actors []string, limit int) ([]store.ChangeSummary, error) {
	return r.store.ChangesSince(ctx, t, labels, actors, limit)
}

// Search filters head states of one label by conjunctive predicates.
func (r *Reader) Search(ctx context.Context, label string, filters []store.Filter, limit int, orderBy string) ([]store.EntityState, error) {
	return r.store.Search(ctx, label, filters, limit, orderBy)
}

// SnapshotAt returns the graph cross-section at t.
func (r *Reader) SnapshotAt(ctx context.Context, t time.Time, labels []string) (store.Snapshot, error) {
	return r.store.SnapshotAt(ctx, t, labels)
}

// AuditLog returns the entity's audit trail in write order.
func (r *Reader) AuditLog(ctx context.Context, id string) ([]store.AuditEntry, error) {
	return r.store.GetAuditLog(ctx, id)
}

// StateDiff is the property-level difference between two versions of one
// entity.
type StateDiff struct {
	EntityID    string                 `json:"entityId"`
	FromVersion int64                  `json:"fromVersion"`
	ToVersion   int64                  `json:"toVersion"`
	Changes     []store.PropertyChange `json:"changes"`
}

// DiffStates compares the user properties of two states. Underscore-prefixed
// keys are ignored; values compare by deep structural equality.
func (r *Reader) DiffStates(oldState, newState store.State) StateDiff {
	return StateDiff{
		EntityID:    newState.EntityID,
		FromVersion: oldState.Version,
		ToVersion:   newState.Version,
		Changes:     store.DiffProps(oldState.Props, newState.Props),
	}
}

// Diff loads two versions of an entity and diffs them. Diffing a version
// against itself yields no changes.
func (r *Reader) Diff(ctx context.Context, id string, fromVersion, toVersion int64) (StateDiff, error) {
	history, err := r.store.GetHistory(ctx, id)
	if err != nil {
		return StateDiff{}, err
	}
	var from, to *store.State
	for i := range history {
		if history[i].Version == fromVersion {
			from = &history[i]
		}
		if history[i].Version == toVersion {
			to = &history[i]
		}
	}
	if from == nil {
		return StateDiff{}, fmt.Errorf("%w: %s has no version %d", store.ErrNotFound, id, fromVersion)
	}
	if to == nil {
		return StateDiff{}, fmt.Errorf("%w: %s has no version %d", store.ErrNotFound, id, toVersion)
	}
	return r.DiffStates(*from, *to), nil
}

// Changelog returns pairwise diffs across the entity's history in ascending
// version order. A single-version entity has an empty changelog.
func (r *Reader) Changelog(ctx context.Context, id string) ([]StateDiff, error) {
	history, err := r.store.GetHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	sort.Slice(history, func(i, j int) bool { return history[i].Version < history[j].Version })

	diffs := make([]StateDiff, 0, len(history))
	for i := 1; i < len(history); i++ {
		diffs = append(diffs, r.DiffStates(history[i-1], history[i]))
	}
	return diffs, nil
}
