package store

import (
	"time"
)

// Audit actions form a closed set.
const (
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionDelete   = "delete"
	ActionRelate   = "relate"
	ActionUnrelate = "unrelate"
)

// Relationship directions reported by GetRelationships.
const (
	DirectionOut = "out"
	DirectionIn  = "in"
)

// Entity is the immutable identity layer. Created on first upsert of an id,
// never destroyed, only soft-deleted.
type Entity struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	DeletedBy string     `json:"deletedBy,omitempty"`
}

// State is one immutable versioned snapshot of an entity's user properties.
// The head state has ValidTo == nil.
type State struct {
	EntityID   string                 `json:"entityId"`
	Label      string                 `json:"label"`
	Version    int64                  `json:"version"`
	ValidFrom  time.Time              `json:"validFrom"`
	ValidTo    *time.Time             `json:"validTo,omitempty"`
	RecordedAt time.Time              `json:"recordedAt"`
	Actor      string                 `json:"actor"`
	Props      map[string]interface{} `json:"props"`
}

// EntityState pairs an entity with one of its states.
type EntityState struct {
	Entity Entity `json:"entity"`
	State  State  `json:"state"`
}

// AuditEntry is an append-only record of one mutation. Written in the same
// transaction as the mutation it records; never updated, never deleted.
type AuditEntry struct {
	ID          string    `json:"id"`
	EntityID    string    `json:"entityId"`
	EntityLabel string    `json:"entityLabel"`
	Action      string    `json:"action"`
	Actor       string    `json:"actor"`
	Timestamp   time.Time `json:"timestamp"`
	Changes     string    `json:"changes,omitempty"` // serialized property deltas
}

// Relationship is a typed, directional, temporal edge between two entities.
type Relationship struct {
	Type      string                 `json:"type"`
	FromID    string                 `json:"fromId"`
	ToID      string                 `json:"toId"`
	ValidFrom time.Time              `json:"validFrom"`
	ValidTo   *time.Time             `json:"validTo,omitempty"`
	Actor     string                 `json:"actor"`
	Props     map[string]interface{} `json:"props,omitempty"`
	Direction string                 `json:"direction,omitempty"` // out|in, set by GetRelationships
}

// PropertyChange is one entry of a property delta between two states.
type PropertyChange struct {
	Property string      `json:"property"`
	Old      interface{} `json:"old,omitempty"`
	New      interface{} `json:"new,omitempty"`
}

// ChangeSummary is one row of a changes-since query: an entity with audit
// activity after the cutoff, tagged with its most recent entry.
type ChangeSummary struct {
	EntityID     string    `json:"entityId"`
	Label        string    `json:"label"`
	LastAction   string    `json:"lastAction"`
	LastActor    string    `json:"lastActor"`
	LastActivity time.Time `json:"lastActivity"`
	AuditCount   int64     `json:"auditCount"`
}

// Filter is one conjunctive predicate of a search query.
type Filter struct {
	Property string      `json:"property"`
	Op       string      `json:"op"` // eq | contains | gt | lt | gte | lte | in
	Value    interface{} `json:"value"`
}

// Snapshot is the full graph cross-section at one instant.
type Snapshot struct {
	At       time.Time      `json:"at"`
	Entities []EntityState  `json:"entities"`
	Edges    []Relationship `json:"edges"`
}

// Stats reports table counts for the stats surface.
type Stats struct {
	Entities     int64            `json:"entities"`
	Deleted      int64            `json:"deleted"`
	States       int64            `json:"states"`
	ActiveEdges  int64            `json:"activeEdges"`
	AuditEntries int64            `json:"auditEntries"`
	ByLabel      map[string]int64 `json:"byLabel"`
}
