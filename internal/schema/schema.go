// Package schema compiles a declarative schema definition into per-label and
// per-edge validators. The compiled registry is immutable after startup and is
// shared by all readers without locks.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// PropertyKind is the tagged variant selecting per-kind validation behavior.
type PropertyKind string

const (
	KindString     PropertyKind = "string"
	KindNumber     PropertyKind = "number"
	KindBoolean    PropertyKind = "boolean"
	KindDate       PropertyKind = "date"
	KindURL        PropertyKind = "url"
	KindEmail      PropertyKind = "email"
	KindEnum       PropertyKind = "enum"
	KindStringList PropertyKind = "stringList"
	KindJSON       PropertyKind = "json"
)

// PropertyDef declares one property of a node or edge.
type PropertyDef struct {
	Kind     PropertyKind `yaml:"kind" json:"kind"`
	Required bool         `yaml:"required,omitempty" json:"required,omitempty"`
	Values   []string     `yaml:"values,omitempty" json:"values,omitempty"` // enum members
	Default  interface{}  `yaml:"default,omitempty" json:"default,omitempty"`
}

// NodeDef declares one entity label and its property set.
type NodeDef struct {
	Label      string                 `yaml:"label" json:"label"`
	Properties map[string]PropertyDef `yaml:"properties" json:"properties"`
	UniqueKeys []string               `yaml:"uniqueKeys,omitempty" json:"uniqueKeys,omitempty"`
}

// EdgeDef declares one relationship type between two labels.
type EdgeDef struct {
	Type       string                 `yaml:"type" json:"type"`
	From       string                 `yaml:"from" json:"from"`
	To         string                 `yaml:"to" json:"to"`
	Properties map[string]PropertyDef `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// ConstraintDef requests storage-level indexing for a label/property pair.
type ConstraintDef struct {
	Label    string `yaml:"label" json:"label"`
	Property string `yaml:"property" json:"property"`
	Kind     string `yaml:"kind" json:"kind"` // unique | index
}

// SchemaDef is the process-wide schema, loaded once at startup.
type SchemaDef struct {
	Nodes       []NodeDef       `yaml:"nodes" json:"nodes"`
	Edges       []EdgeDef       `yaml:"edges,omitempty" json:"edges,omitempty"`
	Constraints []ConstraintDef `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}

// Reserved relationship types are structural (version chain and audit links).
// User edge types must not collide with them.
var reservedEdgeTypes = map[string]bool{
	"CURRENT":  true,
	"PREVIOUS": true,
	"AUDITED":  true,
}

// IsReservedEdgeType reports whether t names a structural relationship type.
func IsReservedEdgeType(t string) bool {
	return reservedEdgeTypes[t]
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent reports whether s is safe to interpolate into storage queries.
// Labels and relationship types must satisfy this before use; values never
// need it because they are always bound as parameters.
func ValidIdent(s string) bool {
	return identRe.MatchString(s)
}

// Load reads a schema definition from a YAML or JSON file.
func Load(path string) (SchemaDef, error) {
	var def SchemaDef
	data, err := os.ReadFile(path)
	if err != nil {
		return def, fmt.Errorf("failed to read schema file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &def); err != nil {
			return def, fmt.Errorf("failed to parse schema JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &def); err != nil {
			return def, fmt.Errorf("failed to parse schema YAML: %w", err)
		}
	}

	return def, nil
}
