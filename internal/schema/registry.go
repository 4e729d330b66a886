package schema

import (
	"fmt"
	"sort"
)

type edgeKey struct {
	From string
	Type string
	To   string
}

// Registry holds the compiled schema: label -> node validator and
// (from, type, to) -> edge validator, both O(1) lookups. Immutable after
// NewRegistry; all readers share it without locks.
type Registry struct {
	def            SchemaDef
	nodes          map[string]NodeDef
	edges          map[edgeKey]EdgeDef
	nodeValidators map[string]*Validator
	edgeValidators map[edgeKey]*Validator
}

// NewRegistry compiles def. Any compilation failure (bad identifier, reserved
// edge type, undeclared endpoint, empty enum, invalid default) is fatal at
// startup.
func NewRegistry(def SchemaDef) (*Registry, error) {
	r := &Registry{
		def:            def,
		nodes:          make(map[string]NodeDef, len(def.Nodes)),
		edges:          make(map[edgeKey]EdgeDef, len(def.Edges)),
		nodeValidators: make(map[string]*Validator, len(def.Nodes)),
		edgeValidators: make(map[edgeKey]*Validator, len(def.Edges)),
	}

	for _, node := range def.Nodes {
		if !ValidIdent(node.Label) {
			return nil, fmt.Errorf("invalid node label %q: must match [A-Za-z_][A-Za-z0-9_]*", node.Label)
		}
		if _, dup := r.nodes[node.Label]; dup {
			return nil, fmt.Errorf("duplicate node label %q", node.Label)
		}
		for _, key := range node.UniqueKeys {
			if _, ok := node.Properties[key]; !ok {
				return nil, fmt.Errorf("node %q: unique key %q is not a declared property", node.Label, key)
			}
		}
		v, err := compileValidator(node.Label, node.Properties, false)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", node.Label, err)
		}
		r.nodes[node.Label] = node
		r.nodeValidators[node.Label] = v
	}

	for _, edge := range def.Edges {
		if !ValidIdent(edge.Type) {
			return nil, fmt.Errorf("invalid edge type %q: must match [A-Za-z_][A-Za-z0-9_]*", edge.Type)
		}
		if IsReservedEdgeType(edge.Type) {
			return nil, fmt.Errorf("edge type %q collides with a reserved structural type", edge.Type)
		}
		if _, ok := r.nodes[edge.From]; !ok {
			return nil, fmt.Errorf("edge %q: undeclared from label %q", edge.Type, edge.From)
		}
		if _, ok := r.nodes[edge.To]; !ok {
			return nil, fmt.Errorf("edge %q: undeclared to label %q", edge.Type, edge.To)
		}
		key := edgeKey{From: edge.From, Type: edge.Type, To: edge.To}
		if _, dup := r.edges[key]; dup {
			return nil, fmt.Errorf("duplicate edge %s-[%s]->%s", edge.From, edge.Type, edge.To)
		}
		// Edge validators with no declared properties accept any map
		v, err := compileValidator(edge.Type, edge.Properties, len(edge.Properties) == 0)
		if err != nil {
			return nil, fmt.Errorf("edge %q: %w", edge.Type, err)
		}
		r.edges[key] = edge
		r.edgeValidators[key] = v
	}

	for _, c := range def.Constraints {
		node, ok := r.nodes[c.Label]
		if !ok {
			return nil, fmt.Errorf("constraint on undeclared label %q", c.Label)
		}
		if _, ok := node.Properties[c.Property]; !ok {
			return nil, fmt.Errorf("constraint on %q: undeclared property %q", c.Label, c.Property)
		}
		switch c.Kind {
		case "unique", "index":
		default:
			return nil, fmt.Errorf("constraint on %s.%s: unknown kind %q", c.Label, c.Property, c.Kind)
		}
	}

	return r, nil
}

// NodeValidator returns the compiled validator for label.
func (r *Registry) NodeValidator(label string) (*Validator, error) {
	v, ok := r.nodeValidators[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	return v, nil
}

// EdgeValidator returns the compiled validator for the (from, type, to) triple.
func (r *Registry) EdgeValidator(from, edgeType, to string) (*Validator, error) {
	v, ok := r.edgeValidators[edgeKey{From: from, Type: edgeType, To: to}]
	if !ok {
		return nil, fmt.Errorf("%w: %s-[%s]->%s", ErrUnknownEdge, from, edgeType, to)
	}
	return v, nil
}

// HasLabel reports whether label is declared.
func (r *Registry) HasLabel(label string) bool {
	_, ok := r.nodes[label]
	return ok
}

// Node returns the declaration for label.
func (r *Registry) Node(label string) (NodeDef, bool) {
	n, ok := r.nodes[label]
	return n, ok
}

// EdgeBetween returns the declaration for the (from, type, to) triple.
func (r *Registry) EdgeBetween(from, edgeType, to string) (EdgeDef, bool) {
	e, ok := r.edges[edgeKey{From: from, Type: edgeType, To: to}]
	return e, ok
}

// NodeLabels returns all declared labels, sorted.
func (r *Registry) NodeLabels() []string {
	labels := make([]string, 0, len(r.nodes))
	for label := range r.nodes {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// EdgeTypes returns all declared edge type names, sorted and deduplicated.
func (r *Registry) EdgeTypes() []string {
	seen := make(map[string]bool, len(r.edges))
	var types []string
	for key := range r.edges {
		if !seen[key.Type] {
			seen[key.Type] = true
			types = append(types, key.Type)
		}
	}
	sort.Strings(types)
	return types
}

// Def returns the schema as loaded.
func (r *Registry) Def() SchemaDef {
	return r.def
}

// CompiledSchema is the read-only projection served by the schema resource.
type CompiledSchema struct {
	Nodes []NodeDef `json:"nodes"`
	Edges []EdgeDef `json:"edges"`
}

// Compiled returns the {nodes, edges} projection.
func (r *Registry) Compiled() CompiledSchema {
	return CompiledSchema{Nodes: r.def.Nodes, Edges: r.def.Edges}
}
