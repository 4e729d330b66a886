package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testSchema() SchemaDef {
	return SchemaDef{
		Nodes: []NodeDef{
			{
				Label: "Service",
				Properties: map[string]PropertyDef{
					"name":   {Kind: KindString, Required: true},
					"status": {Kind: KindEnum, Values: []string{"active", "deprecated"}},
					"port":   {Kind: KindNumber},
				},
				UniqueKeys: []string{"name"},
			},
			{
				Label: "Team",
				Properties: map[string]PropertyDef{
					"name":  {Kind: KindString, Required: true},
					"email": {Kind: KindEmail},
				},
			},
		},
		Edges: []EdgeDef{
			{Type: "OWNED_BY", From: "Service", To: "Team"},
			{Type: "DEPENDS_ON", From: "Service", To: "Service", Properties: map[string]PropertyDef{
				"reason": {Kind: KindString},
			}},
		},
		Constraints: []ConstraintDef{
			{Label: "Service", Property: "name", Kind: "unique"},
		},
	}
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(testSchema())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	if !reg.HasLabel("Service") {
		t.Error("Expected Service label to be registered")
	}
	if reg.HasLabel("Nope") {
		t.Error("Did not expect Nope label")
	}

	labels := reg.NodeLabels()
	if len(labels) != 2 || labels[0] != "Service" || labels[1] != "Team" {
		t.Errorf("Unexpected labels: %v", labels)
	}

	types := reg.EdgeTypes()
	if len(types) != 2 || types[0] != "DEPENDS_ON" || types[1] != "OWNED_BY" {
		t.Errorf("Unexpected edge types: %v", types)
	}

	if _, err := reg.NodeValidator("Service"); err != nil {
		t.Errorf("Expected Service validator: %v", err)
	}
	if _, err := reg.NodeValidator("Nope"); !errors.Is(err, ErrUnknownLabel) {
		t.Errorf("Expected ErrUnknownLabel, got %v", err)
	}

	if _, err := reg.EdgeValidator("Service", "OWNED_BY", "Team"); err != nil {
		t.Errorf("Expected edge validator: %v", err)
	}
	if _, err := reg.EdgeValidator("Team", "OWNED_BY", "Service"); !errors.Is(err, ErrUnknownEdge) {
		t.Errorf("Expected ErrUnknownEdge for reversed endpoints, got %v", err)
	}
}

func TestRegistryCompileFailures(t *testing.T) {
	cases := []struct {
		name string
		def  SchemaDef
	}{
		{
			name: "invalid label identifier",
			def: SchemaDef{Nodes: []NodeDef{
				{Label: "Bad-Label", Properties: map[string]PropertyDef{"x": {Kind: KindString}}},
			}},
		},
		{
			name: "duplicate label",
			def: SchemaDef{Nodes: []NodeDef{
				{Label: "Dup", Properties: map[string]PropertyDef{"x": {Kind: KindString}}},
				{Label: "Dup", Properties: map[string]PropertyDef{"y": {Kind: KindString}}},
			}},
		},
		{
			name: "empty enum values",
			def: SchemaDef{Nodes: []NodeDef{
				{Label: "N", Properties: map[string]PropertyDef{"e": {Kind: KindEnum}}},
			}},
		},
		{
			name: "unknown property kind",
			def: SchemaDef{Nodes: []NodeDef{
				{Label: "N", Properties: map[string]PropertyDef{"x": {Kind: "vector"}}},
			}},
		},
		{
			name: "default fails own kind check",
			def: SchemaDef{Nodes: []NodeDef{
				{Label: "N", Properties: map[string]PropertyDef{"n": {Kind: KindNumber, Default: "ten"}}},
			}},
		},
		{
			name: "unique key not declared",
			def: SchemaDef{Nodes: []NodeDef{
				{Label: "N", Properties: map[string]PropertyDef{"x": {Kind: KindString}}, UniqueKeys: []string{"missing"}},
			}},
		},
		{
			name: "reserved edge type",
			def: SchemaDef{
				Nodes: []NodeDef{{Label: "N", Properties: map[string]PropertyDef{"x": {Kind: KindString}}}},
				Edges: []EdgeDef{{Type: "PREVIOUS", From: "N", To: "N"}},
			},
		},
		{
			name: "invalid edge identifier",
			def: SchemaDef{
				Nodes: []NodeDef{{Label: "N", Properties: map[string]PropertyDef{"x": {Kind: KindString}}}},
				Edges: []EdgeDef{{Type: "HAS SPACE", From: "N", To: "N"}},
			},
		},
		{
			name: "undeclared edge endpoint",
			def: SchemaDef{
				Nodes: []NodeDef{{Label: "N", Properties: map[string]PropertyDef{"x": {Kind: KindString}}}},
				Edges: []EdgeDef{{Type: "POINTS_AT", From: "N", To: "Ghost"}},
			},
		},
		{
			name: "duplicate edge triple",
			def: SchemaDef{
				Nodes: []NodeDef{{Label: "N", Properties: map[string]PropertyDef{"x": {Kind: KindString}}}},
				Edges: []EdgeDef{
					{Type: "LINKS", From: "N", To: "N"},
					{Type: "LINKS", From: "N", To: "N"},
				},
			},
		},
		{
			name: "constraint on undeclared label",
			def: SchemaDef{
				Nodes:       []NodeDef{{Label: "N", Properties: map[string]PropertyDef{"x": {Kind: KindString}}}},
				Constraints: []ConstraintDef{{Label: "Ghost", Property: "x", Kind: "unique"}},
			},
		},
		{
			name: "constraint on undeclared property",
			def: SchemaDef{
				Nodes:       []NodeDef{{Label: "N", Properties: map[string]PropertyDef{"x": {Kind: KindString}}}},
				Constraints: []ConstraintDef{{Label: "N", Property: "ghost", Kind: "index"}},
			},
		},
		{
			name: "constraint with unknown kind",
			def: SchemaDef{
				Nodes:       []NodeDef{{Label: "N", Properties: map[string]PropertyDef{"x": {Kind: KindString}}}},
				Constraints: []ConstraintDef{{Label: "N", Property: "x", Kind: "fulltext"}},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewRegistry(tc.def); err == nil {
				t.Errorf("Expected compile failure for %s", tc.name)
			}
		})
	}
}

func TestReservedEdgeTypes(t *testing.T) {
	for _, typ := range []string{"CURRENT", "PREVIOUS", "AUDITED"} {
		if !IsReservedEdgeType(typ) {
			t.Errorf("%s should be reserved", typ)
		}
	}
	if IsReservedEdgeType("DEPENDS_ON") {
		t.Error("DEPENDS_ON should not be reserved")
	}
}

func TestValidIdent(t *testing.T) {
	valid := []string{"Service", "snake_case", "_leading", "A1", "CamelCase9"}
	invalid := []string{"", "1leading", "has-dash", "has space", "semi;colon", "drop`table"}

	for _, s := range valid {
		if !ValidIdent(s) {
			t.Errorf("%q should be a valid identifier", s)
		}
	}
	for _, s := range invalid {
		if ValidIdent(s) {
			t.Errorf("%q should not be a valid identifier", s)
		}
	}
}

func TestCompiledProjection(t *testing.T) {
	reg, err := NewRegistry(testSchema())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	compiled := reg.Compiled()
	if len(compiled.Nodes) != 2 {
		t.Errorf("Expected 2 nodes in projection, got %d", len(compiled.Nodes))
	}
	if len(compiled.Edges) != 2 {
		t.Errorf("Expected 2 edges in projection, got %d", len(compiled.Edges))
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	content := `nodes:
  - label: Service
    properties:
      name:
        kind: string
        required: true
      status:
        kind: enum
        values: [active, deprecated]
        default: active
edges:
  - type: DEPENDS_ON
    from: Service
    to: Service
constraints:
  - label: Service
    property: name
    kind: unique
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	def, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(def.Nodes) != 1 || def.Nodes[0].Label != "Service" {
		t.Fatalf("unexpected nodes: %+v", def.Nodes)
	}
	if def.Nodes[0].Properties["status"].Default != "active" {
		t.Errorf("expected default 'active', got %v", def.Nodes[0].Properties["status"].Default)
	}
	if len(def.Edges) != 1 || def.Edges[0].Type != "DEPENDS_ON" {
		t.Errorf("unexpected edges: %+v", def.Edges)
	}
	if len(def.Constraints) != 1 || def.Constraints[0].Kind != "unique" {
		t.Errorf("unexpected constraints: %+v", def.Constraints)
	}

	if _, err := NewRegistry(def); err != nil {
		t.Fatalf("loaded schema should compile: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.json")
	content := `{
  "nodes": [
    {"label": "Doc", "properties": {"title": {"kind": "string", "required": true}}}
  ]
}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	def, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(def.Nodes) != 1 || def.Nodes[0].Label != "Doc" {
		t.Fatalf("unexpected nodes: %+v", def.Nodes)
	}
}
