package schema

import (
	"errors"
	"testing"
)

func mustRegistry(t *testing.T, def SchemaDef) *Registry {
	t.Helper()
	reg, err := NewRegistry(def)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return reg
}

func kitchenSinkSchema() SchemaDef {
	return SchemaDef{
		Nodes: []NodeDef{
			{
				Label: "Thing",
				Properties: map[string]PropertyDef{
					"name":     {Kind: KindString, Required: true},
					"count":    {Kind: KindNumber},
					"enabled":  {Kind: KindBoolean},
					"born":     {Kind: KindDate},
					"homepage": {Kind: KindURL},
					"owner":    {Kind: KindEmail},
					"status":   {Kind: KindEnum, Values: []string{"Active", "Retired"}, Default: "Active"},
					"tags":     {Kind: KindStringList},
					"extra":    {Kind: KindJSON},
				},
			},
		},
	}
}

func validateThing(t *testing.T, props map[string]interface{}) (map[string]interface{}, error) {
	t.Helper()
	reg := mustRegistry(t, kitchenSinkSchema())
	v, err := reg.NodeValidator("Thing")
	if err != nil {
		t.Fatalf("validator lookup: %v", err)
	}
	return v.Validate(props)
}

func TestValidateAllKinds(t *testing.T) {
	out, err := validateThing(t, map[string]interface{}{
		"name":     "widget",
		"count":    3,
		"enabled":  true,
		"born":     "2024-06-01",
		"homepage": "https://example.com/widget",
		"owner":    "team@example.com",
		"status":   "Active",
		"tags":     []interface{}{"a", "b"},
		"extra":    map[string]interface{}{"nested": []interface{}{1, 2}},
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if out["name"] != "widget" {
		t.Errorf("name = %v", out["name"])
	}
	if out["count"] != int64(3) {
		t.Errorf("count should normalize to int64(3), got %T %v", out["count"], out["count"])
	}
	if out["enabled"] != true {
		t.Errorf("enabled = %v", out["enabled"])
	}
	tags, ok := out["tags"].([]interface{})
	if !ok || len(tags) != 2 || tags[0] != "a" {
		t.Errorf("tags = %v", out["tags"])
	}
}

func TestValidateNumberNormalization(t *testing.T) {
	// Integral floats (the JSON decode path) normalize to int64 so that the
	// YAML and JSON decode paths compare equal
	out, err := validateThing(t, map[string]interface{}{"name": "n", "count": float64(42)})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if out["count"] != int64(42) {
		t.Errorf("integral float should normalize to int64, got %T %v", out["count"], out["count"])
	}

	out, err = validateThing(t, map[string]interface{}{"name": "n", "count": 2.5})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if out["count"] != 2.5 {
		t.Errorf("fractional float should stay float64, got %T %v", out["count"], out["count"])
	}
}

func TestValidateDateFormats(t *testing.T) {
	for _, good := range []string{"2024-01-31", "2024-01-31T09:30:00Z", "2024-01-31T09:30:00+02:00"} {
		if _, err := validateThing(t, map[string]interface{}{"name": "n", "born": good}); err != nil {
			t.Errorf("date %q should validate: %v", good, err)
		}
	}
	for _, bad := range []string{"31/01/2024", "yesterday", "2024-13-01"} {
		if _, err := validateThing(t, map[string]interface{}{"name": "n", "born": bad}); err == nil {
			t.Errorf("date %q should be rejected", bad)
		}
	}
}

func TestValidateURLAndEmail(t *testing.T) {
	if _, err := validateThing(t, map[string]interface{}{"name": "n", "homepage": "not a url"}); err == nil {
		t.Error("bad url should be rejected")
	}
	if _, err := validateThing(t, map[string]interface{}{"name": "n", "owner": "not-an-email"}); err == nil {
		t.Error("bad email should be rejected")
	}
}

func TestValidateEnumCanonicalization(t *testing.T) {
	out, err := validateThing(t, map[string]interface{}{"name": "n", "status": "retired"})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if out["status"] != "Retired" {
		t.Errorf("enum should canonicalize to declared casing, got %v", out["status"])
	}

	if _, err := validateThing(t, map[string]interface{}{"name": "n", "status": "unknown"}); err == nil {
		t.Error("non-member enum value should be rejected")
	}
}

func TestValidateStrictMode(t *testing.T) {
	_, err := validateThing(t, map[string]interface{}{"name": "n", "surprise": 1})
	if err == nil {
		t.Fatal("unknown key should be rejected")
	}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Fields) != 1 || ve.Fields[0].Path != "surprise" {
		t.Errorf("unexpected fields: %+v", ve.Fields)
	}
}

func TestValidateRequiredMissing(t *testing.T) {
	_, err := validateThing(t, map[string]interface{}{"count": 1})
	if err == nil {
		t.Fatal("missing required property should be rejected")
	}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if ve.Fields[0].Path != "name" {
		t.Errorf("expected failure on name, got %+v", ve.Fields)
	}
}

func TestValidateDefaultsAppliedOnlyWhenAbsent(t *testing.T) {
	out, err := validateThing(t, map[string]interface{}{"name": "n"})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if out["status"] != "Active" {
		t.Errorf("default should apply when key absent, got %v", out["status"])
	}

	out, err = validateThing(t, map[string]interface{}{"name": "n", "status": "Retired"})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if out["status"] != "Retired" {
		t.Errorf("default must not override a supplied value, got %v", out["status"])
	}
}

func TestValidateAccumulatesAllFailures(t *testing.T) {
	_, err := validateThing(t, map[string]interface{}{
		"count":   "three",
		"enabled": "yes",
		"ghost":   1,
	})
	if err == nil {
		t.Fatal("expected validation failure")
	}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	// count (type), enabled (type), ghost (unknown), name (required)
	if len(ve.Fields) != 4 {
		t.Fatalf("expected 4 field errors, got %d: %v", len(ve.Fields), ve)
	}
	// Fields are sorted by path
	paths := []string{ve.Fields[0].Path, ve.Fields[1].Path, ve.Fields[2].Path, ve.Fields[3].Path}
	want := []string{"count", "enabled", "ghost", "name"}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("field %d: expected %s, got %s", i, want[i], paths[i])
		}
	}
}

func TestValidateStringListElements(t *testing.T) {
	_, err := validateThing(t, map[string]interface{}{"name": "n", "tags": []interface{}{"ok", 7}})
	if err == nil {
		t.Fatal("non-string list element should be rejected")
	}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if ve.Fields[0].Path != "tags[1]" {
		t.Errorf("expected path tags[1], got %s", ve.Fields[0].Path)
	}

	// A plain []string is accepted and normalized
	out, err := validateThing(t, map[string]interface{}{"name": "n", "tags": []string{"x"}})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if _, ok := out["tags"].([]interface{}); !ok {
		t.Errorf("tags should normalize to []interface{}, got %T", out["tags"])
	}
}

func TestOpenEdgeValidatorAcceptsAnything(t *testing.T) {
	reg := mustRegistry(t, SchemaDef{
		Nodes: []NodeDef{{Label: "N", Properties: map[string]PropertyDef{"x": {Kind: KindString}}}},
		Edges: []EdgeDef{{Type: "LINKS", From: "N", To: "N"}},
	})

	v, err := reg.EdgeValidator("N", "LINKS", "N")
	if err != nil {
		t.Fatalf("edge validator lookup: %v", err)
	}

	out, err := v.Validate(map[string]interface{}{"anything": 1, "goes": []interface{}{"here"}})
	if err != nil {
		t.Fatalf("open edge validator should accept any map: %v", err)
	}
	if out["anything"] != int64(1) {
		t.Errorf("open validator still normalizes numbers, got %T", out["anything"])
	}

	if out, err := v.Validate(nil); err != nil || out != nil {
		t.Errorf("nil map should pass through: %v %v", out, err)
	}
}

func TestEdgeValidatorWithProperties(t *testing.T) {
	reg := mustRegistry(t, SchemaDef{
		Nodes: []NodeDef{{Label: "N", Properties: map[string]PropertyDef{"x": {Kind: KindString}}}},
		Edges: []EdgeDef{{Type: "LINKS", From: "N", To: "N", Properties: map[string]PropertyDef{
			"weight": {Kind: KindNumber, Required: true},
		}}},
	})

	v, err := reg.EdgeValidator("N", "LINKS", "N")
	if err != nil {
		t.Fatalf("edge validator lookup: %v", err)
	}

	if _, err := v.Validate(map[string]interface{}{}); err == nil {
		t.Error("missing required edge property should be rejected")
	}
	if _, err := v.Validate(map[string]interface{}{"weight": 1, "stray": true}); err == nil {
		t.Error("unknown edge property should be rejected in strict mode")
	}
	if _, err := v.Validate(map[string]interface{}{"weight": 1}); err != nil {
		t.Errorf("valid edge props rejected: %v", err)
	}
}

func TestNormalizeValueDeep(t *testing.T) {
	in := map[string]interface{}{
		"n":    float64(7),
		"list": []interface{}{float64(1), "s", map[string]interface{}{"inner": 2}},
	}
	out := NormalizeValue(in).(map[string]interface{})
	if out["n"] != int64(7) {
		t.Errorf("top-level number not normalized: %T", out["n"])
	}
	list := out["list"].([]interface{})
	if list[0] != int64(1) {
		t.Errorf("list number not normalized: %T", list[0])
	}
	inner := list[2].(map[string]interface{})
	if inner["inner"] != int64(2) {
		t.Errorf("nested number not normalized: %T", inner["inner"])
	}
}
