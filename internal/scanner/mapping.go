package scanner

import (
	"fmt"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"gopkg.in/yaml.v3"

	"engram/internal/logging"
)

// PropertyMapping selects one property value from an artifact. The
// sources are checked in order: ComputeFn, Value, From, Field.
type PropertyMapping struct {
	// Field is a bare name looked up on the artifact top level, then
	// under meta.
	Field string
	// From is a dotted path into the artifact map.
	From string
	// Value is a literal.
	Value interface{}
	// Compute is Go source for a func(a map[string]interface{})
	// interface{} literal, interpreted at scan start.
	Compute string
	// ComputeFn is the compiled or programmatically supplied form of
	// Compute.
	ComputeFn func(map[string]interface{}) interface{} `yaml:"-"`
}

// UnmarshalYAML accepts either a bare field name or a mapping with one
// of from, value, compute.
func (pm *PropertyMapping) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&pm.Field)
	}
	var raw struct {
		From    string      `yaml:"from"`
		Value   interface{} `yaml:"value"`
		Compute string      `yaml:"compute"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	pm.From, pm.Value, pm.Compute = raw.From, raw.Value, raw.Compute
	return nil
}

// MappingRule turns artifacts of one kind into entities of one label.
// The first rule whose kind and filter match an artifact wins.
type MappingRule struct {
	ArtifactKind string                     `yaml:"artifact_kind"`
	Label        string                     `yaml:"label"`
	Properties   map[string]PropertyMapping `yaml:"properties"`
	// Filter is Go source for a func(a map[string]interface{}) bool
	// literal; a false result passes the artifact to the next rule.
	Filter string `yaml:"filter"`
	// FilterFn is the compiled or programmatically supplied form of
	// Filter.
	FilterFn func(map[string]interface{}) bool `yaml:"-"`
}

// expressionImports are pre-loaded into the rule interpreter so filter
// and compute sources can use them without import blocks of their own.
var expressionImports = []string{"fmt", "strings", "strconv", "regexp", "sort", "path"}

// compileRules interprets the filter and compute sources of config-file
// rules. Rules carrying ready FilterFn/ComputeFn values are left alone.
// A source that fails to compile fails the scan before any stage runs.
func compileRules(rules []MappingRule) error {
	needed := false
	for r := range rules {
		if rules[r].Filter != "" && rules[r].FilterFn == nil {
			needed = true
		}
		for _, pm := range rules[r].Properties {
			if pm.Compute != "" && pm.ComputeFn == nil {
				needed = true
			}
		}
	}
	if !needed {
		return nil
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fmt.Errorf("failed to load interpreter stdlib: %w", err)
	}
	for _, pkg := range expressionImports {
		if _, err := i.Eval(fmt.Sprintf("import %q", pkg)); err != nil {
			return fmt.Errorf("failed to import %s: %w", pkg, err)
		}
	}

	for r := range rules {
		rule := &rules[r]
		if rule.Filter != "" && rule.FilterFn == nil {
			v, err := i.Eval(rule.Filter)
			if err != nil {
				return fmt.Errorf("filter for %s -> %s: %w", rule.ArtifactKind, rule.Label, err)
			}
			fn, ok := v.Interface().(func(map[string]interface{}) bool)
			if !ok {
				return fmt.Errorf("filter for %s -> %s must be func(map[string]interface{}) bool", rule.ArtifactKind, rule.Label)
			}
			rule.FilterFn = fn
		}
		for name, pm := range rule.Properties {
			if pm.Compute == "" || pm.ComputeFn != nil {
				continue
			}
			v, err := i.Eval(pm.Compute)
			if err != nil {
				return fmt.Errorf("compute for %s.%s: %w", rule.Label, name, err)
			}
			fn, ok := v.Interface().(func(map[string]interface{}) interface{})
			if !ok {
				return fmt.Errorf("compute for %s.%s must be func(map[string]interface{}) interface{}", rule.Label, name)
			}
			pm.ComputeFn = fn
			rule.Properties[name] = pm
		}
	}
	return nil
}

type mappedEntity struct {
	id    string
	label string
	props map[string]interface{}
	art   RawArtifact
}

// applyMappings routes every artifact through the first matching rule.
// Artifacts no rule wants are dropped silently; artifacts whose rule
// targets a label the schema does not declare count as unmapped.
func (s *Scanner) applyMappings(artifacts []RawArtifact, rules []MappingRule, seed string, res *ScanResult) []mappedEntity {
	reg := s.pipeline.Registry()
	var mapped []mappedEntity
	for _, art := range artifacts {
		rule, ok := matchRule(rules, art)
		if !ok {
			continue
		}
		if _, err := reg.NodeValidator(rule.Label); err != nil {
			logging.Get(logging.CategoryScanner).Warn("Rule for %s targets unknown label %s, dropping artifact %s", art.Kind, rule.Label, art.Name)
			res.Unmapped++
			continue
		}
		view := art.AsMap()
		props := make(map[string]interface{}, len(rule.Properties))
		for name, pm := range rule.Properties {
			if v := resolveMapping(pm, view); v != nil {
				props[name] = v
			}
		}
		mapped = append(mapped, mappedEntity{
			id:    entityID(seed, art.FilePath, art.Kind, art.Name),
			label: rule.Label,
			props: props,
			art:   art,
		})
	}
	return mapped
}

func matchRule(rules []MappingRule, art RawArtifact) (*MappingRule, bool) {
	for i := range rules {
		rule := &rules[i]
		if rule.ArtifactKind != art.Kind {
			continue
		}
		if rule.FilterFn != nil && !rule.FilterFn(art.AsMap()) {
			continue
		}
		return rule, true
	}
	return nil, false
}

func resolveMapping(pm PropertyMapping, view map[string]interface{}) interface{} {
	switch {
	case pm.ComputeFn != nil:
		return pm.ComputeFn(view)
	case pm.Value != nil:
		return pm.Value
	case pm.From != "":
		return lookupPath(view, pm.From)
	case pm.Field != "":
		if v, ok := view[pm.Field]; ok {
			return v
		}
		if meta, ok := view["meta"].(map[string]interface{}); ok {
			return meta[pm.Field]
		}
	}
	return nil
}

func lookupPath(view map[string]interface{}, dotted string) interface{} {
	cur := interface{}(view)
	for _, part := range strings.Split(dotted, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}
