package docs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"engram/internal/logging"
	"engram/internal/store"
)

// DiagramMarker separates the document body from the rendered relationship
// diagram. The parser strips the marker and everything after it.
const DiagramMarker = "<!-- engram:diagram -->"

// DefaultPathTemplate places each document under its label directory.
const DefaultPathTemplate = "{label}/{id}.{ext}"

// Renderer projects entity states into a document tree through a format
// adapter. Rendering is byte-idempotent: a file whose content already equals
// what would be produced is left untouched.
type Renderer struct {
	adapter      FormatAdapter
	pathTemplate string
}

// NewRenderer resolves the format adapter by name. An empty pathTemplate
// selects the default layout.
func NewRenderer(format, pathTemplate string) *Renderer {
	if pathTemplate == "" {
		pathTemplate = DefaultPathTemplate
	}
	return &Renderer{adapter: AdapterFor(format), pathTemplate: pathTemplate}
}

// Adapter returns the resolved format adapter.
func (r *Renderer) Adapter() FormatAdapter {
	return r.adapter
}

// DocProps projects a parsed document onto graph properties through the
// adapter, undoing any framework frontmatter it added at render time.
func (r *Renderer) DocProps(doc ParsedDoc) map[string]interface{} {
	props := doc.UserProps()
	if s, ok := r.adapter.(FrontmatterStripper); ok {
		props = s.StripFrontmatter(props)
	}
	return props
}

// RelPath is the document path for one entity relative to the output
// directory. Template placeholders: {label}, {id}, {ext}.
func (r *Renderer) RelPath(label, id string) string {
	p := strings.ReplaceAll(r.pathTemplate, "{label}", label)
	p = strings.ReplaceAll(p, "{id}", id)
	p = strings.ReplaceAll(p, "{ext}", r.adapter.Extension())
	return filepath.FromSlash(p)
}

// RenderEntity produces the full document bytes for one entity: ordered
// frontmatter, the content property as body, then the relationship diagram
// behind the marker when the entity has active edges.
func (r *Renderer) RenderEntity(es store.EntityState, edges []store.Relationship) ([]byte, error) {
	props := es.State.Props

	base := map[string]interface{}{
		"_id":       es.Entity.ID,
		"_label":    es.Entity.Label,
		"_version":  es.State.Version,
		"_syncHash": ComputeSyncHash(props),
	}
	for k, v := range props {
		if strings.HasPrefix(k, "_") || k == "content" {
			continue
		}
		base[k] = v
	}
	fm := r.adapter.TransformFrontmatter(base)

	node, err := frontmatterNode(fm)
	if err != nil {
		return nil, fmt.Errorf("failed to build frontmatter for %s: %w", es.Entity.ID, err)
	}
	fmBytes, err := yaml.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frontmatter for %s: %w", es.Entity.ID, err)
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(fmBytes)
	b.WriteString("---\n")

	if content, ok := props["content"].(string); ok && strings.TrimSpace(content) != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(content))
		b.WriteString("\n")
	}
	if len(edges) > 0 {
		b.WriteString("\n")
		b.WriteString(DiagramMarker)
		b.WriteString("\n")
		b.WriteString(r.adapter.WrapDiagram(mermaidDiagram(edges)))
	}
	return b.Bytes(), nil
}

// frontmatterNode builds the mapping with the four meta keys first, then
// every remaining key sorted. Plain yaml.Marshal of a map would sort the
// meta keys into the middle of the user properties.
func frontmatterNode(fm map[string]interface{}) (*yaml.Node, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string) error {
		val, ok := fm[key]
		if !ok {
			return nil
		}
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: key}
		valNode := &yaml.Node{}
		if err := valNode.Encode(val); err != nil {
			return fmt.Errorf("key %s: %w", key, err)
		}
		root.Content = append(root.Content, keyNode, valNode)
		return nil
	}

	meta := []string{"_id", "_label", "_version", "_syncHash"}
	for _, key := range meta {
		if err := add(key); err != nil {
			return nil, err
		}
	}

	rest := make([]string, 0, len(fm))
	for k := range fm {
		switch k {
		case "_id", "_label", "_version", "_syncHash":
		default:
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		if err := add(key); err != nil {
			return nil, err
		}
	}
	return root, nil
}

var mermaidUnsafe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// mermaidDiagram renders the active edges as a left-to-right graph. Edge
// order follows the store's deterministic relationship ordering.
func mermaidDiagram(edges []store.Relationship) string {
	var b strings.Builder
	b.WriteString("graph LR\n")
	for _, e := range edges {
		fmt.Fprintf(&b, "    %s[%s] -->|%s| %s[%s]\n",
			mermaidUnsafe.ReplaceAllString(e.FromID, "_"), e.FromID,
			e.Type,
			mermaidUnsafe.ReplaceAllString(e.ToID, "_"), e.ToID)
	}
	return b.String()
}

// RenderStats counts the outcome of a full tree render.
type RenderStats struct {
	Written   int
	Unchanged int
	Removed   int
}

// RenderTree writes one document per entity under dir, removes managed
// documents whose entity is gone, and regenerates the adapter's index when
// it has one. edges maps entity id to its active relationships. A non-nil
// labels set scopes stale removal to those labels, so a partial render
// never deletes documents it was not asked to produce.
func (r *Renderer) RenderTree(dir string, entities []store.EntityState, edges map[string][]store.Relationship, labels []string) (RenderStats, error) {
	var stats RenderStats
	expected := make(map[string]bool, len(entities))

	for _, es := range entities {
		rel := r.RelPath(es.Entity.Label, es.Entity.ID)
		expected[rel] = true

		content, err := r.RenderEntity(es, edges[es.Entity.ID])
		if err != nil {
			return stats, err
		}
		path := filepath.Join(dir, rel)

		existing, err := os.ReadFile(path)
		if err == nil && bytes.Equal(existing, content) {
			stats.Unchanged++
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return stats, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, content, 0644); err != nil {
			return stats, fmt.Errorf("failed to write %s: %w", path, err)
		}
		stats.Written++
	}

	removed, err := r.removeStale(dir, expected, labels)
	if err != nil {
		return stats, err
	}
	stats.Removed = removed

	if ig, ok := r.adapter.(IndexGenerator); ok {
		if err := ig.GenerateIndex(entities, dir); err != nil {
			return stats, fmt.Errorf("failed to generate index: %w", err)
		}
	}

	logging.Docs("Rendered tree at %s: %d written, %d unchanged, %d removed",
		dir, stats.Written, stats.Unchanged, stats.Removed)
	return stats, nil
}

// removeStale deletes managed documents (frontmatter carries _id and _label)
// not present in the expected set. Unmanaged files are never touched.
func (r *Renderer) removeStale(dir string, expected map[string]bool, labels []string) (int, error) {
	parsed, err := ParseTree(dir, r.adapter.Extension())
	if err != nil {
		return 0, err
	}
	var inScope map[string]bool
	if labels != nil {
		inScope = make(map[string]bool, len(labels))
		for _, l := range labels {
			inScope[l] = true
		}
	}
	removed := 0
	for _, doc := range parsed {
		if expected[doc.RelativePath] {
			continue
		}
		if inScope != nil && !inScope[doc.Label()] {
			continue
		}
		if err := os.Remove(doc.FilePath); err != nil {
			logging.Get(logging.CategoryDocs).Warn("Failed to remove stale doc %s: %v", doc.FilePath, err)
			continue
		}
		logging.DocsDebug("Removed stale doc %s", doc.RelativePath)
		removed++
	}
	return removed, nil
}
