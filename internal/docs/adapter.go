package docs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"engram/internal/store"
)

// FormatAdapter customizes the projection for a documentation framework.
// TransformFrontmatter may add framework keys but must preserve _id, _label,
// _version and _syncHash.
type FormatAdapter interface {
	Name() string
	Extension() string
	TransformFrontmatter(fm map[string]interface{}) map[string]interface{}
	WrapDiagram(code string) string
}

// IndexGenerator is implemented by adapters that maintain an index document
// over the rendered tree.
type IndexGenerator interface {
	GenerateIndex(entities []store.EntityState, outputDir string) error
}

// FrontmatterStripper is implemented by adapters whose TransformFrontmatter
// adds framework keys. Strip removes them when a document is projected back
// onto graph properties, so framework decoration never leaks into the graph.
type FrontmatterStripper interface {
	StripFrontmatter(fm map[string]interface{}) map[string]interface{}
}

var adapters = map[string]FormatAdapter{}

// RegisterAdapter makes an adapter available by name. Later registrations
// win.
func RegisterAdapter(a FormatAdapter) {
	adapters[a.Name()] = a
}

// AdapterFor resolves a format name. Unknown names fall back to the
// pass-through markdown adapter.
func AdapterFor(name string) FormatAdapter {
	if a, ok := adapters[name]; ok {
		return a
	}
	return markdownAdapter{}
}

func init() {
	RegisterAdapter(markdownAdapter{})
	RegisterAdapter(obsidianAdapter{})
}

// markdownAdapter is the pass-through default.
type markdownAdapter struct{}

func (markdownAdapter) Name() string      { return "markdown" }
func (markdownAdapter) Extension() string { return "md" }

func (markdownAdapter) TransformFrontmatter(fm map[string]interface{}) map[string]interface{} {
	return fm
}

func (markdownAdapter) WrapDiagram(code string) string {
	return "```mermaid\n" + code + "```\n"
}

// obsidianAdapter emits Obsidian-flavored output: a tags entry per label in
// frontmatter, mermaid fences, and a wikilink index note over the whole
// tree.
type obsidianAdapter struct{}

func (obsidianAdapter) Name() string      { return "obsidian" }
func (obsidianAdapter) Extension() string { return "md" }

func (obsidianAdapter) TransformFrontmatter(fm map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fm)+1)
	for k, v := range fm {
		out[k] = v
	}
	if label, ok := fm["_label"].(string); ok {
		out["tags"] = []interface{}{"engram/" + label}
	}
	return out
}

// StripFrontmatter removes the adapter-owned tags entry. Under this adapter
// the tags key is always regenerated at render time, so it never represents
// a user edit.
func (obsidianAdapter) StripFrontmatter(fm map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fm))
	for k, v := range fm {
		if k == "tags" {
			continue
		}
		out[k] = v
	}
	return out
}

func (obsidianAdapter) WrapDiagram(code string) string {
	return "```mermaid\n" + code + "```\n"
}

// GenerateIndex writes _index.md at the tree root: one section per label,
// one wikilink per entity, display name from the name property when present.
func (obsidianAdapter) GenerateIndex(entities []store.EntityState, outputDir string) error {
	byLabel := map[string][]store.EntityState{}
	for _, es := range entities {
		byLabel[es.Entity.Label] = append(byLabel[es.Entity.Label], es)
	}
	labels := make([]string, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var b strings.Builder
	b.WriteString("# Engram index\n")
	for _, label := range labels {
		group := byLabel[label]
		sort.Slice(group, func(i, j int) bool {
			return displayName(group[i]) < displayName(group[j])
		})
		b.WriteString("\n## " + label + "\n\n")
		for _, es := range group {
			fmt.Fprintf(&b, "- [[%s/%s|%s]]\n", label, es.Entity.ID, displayName(es))
		}
	}
	return os.WriteFile(filepath.Join(outputDir, "_index.md"), []byte(b.String()), 0644)
}

func displayName(es store.EntityState) string {
	if n, ok := es.State.Props["name"].(string); ok && n != "" {
		return n
	}
	return es.Entity.ID
}
