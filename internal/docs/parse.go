package docs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"engram/internal/logging"
	"engram/internal/schema"
)

// ParsedDoc is one document read back from the tree.
type ParsedDoc struct {
	FilePath     string
	RelativePath string
	Frontmatter  map[string]interface{}
	Content      string
	Raw          string
}

// ID returns the _id frontmatter key.
func (d ParsedDoc) ID() string {
	s, _ := d.Frontmatter["_id"].(string)
	return s
}

// Label returns the _label frontmatter key.
func (d ParsedDoc) Label() string {
	s, _ := d.Frontmatter["_label"].(string)
	return s
}

// SyncHash returns the _syncHash recorded at last render, empty when absent.
func (d ParsedDoc) SyncHash() string {
	s, _ := d.Frontmatter["_syncHash"].(string)
	return s
}

// UserProps projects the document onto graph properties: every
// non-underscore frontmatter key, plus the body as the content property when
// non-empty.
func (d ParsedDoc) UserProps() map[string]interface{} {
	props := make(map[string]interface{}, len(d.Frontmatter)+1)
	for k, v := range d.Frontmatter {
		if strings.HasPrefix(k, "_") {
			continue
		}
		props[k] = v
	}
	if d.Content != "" {
		props["content"] = d.Content
	}
	return props
}

// ParseTree reads every document with the extension under dir. Files without
// usable frontmatter are skipped with a warning, never aborting the walk.
// Underscore-prefixed basenames (index notes) and dot-directories are
// ignored. A missing dir parses as an empty tree.
func ParseTree(dir, ext string) ([]ParsedDoc, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	var docs []ParsedDoc
	suffix := "." + ext
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path != dir && strings.HasPrefix(entry.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(entry.Name(), suffix) || strings.HasPrefix(entry.Name(), "_") {
			return nil
		}
		doc, ok := parseFile(dir, path)
		if ok {
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk doc tree %s: %w", dir, err)
	}
	logging.DocsDebug("Parsed %d docs under %s", len(docs), dir)
	return docs, nil
}

func parseFile(root, path string) (ParsedDoc, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		logging.Get(logging.CategoryDocs).Warn("Skipping unreadable doc %s: %v", path, err)
		return ParsedDoc{}, false
	}
	raw := string(data)

	fmRaw, body, ok := splitFrontmatter(raw)
	if !ok {
		logging.Get(logging.CategoryDocs).Warn("Skipping %s: no frontmatter fences", path)
		return ParsedDoc{}, false
	}

	var fm map[string]interface{}
	if err := yaml.Unmarshal([]byte(fmRaw), &fm); err != nil {
		logging.Get(logging.CategoryDocs).Warn("Skipping %s: bad frontmatter: %v", path, err)
		return ParsedDoc{}, false
	}
	fm = schema.NormalizeProps(fm)

	id, _ := fm["_id"].(string)
	label, _ := fm["_label"].(string)
	if id == "" || label == "" {
		logging.Get(logging.CategoryDocs).Warn("Skipping %s: missing _id or _label", path)
		return ParsedDoc{}, false
	}

	content := body
	if i := strings.Index(content, DiagramMarker); i >= 0 {
		content = content[:i]
	}
	content = strings.TrimSpace(content)

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return ParsedDoc{
		FilePath:     path,
		RelativePath: rel,
		Frontmatter:  fm,
		Content:      content,
		Raw:          raw,
	}, true
}

// splitFrontmatter separates the YAML block between the opening and closing
// --- fences from the body below.
func splitFrontmatter(s string) (fm, body string, ok bool) {
	if !strings.HasPrefix(s, "---\n") {
		return "", "", false
	}
	rest := s[4:]
	if end := strings.Index(rest, "\n---\n"); end >= 0 {
		return rest[:end+1], rest[end+5:], true
	}
	if strings.HasSuffix(rest, "\n---") {
		return rest[:len(rest)-3], "", true
	}
	return "", "", false
}
