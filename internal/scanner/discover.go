package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"engram/internal/logging"
)

// defaultIncludes cover the common source extensions plus the manifest
// basenames the generic parser understands.
var defaultIncludes = []string{
	"**/*.go", "**/*.ts", "**/*.tsx", "**/*.js", "**/*.jsx", "**/*.mjs",
	"**/*.py",
	"**/go.mod", "**/package.json", "**/tsconfig.json", "**/Dockerfile", "**/.env",
}

// excludedDirs are never descended into, regardless of user config.
// Hidden directories (.git, .venv, .next, .scanstate, ...) are skipped
// by prefix.
var excludedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
}

type discoveredFile struct {
	relPath  string
	size     int64
	hash     string
	language string
	content  []byte
}

// discover walks the root, applies include and exclude globs, then
// reads and fingerprints the survivors with bounded parallelism.
func (s *Scanner) discover(ctx context.Context, root string, opts Options) ([]discoveredFile, error) {
	includes := opts.Include
	if len(includes) == 0 {
		includes = defaultIncludes
	}

	var candidates []discoveredFile
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if p == root {
				return nil
			}
			if excludedDirs[name] || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !matchesAny(includes, rel) || matchesAny(opts.Exclude, rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		candidates = append(candidates, discoveredFile{
			relPath:  rel,
			size:     info.Size(),
			language: detectLanguage(rel),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range candidates {
		i := i
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(candidates[i].relPath)))
			if err != nil {
				logging.Get(logging.CategoryScanner).Warn("Failed to read %s: %v", candidates[i].relPath, err)
				return nil
			}
			sum := sha256.Sum256(content)
			candidates[i].hash = hex.EncodeToString(sum[:])
			candidates[i].content = content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Unreadable files carry no hash and drop out here.
	files := candidates[:0]
	for _, f := range candidates {
		if f.hash != "" {
			files = append(files, f)
		}
	}
	logging.ScannerDebug("Discovered %d files under %s", len(files), root)
	return files, nil
}

// matchesAny matches a slash-normalized relative path against glob
// patterns. A pattern without a slash, or with a "**/" prefix, matches
// the basename at any depth; otherwise it matches the whole path.
func matchesAny(patterns []string, rel string) bool {
	base := path.Base(rel)
	for _, pattern := range patterns {
		p := filepath.ToSlash(pattern)
		if cut, ok := strings.CutPrefix(p, "**/"); ok {
			p = cut
		}
		target := rel
		if !strings.Contains(p, "/") {
			target = base
		}
		if ok, err := path.Match(p, target); err == nil && ok {
			return true
		}
	}
	return false
}

// detectLanguage goes basename first, extension second, generic last.
func detectLanguage(relPath string) string {
	base := path.Base(relPath)
	switch strings.ToLower(base) {
	case "go.mod":
		return "go"
	case "package.json", "tsconfig.json", "dockerfile", ".env":
		return "generic"
	}
	switch strings.ToLower(path.Ext(base)) {
	case ".go":
		return "go"
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs":
		return "typescript"
	case ".py":
		return "python"
	default:
		return "generic"
	}
}
