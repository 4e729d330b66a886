package scanner

import (
	"encoding/json"
	"path"
	"regexp"
	"strings"
)

// LanguageParser turns one file into raw artifacts. Parsers must be
// forgiving: extract what the regexes recognize, never fail on source
// that does not match.
type LanguageParser interface {
	Languages() []string
	Parse(file string, content []byte) ([]RawArtifact, error)
}

func builtinParsers() map[string]LanguageParser {
	parsers := make(map[string]LanguageParser)
	for _, p := range []LanguageParser{
		typescriptParser{},
		pythonParser{},
		goParser{},
		genericParser{},
	} {
		for _, lang := range p.Languages() {
			parsers[lang] = p
		}
	}
	return parsers
}

// fileArtifact is the per-file anchor artifact. Its name is the
// basename without extension so that import refs can resolve to it.
func fileArtifact(file, language string) RawArtifact {
	name := path.Base(file)
	if ext := path.Ext(name); ext != "" && name != ext {
		name = strings.TrimSuffix(name, ext)
	}
	return RawArtifact{
		Kind:     KindFile,
		Name:     name,
		FilePath: file,
		Language: language,
		Meta:     map[string]interface{}{"path": file},
	}
}

// importName reduces a relative import specifier to the basename its
// target file artifact is named by. Bare specifiers stay whole so they
// can match dependency artifacts.
func importName(target string) string {
	if !strings.HasPrefix(target, ".") {
		return target
	}
	base := path.Base(target)
	if ext := path.Ext(base); ext != "" && base != ext {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

func splitNameList(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// --- typed-JS family ---

var (
	tsImportRe    = regexp.MustCompile(`^import\s+(?:[^'"]*\s+from\s+)?['"]([^'"]+)['"]`)
	tsFuncRe      = regexp.MustCompile(`^export\s+(?:default\s+)?(?:async\s+)?function\s+(\w+)`)
	tsConstRe     = regexp.MustCompile(`^export\s+const\s+(\w+)`)
	tsClassRe     = regexp.MustCompile(`^export\s+(?:default\s+)?(?:abstract\s+)?class\s+(\w+)(?:\s+extends\s+([\w.]+))?(?:\s+implements\s+([^{]+))?`)
	tsInterfaceRe = regexp.MustCompile(`^export\s+interface\s+(\w+)(?:\s+extends\s+([^{]+))?`)
	tsTypeRe      = regexp.MustCompile(`^export\s+type\s+(\w+)`)
)

type typescriptParser struct{}

func (typescriptParser) Languages() []string { return []string{"typescript", "javascript"} }

func (typescriptParser) Parse(file string, content []byte) ([]RawArtifact, error) {
	artifacts := []RawArtifact{fileArtifact(file, "typescript")}

	for i, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(raw)
		lineNo := i + 1

		if m := tsImportRe.FindStringSubmatch(line); m != nil {
			artifacts[0].Refs = append(artifacts[0].Refs, Ref{Kind: "imports", Target: importName(m[1])})
			continue
		}
		if m := tsFuncRe.FindStringSubmatch(line); m != nil {
			artifacts = append(artifacts, RawArtifact{
				Kind: KindFunction, Name: m[1], FilePath: file, Language: "typescript", Line: lineNo,
			})
			continue
		}
		if m := tsClassRe.FindStringSubmatch(line); m != nil {
			art := RawArtifact{
				Kind: KindClass, Name: m[1], FilePath: file, Language: "typescript", Line: lineNo,
				Meta: map[string]interface{}{},
			}
			if m[2] != "" {
				art.Meta["extends"] = m[2]
				art.Refs = append(art.Refs, Ref{Kind: "extends", Target: m[2]})
			}
			if m[3] != "" {
				impls := splitNameList(m[3])
				art.Meta["implements"] = impls
				for _, impl := range impls {
					art.Refs = append(art.Refs, Ref{Kind: "implements", Target: impl})
				}
			}
			artifacts = append(artifacts, art)
			continue
		}
		if m := tsInterfaceRe.FindStringSubmatch(line); m != nil {
			art := RawArtifact{
				Kind: KindInterface, Name: m[1], FilePath: file, Language: "typescript", Line: lineNo,
			}
			for _, ext := range splitNameList(m[2]) {
				art.Refs = append(art.Refs, Ref{Kind: "extends", Target: ext})
			}
			artifacts = append(artifacts, art)
			continue
		}
		if m := tsTypeRe.FindStringSubmatch(line); m != nil {
			artifacts = append(artifacts, RawArtifact{
				Kind: KindType, Name: m[1], FilePath: file, Language: "typescript", Line: lineNo,
			})
			continue
		}
		if m := tsConstRe.FindStringSubmatch(line); m != nil {
			kind := KindExport
			if strings.Contains(line, "=>") {
				kind = KindFunction
			}
			artifacts = append(artifacts, RawArtifact{
				Kind: kind, Name: m[1], FilePath: file, Language: "typescript", Line: lineNo,
			})
		}
	}
	return artifacts, nil
}

// --- python ---

var (
	pyClassRe     = regexp.MustCompile(`^class\s+(\w+)(?:\(([^)]*)\))?\s*:`)
	pyDefRe       = regexp.MustCompile(`^(?:async\s+)?def\s+(\w+)\s*\(`)
	pyImportRe    = regexp.MustCompile(`^import\s+([\w.]+)`)
	pyFromRe      = regexp.MustCompile(`^from\s+([\w.]+)\s+import`)
	pyDecoratorRe = regexp.MustCompile(`^@([\w.]+)`)
)

type pythonParser struct{}

func (pythonParser) Languages() []string { return []string{"python"} }

func (pythonParser) Parse(file string, content []byte) ([]RawArtifact, error) {
	artifacts := []RawArtifact{fileArtifact(file, "python")}
	var decorators []string

	for i, line := range strings.Split(string(content), "\n") {
		lineNo := i + 1
		// Indented lines are method bodies and nested defs; only the
		// top level maps to artifacts.
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}

		if m := pyDecoratorRe.FindStringSubmatch(line); m != nil {
			decorators = append(decorators, m[1])
			continue
		}
		if m := pyImportRe.FindStringSubmatch(line); m != nil {
			artifacts[0].Refs = append(artifacts[0].Refs, Ref{Kind: "imports", Target: m[1]})
			decorators = nil
			continue
		}
		if m := pyFromRe.FindStringSubmatch(line); m != nil {
			artifacts[0].Refs = append(artifacts[0].Refs, Ref{Kind: "imports", Target: m[1]})
			decorators = nil
			continue
		}
		if m := pyClassRe.FindStringSubmatch(line); m != nil {
			art := RawArtifact{
				Kind: KindClass, Name: m[1], FilePath: file, Language: "python", Line: lineNo,
				Meta: map[string]interface{}{},
			}
			if len(decorators) > 0 {
				art.Meta["decorators"] = append([]string(nil), decorators...)
			}
			for _, base := range splitNameList(m[2]) {
				if base == "object" || strings.Contains(base, "=") {
					continue
				}
				art.Refs = append(art.Refs, Ref{Kind: "extends", Target: base})
			}
			artifacts = append(artifacts, art)
			decorators = nil
			continue
		}
		if m := pyDefRe.FindStringSubmatch(line); m != nil {
			art := RawArtifact{
				Kind: KindFunction, Name: m[1], FilePath: file, Language: "python", Line: lineNo,
			}
			if len(decorators) > 0 {
				art.Meta = map[string]interface{}{"decorators": append([]string(nil), decorators...)}
			}
			artifacts = append(artifacts, art)
			decorators = nil
			continue
		}
		decorators = nil
	}
	return artifacts, nil
}

// --- go ---

var (
	goFuncRe       = regexp.MustCompile(`^func\s+(?:\(([^)]+)\)\s+)?(\w+)\s*[([]`)
	goStructRe     = regexp.MustCompile(`^type\s+(\w+)(?:\[[^\]]*\])?\s+struct\b`)
	goInterfaceRe  = regexp.MustCompile(`^type\s+(\w+)(?:\[[^\]]*\])?\s+interface\b`)
	goImportRe     = regexp.MustCompile(`^import\s+(?:\w+\s+)?"([^"]+)"`)
	goImportLineRe = regexp.MustCompile(`^(?:[\w.]+\s+|_\s+)?"([^"]+)"`)
	goReceiverRe   = regexp.MustCompile(`\*?(\w+)\s*$`)
	gomodModuleRe  = regexp.MustCompile(`^module\s+(\S+)`)
	gomodRequireRe = regexp.MustCompile(`^\s*([\w./\-]+)\s+(v\S+)`)
)

type goParser struct{}

func (goParser) Languages() []string { return []string{"go"} }

func (goParser) Parse(file string, content []byte) ([]RawArtifact, error) {
	if path.Base(file) == "go.mod" {
		return parseGoMod(file, content), nil
	}

	artifacts := []RawArtifact{fileArtifact(file, "go")}
	inImports := false

	for i, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(raw)
		lineNo := i + 1

		if inImports {
			if line == ")" {
				inImports = false
				continue
			}
			if m := goImportLineRe.FindStringSubmatch(line); m != nil {
				artifacts[0].Refs = append(artifacts[0].Refs, Ref{Kind: "imports", Target: m[1]})
			}
			continue
		}
		if line == "import (" {
			inImports = true
			continue
		}
		if m := goImportRe.FindStringSubmatch(line); m != nil {
			artifacts[0].Refs = append(artifacts[0].Refs, Ref{Kind: "imports", Target: m[1]})
			continue
		}
		if m := goStructRe.FindStringSubmatch(line); m != nil {
			artifacts = append(artifacts, RawArtifact{
				Kind: KindType, Name: m[1], FilePath: file, Language: "go", Line: lineNo,
				Meta: map[string]interface{}{"form": "struct"},
			})
			continue
		}
		if m := goInterfaceRe.FindStringSubmatch(line); m != nil {
			artifacts = append(artifacts, RawArtifact{
				Kind: KindInterface, Name: m[1], FilePath: file, Language: "go", Line: lineNo,
			})
			continue
		}
		if m := goFuncRe.FindStringSubmatch(line); m != nil {
			art := RawArtifact{
				Kind: KindFunction, Name: m[2], FilePath: file, Language: "go", Line: lineNo,
			}
			if m[1] != "" {
				if r := goReceiverRe.FindStringSubmatch(m[1]); r != nil {
					art.Meta = map[string]interface{}{"receiver": r[1]}
				}
			}
			artifacts = append(artifacts, art)
		}
	}
	return artifacts, nil
}

// parseGoMod yields the module plus one dependency per require line,
// with depends_on refs from the module to each.
func parseGoMod(file string, content []byte) []RawArtifact {
	module := RawArtifact{
		Kind: KindModule, Name: path.Dir(file), FilePath: file, Language: "go",
	}
	var deps []RawArtifact
	inRequire := false

	for _, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(raw)
		if m := gomodModuleRe.FindStringSubmatch(line); m != nil {
			module.Name = m[1]
			continue
		}
		if line == "require (" {
			inRequire = true
			continue
		}
		if inRequire && line == ")" {
			inRequire = false
			continue
		}
		requireLine := line
		if !inRequire {
			if !strings.HasPrefix(line, "require ") {
				continue
			}
			requireLine = strings.TrimPrefix(line, "require ")
		}
		if m := gomodRequireRe.FindStringSubmatch(requireLine); m != nil {
			dep := RawArtifact{
				Kind: KindDependency, Name: m[1], FilePath: file, Language: "go",
				Meta: map[string]interface{}{"version": m[2]},
			}
			if strings.Contains(requireLine, "// indirect") {
				dep.Meta["indirect"] = true
			}
			deps = append(deps, dep)
			module.Refs = append(module.Refs, Ref{Kind: "depends_on", Target: m[1]})
		}
	}
	return append([]RawArtifact{module}, deps...)
}

// --- generic ---

var (
	envVarRe          = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*=`)
	dockerFromRe      = regexp.MustCompile(`(?i)^FROM\s+(\S+)(?:\s+AS\s+(\S+))?`)
	dockerEnvRe       = regexp.MustCompile(`(?i)^ENV\s+([A-Za-z_][A-Za-z0-9_]*)`)
	dockerExposeRe    = regexp.MustCompile(`(?i)^EXPOSE\s+(\d+)`)
	jsonCommentLineRe = regexp.MustCompile(`^\s*//`)
)

type genericParser struct{}

func (genericParser) Languages() []string { return []string{"generic"} }

func (genericParser) Parse(file string, content []byte) ([]RawArtifact, error) {
	switch base := strings.ToLower(path.Base(file)); {
	case base == "package.json":
		return parsePackageJSON(file, content), nil
	case base == "tsconfig.json":
		return parseTSConfig(file, content), nil
	case base == ".env":
		return parseDotEnv(file, content), nil
	case base == "dockerfile":
		return parseDockerfile(file, content), nil
	case strings.HasSuffix(base, ".json"):
		art := fileArtifact(file, "generic")
		art.Meta["format"] = "json"
		return []RawArtifact{art}, nil
	default:
		return []RawArtifact{fileArtifact(file, "generic")}, nil
	}
}

func parsePackageJSON(file string, content []byte) []RawArtifact {
	var pkg struct {
		Name            string            `json:"name"`
		Version         string            `json:"version"`
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(content, &pkg); err != nil || pkg.Name == "" {
		return []RawArtifact{fileArtifact(file, "generic")}
	}

	module := RawArtifact{
		Kind: KindModule, Name: pkg.Name, FilePath: file, Language: "generic",
		Meta: map[string]interface{}{},
	}
	if pkg.Version != "" {
		module.Meta["version"] = pkg.Version
	}
	artifacts := []RawArtifact{module}
	addDeps := func(deps map[string]string, dev bool) {
		for name, version := range deps {
			meta := map[string]interface{}{"version": version}
			if dev {
				meta["dev"] = true
			}
			artifacts = append(artifacts, RawArtifact{
				Kind: KindDependency, Name: name, FilePath: file, Language: "generic", Meta: meta,
			})
			artifacts[0].Refs = append(artifacts[0].Refs, Ref{Kind: "depends_on", Target: name})
		}
	}
	addDeps(pkg.Dependencies, false)
	addDeps(pkg.DevDependencies, true)
	return artifacts
}

func parseTSConfig(file string, content []byte) []RawArtifact {
	// tsconfig tolerates // comments; strip them before decoding.
	var clean []string
	for _, line := range strings.Split(string(content), "\n") {
		if !jsonCommentLineRe.MatchString(line) {
			clean = append(clean, line)
		}
	}
	var cfg struct {
		CompilerOptions map[string]interface{} `json:"compilerOptions"`
	}
	if err := json.Unmarshal([]byte(strings.Join(clean, "\n")), &cfg); err != nil {
		return []RawArtifact{fileArtifact(file, "generic")}
	}
	artifacts := []RawArtifact{fileArtifact(file, "generic")}
	for key, value := range cfg.CompilerOptions {
		artifacts = append(artifacts, RawArtifact{
			Kind: KindConfigKey, Name: key, FilePath: file, Language: "generic",
			Meta: map[string]interface{}{"section": "compilerOptions", "value": value},
		})
	}
	return artifacts
}

// parseDotEnv records variable names only. Values are secrets and never
// enter an artifact.
func parseDotEnv(file string, content []byte) []RawArtifact {
	artifacts := []RawArtifact{fileArtifact(file, "generic")}
	for i, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if m := envVarRe.FindStringSubmatch(line); m != nil {
			artifacts = append(artifacts, RawArtifact{
				Kind: KindEnvVar, Name: m[1], FilePath: file, Language: "generic", Line: i + 1,
			})
		}
	}
	return artifacts
}

func parseDockerfile(file string, content []byte) []RawArtifact {
	anchor := fileArtifact(file, "generic")
	var rest []RawArtifact
	for i, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		lineNo := i + 1
		if m := dockerFromRe.FindStringSubmatch(line); m != nil {
			dep := RawArtifact{
				Kind: KindDependency, Name: m[1], FilePath: file, Language: "generic", Line: lineNo,
				Meta: map[string]interface{}{"source": "dockerfile"},
			}
			if m[2] != "" {
				dep.Meta["stage"] = m[2]
			}
			rest = append(rest, dep)
			anchor.Refs = append(anchor.Refs, Ref{Kind: "depends_on", Target: m[1]})
			continue
		}
		if m := dockerEnvRe.FindStringSubmatch(line); m != nil {
			rest = append(rest, RawArtifact{
				Kind: KindEnvVar, Name: m[1], FilePath: file, Language: "generic", Line: lineNo,
			})
			continue
		}
		if m := dockerExposeRe.FindStringSubmatch(line); m != nil {
			rest = append(rest, RawArtifact{
				Kind: KindConfigKey, Name: "expose:" + m[1], FilePath: file, Language: "generic", Line: lineNo,
				Meta: map[string]interface{}{"port": m[1]},
			})
		}
	}
	return append([]RawArtifact{anchor}, rest...)
}
