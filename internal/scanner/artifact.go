package scanner

// Artifact kinds a parser may emit. The set is closed; mapping rules
// select from it.
const (
	KindFile        = "file"
	KindModule      = "module"
	KindFunction    = "function"
	KindClass       = "class"
	KindInterface   = "interface"
	KindType        = "type"
	KindAPIEndpoint = "api_endpoint"
	KindDependency  = "dependency"
	KindEnvVar      = "env_var"
	KindConfigKey   = "config_key"
	KindExport      = "export"
)

// refEdgeTypes maps ref kinds to the relationship types ingest creates.
var refEdgeTypes = map[string]string{
	"imports":    "IMPORTS",
	"extends":    "EXTENDS",
	"implements": "IMPLEMENTS",
	"calls":      "CALLS",
	"depends_on": "DEPENDS_ON",
	"configures": "CONFIGURES",
}

// Ref is a typed pointer from an artifact to an external name. Targets
// resolve during ingest by id, then name, then file path.
type Ref struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

// RawArtifact is one fact a language parser extracted from a file.
type RawArtifact struct {
	Kind     string                 `json:"kind"`
	Name     string                 `json:"name"`
	FilePath string                 `json:"filePath"`
	Language string                 `json:"language"`
	Line     int                    `json:"line,omitempty"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
	Refs     []Ref                  `json:"refs,omitempty"`
}

// AsMap is the view mapping expressions and dotted-path lookups see.
func (a RawArtifact) AsMap() map[string]interface{} {
	m := map[string]interface{}{
		"kind":     a.Kind,
		"name":     a.Name,
		"filePath": a.FilePath,
		"language": a.Language,
	}
	if a.Line > 0 {
		m["line"] = a.Line
	}
	meta := make(map[string]interface{}, len(a.Meta))
	for k, v := range a.Meta {
		meta[k] = v
	}
	m["meta"] = meta
	return m
}
