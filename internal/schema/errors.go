package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownLabel is returned when the schema declares no such node label.
	ErrUnknownLabel = errors.New("unknown label")
	// ErrUnknownEdge is returned when the schema declares no such edge for the
	// (from, type, to) triple.
	ErrUnknownEdge = errors.New("unknown edge type")
)

// FieldError describes a single schema violation at one property path.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError aggregates every violation found while validating one
// property map. Error() is the concatenated human-readable form; Fields
// carries the machine-readable per-path details.
type ValidationError struct {
	Label  string       `json:"label"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Path, f.Message)
	}
	return fmt.Sprintf("validation failed for %q: %s", e.Label, strings.Join(parts, "; "))
}
