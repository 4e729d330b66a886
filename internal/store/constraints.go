package store

import (
	"context"
	"fmt"

	"engram/internal/logging"
	"engram/internal/schema"
)

// ApplyConstraints creates storage-level indexes for the schema's declared
// constraints and unique keys. Unique constraints cover head states only;
// historical states may repeat values. Idempotent.
func (s *Store) ApplyConstraints(ctx context.Context, def schema.SchemaDef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	type indexDef struct {
		label    string
		property string
		kind     string
	}
	var defs []indexDef
	for _, c := range def.Constraints {
		defs = append(defs, indexDef{c.Label, c.Property, c.Kind})
	}
	for _, n := range def.Nodes {
		for _, key := range n.UniqueKeys {
			defs = append(defs, indexDef{n.Label, key, "unique"})
		}
	}

	for _, d := range defs {
		// Index names and json paths are interpolated, so both parts must
		// pass the identifier check
		if err := checkIdent("label", d.label); err != nil {
			return err
		}
		if err := checkIdent("constraint property", d.property); err != nil {
			return err
		}

		var stmt string
		switch d.kind {
		case "unique":
			stmt = fmt.Sprintf(
				`CREATE UNIQUE INDEX IF NOT EXISTS uq_%s_%s ON states(label, json_extract(props, '$.%s')) WHERE valid_to IS NULL AND label = '%s'`,
				d.label, d.property, d.property, d.label)
		case "index":
			stmt = fmt.Sprintf(
				`CREATE INDEX IF NOT EXISTS idx_%s_%s ON states(label, json_extract(props, '$.%s'))`,
				d.label, d.property, d.property)
		default:
			return fmt.Errorf("unknown constraint kind %q for %s.%s", d.kind, d.label, d.property)
		}

		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply %s constraint on %s.%s: %w", d.kind, d.label, d.property, err)
		}
		logging.StoreDebug("Applied %s constraint on %s.%s", d.kind, d.label, d.property)
	}

	if len(defs) > 0 {
		logging.Store("Applied %d storage constraints", len(defs))
	}
	return nil
}
