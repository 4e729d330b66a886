package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"engram/internal/logging"
	"engram/internal/store"
)

// entityID derives a stable identifier from the logical scan target and
// the artifact's position in it. Re-scanning the same target yields the
// same ids, so repeated scans version entities instead of multiplying
// them. Remote targets hash their URL, not the temp dir they were
// cloned into.
func entityID(seed, relPath, kind, name string) string {
	sum := sha256.Sum256([]byte(seed + ":" + relPath + ":" + kind + ":" + name))
	return hex.EncodeToString(sum[:])[:32]
}

// ingested tracks one mapped entity through both ingest passes.
type ingested struct {
	mappedEntity
	skipped bool
}

// ingest writes mapped entities and their references through the
// pipeline. Pass one upserts entities, skipping any whose current head
// already carries the mapped properties. Pass two resolves references
// into relationships between this scan's entities. With DryRun set,
// both passes count what they would write and touch nothing.
func (s *Scanner) ingest(ctx context.Context, mapped []mappedEntity, opts Options, res *ScanResult) {
	byID := make(map[string]*ingested, len(mapped))
	byName := make(map[string]*ingested, len(mapped))
	byPath := make(map[string]*ingested)
	ordered := make([]*ingested, 0, len(mapped))

	for _, me := range mapped {
		if _, dup := byID[me.id]; dup {
			continue
		}
		normalized, err := s.pipeline.Validate(me.label, me.props)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s %q (%s): %v", me.label, me.art.Name, me.art.FilePath, err))
			continue
		}
		head, err := s.reader.Current(ctx, me.id)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("read %s %q: %v", me.label, me.art.Name, err))
			continue
		}
		in := &ingested{mappedEntity: me}
		switch {
		case head != nil && store.PropsEqual(head.State.Props, normalized):
			in.skipped = true
			res.EntitiesSkipped++
		case opts.DryRun:
			res.EntitiesUpserted++
		default:
			if _, err := s.pipeline.Upsert(ctx, me.label, me.id, me.props, opts.Actor); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("upsert %s %q: %v", me.label, me.art.Name, err))
				continue
			}
			res.EntitiesUpserted++
		}
		byID[me.id] = in
		if _, taken := byName[me.art.Name]; !taken {
			byName[me.art.Name] = in
		}
		if me.art.Kind == KindFile {
			byPath[me.art.FilePath] = in
		}
		ordered = append(ordered, in)
	}

	s.relateRefs(ctx, ordered, byID, byName, byPath, opts, res)
}

// relateRefs resolves each reference against this scan's entities and
// creates the typed relationship it implies. Resolution tries entity id,
// then artifact name, then file path. References to anything outside the
// scan drop silently; so do edges the schema does not declare.
func (s *Scanner) relateRefs(ctx context.Context, ordered []*ingested, byID, byName, byPath map[string]*ingested, opts Options, res *ScanResult) {
	reg := s.pipeline.Registry()
	active := make(map[string]map[string]bool)

	// Existing active edges, fetched once per source entity so repeat
	// scans stay idempotent.
	activeEdges := func(id string) map[string]bool {
		if set, ok := active[id]; ok {
			return set
		}
		set := make(map[string]bool)
		rels, err := s.reader.Relationships(ctx, id)
		if err != nil {
			logging.Get(logging.CategoryScanner).Warn("Failed to load relationships for %s: %v", id, err)
		}
		for _, rel := range rels {
			if rel.FromID == id {
				set[rel.Type+"\x00"+rel.ToID] = true
			}
		}
		active[id] = set
		return set
	}

	for _, from := range ordered {
		for _, ref := range from.art.Refs {
			edgeType, ok := refEdgeTypes[ref.Kind]
			if !ok {
				continue
			}
			to := resolveRef(ref, byID, byName, byPath)
			if to == nil || to.id == from.id {
				continue
			}
			if _, err := reg.EdgeValidator(from.label, edgeType, to.label); err != nil {
				continue
			}
			if opts.DryRun {
				res.RelationshipsCreated++
				continue
			}
			set := activeEdges(from.id)
			key := edgeType + "\x00" + to.id
			if set[key] {
				continue
			}
			if err := s.pipeline.Relate(ctx, from.id, to.id, edgeType, from.label, to.label, nil, opts.Actor); err != nil {
				logging.ScannerDebug("Ref %s -[%s]-> %s not related: %v", from.art.Name, edgeType, ref.Target, err)
				continue
			}
			set[key] = true
			res.RelationshipsCreated++
		}
	}
}

func resolveRef(ref Ref, byID, byName, byPath map[string]*ingested) *ingested {
	if in, ok := byID[ref.Target]; ok {
		return in
	}
	if in, ok := byName[ref.Target]; ok {
		return in
	}
	if in, ok := byPath[ref.Target]; ok {
		return in
	}
	return nil
}
