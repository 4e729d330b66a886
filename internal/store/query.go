package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"

	"engram/internal/logging"
	"engram/internal/schema"
)

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// ChangesSince returns entities whose audit log contains an entry after t,
// ordered by most recent activity, optionally filtered by labels and actors.
func (s *Store) ChangesSince(ctx context.Context, t time.Time, labels, actors []string, limit int) ([]ChangeSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sb strings.Builder
	args := []interface{}{toMillis(t)}

	sb.WriteString(`
		SELECT entity_id, entity_label, action, actor, timestamp, cnt FROM (
			SELECT entity_id, entity_label, action, actor, timestamp,
			       COUNT(*) OVER (PARTITION BY entity_id) AS cnt,
			       ROW_NUMBER() OVER (PARTITION BY entity_id ORDER BY timestamp DESC, rowid DESC) AS rn
			FROM audit_log
			WHERE timestamp > ?`)
	if len(labels) > 0 {
		sb.WriteString(` AND entity_label IN (` + placeholders(len(labels)) + `)`)
		for _, l := range labels {
			args = append(args, l)
		}
	}
	if len(actors) > 0 {
		sb.WriteString(` AND actor IN (` + placeholders(len(actors)) + `)`)
		for _, a := range actors {
			args = append(args, a)
		}
	}
	sb.WriteString(`) WHERE rn = 1 ORDER BY timestamp DESC`)
	if limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes since %v: %w", t, err)
	}
	defer rows.Close()

	var out []ChangeSummary
	for rows.Next() {
		var (
			c  ChangeSummary
			ts int64
		)
		if err := rows.Scan(&c.EntityID, &c.Label, &c.LastAction, &c.LastActor, &ts, &c.AuditCount); err != nil {
			return nil, err
		}
		c.LastActivity = fromMillis(ts)
		out = append(out, c)
	}
	return out, rows.Err()
}

var searchOps = map[string]bool{
	"eq": true, "contains": true, "gt": true, "lt": true, "gte": true, "lte": true, "in": true,
}

// Search filters the current-head states of a label by conjunctive
// predicates, evaluated on the decoded properties. orderBy names a property
// to sort by; a leading "-" reverses the order.
func (s *Store) Search(ctx context.Context, label string, filters []Filter, limit int, orderBy string) ([]EntityState, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Search")
	defer timer.Stop()

	for _, f := range filters {
		if !searchOps[f.Op] {
			return nil, fmt.Errorf("unknown search op %q (want eq, contains, gt, lt, gte, lte, in)", f.Op)
		}
	}

	all, err := s.QueryByLabel(ctx, label)
	if err != nil {
		return nil, err
	}

	var out []EntityState
	for _, es := range all {
		if matchesFilters(es.State.Props, filters) {
			out = append(out, es)
		}
	}

	if orderBy != "" {
		prop := orderBy
		desc := false
		if strings.HasPrefix(prop, "-") {
			prop = prop[1:]
			desc = true
		}
		sort.SliceStable(out, func(i, j int) bool {
			c, ok := compareValues(out[i].State.Props[prop], out[j].State.Props[prop])
			if !ok {
				// Missing or incomparable values sort last
				_, hasI := out[i].State.Props[prop]
				_, hasJ := out[j].State.Props[prop]
				return hasI && !hasJ
			}
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesFilters(props map[string]interface{}, filters []Filter) bool {
	for _, f := range filters {
		if !matchFilter(props, f) {
			return false
		}
	}
	return true
}

func matchFilter(props map[string]interface{}, f Filter) bool {
	val, ok := props[f.Property]
	want := schema.NormalizeValue(f.Value)

	switch f.Op {
	case "eq":
		return ok && cmp.Equal(schema.NormalizeValue(val), want)

	case "contains":
		if !ok {
			return false
		}
		switch v := val.(type) {
		case string:
			w, isStr := want.(string)
			return isStr && strings.Contains(v, w)
		case []interface{}:
			for _, el := range v {
				if cmp.Equal(el, want) {
					return true
				}
			}
		}
		return false

	case "gt", "lt", "gte", "lte":
		if !ok {
			return false
		}
		c, comparable := compareValues(schema.NormalizeValue(val), want)
		if !comparable {
			return false
		}
		switch f.Op {
		case "gt":
			return c > 0
		case "lt":
			return c < 0
		case "gte":
			return c >= 0
		default:
			return c <= 0
		}

	case "in":
		if !ok {
			return false
		}
		list, isList := want.([]interface{})
		if !isList {
			return false
		}
		nv := schema.NormalizeValue(val)
		for _, el := range list {
			if cmp.Equal(nv, el) {
				return true
			}
		}
		return false
	}
	return false
}

// compareValues orders two canonical values: numerically when both are
// numbers, lexically when both are strings (ISO dates order correctly).
func compareValues(a, b interface{}) (int, bool) {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// SnapshotAt returns every entity state valid at t (optionally restricted to
// labels) plus the edges active at t. When a label filter is given, edges are
// restricted to pairs whose endpoints are both inside the snapshot.
func (s *Store) SnapshotAt(ctx context.Context, t time.Time, labels []string) (Snapshot, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SnapshotAt")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{At: t.UTC()}
	ms := toMillis(t)

	var sb strings.Builder
	args := []interface{}{ms, ms}
	sb.WriteString(`
		SELECT ` + entityStateColumns + `
		FROM entities e
		JOIN states s ON s.entity_id = e.id
		WHERE s.valid_from <= ? AND (s.valid_to IS NULL OR s.valid_to > ?)`)
	if len(labels) > 0 {
		for _, l := range labels {
			if err := checkIdent("label", l); err != nil {
				return snap, err
			}
		}
		sb.WriteString(` AND e.label IN (` + placeholders(len(labels)) + `)`)
		for _, l := range labels {
			args = append(args, l)
		}
	}
	sb.WriteString(` ORDER BY e.label, e.id`)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return snap, fmt.Errorf("failed to snapshot entities at %v: %w", t, err)
	}
	defer rows.Close()

	inSnapshot := make(map[string]bool)
	for rows.Next() {
		es, err := scanEntityState(rows)
		if err != nil {
			return snap, err
		}
		snap.Entities = append(snap.Entities, *es)
		inSnapshot[es.Entity.ID] = true
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	edgeRows, err := s.db.QueryContext(ctx, `
		SELECT edge_type, from_id, to_id, valid_from, valid_to, actor, props
		FROM edges
		WHERE valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)
		ORDER BY valid_from, from_id, to_id`, ms, ms)
	if err != nil {
		return snap, fmt.Errorf("failed to snapshot edges at %v: %w", t, err)
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		rel, err := scanRelationship(edgeRows, false)
		if err != nil {
			return snap, err
		}
		if len(labels) > 0 && (!inSnapshot[rel.FromID] || !inSnapshot[rel.ToID]) {
			continue
		}
		snap.Edges = append(snap.Edges, rel)
	}
	return snap, edgeRows.Err()
}
