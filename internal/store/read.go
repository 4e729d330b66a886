package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const entityStateColumns = `
	e.id, e.label, e.created_at, e.deleted_at, e.deleted_by,
	s.version, s.valid_from, s.valid_to, s.recorded_at, s.actor, s.props`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntityState(r rowScanner) (*EntityState, error) {
	var (
		es                               EntityState
		createdAt, validFrom, recordedAt int64
		deletedAt, validTo               sql.NullInt64
		deletedBy                        sql.NullString
		props                            string
	)
	if err := r.Scan(
		&es.Entity.ID, &es.Entity.Label, &createdAt, &deletedAt, &deletedBy,
		&es.State.Version, &validFrom, &validTo, &recordedAt, &es.State.Actor, &props,
	); err != nil {
		return nil, err
	}
	es.Entity.CreatedAt = fromMillis(createdAt)
	es.Entity.DeletedAt = fromNullMillis(deletedAt)
	if deletedBy.Valid {
		es.Entity.DeletedBy = deletedBy.String
	}
	es.State.EntityID = es.Entity.ID
	es.State.Label = es.Entity.Label
	es.State.ValidFrom = fromMillis(validFrom)
	es.State.ValidTo = fromNullMillis(validTo)
	es.State.RecordedAt = fromMillis(recordedAt)
	decoded, err := decodeProps(props)
	if err != nil {
		return nil, err
	}
	es.State.Props = decoded
	return &es, nil
}

// GetCurrent returns the entity and its head state, or nil when the entity
// does not exist or has been soft-deleted.
func (s *Store) GetCurrent(ctx context.Context, id string) (*EntityState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+entityStateColumns+`
		FROM entities e
		JOIN states s ON s.entity_id = e.id AND s.valid_to IS NULL
		WHERE e.id = ? AND e.deleted_at IS NULL`, id)

	es, err := scanEntityState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current state of %s: %w", id, err)
	}
	return es, nil
}

// GetAtTime returns the state whose validity interval contains t, or nil
// when no state was valid at t. Works for soft-deleted entities as long as
// t falls before the delete time.
func (s *Store) GetAtTime(ctx context.Context, id string, t time.Time) (*EntityState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ms := toMillis(t)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entityStateColumns+`
		FROM entities e
		JOIN states s ON s.entity_id = e.id
		WHERE e.id = ? AND s.valid_from <= ? AND (s.valid_to IS NULL OR s.valid_to > ?)`,
		id, ms, ms)

	es, err := scanEntityState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state of %s at %v: %w", id, t, err)
	}
	return es, nil
}

// GetHistory returns all states of the entity ordered by descending version.
// ErrNotFound when the entity was never created.
func (s *Store) GetHistory(ctx context.Context, id string) ([]State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE id = ?`, id)
	if err := row.Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to read entity: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: entity %s", ErrNotFound, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, label, version, valid_from, valid_to, recorded_at, actor, props
		FROM states WHERE entity_id = ? ORDER BY version DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read history of %s: %w", id, err)
	}
	defer rows.Close()

	var states []State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

func scanState(r rowScanner) (State, error) {
	var (
		st                    State
		validFrom, recordedAt int64
		validTo               sql.NullInt64
		props                 string
	)
	if err := r.Scan(&st.EntityID, &st.Label, &st.Version, &validFrom, &validTo, &recordedAt, &st.Actor, &props); err != nil {
		return st, err
	}
	st.ValidFrom = fromMillis(validFrom)
	st.ValidTo = fromNullMillis(validTo)
	st.RecordedAt = fromMillis(recordedAt)
	decoded, err := decodeProps(props)
	if err != nil {
		return st, err
	}
	st.Props = decoded
	return st, nil
}

// QueryByLabel returns all non-deleted entities of the label with their
// head states, in creation order.
func (s *Store) QueryByLabel(ctx context.Context, label string) ([]EntityState, error) {
	if err := checkIdent("label", label); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entityStateColumns+`
		FROM entities e
		JOIN states s ON s.entity_id = e.id AND s.valid_to IS NULL
		WHERE e.label = ? AND e.deleted_at IS NULL
		ORDER BY e.created_at, e.id`, label)
	if err != nil {
		return nil, fmt.Errorf("failed to query label %s: %w", label, err)
	}
	defer rows.Close()

	var out []EntityState
	for rows.Next() {
		es, err := scanEntityState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *es)
	}
	return out, rows.Err()
}

// GetRelationships returns the active edges touching the entity, tagged with
// direction. Reserved structural links never appear here: the version chain
// and audit references live in their own tables.
func (s *Store) GetRelationships(ctx context.Context, id string) ([]Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT edge_type, from_id, to_id, valid_from, valid_to, actor, props, 'out' AS direction
		FROM edges WHERE from_id = ? AND valid_to IS NULL
		UNION ALL
		SELECT edge_type, from_id, to_id, valid_from, valid_to, actor, props, 'in'
		FROM edges WHERE to_id = ? AND valid_to IS NULL
		ORDER BY valid_from, from_id, to_id`, id, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read relationships of %s: %w", id, err)
	}
	defer rows.Close()

	var out []Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func scanRelationship(r rowScanner, withDirection bool) (Relationship, error) {
	var (
		rel       Relationship
		validFrom int64
		validTo   sql.NullInt64
		props     sql.NullString
	)
	dest := []interface{}{&rel.Type, &rel.FromID, &rel.ToID, &validFrom, &validTo, &rel.Actor, &props}
	if withDirection {
		dest = append(dest, &rel.Direction)
	}
	if err := r.Scan(dest...); err != nil {
		return rel, err
	}
	rel.ValidFrom = fromMillis(validFrom)
	rel.ValidTo = fromNullMillis(validTo)
	if props.Valid && props.String != "" {
		decoded, err := decodeProps(props.String)
		if err != nil {
			return rel, err
		}
		if len(decoded) > 0 {
			rel.Props = decoded
		}
	}
	return rel, nil
}

// GetAuditLog returns the entity's audit entries in chronological order.
func (s *Store) GetAuditLog(ctx context.Context, id string) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, entity_label, action, actor, timestamp, changes
		FROM audit_log WHERE entity_id = ? ORDER BY timestamp, rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log of %s: %w", id, err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e       AuditEntry
			ts      int64
			changes sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.EntityID, &e.EntityLabel, &e.Action, &e.Actor, &ts, &changes); err != nil {
			return nil, err
		}
		e.Timestamp = fromMillis(ts)
		if changes.Valid {
			e.Changes = changes.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
