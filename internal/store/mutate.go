package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"engram/internal/logging"
	"engram/internal/schema"
)

// headState is the in-transaction view of an entity's current head row.
type headState struct {
	rowID   int64
	version int64
	label   string
	props   string
}

func headStateTx(ctx context.Context, tx *sql.Tx, entityID string) (headState, bool, error) {
	var h headState
	row := tx.QueryRowContext(ctx,
		`SELECT id, version, label, props FROM states WHERE entity_id = ? AND valid_to IS NULL`, entityID)
	if err := row.Scan(&h.rowID, &h.version, &h.label, &h.props); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return h, false, nil
		}
		return h, false, fmt.Errorf("failed to read head state: %w", err)
	}
	return h, true, nil
}

func insertEntityTx(ctx context.Context, tx *sql.Tx, id, label string, now time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entities (id, label, created_at) VALUES (?, ?, ?)`,
		id, label, toMillis(now)); err != nil {
		return fmt.Errorf("failed to create entity %s: %w", id, err)
	}
	return nil
}

func insertStateTx(ctx context.Context, tx *sql.Tx, entityID, label string, version int64, validFrom time.Time, actor, propsJSON string, previousID *int64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO states (entity_id, label, version, valid_from, valid_to, recorded_at, actor, props, previous_id)
		 VALUES (?, ?, ?, ?, NULL, ?, ?, ?, ?)`,
		entityID, label, version, toMillis(validFrom), toMillis(validFrom), actor, propsJSON, previousID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert state v%d for %s: %w", version, entityID, err)
	}
	return res.LastInsertId()
}

func closeStateTx(ctx context.Context, tx *sql.Tx, stateRowID int64, now time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE states SET valid_to = ? WHERE id = ?`, toMillis(now), stateRowID); err != nil {
		return fmt.Errorf("failed to close state: %w", err)
	}
	return nil
}

func appendAuditTx(ctx context.Context, tx *sql.Tx, e AuditEntry) error {
	var changes interface{}
	if e.Changes != "" {
		changes = e.Changes
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO audit_log (id, entity_id, entity_label, action, actor, timestamp, changes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EntityID, e.EntityLabel, e.Action, e.Actor, toMillis(e.Timestamp), changes); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// CreateEntity creates the entity row and its first state (version 1,
// valid_from = now, head), and appends the create audit entry. One
// transaction. Fails if the id already exists.
func (s *Store) CreateEntity(ctx context.Context, id, label string, props map[string]interface{}, actor string, now time.Time, auditID string) error {
	if err := checkIdent("label", label); err != nil {
		return err
	}
	propsJSON, err := encodeProps(props)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertEntityTx(ctx, tx, id, label, now); err != nil {
			return err
		}
		if _, err := insertStateTx(ctx, tx, id, label, 1, now, actor, propsJSON, nil); err != nil {
			return err
		}
		return appendAuditTx(ctx, tx, AuditEntry{
			ID: auditID, EntityID: id, EntityLabel: label,
			Action: ActionCreate, Actor: actor, Timestamp: now, Changes: propsJSON,
		})
	})
	if err == nil {
		logging.StoreDebug("Created entity %s (%s) by %s", id, label, actor)
	}
	return err
}

// UpdateEntity closes the current head, creates the successor state with
// version = head+1 linked back through previous_id, and appends the update
// audit entry carrying the caller-supplied serialized changes. Returns the
// new version. ErrNotFound when the entity has no current head.
func (s *Store) UpdateEntity(ctx context.Context, id string, props map[string]interface{}, actor string, now time.Time, auditID, changes string) (int64, error) {
	propsJSON, err := encodeProps(props)
	if err != nil {
		return 0, err
	}

	var newVersion int64
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		head, ok, err := headStateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: entity %s has no current state", ErrNotFound, id)
		}
		if err := closeStateTx(ctx, tx, head.rowID, now); err != nil {
			return err
		}
		newVersion = head.version + 1
		if _, err := insertStateTx(ctx, tx, id, head.label, newVersion, now, actor, propsJSON, &head.rowID); err != nil {
			return err
		}
		return appendAuditTx(ctx, tx, AuditEntry{
			ID: auditID, EntityID: id, EntityLabel: head.label,
			Action: ActionUpdate, Actor: actor, Timestamp: now, Changes: changes,
		})
	})
	if err == nil {
		logging.StoreDebug("Updated entity %s to v%d by %s", id, newVersion, actor)
	}
	return newVersion, err
}

// UpsertEntity is the serializable read-then-write behind upsert: create,
// update, or revive in one transaction, with the property deltas for the
// audit entry computed against the head inside the same transaction. For a
// single entity, concurrent upserts are linearizable: the version sequence
// is contiguous and matches audit order.
func (s *Store) UpsertEntity(ctx context.Context, id, label string, props map[string]interface{}, actor string, now time.Time, auditID string) (int64, bool, error) {
	if err := checkIdent("label", label); err != nil {
		return 0, false, err
	}
	propsJSON, err := encodeProps(props)
	if err != nil {
		return 0, false, err
	}

	var (
		version int64
		created bool
	)
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		version, created = 0, false

		var storedLabel string
		var deletedAt sql.NullInt64
		row := tx.QueryRowContext(ctx, `SELECT label, deleted_at FROM entities WHERE id = ?`, id)
		switch err := row.Scan(&storedLabel, &deletedAt); {
		case errors.Is(err, sql.ErrNoRows):
			// Brand new entity
			if err := insertEntityTx(ctx, tx, id, label, now); err != nil {
				return err
			}
			if _, err := insertStateTx(ctx, tx, id, label, 1, now, actor, propsJSON, nil); err != nil {
				return err
			}
			version, created = 1, true
			return appendAuditTx(ctx, tx, AuditEntry{
				ID: auditID, EntityID: id, EntityLabel: label,
				Action: ActionCreate, Actor: actor, Timestamp: now, Changes: propsJSON,
			})
		case err != nil:
			return fmt.Errorf("failed to read entity: %w", err)
		}

		if storedLabel != label {
			return fmt.Errorf("entity %s already exists with label %s, not %s", id, storedLabel, label)
		}

		head, ok, err := headStateTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if ok {
			// Version the head
			oldProps, err := decodeProps(head.props)
			if err != nil {
				return err
			}
			deltas := DiffProps(oldProps, props)
			changesJSON, err := json.Marshal(deltas)
			if err != nil {
				return fmt.Errorf("failed to encode changes: %w", err)
			}
			if err := closeStateTx(ctx, tx, head.rowID, now); err != nil {
				return err
			}
			version = head.version + 1
			if _, err := insertStateTx(ctx, tx, id, label, version, now, actor, propsJSON, &head.rowID); err != nil {
				return err
			}
			return appendAuditTx(ctx, tx, AuditEntry{
				ID: auditID, EntityID: id, EntityLabel: label,
				Action: ActionUpdate, Actor: actor, Timestamp: now, Changes: string(changesJSON),
			})
		}

		// No head: the entity was soft-deleted. Revive it, continuing the
		// version sequence so versions stay dense and strictly increasing.
		var lastRowID, lastVersion int64
		row = tx.QueryRowContext(ctx,
			`SELECT id, version FROM states WHERE entity_id = ? ORDER BY version DESC LIMIT 1`, id)
		if err := row.Scan(&lastRowID, &lastVersion); err != nil {
			return fmt.Errorf("failed to read latest state for revival: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE entities SET deleted_at = NULL, deleted_by = NULL WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to revive entity: %w", err)
		}
		version = lastVersion + 1
		if _, err := insertStateTx(ctx, tx, id, label, version, now, actor, propsJSON, &lastRowID); err != nil {
			return err
		}
		created = true
		return appendAuditTx(ctx, tx, AuditEntry{
			ID: auditID, EntityID: id, EntityLabel: label,
			Action: ActionCreate, Actor: actor, Timestamp: now, Changes: propsJSON,
		})
	})
	if err == nil {
		logging.StoreDebug("Upserted entity %s (%s) v%d created=%v by %s", id, label, version, created, actor)
	}
	return version, created, err
}

// SoftDeleteEntity closes the head state, marks the entity deleted, and
// appends the delete audit entry. Idempotent: deleting an already-deleted
// entity is a silent no-op (no audit entry). ErrNotFound when the id was
// never created.
func (s *Store) SoftDeleteEntity(ctx context.Context, id, actor string, now time.Time, auditID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var label string
		var deletedAt sql.NullInt64
		row := tx.QueryRowContext(ctx, `SELECT label, deleted_at FROM entities WHERE id = ?`, id)
		if err := row.Scan(&label, &deletedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: entity %s", ErrNotFound, id)
			}
			return fmt.Errorf("failed to read entity: %w", err)
		}
		if deletedAt.Valid {
			return nil // already deleted
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE states SET valid_to = ? WHERE entity_id = ? AND valid_to IS NULL`,
			toMillis(now), id); err != nil {
			return fmt.Errorf("failed to close head state: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE entities SET deleted_at = ?, deleted_by = ? WHERE id = ?`,
			toMillis(now), actor, id); err != nil {
			return fmt.Errorf("failed to mark entity deleted: %w", err)
		}
		return appendAuditTx(ctx, tx, AuditEntry{
			ID: auditID, EntityID: id, EntityLabel: label,
			Action: ActionDelete, Actor: actor, Timestamp: now,
		})
	})
	if err == nil {
		logging.StoreDebug("Soft-deleted entity %s by %s", id, actor)
	}
	return err
}

// CreateRelationship creates a typed active edge between two existing
// entities and appends the relate audit entry on the from side.
func (s *Store) CreateRelationship(ctx context.Context, fromID, toID, edgeType string, props map[string]interface{}, actor string, now time.Time, auditID string) error {
	if err := checkIdent("edge type", edgeType); err != nil {
		return err
	}
	if schema.IsReservedEdgeType(edgeType) {
		return fmt.Errorf("edge type %q is reserved", edgeType)
	}
	propsJSON, err := encodeProps(props)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		fromLabel, err := entityLabelTx(ctx, tx, fromID)
		if err != nil {
			return err
		}
		if _, err := entityLabelTx(ctx, tx, toID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO edges (edge_type, from_id, to_id, valid_from, valid_to, actor, props)
			 VALUES (?, ?, ?, ?, NULL, ?, ?)`,
			edgeType, fromID, toID, toMillis(now), actor, propsJSON); err != nil {
			return fmt.Errorf("failed to create relationship: %w", err)
		}

		changes, _ := json.Marshal(map[string]string{"type": edgeType, "from": fromID, "to": toID})
		return appendAuditTx(ctx, tx, AuditEntry{
			ID: auditID, EntityID: fromID, EntityLabel: fromLabel,
			Action: ActionRelate, Actor: actor, Timestamp: now, Changes: string(changes),
		})
	})
	if err == nil {
		logging.StoreDebug("Related %s -[%s]-> %s by %s", fromID, edgeType, toID, actor)
	}
	return err
}

// CloseRelationship sets valid_to on the active edge(s) of the given type
// between the ordered pair and appends the unrelate audit entry. Returns
// false without error (and without audit) when no active edge matched.
func (s *Store) CloseRelationship(ctx context.Context, fromID, toID, edgeType, actor string, now time.Time, auditID string) (bool, error) {
	if err := checkIdent("edge type", edgeType); err != nil {
		return false, err
	}

	var closed bool
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		closed = false
		res, err := tx.ExecContext(ctx,
			`UPDATE edges SET valid_to = ? WHERE from_id = ? AND to_id = ? AND edge_type = ? AND valid_to IS NULL`,
			toMillis(now), fromID, toID, edgeType)
		if err != nil {
			return fmt.Errorf("failed to close relationship: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		closed = true

		fromLabel, err := entityLabelTx(ctx, tx, fromID)
		if err != nil {
			return err
		}
		changes, _ := json.Marshal(map[string]string{"type": edgeType, "from": fromID, "to": toID})
		return appendAuditTx(ctx, tx, AuditEntry{
			ID: auditID, EntityID: fromID, EntityLabel: fromLabel,
			Action: ActionUnrelate, Actor: actor, Timestamp: now, Changes: string(changes),
		})
	})
	if err == nil && closed {
		logging.StoreDebug("Unrelated %s -[%s]-> %s by %s", fromID, edgeType, toID, actor)
	}
	return closed, err
}

func entityLabelTx(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	var label string
	row := tx.QueryRowContext(ctx, `SELECT label FROM entities WHERE id = ?`, id)
	if err := row.Scan(&label); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: entity %s", ErrNotFound, id)
		}
		return "", fmt.Errorf("failed to read entity: %w", err)
	}
	return label, nil
}
