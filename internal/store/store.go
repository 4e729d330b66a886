// Package store persists the bitemporal entity/state/audit model on SQLite.
// It owns the only process -> backend boundary: every mutation primitive runs
// as a single transaction, every read as one query transaction. The version
// chain (CURRENT head, PREVIOUS links) and the audit trail are structural:
// the head state is the row with valid_to IS NULL, PREVIOUS is the
// previous_id column, AUDITED is the audit_log entity_id reference.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"engram/internal/logging"
	"engram/internal/schema"
)

// ErrNotFound is returned when an entity or state is missing where the
// contract requires one.
var ErrNotFound = errors.New("not found")

// txRetries bounds the retry loop on transient busy/locked errors.
const txRetries = 3

// Store is the SQLite-backed temporal store.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// New opens (or creates) the database at path and initializes the schema.
func New(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "New")
	defer timer.Stop()

	logging.Store("Opening temporal store at %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// NORMAL is safe under WAL and considerably faster than FULL
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to set sqlite foreign_keys=ON: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	logging.StoreDebug("Temporal store schema initialized")

	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	entitiesTable := `
	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		deleted_at INTEGER,
		deleted_by TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_entities_label ON entities(label);
	`

	// valid_to IS NULL marks the head state; the partial unique index
	// enforces at most one head per entity. previous_id forms the
	// PREVIOUS chain back to version 1.
	statesTable := `
	CREATE TABLE IF NOT EXISTS states (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_id TEXT NOT NULL REFERENCES entities(id),
		label TEXT NOT NULL,
		version INTEGER NOT NULL,
		valid_from INTEGER NOT NULL,
		valid_to INTEGER,
		recorded_at INTEGER NOT NULL,
		actor TEXT NOT NULL,
		props TEXT NOT NULL,
		previous_id INTEGER REFERENCES states(id),
		UNIQUE(entity_id, version)
	);
	CREATE INDEX IF NOT EXISTS idx_states_entity ON states(entity_id);
	CREATE INDEX IF NOT EXISTS idx_states_label ON states(label);
	CREATE INDEX IF NOT EXISTS idx_states_interval ON states(entity_id, valid_from);
	CREATE UNIQUE INDEX IF NOT EXISTS uq_states_head ON states(entity_id) WHERE valid_to IS NULL;
	`

	edgesTable := `
	CREATE TABLE IF NOT EXISTS edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		edge_type TEXT NOT NULL,
		from_id TEXT NOT NULL REFERENCES entities(id),
		to_id TEXT NOT NULL REFERENCES entities(id),
		valid_from INTEGER NOT NULL,
		valid_to INTEGER,
		actor TEXT NOT NULL,
		props TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id);
	CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id);
	CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(edge_type);
	`

	auditTable := `
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		entity_label TEXT NOT NULL,
		action TEXT NOT NULL,
		actor TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		changes TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_id);
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_log(actor);
	`

	for _, ddl := range []string{entitiesTable, statesTable, edgesTable, auditTable} {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	logging.StoreDebug("Closing temporal store at %s", s.dbPath)
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// withTx runs fn in a transaction, retrying a bounded number of times on
// transient busy/locked errors. On context cancellation the in-flight
// transaction is rolled back; partial state is never observable.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < txRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = s.runTx(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !isBusy(lastErr) {
			return lastErr
		}
		logging.StoreDebug("Transaction busy (attempt %d/%d): %v", attempt+1, txRetries, lastErr)
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return lastErr
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isBusy classifies transient SQLite lock contention.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

// checkIdent enforces the identifier discipline for labels and edge types
// before they are used anywhere near a query. Values never need this; they
// are always bound as parameters.
func checkIdent(kind, s string) error {
	if !schema.ValidIdent(s) {
		return fmt.Errorf("invalid %s %q: must match [A-Za-z_][A-Za-z0-9_]*", kind, s)
	}
	return nil
}

func encodeProps(props map[string]interface{}) (string, error) {
	if props == nil {
		props = map[string]interface{}{}
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("failed to encode props: %w", err)
	}
	return string(data), nil
}

// decodeProps restores a property map in canonical form: numbers decode via
// json.Number and normalize to int64/float64 so that values compare equal to
// what the validator produced on ingress.
func decodeProps(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var out map[string]interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode props: %w", err)
	}
	return schema.NormalizeProps(out), nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMillis(ms.Int64)
	return &t
}

// Stats returns table counts for the stats surface.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	st.ByLabel = make(map[string]int64)

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`)
	if err := row.Scan(&st.Entities); err != nil {
		return st, fmt.Errorf("failed to count entities: %w", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE deleted_at IS NOT NULL`)
	if err := row.Scan(&st.Deleted); err != nil {
		return st, fmt.Errorf("failed to count deleted entities: %w", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM states`)
	if err := row.Scan(&st.States); err != nil {
		return st, fmt.Errorf("failed to count states: %w", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges WHERE valid_to IS NULL`)
	if err := row.Scan(&st.ActiveEdges); err != nil {
		return st, fmt.Errorf("failed to count edges: %w", err)
	}
	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`)
	if err := row.Scan(&st.AuditEntries); err != nil {
		return st, fmt.Errorf("failed to count audit entries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT label, COUNT(*) FROM entities WHERE deleted_at IS NULL GROUP BY label`)
	if err != nil {
		return st, fmt.Errorf("failed to count by label: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		var n int64
		if err := rows.Scan(&label, &n); err != nil {
			return st, err
		}
		st.ByLabel[label] = n
	}
	return st, rows.Err()
}
