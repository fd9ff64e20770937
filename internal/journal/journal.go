// Package journal persists an audit trail of sync operations in SQLite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/ansuz/internal/engine"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS operations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	spec_id    TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL,
	operation  TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	remote_id  TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_operations_spec ON operations(spec_id);
CREATE INDEX IF NOT EXISTS idx_operations_name ON operations(name);
`

// Entry is one persisted journal row.
type Entry struct {
	ID        int64     `json:"id"`
	SpecID    string    `json:"spec_id,omitempty"`
	Name      string    `json:"name"`
	Operation string    `json:"operation"`
	Outcome   string    `json:"outcome"`
	RemoteID  string    `json:"remote_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DB wraps a sql.DB with journal-specific operations.
type DB struct {
	conn *sql.DB
}

// Verify *DB satisfies the engine's recording contract at compile time.
var _ engine.Recorder = (*DB)(nil)

// Open opens (or creates) the journal database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Record appends one operation to the journal.
func (db *DB) Record(ctx context.Context, e engine.JournalEntry) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO operations (spec_id, name, operation, outcome, remote_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.SpecID, e.Name, e.Operation, e.Outcome, e.RemoteID, e.Detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("journal: record operation: %w", err)
	}
	return nil
}

// History returns the entries for one document, newest first.
func (db *DB) History(ctx context.Context, name string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, spec_id, name, operation, outcome, remote_id, detail, created_at
		FROM operations WHERE name = ?
		ORDER BY id DESC LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query history: %w", err)
	}
	return scanEntries(rows)
}

// Recent returns the latest entries across all documents, newest first.
func (db *DB) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, spec_id, name, operation, outcome, remote_id, detail, created_at
		FROM operations ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query recent: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SpecID, &e.Name, &e.Operation,
			&e.Outcome, &e.RemoteID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
