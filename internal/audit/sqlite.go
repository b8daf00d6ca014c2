package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteSink appends entries to an embedded SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the audit database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS occupancy_txn (
		txn_id INTEGER NOT NULL,
		board_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		q INTEGER NOT NULL,
		r INTEGER NOT NULL,
		facing INTEGER NOT NULL,
		version INTEGER NOT NULL,
		at TEXT NOT NULL,
		PRIMARY KEY (board_id, txn_id)
	);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Append inserts the entry.
func (s *SQLiteSink) Append(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO occupancy_txn (txn_id, board_id, kind, actor_id, q, r, facing, version, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TxnID, e.BoardID, e.Kind, e.ActorID, e.Q, e.R, e.Facing, e.Version,
		e.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append audit entry %d: %w", e.TxnID, err)
	}
	return nil
}

// List returns all entries for a board in transaction order.
func (s *SQLiteSink) List(ctx context.Context, boardID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT txn_id, board_id, kind, actor_id, q, r, facing, version, at
		 FROM occupancy_txn WHERE board_id = ? ORDER BY txn_id`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			at string
		)
		if err := rows.Scan(&e.TxnID, &e.BoardID, &e.Kind, &e.ActorID, &e.Q, &e.R, &e.Facing, &e.Version, &at); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
