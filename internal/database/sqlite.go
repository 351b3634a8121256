package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_queue (
	id         TEXT PRIMARY KEY,
	op_type    TEXT NOT NULL,
	table_name TEXT NOT NULL,
	data       TEXT NOT NULL,
	timestamp  INTEGER NOT NULL,
	retries    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sync_queue_timestamp ON sync_queue (timestamp);

CREATE TABLE IF NOT EXISTS mirror_records (
	table_name TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (table_name, id)
);

CREATE TABLE IF NOT EXISTS sync_history (
	id            TEXT PRIMARY KEY,
	started_at    DATETIME NOT NULL,
	completed_at  DATETIME,
	synced        INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0,
	pending       INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_sync_history_started ON sync_history (started_at);

CREATE TABLE IF NOT EXISTS dropped_operations (
	id            TEXT PRIMARY KEY,
	op_type       TEXT NOT NULL,
	table_name    TEXT NOT NULL,
	data          TEXT NOT NULL,
	timestamp     INTEGER NOT NULL,
	retries       INTEGER NOT NULL,
	error_message TEXT,
	dropped_at    DATETIME NOT NULL
);
`

// NewLocalDatabase opens (creating if needed) the SQLite file holding the sync queue, the
// local mirror and the sync history.
func NewLocalDatabase(path string) (*Database, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	// SQLite serializes writers anyway; one connection keeps the queue free of SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping local database: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply local schema: %w", err)
	}

	return &Database{DB: db}, nil
}
