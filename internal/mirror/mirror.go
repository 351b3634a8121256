// Package mirror keeps the local copy of remote records so reads work while offline.
package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trakn-sync-service/internal/queue"
)

var ErrNotFound = errors.New("record not found")

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Put stores record under its id, replacing any previous copy.
func (s *Store) Put(ctx context.Context, table string, record queue.Record) error {
	id := record.ID()
	if id == "" {
		return queue.ErrMissingRecordID
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", table, id, err)
	}

	query := `INSERT INTO mirror_records (table_name, id, data, updated_at) VALUES (?, ?, ?, ?)
			  ON CONFLICT(table_name, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, table, id, string(data), s.now().UTC()); err != nil {
		return fmt.Errorf("failed to mirror %s/%s: %w", table, id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, table, id string) (queue.Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM mirror_records WHERE table_name = ? AND id = ?`, table, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", table, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", table, id, err)
	}

	var record queue.Record
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("corrupt mirror record %s/%s: %w", table, id, err)
	}
	return record, nil
}

// List returns every mirrored record of table, most recently written first.
func (s *Store) List(ctx context.Context, table string) ([]queue.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM mirror_records WHERE table_name = ? ORDER BY updated_at DESC, id ASC`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()

	records := []queue.Record{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		var record queue.Record
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			return nil, fmt.Errorf("corrupt mirror record %s/%s: %w", table, id, err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// Delete removes the local copy; a missing record is not an error.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mirror_records WHERE table_name = ? AND id = ?`, table, id); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", table, id, err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mirror_records`); err != nil {
		return fmt.Errorf("failed to clear mirror: %w", err)
	}
	return nil
}
