package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"trakn-sync-service/internal/queue"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) CreateSyncHistory(ctx context.Context, history *SyncHistory) error {
	query := `INSERT INTO sync_history (id, started_at, completed_at, synced, failed, pending, status, error_message)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		history.ID,
		history.StartedAt.UTC(),
		history.CompletedAt,
		history.Synced,
		history.Failed,
		history.Pending,
		history.Status,
		history.ErrorMessage,
	)

	return err
}

func (s *SQLiteStore) GetSyncHistory(ctx context.Context, limit, offset int) ([]*SyncHistory, error) {
	query := `SELECT id, started_at, completed_at, synced, failed, pending, status, error_message
			  FROM sync_history ORDER BY started_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*SyncHistory
	for rows.Next() {
		var h SyncHistory
		err := rows.Scan(
			&h.ID,
			&h.StartedAt,
			&h.CompletedAt,
			&h.Synced,
			&h.Failed,
			&h.Pending,
			&h.Status,
			&h.ErrorMessage,
		)
		if err != nil {
			return nil, err
		}
		history = append(history, &h)
	}

	return history, rows.Err()
}

func (s *SQLiteStore) RecordDropped(ctx context.Context, dropped *DroppedOperation) error {
	data, err := json.Marshal(dropped.Operation.Data)
	if err != nil {
		return fmt.Errorf("failed to encode dropped operation data: %w", err)
	}

	query := `INSERT OR REPLACE INTO dropped_operations (id, op_type, table_name, data, timestamp, retries, error_message, dropped_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	op := dropped.Operation
	_, err = s.db.ExecContext(ctx, query,
		op.ID,
		string(op.Type),
		op.Table,
		string(data),
		op.Timestamp,
		op.Retries,
		dropped.ErrorMessage,
		dropped.DroppedAt.UTC(),
	)

	return err
}

func (s *SQLiteStore) ListDropped(ctx context.Context, limit, offset int) ([]*DroppedOperation, error) {
	query := `SELECT id, op_type, table_name, data, timestamp, retries, error_message, dropped_at
			  FROM dropped_operations ORDER BY dropped_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dropped []*DroppedOperation
	for rows.Next() {
		var (
			d      DroppedOperation
			opType string
			data   string
			errMsg sql.NullString
		)
		err := rows.Scan(
			&d.Operation.ID,
			&opType,
			&d.Operation.Table,
			&data,
			&d.Operation.Timestamp,
			&d.Operation.Retries,
			&errMsg,
			&d.DroppedAt,
		)
		if err != nil {
			return nil, err
		}
		d.Operation.Type = queue.OperationType(opType)
		d.ErrorMessage = errMsg.String
		if err := json.Unmarshal([]byte(data), &d.Operation.Data); err != nil {
			return nil, fmt.Errorf("corrupt data for dropped operation %s: %w", d.Operation.ID, err)
		}
		dropped = append(dropped, &d)
	}

	return dropped, rows.Err()
}
