// Package queue is the local durable store for pending remote writes. Operations survive
// restarts of the process and are replayed oldest first.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Queue is the storage contract the sync coordinator drains.
type Queue interface {
	// Enqueue inserts op, overwriting any queued operation with the same id.
	Enqueue(ctx context.Context, op Operation) error
	// DrainOrder reads the live queue ordered by timestamp, oldest first.
	DrainOrder(ctx context.Context) ([]Operation, error)
	// Remove deletes the operation; removing an unknown id is not an error.
	Remove(ctx context.Context, id string) error
	// MarkRetry records a failed replay. The stored count never decreases.
	MarkRetry(ctx context.Context, id string, retries int) error
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

type SQLiteQueue struct {
	db *sql.DB
}

func NewSQLiteQueue(db *sql.DB) *SQLiteQueue {
	return &SQLiteQueue{db: db}
}

func (q *SQLiteQueue) Enqueue(ctx context.Context, op Operation) error {
	if op.Data.ID() == "" {
		return ErrMissingRecordID
	}

	data, err := json.Marshal(op.Data)
	if err != nil {
		return fmt.Errorf("failed to encode operation data: %w", err)
	}

	query := `INSERT INTO sync_queue (id, op_type, table_name, data, timestamp, retries)
			  VALUES (?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
			  op_type = excluded.op_type,
			  table_name = excluded.table_name,
			  data = excluded.data,
			  timestamp = excluded.timestamp,
			  retries = excluded.retries`

	if _, err := q.db.ExecContext(ctx, query, op.ID, string(op.Type), op.Table, string(data), op.Timestamp, op.Retries); err != nil {
		return fmt.Errorf("failed to enqueue operation %s: %w", op.ID, err)
	}
	return nil
}

func (q *SQLiteQueue) DrainOrder(ctx context.Context) ([]Operation, error) {
	query := `SELECT id, op_type, table_name, data, timestamp, retries
			  FROM sync_queue ORDER BY timestamp ASC, id ASC`

	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync queue: %w", err)
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		var (
			op     Operation
			opType string
			data   string
		)
		if err := rows.Scan(&op.ID, &opType, &op.Table, &data, &op.Timestamp, &op.Retries); err != nil {
			return nil, fmt.Errorf("failed to scan queued operation: %w", err)
		}
		op.Type = OperationType(opType)
		if err := json.Unmarshal([]byte(data), &op.Data); err != nil {
			return nil, fmt.Errorf("corrupt data for queued operation %s: %w", op.ID, err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sync queue: %w", err)
	}

	return ops, nil
}

func (q *SQLiteQueue) Remove(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove operation %s: %w", id, err)
	}
	return nil
}

func (q *SQLiteQueue) MarkRetry(ctx context.Context, id string, retries int) error {
	query := `UPDATE sync_queue SET retries = MAX(retries, ?) WHERE id = ?`
	if _, err := q.db.ExecContext(ctx, query, retries, id); err != nil {
		return fmt.Errorf("failed to record retry for operation %s: %w", id, err)
	}
	return nil
}

func (q *SQLiteQueue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sync queue: %w", err)
	}
	return n, nil
}

func (q *SQLiteQueue) Clear(ctx context.Context) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM sync_queue`); err != nil {
		return fmt.Errorf("failed to clear sync queue: %w", err)
	}
	return nil
}
