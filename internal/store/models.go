package store

import (
	"database/sql"
	"time"

	"trakn-sync-service/internal/queue"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type SyncHistory struct {
	ID           string         `db:"id" json:"id"`
	StartedAt    time.Time      `db:"started_at" json:"started_at"`
	CompletedAt  sql.NullTime   `db:"completed_at" json:"-"`
	Synced       int            `db:"synced" json:"synced"`
	Failed       int            `db:"failed" json:"failed"`
	Pending      int            `db:"pending" json:"pending"`
	Status       string         `db:"status" json:"status"`
	ErrorMessage sql.NullString `db:"error_message" json:"-"`
}

type DroppedOperation struct {
	Operation    queue.Operation `json:"operation"`
	ErrorMessage string          `db:"error_message" json:"error"`
	DroppedAt    time.Time       `db:"dropped_at" json:"dropped_at"`
}
