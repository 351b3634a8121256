package store

import (
	"context"
)

// Store keeps the audit trail of the sync coordinator: one row per drain pass and one row
// per operation dropped at the retry ceiling.
type Store interface {
	// History
	CreateSyncHistory(ctx context.Context, history *SyncHistory) error
	GetSyncHistory(ctx context.Context, limit, offset int) ([]*SyncHistory, error)

	// Dropped operations
	RecordDropped(ctx context.Context, dropped *DroppedOperation) error
	ListDropped(ctx context.Context, limit, offset int) ([]*DroppedOperation, error)
}
