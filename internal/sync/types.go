package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trakn-sync-service/internal/queue"
)

var (
	ErrOffline          = errors.New("cannot sync while offline")
	ErrInvalidOperation = errors.New("invalid sync operation")
	ErrStopped          = errors.New("sync coordinator is not running")
)

// RemoteStore is the authoritative backend the queue is replayed into. Any error is treated
// as a failed attempt.
type RemoteStore interface {
	Insert(ctx context.Context, table string, record queue.Record) error
	Update(ctx context.Context, table, id string, record queue.Record) error
	Delete(ctx context.Context, table, id string) error
}

// SyncStatus describes the most recent drain pass. Each pass replaces it.
type SyncStatus struct {
	Pending    int        `json:"pending"`
	Synced     int        `json:"synced"`
	Failed     int        `json:"failed"`
	LastSyncAt *time.Time `json:"lastSyncAt"`
}

func (s SyncStatus) String() string {
	last := "never"
	if s.LastSyncAt != nil {
		last = s.LastSyncAt.Format(time.RFC3339)
	}
	return fmt.Sprintf("pending=%d synced=%d failed=%d last=%s", s.Pending, s.Synced, s.Failed, last)
}

// Snapshot bundles everything a status view subscribes to.
type Snapshot struct {
	Online  bool       `json:"online"`
	Syncing bool       `json:"syncing"`
	Status  SyncStatus `json:"status"`
}
