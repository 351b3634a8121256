package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trakn-sync-service/internal/database"
	"trakn-sync-service/internal/queue"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := database.NewLocalDatabase(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewSQLiteStore(db.DB)
}

func TestSyncHistory_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"p1", "p2", "p3"} {
		started := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.CreateSyncHistory(ctx, &SyncHistory{
			ID:          id,
			StartedAt:   started,
			CompletedAt: sql.NullTime{Time: started.Add(time.Second), Valid: true},
			Synced:      i,
			Failed:      1,
			Pending:     2,
			Status:      StatusCompleted,
		}))
	}

	history, err := s.GetSyncHistory(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "p3", history[0].ID)
	assert.Equal(t, "p2", history[1].ID)
	assert.Equal(t, 2, history[0].Synced)
	assert.True(t, history[0].CompletedAt.Valid)

	history, err = s.GetSyncHistory(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "p1", history[0].ID)
}

func TestDroppedOperations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	op := queue.Operation{
		ID:        "op1",
		Type:      queue.Update,
		Table:     "workouts",
		Data:      queue.Record{"id": "w1", "name": "Leg Day"},
		Timestamp: 1000,
		Retries:   6,
	}
	require.NoError(t, s.RecordDropped(ctx, &DroppedOperation{
		Operation:    op,
		ErrorMessage: "record not found",
		DroppedAt:    time.Now(),
	}))

	dropped, err := s.ListDropped(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	assert.Equal(t, op.ID, dropped[0].Operation.ID)
	assert.Equal(t, queue.Update, dropped[0].Operation.Type)
	assert.Equal(t, "w1", dropped[0].Operation.Data.ID())
	assert.Equal(t, 6, dropped[0].Operation.Retries)
	assert.Equal(t, "record not found", dropped[0].ErrorMessage)
}
