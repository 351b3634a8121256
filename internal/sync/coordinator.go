package sync

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trakn-sync-service/internal/logger"
	"trakn-sync-service/internal/queue"
	"trakn-sync-service/internal/store"
)

const (
	DefaultMaxRetries       = 5
	DefaultOperationTimeout = 10 * time.Second
)

type Options struct {
	// MaxRetries is the retry ceiling: an operation is dropped once its retry count exceeds it.
	MaxRetries int
	// OperationTimeout bounds each remote call. Zero disables the timeout.
	OperationTimeout time.Duration
	// Online is the initial connectivity state.
	Online bool
	// Validate rejects operations the remote store can never accept, before they are queued.
	// Nil accepts everything.
	Validate func(table string, data queue.Record) error
	Now      func() time.Time
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:       DefaultMaxRetries,
		OperationTimeout: DefaultOperationTimeout,
	}
}

type trigger struct {
	reason string
	done   chan error
}

// Coordinator replays the local queue against the remote store. A single goroutine (Run)
// performs drain passes; triggers that arrive while it is busy are dropped, so at most one
// pass is ever in flight.
type Coordinator struct {
	queue   queue.Queue
	remote  RemoteStore
	history store.Store
	opts    Options

	triggers chan trigger
	running  atomic.Bool
	online   atomic.Bool
	syncing  atomic.Bool
	// wake is set by a trigger that found the loop busy outside a pass; the loop drains for it.
	wake atomic.Bool
	// resets counts Reset calls so a pass can tell its snapshot was wiped.
	resets atomic.Uint64

	mu     sync.RWMutex
	status SyncStatus

	subMu       sync.Mutex
	subscribers map[int]chan Snapshot
	nextSub     int
}

// NewCoordinator wires a coordinator. history may be nil.
func NewCoordinator(q queue.Queue, remote RemoteStore, history store.Store, opts Options) *Coordinator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}

	c := &Coordinator{
		queue:       q,
		remote:      remote,
		history:     history,
		opts:        opts,
		triggers:    make(chan trigger),
		subscribers: make(map[int]chan Snapshot),
	}
	c.online.Store(opts.Online)
	return c
}

// Run consumes drain triggers until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sync coordinator is already running")
	}
	defer c.running.Store(false)

	if err := c.refreshPending(ctx); err != nil {
		return err
	}

	logger.Log.Info("Sync coordinator started", zap.Bool("online", c.IsOnline()))

	for {
		if ctx.Err() == nil && c.wake.Load() && c.IsOnline() {
			if err := c.drain(ctx, "deferred"); err != nil {
				logger.Log.Error("Drain pass aborted", zap.String("trigger", "deferred"), zap.Error(err))
			}
			continue
		}

		select {
		case <-ctx.Done():
			logger.Log.Info("Sync coordinator stopped")
			return nil
		case t := <-c.triggers:
			err := c.drain(ctx, t.reason)
			if err != nil {
				logger.Log.Error("Drain pass aborted", zap.String("trigger", t.reason), zap.Error(err))
			}
			if t.done != nil {
				t.done <- err
			}
		}
	}
}

// Trigger asks for a drain pass and reports whether one will run for it. It does nothing,
// and reports false, when offline or when a pass is already in flight. A trigger arriving
// while the loop is idle but not receiving (starting up, or between passes) is remembered
// and drained once the loop gets there.
func (c *Coordinator) Trigger(reason string) bool {
	if !c.IsOnline() {
		return false
	}
	select {
	case c.triggers <- trigger{reason: reason}:
		return true
	default:
	}

	if c.IsSyncing() {
		logger.Log.Debug("Drain trigger ignored, pass in flight", zap.String("trigger", reason))
		return false
	}
	c.wake.Store(true)
	logger.Log.Debug("Drain trigger deferred", zap.String("trigger", reason))
	return true
}

// ForceSync runs a drain pass now and waits for it. It fails with ErrOffline without
// touching the queue when offline. If a pass is already running it returns immediately.
func (c *Coordinator) ForceSync(ctx context.Context) error {
	if !c.IsOnline() {
		return ErrOffline
	}
	if !c.running.Load() {
		return ErrStopped
	}
	if c.IsSyncing() {
		return nil
	}

	done := make(chan error, 1)
	select {
	case c.triggers <- trigger{reason: "force", done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueOperation persists a pending remote write and, when online, asks for a drain pass.
func (c *Coordinator) QueueOperation(ctx context.Context, opType queue.OperationType, table string, data queue.Record) (queue.Operation, error) {
	if !opType.Valid() {
		return queue.Operation{}, fmt.Errorf("%w: unknown type %q", ErrInvalidOperation, opType)
	}
	if table == "" {
		return queue.Operation{}, fmt.Errorf("%w: table is required", ErrInvalidOperation)
	}
	if data.ID() == "" {
		return queue.Operation{}, queue.ErrMissingRecordID
	}
	if c.opts.Validate != nil {
		if err := c.opts.Validate(table, data); err != nil {
			return queue.Operation{}, err
		}
	}

	op := queue.Operation{
		ID:        uuid.NewString(),
		Type:      opType,
		Table:     table,
		Data:      data,
		Timestamp: c.opts.Now().UnixMilli(),
	}
	if err := c.queue.Enqueue(ctx, op); err != nil {
		return queue.Operation{}, err
	}

	logger.Log.Debug("Queued operation", zap.Stringer("operation", op))

	if err := c.refreshPending(ctx); err != nil {
		logger.Log.Warn("Failed to refresh pending count", zap.Error(err))
	}

	c.Trigger("enqueue")
	return op, nil
}

// SetOnline records a connectivity change. Coming online triggers a drain; going offline
// only flips the flag and leaves an in-flight pass alone.
func (c *Coordinator) SetOnline(online bool) {
	if c.online.Swap(online) == online {
		return
	}

	logger.Log.Info("Connectivity changed", zap.Bool("online", online))
	c.broadcast()

	if online {
		c.Trigger("online")
	}
}

// Reset empties the queue, as on logout. A pass in flight stops before its next operation.
func (c *Coordinator) Reset(ctx context.Context) error {
	// Bumped on both sides of Clear so no pass replays a snapshot read across it.
	c.resets.Add(1)
	if err := c.queue.Clear(ctx); err != nil {
		return err
	}
	c.resets.Add(1)
	c.updateStatus(func(s *SyncStatus) { s.Pending = 0 })
	return nil
}

// PendingOperations returns the live queue in replay order.
func (c *Coordinator) PendingOperations(ctx context.Context) ([]queue.Operation, error) {
	return c.queue.DrainOrder(ctx)
}

func (c *Coordinator) IsOnline() bool  { return c.online.Load() }
func (c *Coordinator) IsSyncing() bool { return c.syncing.Load() }

func (c *Coordinator) Status() SyncStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Coordinator) Snapshot() Snapshot {
	return Snapshot{
		Online:  c.IsOnline(),
		Syncing: c.IsSyncing(),
		Status:  c.Status(),
	}
}

// Subscribe returns a channel carrying the latest snapshot after every change. Slow readers
// only ever see the newest value. The returned func unsubscribes and closes the channel.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	ch <- c.Snapshot()

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subscribers, id)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

func (c *Coordinator) broadcast() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	snap := c.Snapshot()
	for _, ch := range c.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (c *Coordinator) updateStatus(fn func(*SyncStatus)) {
	c.mu.Lock()
	fn(&c.status)
	c.mu.Unlock()
	c.broadcast()
}

func (c *Coordinator) refreshPending(ctx context.Context) error {
	n, err := c.queue.Len(ctx)
	if err != nil {
		return err
	}
	c.updateStatus(func(s *SyncStatus) { s.Pending = n })
	return nil
}

func (c *Coordinator) setSyncing(v bool) {
	c.syncing.Store(v)
	c.broadcast()
}

// drain performs one pass over the queue. Remote failures are absorbed into retry counts;
// local storage failures abort the pass and are returned. Cancelling ctx stops the pass
// between operations and leaves the rest queued.
func (c *Coordinator) drain(ctx context.Context, reason string) error {
	c.setSyncing(true)
	defer c.setSyncing(false)
	c.wake.Store(false)

	// Storage and remote calls are not interrupted by shutdown once started.
	passCtx := context.WithoutCancel(ctx)
	started := c.opts.Now()
	generation := c.resets.Load()

	ops, err := c.queue.DrainOrder(passCtx)
	if err != nil {
		c.recordPass(passCtx, started, SyncStatus{}, err)
		return err
	}

	logger.Log.Debug("Drain pass started", zap.String("trigger", reason), zap.Int("operations", len(ops)))

	var synced, failed int
	for _, op := range ops {
		if ctx.Err() != nil {
			break
		}
		if c.resets.Load() != generation {
			logger.Log.Info("Queue was reset, ending drain pass early", zap.String("trigger", reason))
			break
		}

		replayErr := c.replay(passCtx, op)
		if replayErr == nil {
			if err := c.queue.Remove(passCtx, op.ID); err != nil {
				c.recordPass(passCtx, started, SyncStatus{Synced: synced, Failed: failed}, err)
				return err
			}
			synced++
			continue
		}

		failed++
		op.Retries++

		if op.Retries > c.opts.MaxRetries {
			logger.Log.Warn("Dropping operation after retry ceiling",
				zap.Stringer("operation", op),
				zap.Int("max_retries", c.opts.MaxRetries),
				zap.Error(replayErr),
			)
			if err := c.queue.Remove(passCtx, op.ID); err != nil {
				c.recordPass(passCtx, started, SyncStatus{Synced: synced, Failed: failed}, err)
				return err
			}
			c.recordDropped(passCtx, op, replayErr)
			continue
		}

		logger.Log.Info("Sync operation failed",
			zap.Stringer("operation", op),
			zap.Error(replayErr),
		)
		if err := c.queue.MarkRetry(passCtx, op.ID, op.Retries); err != nil {
			c.recordPass(passCtx, started, SyncStatus{Synced: synced, Failed: failed}, err)
			return err
		}
	}

	pending, err := c.queue.Len(passCtx)
	if err != nil {
		c.recordPass(passCtx, started, SyncStatus{Synced: synced, Failed: failed}, err)
		return err
	}

	now := c.opts.Now()
	status := SyncStatus{
		Pending:    pending,
		Synced:     synced,
		Failed:     failed,
		LastSyncAt: &now,
	}
	c.updateStatus(func(s *SyncStatus) { *s = status })

	if len(ops) > 0 {
		logger.Log.Info("Drain pass completed",
			zap.String("trigger", reason),
			zap.Int("synced", synced),
			zap.Int("failed", failed),
			zap.Int("pending", pending),
		)
		c.recordPass(passCtx, started, status, nil)
	}

	return nil
}

func (c *Coordinator) replay(ctx context.Context, op queue.Operation) error {
	if c.opts.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.OperationTimeout)
		defer cancel()
	}

	switch op.Type {
	case queue.Create:
		return c.remote.Insert(ctx, op.Table, op.Data)
	case queue.Update:
		return c.remote.Update(ctx, op.Table, op.Data.ID(), op.Data)
	case queue.Delete:
		return c.remote.Delete(ctx, op.Table, op.Data.ID())
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidOperation, op.Type)
	}
}

func (c *Coordinator) recordPass(ctx context.Context, started time.Time, status SyncStatus, passErr error) {
	if c.history == nil {
		return
	}

	h := &store.SyncHistory{
		ID:          uuid.NewString(),
		StartedAt:   started,
		CompletedAt: sql.NullTime{Time: c.opts.Now(), Valid: true},
		Synced:      status.Synced,
		Failed:      status.Failed,
		Pending:     status.Pending,
		Status:      store.StatusCompleted,
	}
	if passErr != nil {
		h.Status = store.StatusFailed
		h.ErrorMessage = sql.NullString{String: passErr.Error(), Valid: true}
	}

	if err := c.history.CreateSyncHistory(ctx, h); err != nil {
		logger.Log.Error("Failed to record sync history", zap.Error(err))
	}
}

func (c *Coordinator) recordDropped(ctx context.Context, op queue.Operation, cause error) {
	if c.history == nil {
		return
	}

	err := c.history.RecordDropped(ctx, &store.DroppedOperation{
		Operation:    op,
		ErrorMessage: cause.Error(),
		DroppedAt:    c.opts.Now(),
	})
	if err != nil {
		logger.Log.Error("Failed to record dropped operation", zap.String("operation_id", op.ID), zap.Error(err))
	}
}
