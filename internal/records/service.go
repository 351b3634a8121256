// Package records is the user-facing write path: remote first, local mirror always, and the
// sync queue whenever the remote write cannot happen now.
package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trakn-sync-service/internal/logger"
	"trakn-sync-service/internal/mirror"
	"trakn-sync-service/internal/queue"
	"trakn-sync-service/internal/remote"
	"trakn-sync-service/internal/sync"
)

// Syncer is the part of the sync coordinator the write path needs.
type Syncer interface {
	IsOnline() bool
	QueueOperation(ctx context.Context, opType queue.OperationType, table string, data queue.Record) (queue.Operation, error)
}

// Result tells the caller whether a write reached the remote or is waiting in the queue.
type Result struct {
	Record      queue.Record `json:"record"`
	Queued      bool         `json:"queued"`
	OperationID string       `json:"operation_id,omitempty"`
}

type Service struct {
	remote  sync.RemoteStore
	mirror  *mirror.Store
	syncer  Syncer
	tables  map[string]bool
	timeout time.Duration
}

func NewService(remote sync.RemoteStore, mirror *mirror.Store, syncer Syncer, tables []string, timeout time.Duration) *Service {
	allowed := make(map[string]bool, len(tables))
	for _, t := range tables {
		allowed[t] = true
	}
	return &Service{
		remote:  remote,
		mirror:  mirror,
		syncer:  syncer,
		tables:  allowed,
		timeout: timeout,
	}
}

// Create writes a new record. A missing id is generated here so the mirror and the remote
// row share the same identity.
func (s *Service) Create(ctx context.Context, table string, data queue.Record) (Result, error) {
	rec := clone(data)
	if rec.ID() == "" {
		rec["id"] = uuid.NewString()
	}
	return s.write(ctx, queue.Create, table, rec)
}

// Update applies a partial update to record id.
func (s *Service) Update(ctx context.Context, table, id string, data queue.Record) (Result, error) {
	rec := clone(data)
	rec["id"] = id
	return s.write(ctx, queue.Update, table, rec)
}

func (s *Service) Delete(ctx context.Context, table, id string) (Result, error) {
	return s.write(ctx, queue.Delete, table, queue.Record{"id": id})
}

func (s *Service) Get(ctx context.Context, table, id string) (queue.Record, error) {
	if err := s.checkTable(table); err != nil {
		return nil, err
	}
	return s.mirror.Get(ctx, table, id)
}

func (s *Service) List(ctx context.Context, table string) ([]queue.Record, error) {
	if err := s.checkTable(table); err != nil {
		return nil, err
	}
	return s.mirror.List(ctx, table)
}

func (s *Service) write(ctx context.Context, opType queue.OperationType, table string, rec queue.Record) (Result, error) {
	if err := s.checkTable(table); err != nil {
		return Result{}, err
	}
	if rec.ID() == "" {
		return Result{}, queue.ErrMissingRecordID
	}

	if s.syncer.IsOnline() {
		err := s.writeRemote(ctx, opType, table, rec)
		if err == nil {
			return s.applyLocal(ctx, opType, table, rec, Result{})
		}
		if remote.IsInvalid(err) {
			return Result{}, err
		}
		logger.Log.Info("Remote write failed, queuing for sync",
			zap.String("type", string(opType)),
			zap.String("table", table),
			zap.String("id", rec.ID()),
			zap.Error(err),
		)
	}

	op, err := s.syncer.QueueOperation(ctx, opType, table, rec)
	if err != nil {
		return Result{}, err
	}
	return s.applyLocal(ctx, opType, table, rec, Result{Queued: true, OperationID: op.ID})
}

func (s *Service) writeRemote(ctx context.Context, opType queue.OperationType, table string, rec queue.Record) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	switch opType {
	case queue.Create:
		return s.remote.Insert(ctx, table, rec)
	case queue.Update:
		return s.remote.Update(ctx, table, rec.ID(), rec)
	case queue.Delete:
		return s.remote.Delete(ctx, table, rec.ID())
	}
	return fmt.Errorf("%w: unknown type %q", sync.ErrInvalidOperation, opType)
}

// applyLocal brings the mirror in line with a write. Updates merge into the mirrored copy.
func (s *Service) applyLocal(ctx context.Context, opType queue.OperationType, table string, rec queue.Record, res Result) (Result, error) {
	switch opType {
	case queue.Delete:
		if err := s.mirror.Delete(ctx, table, rec.ID()); err != nil {
			return Result{}, err
		}
		res.Record = rec
		return res, nil
	case queue.Update:
		existing, err := s.mirror.Get(ctx, table, rec.ID())
		switch {
		case err == nil:
			for k, v := range rec {
				existing[k] = v
			}
			rec = existing
		case !errors.Is(err, mirror.ErrNotFound):
			return Result{}, err
		}
	}

	if err := s.mirror.Put(ctx, table, rec); err != nil {
		return Result{}, err
	}
	res.Record = rec
	return res, nil
}

func (s *Service) checkTable(table string) error {
	if !s.tables[table] {
		return fmt.Errorf("%w: %q", remote.ErrUnknownTable, table)
	}
	return nil
}

func clone(r queue.Record) queue.Record {
	out := make(queue.Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}
