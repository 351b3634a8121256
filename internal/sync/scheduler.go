package sync

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"trakn-sync-service/internal/config"
	"trakn-sync-service/internal/logger"
)

// drainTrigger is the part of the Coordinator the scheduler drives.
type drainTrigger interface {
	IsOnline() bool
	IsSyncing() bool
	Trigger(reason string) bool
}

// Scheduler fires a drain attempt on a fixed interval while online and idle.
type Scheduler struct {
	cfg         config.SchedulerConfig
	coordinator drainTrigger
	cron        *cron.Cron
	entryID     cron.EntryID
}

func NewScheduler(cfg config.SchedulerConfig, coordinator drainTrigger) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		coordinator: coordinator,
		cron:        cron.New(),
	}
}

func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return nil
	}

	logger.Log.Info("Starting scheduler", zap.String("interval", s.cfg.Interval))

	id, err := s.cron.AddFunc(s.cfg.Interval, s.triggerSync)
	if err != nil {
		return err
	}

	s.entryID = id
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	logger.Log.Info("Stopped scheduler")
}

func (s *Scheduler) triggerSync() {
	if !s.coordinator.IsOnline() {
		logger.Log.Debug("Offline, skipping scheduled sync")
		return
	}

	if s.coordinator.IsSyncing() {
		logger.Log.Debug("Sync already running, skipping scheduled run")
		return
	}

	s.coordinator.Trigger("schedule")
}
