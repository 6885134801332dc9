// Package scheduler runs sync cycles on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/possync/internal/config"
	"github.com/mrlokans/possync/internal/engine"
	"github.com/mrlokans/possync/internal/entities"
	"github.com/mrlokans/possync/internal/logger"
	"github.com/mrlokans/possync/internal/registry"
)

type Runner interface {
	RunSync(ctx context.Context, types []registry.EntityType) (*engine.Report, error)
}

// SyncScheduler manages periodic sync cycles
type SyncScheduler struct {
	runner Runner
	cfg    config.Sync
	types  []registry.EntityType
	log    logger.Logger

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	isSyncing  bool
	baseCtx    context.Context
	cancelFunc context.CancelFunc
	lastReport *engine.Report
	lastErr    error

	maintenance []maintenanceJob
}

type maintenanceJob struct {
	name     string
	schedule string
	run      func(ctx context.Context)
}

// NewSyncScheduler creates a scheduler for the given types. Empty types
// means every registered type.
func NewSyncScheduler(runner Runner, cfg config.Sync, types []registry.EntityType, log logger.Logger) *SyncScheduler {
	log = log.With("component", "scheduler")
	cronLog := cronLogger{log: log}
	return &SyncScheduler{
		runner: runner,
		cfg:    cfg,
		types:  types,
		log:    log,
		cron: cron.New(
			cron.WithParser(scheduleParser),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
		baseCtx: context.Background(),
	}
}

// AddMaintenance registers a housekeeping job that runs on its own schedule,
// also when scheduled sync is disabled. Must be called before Start().
func (s *SyncScheduler) AddMaintenance(name, schedule string, run func(ctx context.Context)) error {
	if err := ValidateCronSchedule(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s' for %s: %w", schedule, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.maintenance = append(s.maintenance, maintenanceJob{name: name, schedule: schedule, run: run})
	return nil
}

// Start begins the scheduler if sync is enabled or maintenance jobs exist.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if !s.cfg.Enabled {
		s.log.Info("scheduled sync disabled")
		if len(s.maintenance) == 0 {
			return nil
		}
	}

	if s.cfg.Enabled {
		if err := ValidateCronSchedule(s.cfg.Schedule); err != nil {
			return fmt.Errorf("invalid cron schedule '%s': %w", s.cfg.Schedule, err)
		}

		entryID, err := s.cron.AddFunc(s.cfg.Schedule, s.runSync)
		if err != nil {
			return fmt.Errorf("failed to schedule sync job: %w", err)
		}
		s.entryID = entryID
	}

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)
	s.baseCtx = cancelCtx

	for _, job := range s.maintenance {
		if _, err := s.cron.AddFunc(job.schedule, func() {
			s.log.Debug("running maintenance job", "job", job.name)
			job.run(cancelCtx)
		}); err != nil {
			s.cancelFunc()
			return fmt.Errorf("failed to schedule %s: %w", job.name, err)
		}
	}

	s.cron.Start()
	s.isRunning = true

	if s.cfg.Enabled {
		nextRun, _ := GetNextRunTime(s.cfg.Schedule, time.Now())
		s.log.Info("scheduler started",
			"schedule", s.cfg.Schedule,
			"description", GetCronDescription(s.cfg.Schedule),
			"next_run", nextRun,
		)
	} else {
		s.log.Info("scheduler started", "maintenance_jobs", len(s.maintenance))
	}

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop cancels an in-flight cycle between entity types and waits for it to
// return.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}
	ctx := s.cron.Stop()
	s.mu.Unlock()

	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

// RunNow triggers an immediate cycle in the background
func (s *SyncScheduler) RunNow() {
	go s.runSync()
}

// IsRunning returns whether the scheduler is active
func (s *SyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// IsSyncing returns whether a scheduled cycle is currently in progress
func (s *SyncScheduler) IsSyncing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isSyncing
}

// GetNextRunTime returns when the next cycle will start
func (s *SyncScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning || s.entryID == 0 {
		return nil
	}

	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

// LastResult returns the outcome of the last cycle this scheduler started.
func (s *SyncScheduler) LastResult() (*engine.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport, s.lastErr
}

func (s *SyncScheduler) runSync() {
	s.mu.Lock()
	if s.isSyncing {
		s.mu.Unlock()
		s.log.Info("scheduled sync skipped", "reason", "already syncing")
		return
	}
	s.isSyncing = true
	base := s.baseCtx
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isSyncing = false
		s.mu.Unlock()
	}()

	ctx := engine.WithTrigger(base, entities.RunTriggerSchedule)
	if s.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CycleTimeout)
		defer cancel()
	}

	report, err := s.runner.RunSync(ctx, s.types)
	switch {
	case errors.Is(err, engine.ErrCycleInProgress):
		s.log.Info("scheduled sync skipped", "reason", "cycle in progress elsewhere")
	case err != nil:
		s.log.Error("scheduled sync aborted", "error", err)
	default:
		s.log.Info("scheduled sync finished",
			"cycle_id", report.CycleID,
			"status", string(report.Status),
			"total_changes", report.TotalChanges,
		)
	}

	s.mu.Lock()
	s.lastReport, s.lastErr = report, err
	s.mu.Unlock()
}

// cronLogger adapts logger.Logger to cron.Logger. Tick chatter goes to
// debug, recovered job panics to error.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(message string, keysAndValues ...any) {
	l.log.Debug(message, keysAndValues...)
}

func (l cronLogger) Error(err error, message string, keysAndValues ...any) {
	l.log.Error(message, append([]any{"error", err}, keysAndValues...)...)
}
