package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/possync/internal/engine"
	"github.com/mrlokans/possync/internal/entities"
	"github.com/mrlokans/possync/internal/logger"
	"github.com/mrlokans/possync/internal/registry"
)

// SyncRunner runs one sync cycle.
type SyncRunner interface {
	RunSync(ctx context.Context, types []registry.EntityType) (*engine.Report, error)
}

// SyncEntitiesTask runs a sync cycle for the given entity types.
// An empty Types list syncs every registered type.
type SyncEntitiesTask struct {
	Types   []string            `json:"types,omitempty"`
	Trigger entities.RunTrigger `json:"trigger,omitempty"`
}

// Config returns the queue configuration for sync tasks.
func (t SyncEntitiesTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "sync_entities",
		MaxAttempts: 3,
		Backoff:     time.Minute,
		Timeout:     60 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SyncEntitiesProcessor creates a processor function for SyncEntitiesTask.
//
// A cycle already running elsewhere is returned as an error so backlite
// retries later. Configuration errors will not fix themselves and are only
// logged.
func SyncEntitiesProcessor(runner SyncRunner, cycleTimeout time.Duration, log logger.Logger) backlite.QueueProcessor[SyncEntitiesTask] {
	log = log.With("component", "tasks", "queue", "sync_entities")
	return func(ctx context.Context, task SyncEntitiesTask) error {
		if runner == nil {
			return fmt.Errorf("sync runner not configured")
		}

		types := make([]registry.EntityType, 0, len(task.Types))
		for _, name := range task.Types {
			types = append(types, registry.EntityType(name))
		}

		trigger := task.Trigger
		if trigger == "" {
			trigger = entities.RunTriggerManual
		}
		ctx = engine.WithTrigger(ctx, trigger)
		if cycleTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cycleTimeout)
			defer cancel()
		}

		report, err := runner.RunSync(ctx, types)
		switch {
		case errors.Is(err, engine.ErrCycleInProgress):
			return fmt.Errorf("sync entities: %w", err)
		case engine.IsConfigurationError(err):
			log.Error("queued sync rejected", "types", task.Types, "error", err)
			return nil
		case err != nil:
			return fmt.Errorf("sync entities: %w", err)
		}

		log.Info("queued sync finished",
			"cycle_id", report.CycleID,
			"status", string(report.Status),
			"total_changes", report.TotalChanges,
			"failed_types", len(report.FailedTypes()),
		)
		return nil
	}
}

// NewSyncEntitiesQueue creates a backlite queue for sync tasks.
func NewSyncEntitiesQueue(runner SyncRunner, cycleTimeout time.Duration, log logger.Logger) backlite.Queue {
	return backlite.NewQueue(SyncEntitiesProcessor(runner, cycleTimeout, log))
}
