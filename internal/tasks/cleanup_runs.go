package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/possync/internal/logger"
)

const defaultRunRetentionHours = 30 * 24

// SyncRunCleaner deletes cycle reports started before the cutoff.
type SyncRunCleaner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupSyncRunsTask removes cycle reports older than the retention period.
type CleanupSyncRunsTask struct {
	RetentionHours int `json:"retention_hours"`
}

// Config returns the queue configuration for run cleanup tasks.
func (t CleanupSyncRunsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "cleanup_sync_runs",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// CleanupSyncRunsProcessor creates a processor function for CleanupSyncRunsTask.
func CleanupSyncRunsProcessor(cleaner SyncRunCleaner, log logger.Logger) backlite.QueueProcessor[CleanupSyncRunsTask] {
	log = log.With("component", "tasks", "queue", "cleanup_sync_runs")
	return func(ctx context.Context, task CleanupSyncRunsTask) error {
		if cleaner == nil {
			return fmt.Errorf("sync run cleaner not configured")
		}

		hours := task.RetentionHours
		if hours <= 0 {
			hours = defaultRunRetentionHours
		}
		cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

		deleted, err := cleaner.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("cleanup sync runs: %w", err)
		}

		log.Info("cleaned up sync runs", "deleted", deleted, "retention_hours", hours)
		return nil
	}
}

// NewCleanupSyncRunsQueue creates a backlite queue for run cleanup tasks.
func NewCleanupSyncRunsQueue(cleaner SyncRunCleaner, log logger.Logger) backlite.Queue {
	return backlite.NewQueue(CleanupSyncRunsProcessor(cleaner, log))
}
