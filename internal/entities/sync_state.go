package entities

import (
	"time"

	"gorm.io/datatypes"
)

type SyncStatus string

const (
	SyncStatusSucceeded SyncStatus = "succeeded"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncState is one row of the tracking table. LastSyncTimestamp is the
// watermark and only ever moves forward.
type SyncState struct {
	EntityType          string     `gorm:"primaryKey;size:50" json:"entity_type"`
	LastSyncTimestamp   *time.Time `json:"last_sync_timestamp"`
	RecordsSynced       int        `gorm:"not null" json:"records_synced"`
	SyncDurationSeconds *int64     `json:"sync_duration_seconds"`
	LastStatus          SyncStatus `gorm:"size:20" json:"last_status"`
	LastError           string     `gorm:"type:text" json:"last_error,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (SyncState) TableName() string {
	return "sync_tracking"
}

// SyncLease keeps a second cycle out while one is running, across processes.
type SyncLease struct {
	Name       string    `gorm:"primaryKey;size:50" json:"name"`
	Owner      string    `gorm:"size:64;not null" json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `gorm:"index" json:"expires_at"`
}

func (SyncLease) TableName() string {
	return "sync_leases"
}

type RunTrigger string

const (
	RunTriggerSchedule RunTrigger = "schedule"
	RunTriggerManual   RunTrigger = "manual"
	RunTriggerCLI      RunTrigger = "cli"
)

// SyncRun is the persisted report of one finished cycle.
type SyncRun struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CycleID      string         `gorm:"size:36;uniqueIndex" json:"cycle_id"`
	Trigger      RunTrigger     `gorm:"column:run_trigger;size:20;index" json:"trigger"`
	Status       string         `gorm:"size:20;index" json:"status"`
	Success      bool           `json:"success"`
	TotalChanges int            `json:"total_changes"`
	FailedTypes  string         `gorm:"size:500" json:"failed_types,omitempty"`
	Report       datatypes.JSON `json:"report"`
	StartedAt    time.Time      `gorm:"index" json:"started_at"`
	DurationMS   int64          `json:"duration_ms"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}
