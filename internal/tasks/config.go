package tasks

import (
	"time"

	"github.com/mrlokans/possync/internal/config"
)

// Config holds configuration for the task queue system.
type Config struct {
	// Workers is the number of concurrent task workers. Default: 1
	Workers int

	// ReleaseAfter is when stuck tasks are released back to queue. Default: 1h
	ReleaseAfter time.Duration

	// CleanupInterval is how often backlite removes finished tasks. Default: 1h
	CleanupInterval time.Duration

	// RetentionDuration is how long to keep completed tasks. Default: 24h
	RetentionDuration time.Duration

	// CycleTimeout bounds a queued sync cycle. Default: 30m
	CycleTimeout time.Duration

	// RunRetention is how long cycle reports are kept. Default: 720h
	RunRetention time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:           1,
		ReleaseAfter:      1 * time.Hour,
		CleanupInterval:   1 * time.Hour,
		RetentionDuration: 24 * time.Hour,
		CycleTimeout:      30 * time.Minute,
		RunRetention:      30 * 24 * time.Hour,
	}
}

// FromAppConfig overlays the application settings on the defaults.
func FromAppConfig(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg.Tasks.Workers > 0 {
		out.Workers = cfg.Tasks.Workers
	}
	if cfg.Tasks.ReleaseAfter > 0 {
		out.ReleaseAfter = cfg.Tasks.ReleaseAfter
	}
	if cfg.Tasks.CleanupInterval > 0 {
		out.CleanupInterval = cfg.Tasks.CleanupInterval
	}
	if cfg.Tasks.RetentionDuration > 0 {
		out.RetentionDuration = cfg.Tasks.RetentionDuration
	}
	if cfg.Sync.CycleTimeout > 0 {
		out.CycleTimeout = cfg.Sync.CycleTimeout
	}
	if cfg.Sync.RunRetention > 0 {
		out.RunRetention = cfg.Sync.RunRetention
	}
	return out
}
