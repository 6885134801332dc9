package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type DatabaseDriver string

const (
	DriverSQLite   DatabaseDriver = "sqlite"   // Local file database (default)
	DriverPostgres DatabaseDriver = "postgres" // External PostgreSQL instance
)

type (
	Config struct {
		HTTP
		Global
		Database
		Square
		Sync
		Tasks
		Log
	}

	HTTP struct {
		Port int32
		Host string
	}

	Global struct {
		ShutdownTimeoutInSeconds int
	}

	Database struct {
		Driver       DatabaseDriver
		Path         string // SQLite file path
		DSN          string // PostgreSQL connection string
		MaxOpenConns int
		LogQueries   bool
	}

	Square struct {
		AccessToken    string
		BaseURL        string
		APIVersion     string        // Sent as the Square-Version header
		RequestTimeout time.Duration // Deadline for a single HTTP request
		MaxAttempts    int           // Requests per page, including the first one
		InitialBackoff time.Duration
		MaxBackoff     time.Duration
		PageLimit      int // Upper bound for the limit parameter, endpoints may cap lower
	}

	Sync struct {
		Enabled      bool
		Schedule     string        // Cron format: "*/30 * * * *" = every 30 minutes
		CycleTimeout time.Duration // Upper bound for one scheduled or queued cycle
		LeaseTTL     time.Duration // How long a crashed cycle keeps other cycles out
		BatchSize    int           // Rows per INSERT statement in the applier
		RunRetention time.Duration // How long cycle reports are kept in sync_runs
		EntityTypes  []string      // Scheduled subset, empty = every registered type
	}

	Tasks struct {
		Enabled           bool
		Workers           int
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}

	Log struct {
		Level      string
		Format     string // json | text
		File       string // Optional rotated log file, stdout when empty
		MaxSizeMB  int
		MaxBackups int
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8190)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 5)

	v.SetDefault("database_driver", string(DriverSQLite))
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("database_dsn", "")
	v.SetDefault("database_max_open_conns", 4)
	v.SetDefault("database_log_queries", false)

	// Square defaults
	v.SetDefault("square_access_token", "")
	v.SetDefault("square_base_url", DefaultSquareBaseURL)
	v.SetDefault("square_api_version", DefaultSquareAPIVersion)
	v.SetDefault("square_request_timeout", "30s")
	v.SetDefault("square_max_attempts", 4)
	v.SetDefault("square_initial_backoff", "1s")
	v.SetDefault("square_max_backoff", "30s")
	v.SetDefault("square_page_limit", 1000)

	// Sync cycle defaults
	v.SetDefault("sync_enabled", false)
	v.SetDefault("sync_schedule", "*/30 * * * *")
	v.SetDefault("sync_cycle_timeout", "30m")
	v.SetDefault("sync_lease_ttl", "45m")
	v.SetDefault("sync_batch_size", 200)
	v.SetDefault("sync_run_retention", "720h")
	v.SetDefault("sync_entity_types", "")

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 1)
	v.SetDefault("task_release_after", "1h")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 50)
	v.SetDefault("log_max_backups", 5)

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Driver:       DatabaseDriver(v.GetString("DATABASE_DRIVER")),
			Path:         v.GetString("DATABASE_PATH"),
			DSN:          v.GetString("DATABASE_DSN"),
			MaxOpenConns: v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			LogQueries:   v.GetBool("DATABASE_LOG_QUERIES"),
		},
		Square: Square{
			AccessToken:    v.GetString("SQUARE_ACCESS_TOKEN"),
			BaseURL:        v.GetString("SQUARE_BASE_URL"),
			APIVersion:     v.GetString("SQUARE_API_VERSION"),
			RequestTimeout: v.GetDuration("SQUARE_REQUEST_TIMEOUT"),
			MaxAttempts:    v.GetInt("SQUARE_MAX_ATTEMPTS"),
			InitialBackoff: v.GetDuration("SQUARE_INITIAL_BACKOFF"),
			MaxBackoff:     v.GetDuration("SQUARE_MAX_BACKOFF"),
			PageLimit:      v.GetInt("SQUARE_PAGE_LIMIT"),
		},
		Sync: Sync{
			Enabled:      v.GetBool("SYNC_ENABLED"),
			Schedule:     v.GetString("SYNC_SCHEDULE"),
			CycleTimeout: v.GetDuration("SYNC_CYCLE_TIMEOUT"),
			LeaseTTL:     v.GetDuration("SYNC_LEASE_TTL"),
			BatchSize:    v.GetInt("SYNC_BATCH_SIZE"),
			RunRetention: v.GetDuration("SYNC_RUN_RETENTION"),
			EntityTypes:  splitList(v.GetString("SYNC_ENTITY_TYPES")),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			Workers:           v.GetInt("TASK_WORKERS"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
		Log: Log{
			Level:      v.GetString("LOG_LEVEL"),
			Format:     v.GetString("LOG_FORMAT"),
			File:       v.GetString("LOG_FILE"),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
		},
	}
}

// splitList turns "a, b,,c" into [a b c].
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
