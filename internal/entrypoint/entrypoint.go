package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/possync/internal/config"
	http_controllers "github.com/mrlokans/possync/internal/http"
	"github.com/mrlokans/possync/internal/logger"
	"github.com/mrlokans/possync/internal/scheduler"
	"github.com/mrlokans/possync/internal/tasks"
)

// cleanupSchedule runs the run-history cleanup at minute 17 of every hour.
const cleanupSchedule = "17 * * * *"

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// within the configured timeout.
func Serve(ctx context.Context, router *gin.Engine, cfg *config.Config, log logger.Logger, onShutdown ShutdownFunc) error {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server", "timeout", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop background work first so no new cycle starts mid-shutdown.
	if onShutdown != nil {
		onShutdown(shutdownCtx)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info("server exiting")
	return nil
}

// Run starts the long-running process: HTTP surface, cron scheduler and task
// queue. It returns after SIGINT or SIGTERM.
func Run(cfg *config.Config, version string) error {
	log := logger.NewFromConfig(cfg.Log)
	log.Info("starting possync", "version", version)

	if cfg.Square.AccessToken == "" {
		log.Warn("SQUARE_ACCESS_TOKEN is not set, sync cycles will be rejected until it is configured")
	}

	app, err := NewApp(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error("error closing database", "error", err)
		}
	}()

	scheduledTypes, err := app.ScheduledTypes()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var queue http_controllers.SyncQueue
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskCfg := tasks.FromAppConfig(cfg)
		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize task queue: %w", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Error("error closing task client", "error", err)
			}
		}()

		taskClient.Register(
			tasks.NewSyncEntitiesQueue(app.Engine, taskCfg.CycleTimeout, log),
			tasks.NewCleanupSyncRunsQueue(app.Runs, log),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)
		queue = taskClient
	}

	syncScheduler := scheduler.NewSyncScheduler(app.Engine, cfg.Sync, scheduledTypes, log)
	if err := syncScheduler.AddMaintenance("cleanup_sync_runs", cleanupSchedule, runCleanup(app, taskClient, log)); err != nil {
		return err
	}
	if err := syncScheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	router := http_controllers.NewRouter(http_controllers.RouterConfig{
		Database: app.Database,
		Engine:   app.Engine,
		Tracker:  app.Tracker,
		Runs:     app.Runs,
		Queue:    queue,
		Version:  version,
		Logger:   log,
	})

	return Serve(ctx, router, cfg, log, func(ctx context.Context) {
		syncScheduler.Stop()
		if taskClient != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	})
}

// runCleanup enqueues the history cleanup when the queue is running and
// deletes inline otherwise.
func runCleanup(app *App, taskClient *tasks.Client, log logger.Logger) func(ctx context.Context) {
	retention := app.Config.Sync.RunRetention
	return func(ctx context.Context) {
		if taskClient != nil {
			if _, err := taskClient.EnqueueRunCleanup(); err != nil {
				log.Error("failed to enqueue run cleanup", "error", err)
			}
			return
		}
		if retention <= 0 {
			return
		}
		deleted, err := app.Runs.DeleteOlderThan(ctx, time.Now().UTC().Add(-retention))
		if err != nil {
			log.Error("run cleanup failed", "error", err)
			return
		}
		log.Info("cleaned up sync runs", "deleted", deleted)
	}
}
