package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/possync/internal/logger"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}

	router := gin.New()
	router.Use(requestLogger(log))
	router.Use(gin.Recovery())

	health := NewHealthController(cfg.Database, cfg.Engine, cfg.Version)
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.String(200, "pong")
	})

	api := router.Group("/api")

	if cfg.Engine != nil {
		syncController := NewSyncController(cfg.Engine, cfg.Tracker, cfg.Runs, cfg.Queue, log)
		api.POST("/sync", syncController.TriggerSync)
		api.GET("/sync/state", syncController.GetState)
		api.GET("/sync/entities", syncController.ListEntities)
		api.GET("/sync/runs", syncController.ListRuns)
		api.GET("/sync/runs/:cycle_id", syncController.GetRun)
	}

	if cfg.Queue != nil {
		tasksController := NewTasksController(cfg.Queue, log)
		api.GET("/tasks/:id", tasksController.GetTaskStatus)
	}

	return router
}

// requestLogger writes one structured line per request.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	log = log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if c.Writer.Status() >= 500 {
			log.Error("request", attrs...)
			return
		}
		log.Debug("request", attrs...)
	}
}
