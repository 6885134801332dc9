package http

import (
	"github.com/mrlokans/possync/internal/database"
	"github.com/mrlokans/possync/internal/logger"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	Database *database.Database
	Engine   SyncEngine
	Tracker  StateReader
	Runs     RunReader

	// Queue is nil when the task queue is disabled, in which case
	// POST /api/sync runs the cycle inside the request.
	Queue SyncQueue

	Version string
	Logger  logger.Logger
}
