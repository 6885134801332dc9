package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/possync/internal/database/runs"
	"github.com/mrlokans/possync/internal/engine"
	"github.com/mrlokans/possync/internal/entities"
	"github.com/mrlokans/possync/internal/logger"
	"github.com/mrlokans/possync/internal/registry"
	"github.com/mrlokans/possync/internal/tasks"
)

// SyncEngine is the part of engine.Engine the HTTP surface uses.
type SyncEngine interface {
	RunSync(ctx context.Context, types []registry.EntityType) (*engine.Report, error)
	State() engine.State
	Registry() *registry.Registry
}

// StateReader exposes the per-type tracking rows and the cycle lease.
type StateReader interface {
	List(ctx context.Context) ([]entities.SyncState, error)
	Lease(ctx context.Context, name string) (*entities.SyncLease, error)
}

type RunReader interface {
	List(ctx context.Context, filter runs.Filter, limit, offset int) ([]entities.SyncRun, int64, error)
	GetByCycleID(ctx context.Context, cycleID string) (*entities.SyncRun, error)
}

// SyncController handles sync trigger and inspection endpoints.
type SyncController struct {
	engine  SyncEngine
	tracker StateReader
	runs    RunReader
	queue   SyncQueue
	log     logger.Logger
}

func NewSyncController(engine SyncEngine, tracker StateReader, runReader RunReader, queue SyncQueue, log logger.Logger) *SyncController {
	return &SyncController{
		engine:  engine,
		tracker: tracker,
		runs:    runReader,
		queue:   queue,
		log:     log.With("component", "http"),
	}
}

// TriggerSyncRequest is the body of POST /api/sync. Both fields are optional.
type TriggerSyncRequest struct {
	Types            []string `json:"types"`
	WithDependencies bool     `json:"with_dependencies"`
}

// SyncStateResponse is returned by GET /api/sync/state.
type SyncStateResponse struct {
	EngineState engine.State         `json:"engine_state"`
	Lease       *entities.SyncLease  `json:"lease"`
	Entities    []entities.SyncState `json:"entities"`
}

type EntityInfo struct {
	Type              registry.EntityType     `json:"type"`
	Dependencies      []registry.EntityType   `json:"dependencies"`
	Endpoint          string                  `json:"endpoint"`
	Method            string                  `json:"method"`
	UpdateStrategy    registry.UpdateStrategy `json:"update_strategy"`
	SupportsWatermark bool                    `json:"supports_watermark"`
}

type EntitiesResponse struct {
	Entities []EntityInfo          `json:"entities"`
	Order    []registry.EntityType `json:"order"`
}

// TriggerSync handles POST /api/sync.
// Enqueues a cycle when the task queue is enabled, otherwise runs it inline
// and returns the report.
func (sc *SyncController) TriggerSync(c *gin.Context) {
	var req TriggerSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body")
			return
		}
	}

	reg := sc.engine.Registry()
	types, err := reg.Parse(req.Types)
	if err != nil {
		respondError(c, http.StatusBadRequest, "configuration_error", err.Error())
		return
	}
	if req.WithDependencies && len(types) > 0 {
		if types, err = reg.WithPrerequisites(types); err != nil {
			respondError(c, http.StatusBadRequest, "configuration_error", err.Error())
			return
		}
	}

	if sc.queue != nil {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = t.String()
		}
		taskID, err := sc.queue.EnqueueSync(tasks.SyncEntitiesTask{Types: names, Trigger: entities.RunTriggerManual})
		if err != nil {
			respondInternalError(c, sc.log, err, "enqueue sync")
			return
		}
		sc.log.Info("sync enqueued", "task_id", taskID, "types", names)
		respondAccepted(c, "sync enqueued", gin.H{"task_id": taskID})
		return
	}

	ctx := engine.WithTrigger(c.Request.Context(), entities.RunTriggerManual)
	report, err := sc.engine.RunSync(ctx, types)
	switch {
	case errors.Is(err, engine.ErrCycleInProgress):
		respondError(c, http.StatusConflict, "cycle_in_progress", err.Error())
		return
	case engine.IsConfigurationError(err):
		respondError(c, http.StatusBadRequest, "configuration_error", err.Error())
		return
	case err != nil:
		respondInternalError(c, sc.log, err, "run sync")
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetState handles GET /api/sync/state.
func (sc *SyncController) GetState(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	states, err := sc.tracker.List(ctx)
	if err != nil {
		respondInternalError(c, sc.log, err, "list sync state")
		return
	}
	lease, err := sc.tracker.Lease(ctx, engine.CycleLeaseName)
	if err != nil {
		respondInternalError(c, sc.log, err, "read cycle lease")
		return
	}
	if states == nil {
		states = []entities.SyncState{}
	}

	c.JSON(http.StatusOK, SyncStateResponse{
		EngineState: sc.engine.State(),
		Lease:       lease,
		Entities:    states,
	})
}

// ListRuns handles GET /api/sync/runs?status=&trigger=&since=&limit=&offset=
func (sc *SyncController) ListRuns(c *gin.Context) {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}

	filter := runs.Filter{
		Status:  c.Query("status"),
		Trigger: entities.RunTrigger(c.Query("trigger")),
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondBadRequest(c, "invalid since, expected RFC3339")
			return
		}
		filter.Since = since
	}

	items, total, err := sc.runs.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		respondInternalError(c, sc.log, err, "list sync runs")
		return
	}
	if items == nil {
		items = []entities.SyncRun{}
	}

	c.JSON(http.StatusOK, newPaginatedResponse(items, total, limit, offset))
}

// GetRun handles GET /api/sync/runs/:cycle_id
func (sc *SyncController) GetRun(c *gin.Context) {
	run, err := sc.runs.GetByCycleID(c.Request.Context(), c.Param("cycle_id"))
	if errors.Is(err, runs.ErrRunNotFound) {
		respondNotFound(c, "sync run")
		return
	}
	if err != nil {
		respondInternalError(c, sc.log, err, "get sync run")
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListEntities handles GET /api/sync/entities.
// Returns the registered types and the order a full cycle would use.
func (sc *SyncController) ListEntities(c *gin.Context) {
	reg := sc.engine.Registry()

	order, err := reg.Resolve(nil)
	if err != nil {
		respondInternalError(c, sc.log, err, "resolve order")
		return
	}

	descriptors := reg.Descriptors()
	infos := make([]EntityInfo, 0, len(descriptors))
	for _, d := range descriptors {
		deps := d.Dependencies
		if deps == nil {
			deps = []registry.EntityType{}
		}
		infos = append(infos, EntityInfo{
			Type:              d.Type,
			Dependencies:      deps,
			Endpoint:          d.Endpoint,
			Method:            d.Method,
			UpdateStrategy:    d.UpdateStrategy,
			SupportsWatermark: d.SupportsWatermark,
		})
	}

	c.JSON(http.StatusOK, EntitiesResponse{Entities: infos, Order: order})
}
