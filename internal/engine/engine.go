// Package engine runs sync cycles: resolve the requested entity types into
// dependency order, then fetch, apply and record each type in turn.
//
// A failure in one type is written into the report and the cycle moves on.
// Only pre-condition failures (configuration, another cycle running) are
// returned as errors, in which case no report exists.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/mrlokans/possync/internal/applier"
	"github.com/mrlokans/possync/internal/database/syncstate"
	"github.com/mrlokans/possync/internal/entities"
	"github.com/mrlokans/possync/internal/logger"
	"github.com/mrlokans/possync/internal/registry"
	"github.com/mrlokans/possync/internal/square"
)

const (
	CycleLeaseName  = "cycle"
	defaultLeaseTTL = 45 * time.Minute
)

type Fetcher interface {
	Ready() error
	Fetch(ctx context.Context, desc registry.Descriptor, watermark *time.Time) (*square.FetchResult, error)
}

type Applier interface {
	Apply(ctx context.Context, t registry.EntityType, records []square.Record) (*applier.Result, error)
}

type Tracker interface {
	EnsureStore(ctx context.Context) error
	GetWatermark(ctx context.Context, t registry.EntityType) (*time.Time, error)
	RecordResult(ctx context.Context, res syncstate.Result) error
	RecordCycleTotal(ctx context.Context, total int, duration time.Duration) error
	AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, owner string) error
}

// RunRecorder persists finished reports.
type RunRecorder interface {
	Record(ctx context.Context, report *Report) error
}

type Option func(*Engine)

func WithLogger(log logger.Logger) Option {
	return func(e *Engine) { e.log = log.With("component", "engine") }
}

func WithRunRecorder(rec RunRecorder) Option {
	return func(e *Engine) { e.recorder = rec }
}

// WithLeaseTTL bounds how long a crashed process keeps other cycles out.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.leaseTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type Engine struct {
	registry *registry.Registry
	fetcher  Fetcher
	applier  Applier
	tracker  Tracker
	recorder RunRecorder
	log      logger.Logger
	leaseTTL time.Duration
	now      func() time.Time

	running *semaphore.Weighted
	owner   string

	mu    sync.RWMutex
	state State
}

func New(reg *registry.Registry, fetcher Fetcher, applier Applier, tracker Tracker, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		fetcher:  fetcher,
		applier:  applier,
		tracker:  tracker,
		log:      logger.Discard(),
		leaseTTL: defaultLeaseTTL,
		now:      func() time.Time { return time.Now().UTC() },
		running:  semaphore.NewWeighted(1),
		owner:    uuid.NewString(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current position in the cycle state machine.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Registry returns the entity registry the engine resolves against.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// RunSync runs one cycle over the given types, or over every registered
// type when none are given.
func (e *Engine) RunSync(ctx context.Context, types []registry.EntityType) (*Report, error) {
	if !e.running.TryAcquire(1) {
		return nil, ErrCycleInProgress
	}
	defer e.running.Release(1)

	e.setState(StateIdle)
	if err := e.fetcher.Ready(); err != nil {
		e.setState(StateAborted)
		return nil, &ConfigurationError{Err: err}
	}

	e.setState(StateResolving)
	order, err := e.registry.Resolve(types)
	if err != nil {
		e.setState(StateAborted)
		return nil, &ConfigurationError{Err: err}
	}

	// bookkeeping writes must land even if ctx is cancelled mid-cycle
	storeCtx := context.WithoutCancel(ctx)

	if err := e.tracker.EnsureStore(storeCtx); err != nil {
		e.setState(StateAborted)
		return nil, &TrackingError{Err: err}
	}
	acquired, err := e.tracker.AcquireLease(storeCtx, CycleLeaseName, e.owner, e.leaseTTL)
	if err != nil {
		e.setState(StateAborted)
		return nil, &TrackingError{Err: err}
	}
	if !acquired {
		e.setState(StateAborted)
		return nil, ErrCycleInProgress
	}
	defer func() {
		if err := e.tracker.ReleaseLease(storeCtx, CycleLeaseName, e.owner); err != nil {
			e.log.Warn("failed to release cycle lease", "error", err)
		}
	}()

	started := e.now()
	report := &Report{
		CycleID:   uuid.NewString(),
		Trigger:   TriggerFromContext(ctx),
		Order:     order,
		PerType:   make(map[registry.EntityType]TypeResult, len(order)),
		Timestamp: started,
	}
	log := e.log.With("cycle_id", report.CycleID)
	log.Info("sync cycle started", "types", order, "trigger", string(report.Trigger))

	for i, t := range order {
		if err := ctx.Err(); err != nil {
			for _, skipped := range order[i:] {
				report.PerType[skipped] = TypeResult{Error: err.Error()}
				e.record(storeCtx, log, syncstate.Result{EntityType: skipped, Err: err})
			}
			log.Warn("sync cycle cancelled", "remaining", order[i:])
			break
		}
		report.PerType[t] = e.syncType(ctx, storeCtx, log, t)
	}

	elapsed := e.now().Sub(started)
	report.finish(elapsed)
	e.setState(report.Status)

	if err := e.tracker.RecordCycleTotal(storeCtx, report.TotalChanges, elapsed); err != nil {
		log.Warn("failed to record cycle total", "error", &TrackingError{Err: err})
	}
	if e.recorder != nil {
		if err := e.recorder.Record(storeCtx, report); err != nil {
			log.Warn("failed to record sync run", "error", err)
		}
	}

	log.Info("sync cycle finished",
		"status", string(report.Status),
		"total_changes", report.TotalChanges,
		"failed", report.FailedTypes(),
		"duration_ms", report.DurationMS,
	)
	return report, nil
}

// syncType runs fetch, apply and record for one entity type. Errors never
// escape; they become the type's result.
func (e *Engine) syncType(ctx, storeCtx context.Context, log logger.Logger, t registry.EntityType) TypeResult {
	started := e.now()
	log = log.With("entity_type", t)
	desc, _ := e.registry.Lookup(t)

	e.setState(StateFetching)
	watermark, err := e.tracker.GetWatermark(storeCtx, t)
	if err != nil {
		log.Warn("failed to read watermark, fetching full set", "error", &TrackingError{EntityType: t, Err: err})
		watermark = nil
	}

	var (
		result  TypeResult
		failure error
	)

	fetched, err := e.fetcher.Fetch(ctx, desc, watermark)
	if err != nil {
		failure = &FetchError{EntityType: t, Err: err}
	} else {
		result.Records = len(fetched.Records)

		e.setState(StateApplying)
		applied, err := e.applier.Apply(ctx, t, fetched.Records)
		if err != nil {
			failure = &ApplyError{EntityType: t, Err: err}
		} else {
			result.ChangesApplied = applied.ChangesApplied
		}
	}

	e.setState(StateRecording)
	elapsed := e.now().Sub(started)
	result.DurationMS = elapsed.Milliseconds()

	tracked := syncstate.Result{
		EntityType:    t,
		RecordsSynced: result.Records,
		Duration:      elapsed,
		Watermark:     &started,
		Err:           failure,
	}
	if failure != nil {
		result.Error = failure.Error()
		log.Error("entity type failed", "error", failure)
	} else {
		result.Success = true
		log.Info("entity type synced", "records", result.Records, "changes", result.ChangesApplied)
	}

	e.record(storeCtx, log, tracked)
	return result
}

func (e *Engine) record(ctx context.Context, log logger.Logger, res syncstate.Result) {
	if err := e.tracker.RecordResult(ctx, res); err != nil {
		log.Warn("failed to record sync state", "error", &TrackingError{EntityType: res.EntityType, Err: err})
	}
}

// IsConfigurationError reports whether err stopped a cycle before it began.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

type triggerKey struct{}

// WithTrigger tags cycles started with ctx so their run history shows what
// started them.
func WithTrigger(ctx context.Context, trigger entities.RunTrigger) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

func TriggerFromContext(ctx context.Context) entities.RunTrigger {
	if trigger, ok := ctx.Value(triggerKey{}).(entities.RunTrigger); ok {
		return trigger
	}
	return entities.RunTriggerManual
}
