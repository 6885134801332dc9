package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/possync/internal/applier"
	"github.com/mrlokans/possync/internal/config"
	"github.com/mrlokans/possync/internal/database"
	"github.com/mrlokans/possync/internal/database/syncstate"
	"github.com/mrlokans/possync/internal/entities"
	"github.com/mrlokans/possync/internal/logger"
	"github.com/mrlokans/possync/internal/registry"
	"github.com/mrlokans/possync/internal/square"
)

type fakeFetcher struct {
	mu         sync.Mutex
	readyErr   error
	records    map[registry.EntityType][]square.Record
	errs       map[registry.EntityType]error
	hooks      map[registry.EntityType]func()
	calls      []registry.EntityType
	watermarks map[registry.EntityType]*time.Time
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		records:    map[registry.EntityType][]square.Record{},
		errs:       map[registry.EntityType]error{},
		hooks:      map[registry.EntityType]func(){},
		watermarks: map[registry.EntityType]*time.Time{},
	}
}

func (f *fakeFetcher) Ready() error { return f.readyErr }

func (f *fakeFetcher) Fetch(ctx context.Context, desc registry.Descriptor, watermark *time.Time) (*square.FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, desc.Type)
	f.watermarks[desc.Type] = watermark
	hook := f.hooks[desc.Type]
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err := f.errs[desc.Type]; err != nil {
		return nil, err
	}
	return &square.FetchResult{Records: f.records[desc.Type], Pages: 1}, nil
}

func (f *fakeFetcher) Calls() []registry.EntityType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]registry.EntityType(nil), f.calls...)
}

type recorderFunc func(ctx context.Context, report *Report) error

func (f recorderFunc) Record(ctx context.Context, report *Report) error { return f(ctx, report) }

type failingTracker struct {
	*syncstate.Repository
}

func (failingTracker) RecordResult(context.Context, syncstate.Result) error {
	return errors.New("disk full")
}

type harness struct {
	db      *gorm.DB
	fetcher *fakeFetcher
	tracker *syncstate.Repository
	applier *applier.Applier
}

func setupHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.NewDatabase(config.Database{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "engine.db"),
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &harness{
		db:      db.DB,
		fetcher: newFakeFetcher(),
		tracker: syncstate.NewRepository(db.DB),
		applier: applier.New(db.DB, logger.Discard(), applier.Options{}),
	}
}

func (h *harness) engine(opts ...Option) *Engine {
	return New(registry.Default(), h.fetcher, h.applier, h.tracker, opts...)
}

func raw(t *testing.T, payload map[string]any) square.Record {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return square.Record{ID: payload["id"].(string), Raw: b}
}

func locations(t *testing.T) []square.Record {
	return []square.Record{
		raw(t, map[string]any{"id": "L1", "name": "Main Street", "status": "ACTIVE"}),
		raw(t, map[string]any{"id": "L2", "name": "Harbor", "status": "ACTIVE"}),
	}
}

func trackingRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&entities.SyncState{}).Count(&n).Error)
	return n
}

func TestRunSync_PartialFailureIsIsolated(t *testing.T) {
	h := setupHarness(t)
	h.fetcher.records[registry.Locations] = locations(t)
	h.fetcher.errs[registry.Vendors] = &square.ServerError{StatusCode: 503}
	before := time.Now().UTC()

	report, err := h.engine().RunSync(context.Background(), []registry.EntityType{registry.Vendors, registry.Locations})

	require.NoError(t, err)
	assert.False(t, report.Success)
	assert.Equal(t, StatePartialFailure, report.Status)
	assert.True(t, report.PerType[registry.Locations].Success)
	assert.False(t, report.PerType[registry.Vendors].Success)
	assert.Contains(t, report.PerType[registry.Vendors].Error, "503")
	assert.Equal(t, 2, report.TotalChanges)
	assert.Equal(t, []registry.EntityType{registry.Vendors}, report.FailedTypes())

	wm, err := h.tracker.GetWatermark(context.Background(), registry.Locations)
	require.NoError(t, err)
	require.NotNil(t, wm)
	assert.False(t, wm.Before(before), "watermark %s is older than cycle start %s", wm, before)

	wm, err = h.tracker.GetWatermark(context.Background(), registry.Vendors)
	require.NoError(t, err)
	assert.Nil(t, wm)

	vendors, err := h.tracker.Get(context.Background(), "vendors")
	require.NoError(t, err)
	assert.Equal(t, entities.SyncStatusFailed, vendors.LastStatus)
	assert.Equal(t, 0, vendors.RecordsSynced)
}

func TestRunSync_ApplyFailureIsReported(t *testing.T) {
	h := setupHarness(t)
	h.fetcher.records[registry.Orders] = []square.Record{
		raw(t, map[string]any{"id": "O1", "location_id": "L-missing", "version": 1}),
	}

	report, err := h.engine().RunSync(context.Background(), []registry.EntityType{registry.Orders})

	require.NoError(t, err)
	assert.False(t, report.PerType[registry.Orders].Success)
	assert.Contains(t, report.PerType[registry.Orders].Error, "apply orders")
}

func TestRunSync_EmptyRemoteSet(t *testing.T) {
	h := setupHarness(t)

	report, err := h.engine().RunSync(context.Background(), []registry.EntityType{registry.Vendors})

	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, StateCompleted, report.Status)
	assert.Equal(t, 0, report.PerType[registry.Vendors].ChangesApplied)
	assert.True(t, report.PerType[registry.Vendors].Success)
}

func TestRunSync_ConfigurationAbortTouchesNothing(t *testing.T) {
	h := setupHarness(t)
	h.fetcher.readyErr = square.ErrMissingCredentials
	e := h.engine()

	report, err := e.RunSync(context.Background(), nil)

	assert.Nil(t, report)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.ErrorIs(t, err, square.ErrMissingCredentials)
	assert.Empty(t, h.fetcher.Calls())
	assert.Zero(t, trackingRows(t, h.db))
	assert.Equal(t, StateAborted, e.State())
}

func TestRunSync_UnknownTypeIsConfigurationError(t *testing.T) {
	h := setupHarness(t)

	_, err := h.engine().RunSync(context.Background(), []registry.EntityType{"gift_cards"})

	assert.True(t, IsConfigurationError(err))
	assert.ErrorIs(t, err, registry.ErrUnknownEntityType)
	assert.Zero(t, trackingRows(t, h.db))
}

func TestRunSync_RunsInDependencyOrder(t *testing.T) {
	h := setupHarness(t)

	report, err := h.engine().RunSync(context.Background(), []registry.EntityType{
		registry.CatalogVariations, registry.CatalogItems, registry.CatalogCategories, registry.Locations,
	})

	require.NoError(t, err)
	want := []registry.EntityType{registry.Locations, registry.CatalogCategories, registry.CatalogItems, registry.CatalogVariations}
	assert.Equal(t, want, report.Order)
	assert.Equal(t, want, h.fetcher.Calls())
}

func TestRunSync_SecondCycleUsesWatermark(t *testing.T) {
	h := setupHarness(t)
	e := h.engine()
	start := time.Now().UTC()

	_, err := e.RunSync(context.Background(), []registry.EntityType{registry.Payments})
	require.NoError(t, err)
	assert.Nil(t, h.fetcher.watermarks[registry.Payments])

	_, err = e.RunSync(context.Background(), []registry.EntityType{registry.Payments})
	require.NoError(t, err)
	wm := h.fetcher.watermarks[registry.Payments]
	require.NotNil(t, wm)
	assert.False(t, wm.Before(start))
}

func TestRunSync_RejectsConcurrentCycle(t *testing.T) {
	h := setupHarness(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.fetcher.hooks[registry.Vendors] = func() {
		close(entered)
		<-release
	}
	e := h.engine()

	done := make(chan error, 1)
	go func() {
		_, err := e.RunSync(context.Background(), []registry.EntityType{registry.Vendors})
		done <- err
	}()

	<-entered
	assert.Equal(t, StateFetching, e.State())
	_, err := e.RunSync(context.Background(), []registry.EntityType{registry.Locations})
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateCompleted, e.State())
}

func TestRunSync_RejectsWhenLeaseHeldElsewhere(t *testing.T) {
	h := setupHarness(t)
	ctx := context.Background()
	require.NoError(t, h.tracker.EnsureStore(ctx))
	ok, err := h.tracker.AcquireLease(ctx, CycleLeaseName, "other-process", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.engine().RunSync(ctx, []registry.EntityType{registry.Vendors})

	assert.ErrorIs(t, err, ErrCycleInProgress)
	assert.Empty(t, h.fetcher.Calls())
}

func TestRunSync_ReleasesLeaseAfterCycle(t *testing.T) {
	h := setupHarness(t)
	e := h.engine()

	_, err := e.RunSync(context.Background(), []registry.EntityType{registry.Vendors})
	require.NoError(t, err)

	lease, err := h.tracker.Lease(context.Background(), CycleLeaseName)
	require.NoError(t, err)
	assert.Nil(t, lease)
}

func TestRunSync_CancellationStopsBetweenTypes(t *testing.T) {
	h := setupHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.fetcher.records[registry.Locations] = locations(t)
	h.fetcher.hooks[registry.Locations] = cancel

	report, err := h.engine().RunSync(ctx, []registry.EntityType{registry.Locations, registry.Vendors})

	require.NoError(t, err)
	assert.True(t, report.PerType[registry.Locations].Success, "in-flight type still commits")
	assert.Equal(t, 2, report.PerType[registry.Locations].ChangesApplied)
	assert.False(t, report.PerType[registry.Vendors].Success)
	assert.Contains(t, report.PerType[registry.Vendors].Error, context.Canceled.Error())
	assert.Equal(t, []registry.EntityType{registry.Locations}, h.fetcher.Calls())

	var n int64
	require.NoError(t, h.db.Model(&entities.Location{}).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

func TestRunSync_TrackingFailureDoesNotFailType(t *testing.T) {
	h := setupHarness(t)
	h.fetcher.records[registry.Locations] = locations(t)
	e := New(registry.Default(), h.fetcher, h.applier, failingTracker{h.tracker})

	report, err := e.RunSync(context.Background(), []registry.EntityType{registry.Locations})

	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 2, report.TotalChanges)
}

func TestRunSync_IdempotentSecondCycle(t *testing.T) {
	h := setupHarness(t)
	h.fetcher.records[registry.Locations] = locations(t)
	e := h.engine()

	first, err := e.RunSync(context.Background(), []registry.EntityType{registry.Locations})
	require.NoError(t, err)
	assert.Equal(t, 2, first.TotalChanges)

	second, err := e.RunSync(context.Background(), []registry.EntityType{registry.Locations})
	require.NoError(t, err)
	assert.Equal(t, 0, second.TotalChanges)
	assert.True(t, second.Success)
}

func TestRunSync_RecordsCycleAndRun(t *testing.T) {
	h := setupHarness(t)
	h.fetcher.records[registry.Locations] = locations(t)

	var recorded *Report
	e := h.engine(WithRunRecorder(recorderFunc(func(_ context.Context, r *Report) error {
		recorded = r
		return nil
	})))

	ctx := WithTrigger(context.Background(), entities.RunTriggerSchedule)
	report, err := e.RunSync(ctx, []registry.EntityType{registry.Locations})
	require.NoError(t, err)

	require.NotNil(t, recorded)
	assert.Equal(t, report.CycleID, recorded.CycleID)
	assert.Equal(t, entities.RunTriggerSchedule, recorded.Trigger)

	cycle, err := h.tracker.Get(context.Background(), registry.CyclePseudoType)
	require.NoError(t, err)
	assert.Equal(t, 2, cycle.RecordsSynced)
}

func TestReport_JSONShape(t *testing.T) {
	report := &Report{
		CycleID: "c1",
		Order:   []registry.EntityType{registry.Locations},
		PerType: map[registry.EntityType]TypeResult{
			registry.Locations: {Success: true, ChangesApplied: 3},
		},
	}
	report.finish(1500 * time.Millisecond)

	b, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, true, decoded["success"])
	assert.EqualValues(t, 3, decoded["total_changes"])
	assert.EqualValues(t, 1500, decoded["duration_ms"])
	perType := decoded["per_type"].(map[string]any)
	assert.Contains(t, perType, "locations")
	assert.NotContains(t, perType["locations"], "error")
}

// squareOrders serves locations and records every orders search body.
type squareOrders struct {
	mu     sync.Mutex
	bodies []map[string]any
}

func (s *squareOrders) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/locations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"locations":[{"id":"L1","name":"Main Street","status":"ACTIVE"}]}`))
	})
	mux.HandleFunc("/v2/orders/search", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		s.mu.Lock()
		s.bodies = append(s.bodies, body)
		s.mu.Unlock()
		w.Write([]byte(`{"orders":[{"id":"O1","location_id":"L1","version":1,"state":"OPEN"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunSync_OrdersWithoutLocationsKeepWatermark(t *testing.T) {
	h := setupHarness(t)
	remote := &squareOrders{}
	srv := remote.server(t)

	client := square.NewClient(config.Square{
		AccessToken:    "test-token",
		BaseURL:        srv.URL,
		RequestTimeout: 2 * time.Second,
		MaxAttempts:    1,
	}, logger.Discard(), square.WithLocationSource(h.applier))
	e := New(registry.Default(), client, h.applier, h.tracker)

	report, err := e.RunSync(context.Background(), []registry.EntityType{registry.Orders})

	require.NoError(t, err)
	assert.False(t, report.PerType[registry.Orders].Success)
	assert.Contains(t, report.PerType[registry.Orders].Error, square.ErrNoLocations.Error())
	assert.Empty(t, remote.bodies)

	wm, err := h.tracker.GetWatermark(context.Background(), registry.Orders)
	require.NoError(t, err)
	assert.Nil(t, wm)

	report, err = e.RunSync(context.Background(), []registry.EntityType{registry.Locations, registry.Orders})

	require.NoError(t, err)
	assert.True(t, report.Success)
	require.Len(t, remote.bodies, 1)
	assert.Equal(t, []any{"L1"}, remote.bodies[0]["location_ids"])
	query := remote.bodies[0]["query"].(map[string]any)
	assert.NotContains(t, query, "filter")

	var orders int64
	require.NoError(t, h.db.Model(&entities.Order{}).Count(&orders).Error)
	assert.EqualValues(t, 1, orders)
}
