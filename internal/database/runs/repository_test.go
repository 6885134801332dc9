package runs

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/possync/internal/engine"
	"github.com/mrlokans/possync/internal/entities"
	"github.com/mrlokans/possync/internal/registry"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "runs.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.SyncRun{})
	require.NoError(t, err)

	return db
}

func saveRun(t *testing.T, repo *Repository, id string, started time.Time, status string, trigger entities.RunTrigger) {
	t.Helper()
	require.NoError(t, repo.Save(context.Background(), &entities.SyncRun{
		CycleID:   id,
		Status:    status,
		Trigger:   trigger,
		StartedAt: started,
	}))
}

func TestRepository_ListNewestFirst(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 15; i++ {
		saveRun(t, repo, fmt.Sprintf("cycle-%02d", i), base.Add(time.Duration(i)*time.Hour), "completed", entities.RunTriggerSchedule)
	}

	runs, total, err := repo.List(context.Background(), Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(15), total)
	require.Len(t, runs, 10)
	assert.Equal(t, "cycle-14", runs[0].CycleID)

	runs, _, err = repo.List(context.Background(), Filter{}, 10, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 5)
}

func TestRepository_ListFilters(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	saveRun(t, repo, "a", base, "completed", entities.RunTriggerSchedule)
	saveRun(t, repo, "b", base.Add(time.Hour), "partial_failure", entities.RunTriggerManual)
	saveRun(t, repo, "c", base.Add(2*time.Hour), "partial_failure", entities.RunTriggerSchedule)

	runs, total, err := repo.List(context.Background(), Filter{Status: "partial_failure"}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "c", runs[0].CycleID)

	runs, total, err = repo.List(context.Background(), Filter{Trigger: entities.RunTriggerManual}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "b", runs[0].CycleID)

	_, total, err = repo.List(context.Background(), Filter{Since: base.Add(90 * time.Minute)}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestRepository_GetByCycleID(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	saveRun(t, repo, "known", time.Now().UTC(), "completed", entities.RunTriggerCLI)

	run, err := repo.GetByCycleID(context.Background(), "known")
	require.NoError(t, err)
	assert.Equal(t, entities.RunTriggerCLI, run.Trigger)

	_, err = repo.GetByCycleID(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRepository_DeleteOlderThan(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	now := time.Now().UTC()

	saveRun(t, repo, "old", now.Add(-48*time.Hour), "completed", entities.RunTriggerSchedule)
	saveRun(t, repo, "new", now.Add(-time.Hour), "completed", entities.RunTriggerSchedule)

	deleted, err := repo.DeleteOlderThan(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetByCycleID(context.Background(), "old")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRecorder_PersistsReport(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	recorder := NewRecorder(repo)
	report := &engine.Report{
		CycleID:      "cycle-1",
		Trigger:      entities.RunTriggerSchedule,
		Status:       engine.StatePartialFailure,
		TotalChanges: 4,
		Order:        []registry.EntityType{registry.Locations, registry.Vendors},
		PerType: map[registry.EntityType]engine.TypeResult{
			registry.Locations: {Success: true, ChangesApplied: 4},
			registry.Vendors:   {Error: "fetch vendors: boom"},
		},
		Timestamp:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		DurationMS: 2300,
	}

	require.NoError(t, recorder.Record(context.Background(), report))

	run, err := repo.GetByCycleID(context.Background(), "cycle-1")
	require.NoError(t, err)
	assert.Equal(t, "partial_failure", run.Status)
	assert.Equal(t, "vendors", run.FailedTypes)
	assert.Equal(t, 4, run.TotalChanges)
	assert.Equal(t, int64(2300), run.DurationMS)

	var decoded engine.Report
	require.NoError(t, json.Unmarshal(run.Report, &decoded))
	assert.Equal(t, "fetch vendors: boom", decoded.PerType[registry.Vendors].Error)
}
