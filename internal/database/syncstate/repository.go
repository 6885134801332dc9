// Package syncstate persists per entity type watermarks and the cycle lease.
//
// RecordResult is the only writer of last_sync_timestamp. The value only
// moves forward, so a late or replayed success can never widen the next
// fetch window past what was already mirrored.
//
// # Usage
//
//	repo := syncstate.NewRepository(db)
//	since, err := repo.GetWatermark(ctx, registry.Orders)
//	...
//	err = repo.RecordResult(ctx, syncstate.Result{EntityType: registry.Orders, ...})
package syncstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/possync/internal/entities"
	"github.com/mrlokans/possync/internal/registry"
)

// ErrStateNotFound is returned by Get for a type that was never recorded.
var ErrStateNotFound = errors.New("sync state not found")

// Result is the outcome of one entity type within one cycle.
type Result struct {
	EntityType    registry.EntityType
	RecordsSynced int
	Duration      time.Duration
	Watermark     *time.Time // time the type's fetch window was opened
	Err           error
}

// Repository handles all sync tracking database operations.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository creates a new sync state repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source. Used by tests.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// EnsureStore creates the tracking and lease tables if they are missing.
func (r *Repository) EnsureStore(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&entities.SyncState{}, &entities.SyncLease{}); err != nil {
		return fmt.Errorf("failed to migrate sync tracking: %w", err)
	}
	return nil
}

// GetWatermark returns the last successful sync timestamp, or nil when the
// type never completed successfully.
func (r *Repository) GetWatermark(ctx context.Context, t registry.EntityType) (*time.Time, error) {
	state, err := r.Get(ctx, string(t))
	if errors.Is(err, ErrStateNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if state.LastSyncTimestamp == nil {
		return nil, nil
	}
	wm := state.LastSyncTimestamp.UTC()
	return &wm, nil
}

// RecordResult creates the row on first use. A success stores the larger of
// the stored and reported watermark. A failure stores zero records and the
// error text without touching the watermark.
func (r *Repository) RecordResult(ctx context.Context, res Result) error {
	now := r.now()
	seconds := int64(res.Duration.Round(time.Second) / time.Second)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing entities.SyncState
		err := tx.Where("entity_type = ?", string(res.EntityType)).First(&existing).Error
		found := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		state := entities.SyncState{
			EntityType:          string(res.EntityType),
			LastSyncTimestamp:   existing.LastSyncTimestamp,
			RecordsSynced:       res.RecordsSynced,
			SyncDurationSeconds: &seconds,
			LastStatus:          entities.SyncStatusSucceeded,
			UpdatedAt:           now,
		}
		if res.Err != nil {
			state.RecordsSynced = 0
			state.LastStatus = entities.SyncStatusFailed
			state.LastError = res.Err.Error()
		} else if res.Watermark != nil {
			wm := res.Watermark.UTC()
			if state.LastSyncTimestamp == nil || wm.After(*state.LastSyncTimestamp) {
				state.LastSyncTimestamp = &wm
			}
		}

		if !found {
			return tx.Create(&state).Error
		}
		return tx.Model(&entities.SyncState{}).
			Where("entity_type = ?", state.EntityType).
			Updates(map[string]any{
				"last_sync_timestamp":   state.LastSyncTimestamp,
				"records_synced":        state.RecordsSynced,
				"sync_duration_seconds": seconds,
				"last_status":           state.LastStatus,
				"last_error":            state.LastError,
				"updated_at":            now,
			}).Error
	})
}

// RecordCycleTotal stores the aggregate of a finished cycle under the
// pseudo entity type.
func (r *Repository) RecordCycleTotal(ctx context.Context, total int, duration time.Duration) error {
	now := r.now()
	seconds := int64(duration.Round(time.Second) / time.Second)
	state := entities.SyncState{
		EntityType:          registry.CyclePseudoType,
		LastSyncTimestamp:   &now,
		RecordsSynced:       total,
		SyncDurationSeconds: &seconds,
		LastStatus:          entities.SyncStatusSucceeded,
		UpdatedAt:           now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "entity_type"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_sync_timestamp", "records_synced", "sync_duration_seconds", "last_status", "updated_at",
		}),
	}).Create(&state).Error
}

// Get retrieves the tracking row for one entity type.
func (r *Repository) Get(ctx context.Context, entityType string) (*entities.SyncState, error) {
	var state entities.SyncState
	err := r.db.WithContext(ctx).Where("entity_type = ?", entityType).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// List returns every tracking row, the cycle row included.
func (r *Repository) List(ctx context.Context) ([]entities.SyncState, error) {
	var states []entities.SyncState
	err := r.db.WithContext(ctx).Order("entity_type ASC").Find(&states).Error
	return states, err
}

// Reset forgets the watermark of the given types, or of every type when
// none are given. The next cycle then fetches the full remote set.
func (r *Repository) Reset(ctx context.Context, types ...registry.EntityType) (int64, error) {
	query := r.db.WithContext(ctx)
	if len(types) == 0 {
		query = query.Where("1 = 1")
	} else {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		query = query.Where("entity_type IN ?", names)
	}
	result := query.Delete(&entities.SyncState{})
	return result.RowsAffected, result.Error
}
