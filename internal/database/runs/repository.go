// Package runs keeps the history of finished sync cycles.
package runs

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/possync/internal/entities"
)

var ErrRunNotFound = errors.New("sync run not found")

const defaultPageSize = 50

// Filter narrows List. Zero values match everything.
type Filter struct {
	Status  string
	Trigger entities.RunTrigger
	Since   time.Time
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Save stores a finished cycle.
func (r *Repository) Save(ctx context.Context, run *entities.SyncRun) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(run).Error
}

// List retrieves paginated runs, most recent first.
func (r *Repository) List(ctx context.Context, filter Filter, limit, offset int) ([]entities.SyncRun, int64, error) {
	var runs []entities.SyncRun
	var total int64

	query := r.db.WithContext(ctx).Model(&entities.SyncRun{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Trigger != "" {
		query = query.Where("run_trigger = ?", filter.Trigger)
	}
	if !filter.Since.IsZero() {
		query = query.Where("started_at >= ?", filter.Since.UTC())
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	err := query.Order("started_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&runs).Error
	return runs, total, err
}

// GetByCycleID retrieves a single run.
func (r *Repository) GetByCycleID(ctx context.Context, cycleID string) (*entities.SyncRun, error) {
	var run entities.SyncRun
	err := r.db.WithContext(ctx).Where("cycle_id = ?", cycleID).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// DeleteOlderThan removes runs that started before the cutoff.
// Returns the number of deleted runs.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("started_at < ?", cutoff.UTC()).Delete(&entities.SyncRun{})
	return result.RowsAffected, result.Error
}
