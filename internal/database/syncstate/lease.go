package syncstate

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/possync/internal/entities"
)

// AcquireLease takes the named lease for owner until now+ttl. It succeeds
// when the lease is free, expired, or already held by the same owner.
func (r *Repository) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := r.now()
	lease := entities.SyncLease{
		Name:       name,
		Owner:      owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	db := r.db.WithContext(ctx)
	inserted := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&lease)
	if inserted.Error != nil {
		return false, inserted.Error
	}
	if inserted.RowsAffected == 1 {
		return true, nil
	}

	taken := db.Model(&entities.SyncLease{}).
		Where("name = ? AND (owner = ? OR expires_at <= ?)", name, owner, now).
		Updates(map[string]any{
			"owner":       owner,
			"acquired_at": now,
			"expires_at":  lease.ExpiresAt,
		})
	if taken.Error != nil {
		return false, taken.Error
	}
	return taken.RowsAffected == 1, nil
}

// ReleaseLease drops the lease if owner still holds it.
func (r *Repository) ReleaseLease(ctx context.Context, name, owner string) error {
	return r.db.WithContext(ctx).
		Where("name = ? AND owner = ?", name, owner).
		Delete(&entities.SyncLease{}).Error
}

// Lease returns the current holder of the named lease, or nil when it is
// free or expired.
func (r *Repository) Lease(ctx context.Context, name string) (*entities.SyncLease, error) {
	var lease entities.SyncLease
	err := r.db.WithContext(ctx).
		Where("name = ? AND expires_at > ?", name, r.now()).
		First(&lease).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lease, nil
}
