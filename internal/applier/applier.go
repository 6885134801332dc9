// Package applier writes fetched records into the mirror tables.
//
// Each Apply call maps the records of one entity type, collapses duplicate
// keys, and upserts the survivors inside a single transaction. The upsert
// only touches a stored row when the payload changed and the incoming
// version or timestamp is not older, so applying the same records again
// changes nothing.
package applier

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/possync/internal/entities"
	"github.com/mrlokans/possync/internal/logger"
	"github.com/mrlokans/possync/internal/registry"
	"github.com/mrlokans/possync/internal/square"
)

const defaultBatchSize = 200

type Options struct {
	BatchSize int
}

// Result summarizes one Apply call.
type Result struct {
	EntityType     registry.EntityType
	Received       int // records handed in
	Skipped        int // records outside this type, e.g. non-variation counts
	Distinct       int // rows left after dedup
	ChangesApplied int // rows inserted or updated
}

type Applier struct {
	db        *gorm.DB
	batchSize int
	log       logger.Logger
}

func New(db *gorm.DB, log logger.Logger, opts Options) *Applier {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Applier{db: db, batchSize: batchSize, log: log.With("component", "applier")}
}

// Apply writes the records of one entity type. On any error the whole
// transaction is rolled back and nothing of this call is visible.
//
// Cancellation of ctx does not interrupt the write once it has started.
func (a *Applier) Apply(ctx context.Context, t registry.EntityType, records []square.Record) (*Result, error) {
	ctx = context.WithoutCancel(ctx)

	switch t {
	case registry.Locations:
		return applyAs(ctx, a, t, records, mapLocation)
	case registry.CatalogCategories:
		return applyAs(ctx, a, t, records, mapCatalogCategory)
	case registry.CatalogItems:
		return applyAs(ctx, a, t, records, mapCatalogItem)
	case registry.CatalogVariations:
		return applyAs(ctx, a, t, records, mapCatalogVariation)
	case registry.InventoryCounts:
		return applyAs(ctx, a, t, records, mapInventoryCount)
	case registry.Vendors:
		return applyAs(ctx, a, t, records, mapVendor)
	case registry.Orders:
		return applyAs(ctx, a, t, records, mapOrder)
	case registry.Payments:
		return applyAs(ctx, a, t, records, mapPayment)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedEntityType, t)
}

func applyAs[T any](ctx context.Context, a *Applier, t registry.EntityType, records []square.Record, mapFn mapFunc[T]) (*Result, error) {
	spec, err := specFor(t)
	if err != nil {
		return nil, err
	}

	result := &Result{EntityType: t, Received: len(records)}

	rows := make([]mapped[T], 0, len(records))
	for _, rec := range records {
		mirror, err := newMirror(rec.Raw)
		if err != nil {
			return nil, &MappingError{RecordID: rec.ID, Err: err}
		}
		m, ok, err := mapFn(rec, mirror)
		if err != nil {
			return nil, &MappingError{RecordID: rec.ID, Err: err}
		}
		if !ok {
			result.Skipped++
			continue
		}
		rows = append(rows, m)
	}

	unique := dedupe(rows, spec.strategy)
	result.Distinct = len(unique)
	if len(unique) == 0 {
		return result, nil
	}

	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conflict := spec.onConflict()
		for start := 0; start < len(unique); start += a.batchSize {
			end := min(start+a.batchSize, len(unique))
			chunk := make([]T, 0, end-start)
			for _, m := range unique[start:end] {
				chunk = append(chunk, m.row)
			}

			res := tx.Clauses(conflict).Omit(clause.Associations).Create(&chunk)
			if res.Error != nil {
				return fmt.Errorf("failed to upsert %s: %w", spec.table, res.Error)
			}
			result.ChangesApplied += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.log.Debug("applied records",
		"entity_type", t,
		"received", result.Received,
		"distinct", result.Distinct,
		"changes", result.ChangesApplied,
	)
	return result, nil
}

// MirroredLocations lists mirrored locations in id order. FirstSeen is the
// row's created_at, which upserts never touch.
func (a *Applier) MirroredLocations(ctx context.Context) ([]square.MirroredLocation, error) {
	var rows []struct {
		ID        string
		CreatedAt time.Time
	}
	err := a.db.WithContext(ctx).
		Model(&entities.Location{}).
		Select("id", "created_at").
		Order("id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	locations := make([]square.MirroredLocation, len(rows))
	for i, row := range rows {
		locations[i] = square.MirroredLocation{ID: row.ID, FirstSeen: row.CreatedAt}
	}
	return locations, nil
}
