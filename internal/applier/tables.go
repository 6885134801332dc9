package applier

import (
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/mrlokans/possync/internal/registry"
)

// tableSpec describes how rows of one type are keyed and when an incoming
// row may replace a stored one.
type tableSpec struct {
	table       string
	keyColumns  []string
	mutable     []string // overwritten on conflict; created_at is never listed
	strategy    registry.UpdateStrategy
	stampColumn string // version or timestamp column compared by the guard
}

func (s tableSpec) onConflict() clause.OnConflict {
	columns := make([]clause.Column, len(s.keyColumns))
	for i, name := range s.keyColumns {
		columns[i] = clause.Column{Name: name}
	}

	return clause.OnConflict{
		Columns:   columns,
		DoUpdates: clause.AssignmentColumns(s.mutable),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: s.guard()},
		}},
	}
}

// guard skips unchanged payloads and refuses to move a row backwards.
// Timestamps missing on either side do not block the update.
func (s tableSpec) guard() string {
	changed := fmt.Sprintf("excluded.payload_hash <> %s.payload_hash", s.table)

	if s.strategy == registry.StrategyVersion {
		return fmt.Sprintf("%s AND excluded.%s >= %s.%s", changed, s.stampColumn, s.table, s.stampColumn)
	}
	return fmt.Sprintf("%s AND (excluded.%s IS NULL OR %s.%s IS NULL OR excluded.%s >= %s.%s)",
		changed,
		s.stampColumn,
		s.table, s.stampColumn,
		s.stampColumn, s.table, s.stampColumn,
	)
}

var mirrorColumns = []string{"payload_hash", "raw", "updated_at"}

func mutable(columns ...string) []string {
	return append(columns, mirrorColumns...)
}

func specFor(t registry.EntityType) (tableSpec, error) {
	switch t {
	case registry.Locations:
		return tableSpec{
			table:       "locations",
			keyColumns:  []string{"id"},
			mutable:     mutable("name", "business_name", "status", "timezone", "currency", "country", "address", "remote_created_at", "remote_updated_at"),
			strategy:    registry.StrategyTimestamp,
			stampColumn: "remote_updated_at",
		}, nil
	case registry.CatalogCategories:
		return tableSpec{
			table:       "catalog_categories",
			keyColumns:  []string{"id"},
			mutable:     mutable("version", "name", "parent_category_id", "is_deleted", "remote_updated_at"),
			strategy:    registry.StrategyVersion,
			stampColumn: "version",
		}, nil
	case registry.CatalogItems:
		return tableSpec{
			table:       "catalog_items",
			keyColumns:  []string{"id"},
			mutable:     mutable("version", "name", "description", "category_id", "product_type", "is_deleted", "remote_updated_at"),
			strategy:    registry.StrategyVersion,
			stampColumn: "version",
		}, nil
	case registry.CatalogVariations:
		return tableSpec{
			table:       "catalog_variations",
			keyColumns:  []string{"id"},
			mutable:     mutable("version", "item_id", "name", "sku", "pricing_type", "price_amount", "price_currency", "ordinal", "is_deleted", "remote_updated_at"),
			strategy:    registry.StrategyVersion,
			stampColumn: "version",
		}, nil
	case registry.InventoryCounts:
		return tableSpec{
			table:       "inventory_counts",
			keyColumns:  []string{"variation_id", "location_id"},
			mutable:     mutable("state", "quantity", "calculated_at"),
			strategy:    registry.StrategyTimestamp,
			stampColumn: "calculated_at",
		}, nil
	case registry.Vendors:
		return tableSpec{
			table:       "vendors",
			keyColumns:  []string{"id"},
			mutable:     mutable("version", "name", "status", "account_number", "note", "remote_created_at", "remote_updated_at"),
			strategy:    registry.StrategyVersion,
			stampColumn: "version",
		}, nil
	case registry.Orders:
		return tableSpec{
			table:       "orders",
			keyColumns:  []string{"id"},
			mutable:     mutable("version", "location_id", "state", "customer_id", "reference_id", "total_money_amount", "currency", "line_items", "remote_created_at", "remote_updated_at", "closed_at"),
			strategy:    registry.StrategyVersion,
			stampColumn: "version",
		}, nil
	case registry.Payments:
		return tableSpec{
			table:       "payments",
			keyColumns:  []string{"id"},
			mutable:     mutable("order_id", "location_id", "status", "source_type", "amount_money", "tip_money", "total_money", "currency", "card_brand", "receipt_number", "remote_created_at", "remote_updated_at"),
			strategy:    registry.StrategyTimestamp,
			stampColumn: "remote_updated_at",
		}, nil
	}
	return tableSpec{}, fmt.Errorf("%w: %s", ErrUnsupportedEntityType, t)
}
