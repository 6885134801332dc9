package entities

// MirrorModels lists mirrored tables with parents before children so
// migrations can create foreign keys in one pass.
func MirrorModels() []any {
	return []any{
		&Location{},
		&CatalogCategory{},
		&CatalogItem{},
		&CatalogVariation{},
		&InventoryCount{},
		&Vendor{},
		&Order{},
		&Payment{},
	}
}

// BookkeepingModels lists the tables owned by the sync engine itself.
func BookkeepingModels() []any {
	return []any{
		&SyncState{},
		&SyncLease{},
		&SyncRun{},
	}
}
