// Package database opens the destination store and owns its schema.
//
// The store is SQLite by default and PostgreSQL when DATABASE_DRIVER=postgres.
// Both hold the same tables:
//
//	locations, catalog_*, inventory_counts, vendors, orders, payments
//	    mirrored platform entities, written only by the applier
//	sync_tracking   per entity type watermark (database/syncstate)
//	sync_leases     cycle lease (database/syncstate)
//	sync_runs       finished cycle reports (database/runs)
//
// Sub-packages provide a Repository per bookkeeping concern:
//
//	db, err := database.NewDatabase(cfg.Database, log)
//	tracker := syncstate.NewRepository(db.DB)
//	runs := runs.NewRepository(db.DB)
package database
