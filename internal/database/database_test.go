package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/possync/internal/config"
	"github.com/mrlokans/possync/internal/entities"
	"github.com/mrlokans/possync/internal/logger"
)

// setupTestDB creates a fresh file-backed test database
func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(config.Database{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDatabase_MigratesAllTables(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []string{
		"locations", "catalog_categories", "catalog_items", "catalog_variations",
		"inventory_counts", "vendors", "orders", "payments",
		"sync_tracking", "sync_leases", "sync_runs",
	} {
		assert.True(t, db.DB.Migrator().HasTable(table), table)
	}
}

func TestNewDatabase_MigrateIsIdempotent(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, db.Ping(context.Background()))
}

func TestNewDatabase_EnforcesForeignKeys(t *testing.T) {
	db := setupTestDB(t)

	err := db.DB.Create(&entities.Order{
		ID:         "O1",
		Version:    1,
		LocationID: "missing",
		Mirror:     entities.Mirror{PayloadHash: "h"},
	}).Error

	assert.Error(t, err)
}

func TestNewDatabase_RejectsUnknownDriver(t *testing.T) {
	_, err := NewDatabase(config.Database{Driver: "oracle"}, logger.Discard())
	assert.ErrorContains(t, err, "unsupported database driver")

	_, err = NewDatabase(config.Database{Driver: config.DriverPostgres}, logger.Discard())
	assert.ErrorContains(t, err, "DATABASE_DSN")
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "a.db?"+sqliteParams, SQLiteDSN("a.db"))
	assert.Equal(t, "file::memory:?cache=shared", SQLiteDSN("file::memory:?cache=shared"))
}
