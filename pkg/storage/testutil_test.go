package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB opens a database for tests. When TEST_DATABASE_URL is set
// it connects to PostgreSQL; otherwise it opens a fresh in-memory SQLite
// instance. PostgreSQL connections are pool-limited and the tables are
// cleared so tests stay independent.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		require.NoError(t, err, "open sqlite test db")
		return db
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open postgres test db")

	sqlDB, err := db.DB()
	require.NoError(t, err, "get underlying sql.DB")
	sqlDB.SetMaxOpenConns(2)
	t.Cleanup(func() {
		db.Exec("DROP TABLE IF EXISTS recompute_jobs, tenant_score_summaries, score_events, signal_records")
		sqlDB.Close()
	})

	return db
}

// newTestStore opens a migrated store on a test database.
func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	store := NewGormStore(openTestDB(t))
	require.NoError(t, store.Migrate(context.Background()))
	return store
}
