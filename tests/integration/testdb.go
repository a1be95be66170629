// Package integration exercises the receivables stack against a real
// PostgreSQL instance started through testcontainers.
package integration

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	mpg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// TestDB is a connection to the shared test container with the ledger schema
// applied.
type TestDB struct {
	DB    *gorm.DB
	SqlDB *sql.DB
}

// NewTestDB connects to the shared PostgreSQL container, starting it and
// applying migrations on first use. Each test gets its own connection;
// isolation comes from per-test tenant IDs.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	containerOnce.Do(func() {
		ctx := context.Background()

		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("receivables_test"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		if err != nil {
			containerErr = err
			return
		}

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = err
			return
		}
		containerDSN = dsn
	})
	require.NoError(t, containerErr, "Failed to start PostgreSQL container")

	db, err := gorm.Open(gormpostgres.Open(containerDSN), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err, "Failed to connect to test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)

	runMigrations(t, sqlDB)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return &TestDB{DB: db, SqlDB: sqlDB}
}

// runMigrations applies all migrations from the repository's migrations
// directory. Applying an already-migrated database is a no-op.
func runMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()

	driver, err := mpg.WithInstance(sqlDB, &mpg.Config{})
	require.NoError(t, err, "Failed to create migration driver")

	m, err := migrate.NewWithDatabaseInstance(
		"file://"+migrationsDir(t),
		"postgres",
		driver,
	)
	require.NoError(t, err, "Failed to create migrator")

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("Failed to run migrations: %v", err)
	}
}

// migrationsDir resolves the migrations directory relative to this file so
// tests work regardless of the working directory.
func migrationsDir(t *testing.T) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	require.True(t, ok, "Failed to locate caller")

	dir, err := filepath.Abs(filepath.Join(filepath.Dir(thisFile), "..", "..", "migrations"))
	require.NoError(t, err)
	return dir
}
