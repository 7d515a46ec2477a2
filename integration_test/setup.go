//go:build integration

package integration

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"

	pgstore "github.com/flowmesh/controller/store/postgres"
)

// getTestDB returns a database connection for integration tests.
// It reads the DATABASE_URL environment variable and skips the test if not set.
func getTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return db
}

// setupTables creates the journal table using the default configuration.
func setupTables(t *testing.T, db *sql.DB) {
	t.Helper()

	config := pgstore.DefaultTableConfig()

	// Drop first so schema changes take effect between runs
	if _, err := db.Exec(pgstore.MigrationDown(config)); err != nil {
		t.Fatalf("failed to drop journal table: %v", err)
	}
	if _, err := db.Exec(pgstore.MigrationUp(config)); err != nil {
		t.Fatalf("failed to create journal table: %v", err)
	}
}

// cleanupTables truncates the journal table to clean up test data.
// Errors are logged but don't fail the test (cleanup is best-effort).
func cleanupTables(t *testing.T, db *sql.DB) {
	t.Helper()

	config := pgstore.DefaultTableConfig()
	if _, err := db.Exec("TRUNCATE " + config.EventsTable); err != nil {
		t.Logf("warning: failed to truncate journal table: %v", err)
	}
}
