//go:build integration

package migrations_test

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/flowmesh/controller/pkg/migrations"
)

// NOTE: Integration tests use string interpolation for SQL queries with validated
// configuration values. This is acceptable in test code as all config values are
// controlled by the test and have been validated by the migrations package.
// Production code should always use parameterized queries.

func TestIntegrationPostgres(t *testing.T) {
	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping PostgreSQL integration test")
	}

	tmpDir := t.TempDir()
	config := migrations.Config{
		OutputFolder:   tmpDir,
		OutputFilename: "postgres_integration.sql",
		SchemaName:     "controller_test",
		EventsTable:    "membership_events",
	}

	err := migrations.GeneratePostgres(&config)
	if err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join(tmpDir, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(string(migrationSQL))
	if err != nil {
		t.Fatalf("Failed to execute migration: %v", err)
	}

	var schemaExists bool
	err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)", config.SchemaName).Scan(&schemaExists)
	if err != nil {
		t.Fatalf("Failed to check schema existence: %v", err)
	}
	if !schemaExists {
		t.Errorf("Schema %s was not created", config.SchemaName)
	}

	var tableExists bool
	err = db.QueryRow(fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_schema = '%s' AND table_name = '%s')",
		config.SchemaName, config.EventsTable)).Scan(&tableExists)
	if err != nil {
		t.Fatalf("Failed to check table existence: %v", err)
	}
	if !tableExists {
		t.Errorf("Table %s.%s was not created", config.SchemaName, config.EventsTable)
	}

	// Cleanup
	_, _ = db.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", config.SchemaName))
}

func TestIntegrationMySQL(t *testing.T) {
	dbURL := os.Getenv("MYSQL_URL")
	if dbURL == "" {
		t.Skip("MYSQL_URL not set, skipping MySQL integration test")
	}

	tmpDir := t.TempDir()
	config := migrations.Config{
		OutputFolder:   tmpDir,
		OutputFilename: "mysql_integration.sql",
		SchemaName:     "controller_test",
		EventsTable:    "membership_events",
	}

	err := migrations.GenerateMySQL(&config)
	if err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join(tmpDir, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	db, err := sql.Open("mysql", dbURL+"?multiStatements=true")
	if err != nil {
		t.Fatalf("Failed to connect to MySQL: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(string(migrationSQL))
	if err != nil {
		t.Fatalf("Failed to execute migration: %v", err)
	}

	var tableExists bool
	err = db.QueryRow(fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_schema = '%s' AND table_name = '%s')",
		config.SchemaName, config.EventsTable)).Scan(&tableExists)
	if err != nil {
		t.Fatalf("Failed to check table existence: %v", err)
	}
	if !tableExists {
		t.Errorf("Table %s.%s was not created", config.SchemaName, config.EventsTable)
	}

	// Cleanup
	_, _ = db.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", config.SchemaName))
}

func TestIntegrationSQLite(t *testing.T) {
	tmpDir := t.TempDir()
	config := migrations.Config{
		OutputFolder:   tmpDir,
		OutputFilename: "sqlite_integration.sql",
		SchemaName:     "controller",
		EventsTable:    "membership_events",
	}

	err := migrations.GenerateSQLite(&config)
	if err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join(tmpDir, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(tmpDir, "controller.db"))
	if err != nil {
		t.Fatalf("Failed to open SQLite database: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(string(migrationSQL))
	if err != nil {
		t.Fatalf("Failed to execute migration: %v", err)
	}

	var tableName string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'controller_membership_events'").Scan(&tableName)
	if err != nil {
		t.Fatalf("Failed to check table existence: %v", err)
	}
	if tableName != "controller_membership_events" {
		t.Errorf("Unexpected table name: %s", tableName)
	}

	// Exercise the schema with a representative row
	_, err = db.Exec(`INSERT INTO controller_membership_events (id, event_type, worker_addr, callback_addr)
		VALUES ('00000000-0000-0000-0000-000000000001', 'worker_registered', '10.0.0.1:9001', '10.0.0.1:9101')`)
	if err != nil {
		t.Fatalf("Failed to insert event: %v", err)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM controller_membership_events").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to count events: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 event, got %d", count)
	}
}
