package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// validateIdentifier ensures an identifier contains only safe characters for SQL.
// Returns an error if the identifier contains characters that could be used for SQL injection.
func validateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// validateConfig validates all configuration values to prevent SQL injection.
func validateConfig(config *Config) error {
	if err := validateIdentifier(config.SchemaName, "SchemaName"); err != nil {
		return err
	}
	if err := validateIdentifier(config.EventsTable, "EventsTable"); err != nil {
		return err
	}
	return nil
}

// Config configures migration generation for the membership journal table.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// SchemaName is the database schema name (PostgreSQL) or database name (MySQL)
	// For SQLite, a table name prefix is used instead of a schema (e.g., controller_table_name)
	SchemaName string

	// EventsTable is the name of the membership events journal table
	EventsTable string
}

// DefaultConfig returns the default configuration for controller migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_controller_journal.sql", timestamp),
		SchemaName:     "controller",
		EventsTable:    "membership_events",
	}
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generatePostgresSQL(config)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generatePostgresSQL(config *Config) string {
	return fmt.Sprintf(`-- Controller Membership Journal Migration
-- Generated: %s
-- Database: PostgreSQL

-- Create controller schema for journal tables
CREATE SCHEMA IF NOT EXISTS %s;

-- Membership events table records worker registrations and failures
-- Append-only audit trail; the controller never reads it on the hot path
CREATE TABLE IF NOT EXISTS %s.%s (
    id UUID PRIMARY KEY,
    event_type TEXT NOT NULL CHECK (event_type IN ('worker_registered', 'registration_failed', 'worker_failed')),
    worker_addr TEXT NOT NULL,
    callback_addr TEXT NOT NULL DEFAULT '',
    detail TEXT NOT NULL DEFAULT '',
    occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Index for listing events in insertion order
CREATE INDEX IF NOT EXISTS idx_%s_occurred
    ON %s.%s (occurred_at, id);

-- Index for querying events by worker
CREATE INDEX IF NOT EXISTS idx_%s_worker
    ON %s.%s (worker_addr, occurred_at);
`,
		time.Now().Format(time.RFC3339),
		config.SchemaName,
		config.SchemaName, config.EventsTable,
		config.EventsTable, config.SchemaName, config.EventsTable,
		config.EventsTable, config.SchemaName, config.EventsTable,
	)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generateMySQLSQL(config)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generateMySQLSQL(config *Config) string {
	return fmt.Sprintf(`-- Controller Membership Journal Migration
-- Generated: %s
-- Database: MySQL/MariaDB

-- Create database for the controller journal if it doesn't exist
-- In MySQL, we use a separate database instead of schema
CREATE DATABASE IF NOT EXISTS %s
    DEFAULT CHARACTER SET utf8mb4
    DEFAULT COLLATE utf8mb4_unicode_ci;

-- Switch to controller database
USE %s;

-- Membership events table records worker registrations and failures
-- Append-only audit trail; the controller never reads it on the hot path
CREATE TABLE IF NOT EXISTS %s (
    id CHAR(36) PRIMARY KEY,
    event_type ENUM('worker_registered', 'registration_failed', 'worker_failed') NOT NULL,
    worker_addr VARCHAR(255) NOT NULL,
    callback_addr VARCHAR(255) NOT NULL DEFAULT '',
    detail TEXT NOT NULL,
    occurred_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- Index for listing events in insertion order
CREATE INDEX idx_%s_occurred
    ON %s (occurred_at, id);

-- Index for querying events by worker
CREATE INDEX idx_%s_worker
    ON %s (worker_addr, occurred_at);
`,
		time.Now().Format(time.RFC3339),
		config.SchemaName,
		config.SchemaName,
		config.EventsTable,
		config.EventsTable, config.EventsTable,
		config.EventsTable, config.EventsTable,
	)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generateSQLiteSQL(config)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generateSQLiteSQL(config *Config) string {
	// SQLite doesn't support schemas, so we use table name prefixes instead
	eventsTable := config.SchemaName + "_" + config.EventsTable

	return fmt.Sprintf(`-- Controller Membership Journal Migration
-- Generated: %s
-- Database: SQLite

-- Membership events table records worker registrations and failures
-- Append-only audit trail; the controller never reads it on the hot path
CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL CHECK (event_type IN ('worker_registered', 'registration_failed', 'worker_failed')),
    worker_addr TEXT NOT NULL,
    callback_addr TEXT NOT NULL DEFAULT '',
    detail TEXT NOT NULL DEFAULT '',
    occurred_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Index for listing events in insertion order
CREATE INDEX IF NOT EXISTS idx_%s_occurred
    ON %s (occurred_at, id);

-- Index for querying events by worker
CREATE INDEX IF NOT EXISTS idx_%s_worker
    ON %s (worker_addr, occurred_at);
`,
		time.Now().Format(time.RFC3339),
		eventsTable,
		eventsTable, eventsTable,
		eventsTable, eventsTable,
	)
}
