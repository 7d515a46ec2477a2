package postgres

import "fmt"

// MigrationUp returns the SQL to create the journal table.
// Events are append-only; the index supports the insertion-order listing.
func MigrationUp(config TableConfig) string {
	return fmt.Sprintf(`-- Create membership events journal table
CREATE TABLE %s (
    id UUID PRIMARY KEY,
    event_type TEXT NOT NULL CHECK (event_type IN ('worker_registered', 'registration_failed', 'worker_failed')),
    worker_addr TEXT NOT NULL,
    callback_addr TEXT NOT NULL DEFAULT '',
    detail TEXT NOT NULL DEFAULT '',
    occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Index for listing events in insertion order
CREATE INDEX idx_membership_events_occurred ON %s(occurred_at, id);
`, config.EventsTable, config.EventsTable)
}

// MigrationDown returns the SQL to drop the journal table.
func MigrationDown(config TableConfig) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;\n", config.EventsTable)
}
