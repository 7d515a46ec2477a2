// Package postgres provides a PostgreSQL-backed Journal.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowmesh/controller"
	"github.com/flowmesh/controller/store"
)

// TableConfig holds the table name used by the journal.
type TableConfig struct {
	// EventsTable is the fully qualified journal table name.
	EventsTable string
}

// DefaultTableConfig returns the default table name.
func DefaultTableConfig() TableConfig {
	return TableConfig{EventsTable: "controller_membership_events"}
}

// Journal is a PostgreSQL implementation of store.Journal.
// It provides persistent storage for cluster membership events.
type Journal struct {
	db          *sql.DB
	eventsTable string
}

// New creates a PostgreSQL journal with the default table name.
func New(db *sql.DB) *Journal {
	return NewWithConfig(db, DefaultTableConfig())
}

// NewWithConfig creates a PostgreSQL journal with a custom table name.
func NewWithConfig(db *sql.DB, config TableConfig) *Journal {
	return &Journal{
		db:          db,
		eventsTable: config.EventsTable,
	}
}

// RecordRegistration journals a successful registration.
func (j *Journal) RecordRegistration(ctx context.Context, worker controller.WorkerAddress, callback string) error {
	return j.insert(ctx, store.EventWorkerRegistered, worker, callback, "")
}

// RecordRegistrationFailure journals a registration whose callback connect failed.
func (j *Journal) RecordRegistrationFailure(ctx context.Context, worker controller.WorkerAddress, callback string, cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return j.insert(ctx, store.EventRegistrationFailed, worker, callback, detail)
}

// RecordWorkerFailed journals a liveness demotion.
func (j *Journal) RecordWorkerFailed(ctx context.Context, worker controller.WorkerAddress) error {
	return j.insert(ctx, store.EventWorkerFailed, worker, "", "")
}

// ListEvents returns all recorded events in insertion order.
func (j *Journal) ListEvents(ctx context.Context) ([]store.Event, error) {
	query := fmt.Sprintf(`
		SELECT id, event_type, worker_addr, callback_addr, detail, occurred_at
		FROM %s
		ORDER BY occurred_at, id
	`, j.eventsTable)

	rows, err := j.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []store.Event
	for rows.Next() {
		var ev store.Event
		var worker string
		if err := rows.Scan(&ev.ID, &ev.Type, &worker, &ev.Callback, &ev.Detail, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Worker = controller.WorkerAddress(worker)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

func (j *Journal) insert(ctx context.Context, eventType store.EventType, worker controller.WorkerAddress, callback, detail string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, event_type, worker_addr, callback_addr, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, j.eventsTable)

	if _, err := j.db.ExecContext(ctx, query, uuid.New().String(), string(eventType), string(worker), callback, detail); err != nil {
		return fmt.Errorf("failed to record %s event: %w", eventType, err)
	}
	return nil
}
