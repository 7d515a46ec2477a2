// Package store defines the coordination journal: a durable audit trail of
// cluster membership events. The in-memory worker registry remains the only
// place liveness state lives; the journal records what happened for operators
// and tooling, and journal failures never affect the triggering operation.
package store

import (
	"context"
	"time"

	"github.com/flowmesh/controller"
)

// EventType classifies a journal event.
type EventType string

const (
	// EventWorkerRegistered records a successful worker registration.
	EventWorkerRegistered EventType = "worker_registered"

	// EventRegistrationFailed records a registration whose callback connect
	// failed. No registry or graph state was mutated.
	EventRegistrationFailed EventType = "registration_failed"

	// EventWorkerFailed records a liveness sweep demoting a worker.
	EventWorkerFailed EventType = "worker_failed"
)

// Event is one journal entry.
type Event struct {
	// ID is the unique identifier for this event (UUID).
	ID string

	// Type classifies the event.
	Type EventType

	// Worker is the address of the worker the event concerns.
	Worker controller.WorkerAddress

	// Callback is the worker's callback address, when the event carries one.
	Callback string

	// Detail is free-form context, e.g. the connect error of a failed
	// registration.
	Detail string

	// OccurredAt is when the event was recorded.
	OccurredAt time.Time
}

// Journal provides persistence for membership events.
// Implementations must be safe for concurrent access.
type Journal interface {
	// RecordRegistration journals a successful registration.
	RecordRegistration(ctx context.Context, worker controller.WorkerAddress, callback string) error

	// RecordRegistrationFailure journals a registration that failed before
	// any state was mutated.
	RecordRegistrationFailure(ctx context.Context, worker controller.WorkerAddress, callback string, cause error) error

	// RecordWorkerFailed journals a liveness demotion.
	RecordWorkerFailed(ctx context.Context, worker controller.WorkerAddress) error

	// ListEvents returns all recorded events in insertion order.
	ListEvents(ctx context.Context) ([]Event, error)
}
