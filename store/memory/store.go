// Package memory provides an in-memory Journal for tests and single-process
// deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowmesh/controller"
	"github.com/flowmesh/controller/store"
)

// Journal is an in-memory implementation of store.Journal.
// It provides thread-safe access using a sync.RWMutex.
type Journal struct {
	mu     sync.RWMutex
	events []store.Event
}

// New creates an empty in-memory journal.
func New() *Journal {
	return &Journal{}
}

// RecordRegistration journals a successful registration.
func (j *Journal) RecordRegistration(ctx context.Context, worker controller.WorkerAddress, callback string) error {
	j.append(store.Event{
		Type:     store.EventWorkerRegistered,
		Worker:   worker,
		Callback: callback,
	})
	return nil
}

// RecordRegistrationFailure journals a registration whose callback connect failed.
func (j *Journal) RecordRegistrationFailure(ctx context.Context, worker controller.WorkerAddress, callback string, cause error) error {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	j.append(store.Event{
		Type:     store.EventRegistrationFailed,
		Worker:   worker,
		Callback: callback,
		Detail:   detail,
	})
	return nil
}

// RecordWorkerFailed journals a liveness demotion.
func (j *Journal) RecordWorkerFailed(ctx context.Context, worker controller.WorkerAddress) error {
	j.append(store.Event{
		Type:   store.EventWorkerFailed,
		Worker: worker,
	})
	return nil
}

// ListEvents returns all recorded events in insertion order.
func (j *Journal) ListEvents(ctx context.Context) ([]store.Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]store.Event, len(j.events))
	copy(out, j.events)
	return out, nil
}

func (j *Journal) append(ev store.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	ev.ID = uuid.New().String()
	ev.OccurredAt = time.Now()
	j.events = append(j.events, ev)
}
