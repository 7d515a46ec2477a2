package store

import (
	"context"
	"sync"

	"github.com/flowmesh/controller"
)

// MockJournal is a configurable mock implementation of Journal for use in
// tests. It allows setting up expected return values, tracking method calls,
// and injecting errors for testing error paths.
type MockJournal struct {
	mu sync.RWMutex

	// RecordRegistrationFunc is called by RecordRegistration if set.
	RecordRegistrationFunc func(ctx context.Context, worker controller.WorkerAddress, callback string) error

	// RecordRegistrationFailureFunc is called by RecordRegistrationFailure if set.
	RecordRegistrationFailureFunc func(ctx context.Context, worker controller.WorkerAddress, callback string, cause error) error

	// RecordWorkerFailedFunc is called by RecordWorkerFailed if set.
	RecordWorkerFailedFunc func(ctx context.Context, worker controller.WorkerAddress) error

	// ListEventsFunc is called by ListEvents if set.
	ListEventsFunc func(ctx context.Context) ([]Event, error)

	// Call tracking
	RecordRegistrationCalls        []RegistrationCall
	RecordRegistrationFailureCalls []RegistrationFailureCall
	RecordWorkerFailedCalls        []controller.WorkerAddress
	ListEventsCalls                int
}

// RegistrationCall records the arguments of one RecordRegistration invocation.
type RegistrationCall struct {
	Worker   controller.WorkerAddress
	Callback string
}

// RegistrationFailureCall records the arguments of one
// RecordRegistrationFailure invocation.
type RegistrationFailureCall struct {
	Worker   controller.WorkerAddress
	Callback string
	Cause    error
}

// NewMockJournal creates a mock journal with no behavior configured.
func NewMockJournal() *MockJournal {
	return &MockJournal{}
}

// RecordRegistration records the call and delegates to RecordRegistrationFunc if set.
func (m *MockJournal) RecordRegistration(ctx context.Context, worker controller.WorkerAddress, callback string) error {
	m.mu.Lock()
	m.RecordRegistrationCalls = append(m.RecordRegistrationCalls, RegistrationCall{Worker: worker, Callback: callback})
	fn := m.RecordRegistrationFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, worker, callback)
	}
	return nil
}

// RecordRegistrationFailure records the call and delegates to
// RecordRegistrationFailureFunc if set.
func (m *MockJournal) RecordRegistrationFailure(ctx context.Context, worker controller.WorkerAddress, callback string, cause error) error {
	m.mu.Lock()
	m.RecordRegistrationFailureCalls = append(m.RecordRegistrationFailureCalls,
		RegistrationFailureCall{Worker: worker, Callback: callback, Cause: cause})
	fn := m.RecordRegistrationFailureFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, worker, callback, cause)
	}
	return nil
}

// RecordWorkerFailed records the call and delegates to RecordWorkerFailedFunc if set.
func (m *MockJournal) RecordWorkerFailed(ctx context.Context, worker controller.WorkerAddress) error {
	m.mu.Lock()
	m.RecordWorkerFailedCalls = append(m.RecordWorkerFailedCalls, worker)
	fn := m.RecordWorkerFailedFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, worker)
	}
	return nil
}

// RegistrationCallCount returns the number of RecordRegistration calls.
// Safe to poll from a different goroutine than the recorder.
func (m *MockJournal) RegistrationCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.RecordRegistrationCalls)
}

// RegistrationFailureCallCount returns the number of
// RecordRegistrationFailure calls.
func (m *MockJournal) RegistrationFailureCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.RecordRegistrationFailureCalls)
}

// WorkerFailedCallCount returns the number of RecordWorkerFailed calls.
func (m *MockJournal) WorkerFailedCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.RecordWorkerFailedCalls)
}

// ListEvents records the call and delegates to ListEventsFunc if set.
func (m *MockJournal) ListEvents(ctx context.Context) ([]Event, error) {
	m.mu.Lock()
	m.ListEventsCalls++
	fn := m.ListEventsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return nil, nil
}
