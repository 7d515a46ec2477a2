package graph

import (
	"sync"

	"github.com/flowmesh/controller"
	"github.com/flowmesh/controller/transport"
)

// MockGraph is a configurable mock implementation of Graph for use in tests.
// It allows setting up expected return values, tracking method calls, and
// injecting errors for testing error paths.
type MockGraph struct {
	mu sync.RWMutex

	// AddWorkerFunc is called by AddWorker if set.
	AddWorkerFunc func(addr controller.WorkerAddress, sender *transport.Sender)

	// StartMigrationFunc is called by StartMigration if set.
	StartMigrationFunc func() Migration

	// GetMutatorFunc is called by GetMutator if set.
	GetMutatorFunc func(name string) (Mutator, error)

	// GetGetterFunc is called by GetGetter if set.
	GetGetterFunc func(name string) (Getter, error)

	// Call tracking
	AddWorkerCalls      []AddWorkerCall
	StartMigrationCalls int
	GetMutatorCalls     []string
	GetGetterCalls      []string
}

// AddWorkerCall records the arguments of one AddWorker invocation.
type AddWorkerCall struct {
	Addr   controller.WorkerAddress
	Sender *transport.Sender
}

// NewMockGraph creates a mock graph with no behavior configured. Unset Func
// fields fall back to harmless defaults.
func NewMockGraph() *MockGraph {
	return &MockGraph{}
}

// AddWorker records the call and delegates to AddWorkerFunc if set.
func (m *MockGraph) AddWorker(addr controller.WorkerAddress, sender *transport.Sender) {
	m.mu.Lock()
	m.AddWorkerCalls = append(m.AddWorkerCalls, AddWorkerCall{Addr: addr, Sender: sender})
	fn := m.AddWorkerFunc
	m.mu.Unlock()

	if fn != nil {
		fn(addr, sender)
	}
}

// StartMigration records the call and delegates to StartMigrationFunc if set,
// otherwise returns a no-op migration.
func (m *MockGraph) StartMigration() Migration {
	m.mu.Lock()
	m.StartMigrationCalls++
	fn := m.StartMigrationFunc
	m.mu.Unlock()

	if fn != nil {
		return fn()
	}
	return &MockMigration{}
}

// GetMutator records the call and delegates to GetMutatorFunc if set.
func (m *MockGraph) GetMutator(name string) (Mutator, error) {
	m.mu.Lock()
	m.GetMutatorCalls = append(m.GetMutatorCalls, name)
	fn := m.GetMutatorFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(name)
	}
	return nil, ErrUnknownView
}

// GetGetter records the call and delegates to GetGetterFunc if set.
func (m *MockGraph) GetGetter(name string) (Getter, error) {
	m.mu.Lock()
	m.GetGetterCalls = append(m.GetGetterCalls, name)
	fn := m.GetGetterFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(name)
	}
	return nil, ErrUnknownView
}

// Workers returns the addresses admitted so far.
func (m *MockGraph) Workers() []controller.WorkerAddress {
	m.mu.RLock()
	defer m.mu.RUnlock()

	addrs := make([]controller.WorkerAddress, 0, len(m.AddWorkerCalls))
	for _, call := range m.AddWorkerCalls {
		addrs = append(addrs, call.Addr)
	}
	return addrs
}

// MockMigration is a configurable mock Migration.
type MockMigration struct {
	mu sync.Mutex

	// ApplyFunc is called by Apply if set.
	ApplyFunc func(recipe Recipe) error

	// CommitFunc is called by Commit if set.
	CommitFunc func() error

	// Call tracking
	ApplyCalls  []Recipe
	CommitCalls int
}

// Apply records the call and delegates to ApplyFunc if set.
func (m *MockMigration) Apply(recipe Recipe) error {
	m.mu.Lock()
	m.ApplyCalls = append(m.ApplyCalls, recipe)
	fn := m.ApplyFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(recipe)
	}
	return nil
}

// Commit records the call and delegates to CommitFunc if set.
func (m *MockMigration) Commit() error {
	m.mu.Lock()
	m.CommitCalls++
	fn := m.CommitFunc
	m.mu.Unlock()

	if fn != nil {
		return fn()
	}
	return nil
}
