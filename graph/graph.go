// Package graph defines the controller's contract with the external dataflow
// graph engine and the shared, lock-guarded handle through which the control
// loop and the recipe service mutate it.
package graph

import (
	"sync"
	"time"

	"github.com/flowmesh/controller"
	"github.com/flowmesh/controller/transport"
)

// Recipe is a query recipe submitted against the dataflow graph.
type Recipe struct {
	// ID is the unique identifier for this recipe (UUID).
	ID string

	// Definition is the recipe source text, opaque to the controller.
	Definition string

	// SubmittedAt is when the recipe was accepted.
	SubmittedAt time.Time
}

// Mutator is the write handle for one named base table of the graph.
type Mutator interface {
	Put(key string, value []byte) error
}

// Getter is the read handle for one named view of the graph.
type Getter interface {
	Get(key string) ([]byte, bool)
}

// Graph is the engine contract the controller consumes. The engine's internal
// representation, recipe compilation, and data movement are out of scope; the
// controller only admits compute resources and brokers migrations.
//
// Implementations need not be safe for concurrent use; all access is
// serialized through Shared.
type Graph interface {
	// AddWorker admits a registered worker as a compute resource, together
	// with the controller's send handle to it.
	AddWorker(addr controller.WorkerAddress, sender *transport.Sender)

	// StartMigration begins a topology change. The migration takes effect
	// only on Commit.
	StartMigration() Migration

	// GetMutator returns the write handle for a named base table.
	GetMutator(name string) (Mutator, error)

	// GetGetter returns the read handle for a named view.
	GetGetter(name string) (Getter, error)
}

// Migration is an in-progress topology change.
type Migration interface {
	// Apply stages a recipe into the migration.
	Apply(recipe Recipe) error

	// Commit makes the staged changes visible.
	Commit() error
}

// Shared is the cluster-state handle: a shared-ownership reference to the
// graph, held jointly by the control event loop and the recipe service. All
// mutation goes through its exclusive lock, and every critical section is
// lock-step-bounded: no network I/O happens while the lock is held.
type Shared struct {
	mu sync.Mutex
	g  Graph
}

// NewShared wraps a graph engine in a lockable handle. Both concurrent
// holders receive the same *Shared.
func NewShared(g Graph) *Shared {
	return &Shared{g: g}
}

// AdmitWorker adds a worker to the graph under the lock.
func (s *Shared) AdmitWorker(addr controller.WorkerAddress, sender *transport.Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.g.AddWorker(addr, sender)
}

// ApplyMigration runs fn against a fresh migration under the lock and commits
// it if fn succeeds. fn must not block on network I/O; the control loop is
// stalled for the duration.
func (s *Shared) ApplyMigration(fn func(Migration) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.g.StartMigration()
	if err := fn(m); err != nil {
		return err
	}
	return m.Commit()
}

// Mutator returns the write handle for a named base table under the lock.
func (s *Shared) Mutator(name string) (Mutator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.g.GetMutator(name)
}

// Getter returns the read handle for a named view under the lock.
func (s *Shared) Getter(name string) (Getter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.g.GetGetter(name)
}
