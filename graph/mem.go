package graph

import (
	"errors"
	"fmt"

	"github.com/flowmesh/controller"
	"github.com/flowmesh/controller/transport"
)

// ErrUnknownView indicates no base table or view with the requested name
// exists in the graph.
var ErrUnknownView = errors.New("unknown view")

// Mem is a minimal in-memory stand-in for the external dataflow engine. It
// lets the daemon and the examples run without a real engine: admitted
// workers are remembered, and each committed recipe materializes one named
// key-value view. It is not the engine, whose internals are out of scope.
//
// Mem is not synchronized; access it through Shared.
type Mem struct {
	workers map[controller.WorkerAddress]*transport.Sender
	views   map[string]map[string][]byte
	recipes []Recipe
}

// NewMem creates an empty in-memory graph.
func NewMem() *Mem {
	return &Mem{
		workers: make(map[controller.WorkerAddress]*transport.Sender),
		views:   make(map[string]map[string][]byte),
	}
}

// AddWorker remembers the worker and its send handle. Re-admission replaces
// the stored handle, mirroring registry overwrite semantics.
func (g *Mem) AddWorker(addr controller.WorkerAddress, sender *transport.Sender) {
	g.workers[addr] = sender
}

// WorkerCount returns the number of admitted workers.
func (g *Mem) WorkerCount() int {
	return len(g.workers)
}

// Recipes returns the recipes committed so far, in commit order.
func (g *Mem) Recipes() []Recipe {
	out := make([]Recipe, len(g.recipes))
	copy(out, g.recipes)
	return out
}

// StartMigration begins a staged topology change.
func (g *Mem) StartMigration() Migration {
	return &memMigration{g: g}
}

// GetMutator returns the write handle for a named view.
func (g *Mem) GetMutator(name string) (Mutator, error) {
	view, ok := g.views[name]
	if !ok {
		return nil, fmt.Errorf("mutator %q: %w", name, ErrUnknownView)
	}
	return memHandle(view), nil
}

// GetGetter returns the read handle for a named view.
func (g *Mem) GetGetter(name string) (Getter, error) {
	view, ok := g.views[name]
	if !ok {
		return nil, fmt.Errorf("getter %q: %w", name, ErrUnknownView)
	}
	return memHandle(view), nil
}

type memMigration struct {
	g      *Mem
	staged []Recipe
}

func (m *memMigration) Apply(recipe Recipe) error {
	if recipe.ID == "" {
		return errors.New("recipe has no id")
	}
	m.staged = append(m.staged, recipe)
	return nil
}

func (m *memMigration) Commit() error {
	for _, recipe := range m.staged {
		m.g.recipes = append(m.g.recipes, recipe)
		if _, ok := m.g.views[recipe.ID]; !ok {
			m.g.views[recipe.ID] = make(map[string][]byte)
		}
	}
	m.staged = nil
	return nil
}

// memHandle backs both ends of a view with the same map.
type memHandle map[string][]byte

func (h memHandle) Put(key string, value []byte) error {
	h[key] = value
	return nil
}

func (h memHandle) Get(key string) ([]byte, bool) {
	v, ok := h[key]
	return v, ok
}
