// Package registry tracks the membership and liveness of workers known to the
// controller. It is the only place liveness state lives.
//
// The registry is deliberately not synchronized: it is owned by the control
// event loop goroutine, which is the sole reader and writer. Offloading any
// part of registration to helper goroutines must still sequence mutation
// through that owner.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/flowmesh/controller"
	"github.com/flowmesh/controller/transport"
)

// Status is the controller-side view of one worker.
type Status struct {
	// Healthy starts true on registration and is set false by a liveness
	// sweep once heartbeats go stale. A fresh heartbeat does not flip it
	// back; re-registration is the recovery path.
	Healthy bool

	// LastHeartbeat is the time of registration or of the most recent
	// heartbeat, whichever is later. Monotonically non-decreasing.
	LastHeartbeat time.Time

	// Outbound is the controller-to-worker send handle, established during
	// registration. Nil only for a Status value that never completed
	// registration, which the registry itself never stores.
	Outbound *transport.Sender
}

// Config configures a Registry.
type Config struct {
	// Dialer opens the controller-to-worker connection during registration
	// (default: transport.DefaultDialer()).
	Dialer transport.Dialer

	// Clock supplies the current time (default: time.Now). Injectable for
	// deterministic liveness tests.
	Clock func() time.Time
}

// Registry maps worker addresses to their status. At most one entry exists
// per address; re-registration overwrites, it never merges.
type Registry struct {
	config  Config
	workers map[controller.WorkerAddress]*Status
}

// New creates an empty Registry, applying defaults for unset config fields.
func New(cfg Config) *Registry {
	if cfg.Dialer == nil {
		cfg.Dialer = transport.DefaultDialer()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Registry{
		config:  cfg,
		workers: make(map[controller.WorkerAddress]*Status),
	}
}

// Register connects back to the worker's callback address and, on success,
// inserts a healthy entry for source, overwriting any prior entry. On a
// failed connect no entry is created and the error is returned to the caller;
// a failed registration never crashes the controller.
//
// The returned sender is the same handle stored in the entry, so the caller
// can admit the worker into the cluster graph with it.
func (r *Registry) Register(ctx context.Context, source controller.WorkerAddress, callback string) (*transport.Sender, error) {
	sender, err := transport.Connect(ctx, r.config.Dialer, callback)
	if err != nil {
		return nil, fmt.Errorf("failed to connect back to worker %s at %s: %w", source, callback, err)
	}

	r.workers[source] = &Status{
		Healthy:       true,
		LastHeartbeat: r.config.Clock(),
		Outbound:      sender,
	}

	return sender, nil
}

// RecordHeartbeat refreshes the liveness timestamp of a registered worker.
// Returns controller.ErrUnknownWorker, leaving all state unchanged, if the
// source was never registered.
func (r *Registry) RecordHeartbeat(source controller.WorkerAddress) error {
	ws, ok := r.workers[source]
	if !ok {
		return fmt.Errorf("heartbeat from %s: %w", source, controller.ErrUnknownWorker)
	}

	ws.LastHeartbeat = r.config.Clock()
	return nil
}

// Deregister records an explicit departure: the entry is marked unhealthy and
// the outbound connection is closed. The entry itself stays, the same as a
// liveness demotion, so the departure is visible until the worker registers
// again. Returns controller.ErrUnknownWorker if the source was never
// registered.
func (r *Registry) Deregister(source controller.WorkerAddress) error {
	ws, ok := r.workers[source]
	if !ok {
		return fmt.Errorf("deregister from %s: %w", source, controller.ErrUnknownWorker)
	}

	ws.Healthy = false
	if ws.Outbound != nil {
		ws.Outbound.Close()
	}
	return nil
}

// SweepLiveness demotes every healthy worker whose heartbeat is older than
// threshold, strictly: a worker exactly at the threshold stays healthy.
// Workers already unhealthy are left untouched, so each failure is reported
// exactly once. The returned slice names the newly failed workers; the sweep
// performs no network I/O.
func (r *Registry) SweepLiveness(threshold time.Duration, now time.Time) []controller.WorkerAddress {
	var failed []controller.WorkerAddress
	for addr, ws := range r.workers {
		if ws.Healthy && now.Sub(ws.LastHeartbeat) > threshold {
			ws.Healthy = false
			failed = append(failed, addr)
		}
	}
	return failed
}

// Status returns a copy of the entry for source, if present.
func (r *Registry) Status(source controller.WorkerAddress) (Status, bool) {
	ws, ok := r.workers[source]
	if !ok {
		return Status{}, false
	}
	return *ws, true
}

// Len returns the number of registered workers.
func (r *Registry) Len() int {
	return len(r.workers)
}

// HealthyCount returns the number of workers currently marked healthy.
func (r *Registry) HealthyCount() int {
	n := 0
	for _, ws := range r.workers {
		if ws.Healthy {
			n++
		}
	}
	return n
}
