// Package coordinator implements the controller of a distributed dataflow
// cluster: it accepts worker registrations, tracks their liveness through
// heartbeats, and admits them into the shared cluster graph.
//
// The control event loop runs on a single goroutine that owns the worker
// registry outright; inbound coordination messages and the periodic liveness
// sweep are multiplexed through one select, so registry access needs no
// locking and sweeps never run concurrently with a dispatch.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/getpup/pupsourcing/es"

	"github.com/flowmesh/controller"
	"github.com/flowmesh/controller/graph"
	"github.com/flowmesh/controller/metrics"
	"github.com/flowmesh/controller/registry"
	"github.com/flowmesh/controller/store"
	"github.com/flowmesh/controller/transport"
)

const (
	// DefaultHeartbeatEvery is the expected worker heartbeat cadence.
	DefaultHeartbeatEvery = 1 * time.Second

	// DefaultHealthcheckEvery is the liveness sweep cadence.
	DefaultHealthcheckEvery = 10 * time.Second

	// livenessMultiplier scales the heartbeat cadence into the liveness
	// threshold: a worker is failed after missing three heartbeats.
	livenessMultiplier = 3
)

// RecipeService is the concurrently running recipe-submission task. It shares
// the cluster graph handle with the controller and is started once at
// controller startup; a start failure is startup-fatal.
type RecipeService interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// Config holds configuration for the Controller.
type Config struct {
	// ListenAddr is the bind address for the inbound coordination socket
	// (required unless Listener is set).
	ListenAddr string

	// Listener is an optional pre-bound coordination socket. When set it is
	// used as is and ListenAddr is ignored.
	Listener net.Listener

	// HeartbeatEvery is the expected worker heartbeat cadence (default: 1s).
	// The liveness threshold is 3 × HeartbeatEvery.
	HeartbeatEvery time.Duration

	// HealthcheckEvery is how often stale workers are swept (default: 10s).
	HealthcheckEvery time.Duration

	// Logger is for observability (optional).
	Logger es.Logger

	// Journal persists membership events (optional). Journal failures are
	// logged and never fail the triggering operation.
	Journal store.Journal

	// Collector is for metrics (optional).
	Collector *metrics.Collector

	// Dialer opens controller-to-worker connections (default:
	// transport.DefaultDialer()).
	Dialer transport.Dialer

	// Clock supplies the current time (default: time.Now).
	Clock func() time.Time
}

// Controller is the cluster coordinator process core.
type Controller struct {
	config   Config
	graph    *graph.Shared
	registry *registry.Registry

	lastSweep time.Time

	mu    sync.Mutex
	addr  net.Addr
	ready chan struct{}
}

// New creates a Controller with the given configuration and graph handle.
// Applies default values for unset config fields.
func New(cfg Config, g *graph.Shared) *Controller {
	if cfg.HeartbeatEvery == 0 {
		cfg.HeartbeatEvery = DefaultHeartbeatEvery
	}
	if cfg.HealthcheckEvery == 0 {
		cfg.HealthcheckEvery = DefaultHealthcheckEvery
	}
	if cfg.Dialer == nil {
		cfg.Dialer = transport.DefaultDialer()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Controller{
		config: cfg,
		graph:  g,
		registry: registry.New(registry.Config{
			Dialer: cfg.Dialer,
			Clock:  cfg.Clock,
		}),
		ready: make(chan struct{}),
	}
}

// LivenessThreshold returns the elapsed-time bound beyond which a worker is
// considered failed.
func (c *Controller) LivenessThreshold() time.Duration {
	return livenessMultiplier * c.config.HeartbeatEvery
}

// Ready is closed once the controller is listening for workers.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Addr returns the bound listen address. Valid once Ready is closed.
func (c *Controller) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// Registry exposes the worker registry. The registry is owned by the event
// loop goroutine; callers may only touch it before Run starts or after Run
// returns.
func (c *Controller) Registry() *registry.Registry {
	return c.registry
}

// Run binds the listening socket (or adopts the configured one), starts the
// recipe service (which shares the
// graph handle), and drives the control event loop until ctx is cancelled.
// Bind and recipe-service start failures are returned immediately; once the
// loop is running, per-message failures are logged and never abort it. The
// recipe service is shut down and joined after the loop exits.
func (c *Controller) Run(ctx context.Context, recipes RecipeService) error {
	ln := c.config.Listener
	if ln == nil {
		if c.config.ListenAddr == "" {
			return errors.New("controller requires a listen address")
		}

		var err error
		ln, err = net.Listen("tcp", c.config.ListenAddr)
		if err != nil {
			return fmt.Errorf("failed to bind %s: %w", c.config.ListenAddr, err)
		}
	}

	recv := transport.NewReceiver(ln, c.config.Logger)
	recv.Start()
	defer recv.Close()

	if recipes != nil {
		if err := recipes.Start(); err != nil {
			return fmt.Errorf("failed to start recipe service: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := recipes.Shutdown(sctx); err != nil && c.config.Logger != nil {
				c.config.Logger.Error(ctx, "recipe service shutdown failed", "error", err)
			}
		}()
	}

	c.mu.Lock()
	c.addr = ln.Addr()
	c.mu.Unlock()
	close(c.ready)

	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "controller listening", "addr", ln.Addr().String(),
			"heartbeatEvery", c.config.HeartbeatEvery,
			"healthcheckEvery", c.config.HealthcheckEvery)
	}

	c.lastSweep = c.config.Clock()

	// The timer deadline is reset after every iteration rather than being
	// anchored to a fixed wall clock.
	timer := time.NewTimer(c.config.HealthcheckEvery)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-recv.Messages():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("coordination receiver stopped unexpectedly")
			}
			c.dispatch(ctx, msg)
		case <-timer.C:
		}

		// The sweep is time-gated independently of what woke the loop.
		c.sweepIfDue(ctx)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.config.HealthcheckEvery)
	}
}

// dispatch handles one coordination message. Failures are logged and isolated
// to the message: the loop keeps running, and unknown payload variants are
// ignored to stay forward compatible.
func (c *Controller) dispatch(ctx context.Context, msg controller.CoordinationMessage) {
	if err := msg.Validate(); err != nil {
		if c.config.Logger != nil {
			c.config.Logger.Error(ctx, "dropping malformed coordination message",
				"source", string(msg.Source), "type", string(msg.Type), "error", err)
		}
		return
	}

	switch msg.Type {
	case controller.PayloadRegister:
		if err := c.handleRegister(ctx, msg); err != nil {
			if c.config.Logger != nil {
				c.config.Logger.Error(ctx, "failed to register worker",
					"source", string(msg.Source), "callback", msg.Callback, "error", err)
			}
		}
	case controller.PayloadHeartbeat:
		c.handleHeartbeat(ctx, msg)
	case controller.PayloadDeregister:
		c.handleDeregister(ctx, msg)
	default:
		if c.config.Logger != nil {
			c.config.Logger.Info(ctx, "ignoring unknown payload type",
				"source", string(msg.Source), "type", string(msg.Type))
		}
		if c.config.Collector != nil {
			c.config.Collector.IncUnknownPayloads()
		}
	}
}

// handleRegister connects back to the worker and, on success, records it in
// the registry and admits it into the cluster graph. The outbound connect
// runs inline on the loop goroutine; registration latency is bounded by the
// time to open one TCP connection.
func (c *Controller) handleRegister(ctx context.Context, msg controller.CoordinationMessage) error {
	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "new worker registering",
			"source", string(msg.Source), "callback", msg.Callback)
	}

	start := c.config.Clock()
	sender, err := c.registry.Register(ctx, msg.Source, msg.Callback)
	if err != nil {
		c.journalRegistrationFailure(ctx, msg, err)
		if c.config.Collector != nil {
			c.config.Collector.IncRegistrationFailures()
		}
		return err
	}

	c.graph.AdmitWorker(msg.Source, sender)

	c.journalRegistration(ctx, msg)
	if c.config.Collector != nil {
		c.config.Collector.IncWorkersRegistered()
		c.config.Collector.SetHealthyWorkers(c.registry.HealthyCount())
		c.config.Collector.ObserveRegistrationDuration(c.config.Clock().Sub(start).Seconds())
	}

	return nil
}

// handleHeartbeat refreshes the worker's liveness timestamp. A heartbeat for
// a worker the controller never registered is a critical anomaly: it is
// logged and dropped without touching any state.
func (c *Controller) handleHeartbeat(ctx context.Context, msg controller.CoordinationMessage) {
	if err := c.registry.RecordHeartbeat(msg.Source); err != nil {
		if c.config.Logger != nil {
			c.config.Logger.Error(ctx, "got heartbeat for unknown worker",
				"source", string(msg.Source))
		}
		if c.config.Collector != nil {
			c.config.Collector.IncUnknownWorkerHeartbeats()
		}
		return
	}

	if c.config.Collector != nil {
		c.config.Collector.IncHeartbeats()
	}
}

// handleDeregister marks an explicitly departing worker unhealthy. A
// deregister from an unknown source is logged and dropped, the same as an
// unknown heartbeat.
func (c *Controller) handleDeregister(ctx context.Context, msg controller.CoordinationMessage) {
	if err := c.registry.Deregister(msg.Source); err != nil {
		if c.config.Logger != nil {
			c.config.Logger.Error(ctx, "got deregister for unknown worker",
				"source", string(msg.Source))
		}
		return
	}

	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "worker deregistered", "source", string(msg.Source))
	}
	if c.config.Collector != nil {
		c.config.Collector.SetHealthyWorkers(c.registry.HealthyCount())
	}
}

// sweepIfDue runs a liveness sweep when HealthcheckEvery has elapsed since
// the previous one. Each demoted worker is reported exactly once.
func (c *Controller) sweepIfDue(ctx context.Context) {
	now := c.config.Clock()
	if now.Sub(c.lastSweep) <= c.config.HealthcheckEvery {
		return
	}

	failed := c.registry.SweepLiveness(c.LivenessThreshold(), now)
	for _, addr := range failed {
		if c.config.Logger != nil {
			c.config.Logger.Error(ctx, "worker has failed", "worker", string(addr))
		}
		if c.config.Journal != nil {
			if err := c.config.Journal.RecordWorkerFailed(ctx, addr); err != nil && c.config.Logger != nil {
				c.config.Logger.Error(ctx, "failed to journal worker failure",
					"worker", string(addr), "error", err)
			}
		}
		if c.config.Collector != nil {
			c.config.Collector.IncStaleWorkers()
		}
	}

	if len(failed) > 0 && c.config.Collector != nil {
		c.config.Collector.SetHealthyWorkers(c.registry.HealthyCount())
	}

	c.lastSweep = now
}

func (c *Controller) journalRegistration(ctx context.Context, msg controller.CoordinationMessage) {
	if c.config.Journal == nil {
		return
	}
	if err := c.config.Journal.RecordRegistration(ctx, msg.Source, msg.Callback); err != nil && c.config.Logger != nil {
		c.config.Logger.Error(ctx, "failed to journal registration",
			"source", string(msg.Source), "error", err)
	}
}

func (c *Controller) journalRegistrationFailure(ctx context.Context, msg controller.CoordinationMessage, cause error) {
	if c.config.Journal == nil {
		return
	}
	if err := c.config.Journal.RecordRegistrationFailure(ctx, msg.Source, msg.Callback, cause); err != nil && c.config.Logger != nil {
		c.config.Logger.Error(ctx, "failed to journal registration failure",
			"source", string(msg.Source), "error", err)
	}
}
