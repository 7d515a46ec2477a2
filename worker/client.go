// Package worker provides the worker-side client of the coordination
// protocol: it registers with the controller and keeps the liveness
// heartbeats flowing.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/getpup/pupsourcing/es"

	"github.com/flowmesh/controller"
	"github.com/flowmesh/controller/transport"
)

// DefaultHeartbeatEvery is the default cadence of worker heartbeats. It must
// match the controller's configured cadence or the worker will be demoted.
const DefaultHeartbeatEvery = 1 * time.Second

// Config holds configuration for a worker Client.
type Config struct {
	// ControllerAddr is the controller's coordination listen address (required).
	ControllerAddr string

	// CallbackAddr is the bind address for the listener the controller
	// connects back to (default: "127.0.0.1:0").
	CallbackAddr string

	// HeartbeatEvery is the heartbeat cadence (default: 1s).
	HeartbeatEvery time.Duration

	// Logger is for observability (optional).
	Logger es.Logger

	// Dialer opens the worker-to-controller connection (default:
	// transport.DefaultDialer()).
	Dialer transport.Dialer
}

// Client connects a worker to the controller. It opens the callback listener,
// registers, then heartbeats until its context is cancelled.
type Client struct {
	config Config

	source   controller.WorkerAddress
	callback net.Listener
	sender   *transport.Sender
}

// New creates a worker Client, applying defaults for unset config fields.
func New(cfg Config) (*Client, error) {
	if cfg.ControllerAddr == "" {
		return nil, errors.New("worker requires a controller address")
	}
	if cfg.CallbackAddr == "" {
		cfg.CallbackAddr = "127.0.0.1:0"
	}
	if cfg.HeartbeatEvery == 0 {
		cfg.HeartbeatEvery = DefaultHeartbeatEvery
	}
	if cfg.Dialer == nil {
		cfg.Dialer = transport.DefaultDialer()
	}

	return &Client{config: cfg}, nil
}

// Source returns the address this worker is known by: the local address of
// its controller-bound connection. Valid after Register.
func (c *Client) Source() controller.WorkerAddress {
	return c.source
}

// CallbackAddr returns the bound callback listener address. Valid after
// Register.
func (c *Client) CallbackAddr() string {
	return c.callback.Addr().String()
}

// Register opens the callback listener, connects to the controller, and
// sends the register message carrying the callback address.
func (c *Client) Register(ctx context.Context) error {
	callback, err := net.Listen("tcp", c.config.CallbackAddr)
	if err != nil {
		return fmt.Errorf("failed to bind callback listener: %w", err)
	}
	c.callback = callback
	go c.acceptPushes()

	sender, err := transport.Connect(ctx, c.config.Dialer, c.config.ControllerAddr)
	if err != nil {
		callback.Close()
		return fmt.Errorf("failed to connect to controller at %s: %w", c.config.ControllerAddr, err)
	}
	c.sender = sender
	c.source = controller.WorkerAddress(sender.LocalAddr().String())

	if err := sender.Send(controller.CoordinationMessage{
		Source:   c.source,
		Type:     controller.PayloadRegister,
		Callback: callback.Addr().String(),
	}); err != nil {
		sender.Close()
		callback.Close()
		return fmt.Errorf("failed to send register message: %w", err)
	}

	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "registered with controller",
			"source", string(c.source), "callback", callback.Addr().String())
	}

	return nil
}

// Heartbeat sends one heartbeat. Valid after Register.
func (c *Client) Heartbeat() error {
	return c.sender.Send(controller.CoordinationMessage{
		Source: c.source,
		Type:   controller.PayloadHeartbeat,
	})
}

// Deregister announces an explicit departure to the controller. Valid after
// Register. The controller demotes this worker immediately instead of waiting
// for its heartbeats to go stale.
func (c *Client) Deregister() error {
	return c.sender.Send(controller.CoordinationMessage{
		Source: c.source,
		Type:   controller.PayloadDeregister,
	})
}

// Run registers and then heartbeats at the configured cadence until ctx is
// cancelled. A failed heartbeat ends the run: the connection to the
// controller is gone and re-registration is the recovery path.
func (c *Client) Run(ctx context.Context) error {
	if err := c.Register(ctx); err != nil {
		return err
	}
	defer c.Close()

	ticker := time.NewTicker(c.config.HeartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Heartbeat(); err != nil {
				if c.config.Logger != nil {
					c.config.Logger.Error(ctx, "heartbeat failed", "source", string(c.source), "error", err)
				}
				return err
			}
		}
	}
}

// Close tears down the controller connection and the callback listener.
func (c *Client) Close() error {
	var err error
	if c.sender != nil {
		err = c.sender.Close()
	}
	if c.callback != nil {
		if cerr := c.callback.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// acceptPushes holds connections the controller opens to this worker. The
// push channel carries no traffic yet; connections are accepted so the
// controller's registration connect succeeds, and drained for liveness of
// the socket.
func (c *Client) acceptPushes() {
	for {
		conn, err := c.callback.Accept()
		if err != nil {
			return
		}
		go func() {
			buf := make([]byte, 1024)
			for {
				if _, err := conn.Read(buf); err != nil {
					conn.Close()
					return
				}
			}
		}()
	}
}
