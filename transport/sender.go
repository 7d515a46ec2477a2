// Package transport implements the TCP wire layer of the coordination
// protocol. Two independent connections are used per worker, asymmetric in
// direction: the worker initiates a connection to the controller and sends all
// coordination messages on it, and the controller opens a second connection
// back to the worker's callback address after a successful registration. This
// decouples the direction of control traffic from TCP's connection symmetry,
// and defers the controller's push channel until a worker has proven
// reachability by initiating contact.
//
// Messages travel as a stream of self-describing JSON envelopes
// (controller.CoordinationMessage); socket addresses round-trip as host:port
// strings.
package transport

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/flowmesh/controller"
)

// DefaultDialTimeout bounds a single outbound connection attempt when no
// deadline is supplied through the context.
const DefaultDialTimeout = 5 * time.Second

// Dialer opens outbound TCP connections. It is satisfied by *net.Dialer and
// can be replaced in tests to fail or fake connection establishment.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DefaultDialer returns the production dialer used for controller-to-worker
// connections.
func DefaultDialer() Dialer {
	return &net.Dialer{Timeout: DefaultDialTimeout}
}

// Sender is the send side of a coordination connection. It is safe for
// concurrent use: the connection is shared between the control loop and the
// cluster graph, so every write is serialized through a mutex.
type Sender struct {
	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder
}

// NewSender wraps an established connection.
func NewSender(conn net.Conn) *Sender {
	return &Sender{
		conn: conn,
		enc:  json.NewEncoder(conn),
	}
}

// Connect dials addr and returns the resulting send handle. The caller owns
// the handle and must Close it.
func Connect(ctx context.Context, dialer Dialer, addr string) (*Sender, error) {
	if dialer == nil {
		dialer = DefaultDialer()
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	return NewSender(conn), nil
}

// Send writes one coordination message to the connection.
func (s *Sender) Send(msg controller.CoordinationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(msg)
}

// RemoteAddr returns the address of the peer.
func (s *Sender) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// LocalAddr returns the local address of the connection. For a worker's
// controller-bound connection this is the address the worker is known by.
func (s *Sender) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Close closes the underlying connection.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}
