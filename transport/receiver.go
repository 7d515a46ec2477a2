package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/getpup/pupsourcing/es"

	"github.com/flowmesh/controller"
)

// defaultQueueSize is the buffer of the inbound message channel. It absorbs
// short bursts while the control loop is inside a dispatch.
const defaultQueueSize = 64

// Receiver accepts worker connections on a listener and funnels every decoded
// coordination message into a single channel. One goroutine reads each
// connection, so messages from a single worker are delivered in arrival order;
// no ordering holds across workers beyond network arrival. A decode error
// closes only the offending connection, and accept errors short of a closed
// listener are retried, so the receiver outlives any single connection.
type Receiver struct {
	ln     net.Listener
	logger es.Logger

	msgs chan controller.CoordinationMessage

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	done     chan struct{}
	closeLn  sync.Once
	readerWG sync.WaitGroup
}

// NewReceiver wraps an already-bound listener. Binding is left to the caller
// because a bind failure is startup-fatal while accept failures are not.
func NewReceiver(ln net.Listener, logger es.Logger) *Receiver {
	return &Receiver{
		ln:     ln,
		logger: logger,
		msgs:   make(chan controller.CoordinationMessage, defaultQueueSize),
		conns:  make(map[net.Conn]struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the accept loop. The message channel is closed after the
// listener and every connection reader have stopped.
func (r *Receiver) Start() {
	go func() {
		r.acceptLoop()
		r.readerWG.Wait()
		close(r.msgs)
	}()
}

// Messages returns the inbound message channel. It is closed once the
// receiver has fully stopped.
func (r *Receiver) Messages() <-chan controller.CoordinationMessage {
	return r.msgs
}

// Addr returns the listener's address.
func (r *Receiver) Addr() net.Addr {
	return r.ln.Addr()
}

// Close stops accepting, closes every open connection, and unblocks readers.
func (r *Receiver) Close() error {
	var err error
	r.closeLn.Do(func() {
		close(r.done)
		err = r.ln.Close()

		r.mu.Lock()
		for conn := range r.conns {
			conn.Close()
		}
		r.mu.Unlock()
	})
	return err
}

func (r *Receiver) acceptLoop() {
	var delay time.Duration
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			select {
			case <-r.done:
				return
			default:
			}
			if isClosed(err) {
				return
			}

			// Accept errors like ECONNABORTED or EMFILE concern one
			// handshake or a passing resource limit, not the listener.
			// Back off briefly and keep accepting.
			if r.logger != nil {
				r.logger.Error(context.Background(), "accept failed", "error", err)
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > time.Second {
				delay = time.Second
			}
			select {
			case <-time.After(delay):
			case <-r.done:
				return
			}
			continue
		}
		delay = 0

		r.mu.Lock()
		r.conns[conn] = struct{}{}
		r.mu.Unlock()

		r.readerWG.Add(1)
		go r.readLoop(conn)
	}
}

func (r *Receiver) readLoop(conn net.Conn) {
	defer r.readerWG.Done()
	defer func() {
		conn.Close()
		r.mu.Lock()
		delete(r.conns, conn)
		r.mu.Unlock()
	}()

	dec := json.NewDecoder(conn)
	for {
		var msg controller.CoordinationMessage
		if err := dec.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) && !isClosed(err) {
				if r.logger != nil {
					r.logger.Error(context.Background(), "dropping connection on decode error",
						"remote", conn.RemoteAddr().String(), "error", err)
				}
			}
			return
		}

		// Workers self-report their source address so that it survives
		// proxies; fall back to the observed peer address.
		if msg.Source == "" {
			msg.Source = controller.WorkerAddress(conn.RemoteAddr().String())
		}

		select {
		case r.msgs <- msg:
		case <-r.done:
			return
		}
	}
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
