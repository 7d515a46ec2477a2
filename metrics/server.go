package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/getpup/pupsourcing/es"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig holds configuration for the metrics Server.
type ServerConfig struct {
	// Addr is the listen address for the metrics endpoint (default: ":9090").
	Addr string

	// Logger is for observability (optional).
	Logger es.Logger
}

// Server exposes the controller's Prometheus metrics on /metrics for
// deployments that do not already scrape them off another surface.
type Server struct {
	config ServerConfig
	server *http.Server
	ln     net.Listener

	errChan chan error
	done    chan struct{}
}

// NewServer creates a metrics Server, applying defaults for unset config
// fields.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":9090"
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		config: cfg,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		errChan: make(chan error, 1),
		done:    make(chan struct{}),
	}
}

// Start binds the listener and begins serving in a goroutine. A bind failure
// is returned synchronously and is startup-fatal to the caller.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.ln = ln

	go func() {
		defer close(s.done)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.errChan <- err
		}
	}()

	if s.config.Logger != nil {
		s.config.Logger.Info(context.Background(), "metrics server listening", "addr", ln.Addr().String())
	}

	return nil
}

// Addr returns the bound listen address. Valid only after Start succeeds.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Err returns any error that occurred while serving.
// This is non-blocking and returns nil if no error has occurred.
func (s *Server) Err() error {
	select {
	case err := <-s.errChan:
		return err
	default:
		return nil
	}
}

// Shutdown stops the server and waits for the serve goroutine to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return err
}
