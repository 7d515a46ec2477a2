// Package recipe implements the recipe-submission service: an HTTP endpoint,
// run concurrently with the control event loop for the process lifetime, that
// admits query recipes against the shared cluster graph. Both tasks hold the
// same graph handle; a recipe migration and a worker admission never overlap.
package recipe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/getpup/pupsourcing/es"
	"github.com/google/uuid"

	"github.com/flowmesh/controller/graph"
	"github.com/flowmesh/controller/metrics"
)

// maxRecipeBytes bounds a single recipe submission.
const maxRecipeBytes = 1 << 20

// Config holds configuration for the recipe Service.
type Config struct {
	// Addr is the listen address for recipe submissions (default: ":6033").
	Addr string

	// Graph is the shared cluster-state handle (required).
	Graph *graph.Shared

	// Logger is for observability (optional).
	Logger es.Logger

	// Collector is for metrics (optional).
	Collector *metrics.Collector

	// Clock supplies the current time (default: time.Now).
	Clock func() time.Time
}

// Service accepts recipe submissions and applies them through the shared
// graph handle as migrations.
type Service struct {
	config Config
	server *http.Server
	ln     net.Listener

	errChan chan error
	done    chan struct{}
}

// New creates a recipe Service, applying defaults for unset config fields.
func New(cfg Config) *Service {
	if cfg.Addr == "" {
		cfg.Addr = ":6033"
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	s := &Service{
		config:  cfg,
		errChan: make(chan error, 1),
		done:    make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/recipe", s.handleRecipe)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Start binds the listener and begins serving in a goroutine. A bind failure
// is returned synchronously; the controller treats it as startup-fatal.
func (s *Service) Start() error {
	if s.config.Graph == nil {
		return errors.New("recipe service requires a graph handle")
	}

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
		s.config.Logger.Info(context.Background(), "recipe service listening", "addr", ln.Addr().String())
	}

	return nil
}

// Addr returns the bound listen address. Valid only after Start succeeds.
func (s *Service) Addr() net.Addr {
	return s.ln.Addr()
}

// Err returns any error that occurred while serving.
// This is non-blocking and returns nil if no error has occurred.
func (s *Service) Err() error {
	select {
	case err := <-s.errChan:
		return err
	default:
		return nil
	}
}

// Shutdown stops the server and waits for the serve goroutine to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return err
}

// submitResponse is the body returned for an accepted recipe.
type submitResponse struct {
	ID string `json:"id"`
}

func (s *Service) handleRecipe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRecipeBytes))
	if err != nil {
		http.Error(w, "failed to read recipe", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "empty recipe", http.StatusBadRequest)
		return
	}

	rec := graph.Recipe{
		ID:          uuid.New().String(),
		Definition:  string(body),
		SubmittedAt: s.config.Clock(),
	}

	err = s.config.Graph.ApplyMigration(func(m graph.Migration) error {
		return m.Apply(rec)
	})
	if err != nil {
		if s.config.Logger != nil {
			s.config.Logger.Error(r.Context(), "failed to apply recipe", "recipeID", rec.ID, "error", err)
		}
		http.Error(w, "failed to apply recipe", http.StatusUnprocessableEntity)
		return
	}

	if s.config.Logger != nil {
		s.config.Logger.Info(r.Context(), "recipe applied", "recipeID", rec.ID)
	}
	if s.config.Collector != nil {
		s.config.Collector.IncRecipesApplied()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(submitResponse{ID: rec.ID})
}
