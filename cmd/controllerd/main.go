// Command controllerd runs the flowmesh cluster controller.
//
// Usage:
//
//	go run github.com/flowmesh/controller/cmd/controllerd -listen :6032 -recipe-addr :6033
//
// With a PostgreSQL membership journal:
//
//	go run github.com/flowmesh/controller/cmd/controllerd -postgres-url postgres://localhost/flowmesh
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/flowmesh/controller/coordinator"
	"github.com/flowmesh/controller/graph"
	"github.com/flowmesh/controller/metrics"
	"github.com/flowmesh/controller/pkg/version"
	"github.com/flowmesh/controller/recipe"
	"github.com/flowmesh/controller/store"
	"github.com/flowmesh/controller/store/memory"
	"github.com/flowmesh/controller/store/postgres"
)

// slogLogger adapts log/slog to the logger interface the controller packages
// accept.
type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(ctx context.Context, msg string, keysAndValues ...interface{}) {
	s.l.DebugContext(ctx, msg, keysAndValues...)
}

func (s *slogLogger) Info(ctx context.Context, msg string, keysAndValues ...interface{}) {
	s.l.InfoContext(ctx, msg, keysAndValues...)
}

func (s *slogLogger) Error(ctx context.Context, msg string, keysAndValues ...interface{}) {
	s.l.ErrorContext(ctx, msg, keysAndValues...)
}

func main() {
	var (
		listenAddr       = flag.String("listen", ":6032", "Bind address for worker coordination")
		recipeAddr       = flag.String("recipe-addr", ":6033", "Bind address for recipe submissions")
		metricsAddr      = flag.String("metrics-addr", "", "Bind address for Prometheus metrics (disabled when empty)")
		heartbeatEvery   = flag.Duration("heartbeat-every", coordinator.DefaultHeartbeatEvery, "Expected worker heartbeat cadence")
		healthcheckEvery = flag.Duration("healthcheck-every", coordinator.DefaultHealthcheckEvery, "Liveness sweep cadence")
		cluster          = flag.String("cluster", "default", "Cluster label for metrics")
		postgresURL      = flag.String("postgres-url", os.Getenv("POSTGRES_URL"), "PostgreSQL DSN for the membership journal (in-memory when empty)")
	)

	flag.Parse()

	log.Printf("Starting flowmesh controller v%s", version.Version)

	logger := &slogLogger{l: slog.New(slog.NewJSONHandler(os.Stderr, nil))}
	collector := metrics.NewCollector(*cluster)

	var journal store.Journal
	if *postgresURL != "" {
		db, err := sql.Open("postgres", *postgresURL)
		if err != nil {
			log.Fatalf("Failed to open journal database: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.Fatalf("Failed to reach journal database: %v", err)
		}
		journal = postgres.New(db)
	} else {
		journal = memory.New()
	}

	shared := graph.NewShared(graph.NewMem())

	recipes := recipe.New(recipe.Config{
		Addr:      *recipeAddr,
		Graph:     shared,
		Logger:    logger,
		Collector: collector,
	})

	ctrl := coordinator.New(coordinator.Config{
		ListenAddr:       *listenAddr,
		HeartbeatEvery:   *heartbeatEvery,
		HealthcheckEvery: *healthcheckEvery,
		Logger:           logger,
		Journal:          journal,
		Collector:        collector,
	}, shared)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal, stopping controller...")
		cancel()
	}()

	if *metricsAddr != "" {
		metricsServer := metrics.NewServer(metrics.ServerConfig{Addr: *metricsAddr, Logger: logger})
		if err := metricsServer.Start(); err != nil {
			log.Fatalf("Failed to start metrics server: %v", err)
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			if err := metricsServer.Shutdown(sctx); err != nil {
				log.Printf("Metrics server shutdown failed: %v", err)
			}
		}()
	}

	log.Println("Press Ctrl+C to stop")
	if err := ctrl.Run(ctx, recipes); err != nil {
		log.Fatalf("Controller error: %v", err)
	}

	fmt.Println("Controller stopped")
}
