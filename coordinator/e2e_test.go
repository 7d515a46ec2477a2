package coordinator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/controller/coordinator"
	"github.com/flowmesh/controller/graph"
	"github.com/flowmesh/controller/store"
	"github.com/flowmesh/controller/worker"
)

// startController runs a controller with tight liveness settings over real
// TCP and returns it together with its observable collaborators.
func startController(t *testing.T, ctx context.Context) (*coordinator.Controller, *graph.MockGraph, *store.MockJournal, chan error) {
	t.Helper()

	mockGraph := graph.NewMockGraph()
	journal := store.NewMockJournal()

	ctrl := coordinator.New(coordinator.Config{
		ListenAddr:       "127.0.0.1:0",
		HeartbeatEvery:   20 * time.Millisecond,
		HealthcheckEvery: 30 * time.Millisecond,
		Journal:          journal,
	}, graph.NewShared(mockGraph))

	done := make(chan error, 1)
	go func() {
		done <- ctrl.Run(ctx, nil)
	}()

	select {
	case <-ctrl.Ready():
	case err := <-done:
		t.Fatalf("controller exited before ready: %v", err)
	}

	return ctrl, mockGraph, journal, done
}

func TestEndToEnd_WorkerJoinsCluster(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl, mockGraph, journal, done := startController(t, ctx)

	w, err := worker.New(worker.Config{
		ControllerAddr: ctrl.Addr().String(),
		HeartbeatEvery: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	defer w.Close()

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- w.Run(workerCtx)
	}()

	require.Eventually(t, func() bool {
		return len(mockGraph.Workers()) == 1
	}, 2*time.Second, 10*time.Millisecond, "worker was never admitted to the graph")

	require.Eventually(t, func() bool {
		return journal.RegistrationCallCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Keep heartbeating for several sweep intervals; the worker must not be
	// reported failed while the heartbeats flow.
	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, journal.WorkerFailedCallCount())

	stopWorker()
	<-workerDone
	cancel()
	require.NoError(t, <-done)

	status, ok := ctrl.Registry().Status(w.Source())
	require.True(t, ok)
	assert.Equal(t, w.Source(), mockGraph.Workers()[0])
	assert.True(t, status.Healthy)
}

func TestEndToEnd_SilentWorkerIsReportedOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl, mockGraph, journal, done := startController(t, ctx)

	w, err := worker.New(worker.Config{
		ControllerAddr: ctrl.Addr().String(),
	})
	require.NoError(t, err)
	defer w.Close()

	// Register once and then go silent.
	require.NoError(t, w.Register(ctx))

	require.Eventually(t, func() bool {
		return len(mockGraph.Workers()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The liveness threshold is three heartbeat intervals; wait through
	// several sweeps to show the failure is reported exactly once.
	require.Eventually(t, func() bool {
		return journal.WorkerFailedCallCount() == 1
	}, 2*time.Second, 10*time.Millisecond, "silent worker was never reported failed")

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, journal.WorkerFailedCallCount())

	cancel()
	require.NoError(t, <-done)

	status, ok := ctrl.Registry().Status(w.Source())
	require.True(t, ok)
	assert.False(t, status.Healthy)
	assert.Equal(t, 0, ctrl.Registry().HealthyCount())
}

func TestEndToEnd_FailedWorkerStaysInGraph(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl, mockGraph, journal, done := startController(t, ctx)

	silent, err := worker.New(worker.Config{ControllerAddr: ctrl.Addr().String()})
	require.NoError(t, err)
	defer silent.Close()
	require.NoError(t, silent.Register(ctx))

	steady, err := worker.New(worker.Config{
		ControllerAddr: ctrl.Addr().String(),
		HeartbeatEvery: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	defer steady.Close()

	steadyDone := make(chan error, 1)
	go func() {
		steadyDone <- steady.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(mockGraph.Workers()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return journal.WorkerFailedCallCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-steadyDone
	require.NoError(t, <-done)

	// Demotion marks the registry entry unhealthy but evicts nothing: both
	// workers stay known to the cluster.
	assert.Equal(t, 2, ctrl.Registry().Len())
	assert.Equal(t, 1, ctrl.Registry().HealthyCount())
	assert.Len(t, mockGraph.Workers(), 2)

	failed, ok := ctrl.Registry().Status(silent.Source())
	require.True(t, ok)
	assert.False(t, failed.Healthy)

	healthy, ok := ctrl.Registry().Status(steady.Source())
	require.True(t, ok)
	assert.True(t, healthy.Healthy)
}
