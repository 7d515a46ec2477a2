package coordinator

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/controller"
	"github.com/flowmesh/controller/graph"
	"github.com/flowmesh/controller/store"
	"github.com/flowmesh/controller/transport"
)

type pipeDialer struct{}

func (pipeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	client, server := net.Pipe()
	_ = server
	return client, nil
}

type refusingDialer struct{}

func (refusingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return nil, errors.New("connection refused")
}

func fixedClock(at time.Time) (func() time.Time, func(time.Time)) {
	current := at
	return func() time.Time { return current }, func(t time.Time) { current = t }
}

func newTestController(t *testing.T, dialer transport.Dialer, clock func() time.Time) (*Controller, *graph.MockGraph, *store.MockJournal) {
	t.Helper()

	mockGraph := graph.NewMockGraph()
	journal := store.NewMockJournal()

	c := New(Config{
		ListenAddr:       "127.0.0.1:0",
		HeartbeatEvery:   time.Second,
		HealthcheckEvery: 10 * time.Second,
		Journal:          journal,
		Dialer:           dialer,
		Clock:            clock,
	}, graph.NewShared(mockGraph))

	return c, mockGraph, journal
}

func TestNew_AppliesDefaults(t *testing.T) {
	c := New(Config{ListenAddr: ":6000"}, graph.NewShared(graph.NewMockGraph()))

	assert.Equal(t, DefaultHeartbeatEvery, c.config.HeartbeatEvery)
	assert.Equal(t, DefaultHealthcheckEvery, c.config.HealthcheckEvery)
	assert.Equal(t, 3*DefaultHeartbeatEvery, c.LivenessThreshold())
	assert.NotNil(t, c.config.Dialer)
	assert.NotNil(t, c.config.Clock)
}

func TestDispatch_RegisterAdmitsWorkerIntoGraph(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock, _ := fixedClock(start)
	c, mockGraph, journal := newTestController(t, pipeDialer{}, clock)
	ctx := context.Background()

	c.dispatch(ctx, controller.CoordinationMessage{
		Source:   "10.0.0.1:9000",
		Type:     controller.PayloadRegister,
		Callback: "10.0.0.1:9001",
	})

	ws, ok := c.Registry().Status("10.0.0.1:9000")
	require.True(t, ok)
	assert.True(t, ws.Healthy)
	assert.Equal(t, start, ws.LastHeartbeat)

	require.Len(t, mockGraph.AddWorkerCalls, 1)
	assert.Equal(t, controller.WorkerAddress("10.0.0.1:9000"), mockGraph.AddWorkerCalls[0].Addr)
	assert.Same(t, ws.Outbound, mockGraph.AddWorkerCalls[0].Sender,
		"the graph must receive the same send handle the registry stores")

	require.Len(t, journal.RecordRegistrationCalls, 1)
	assert.Equal(t, "10.0.0.1:9001", journal.RecordRegistrationCalls[0].Callback)
}

func TestDispatch_FailedConnectLeavesNoState(t *testing.T) {
	c, mockGraph, journal := newTestController(t, refusingDialer{}, nil)
	ctx := context.Background()

	c.dispatch(ctx, controller.CoordinationMessage{
		Source:   "10.0.0.1:9000",
		Type:     controller.PayloadRegister,
		Callback: "10.0.0.1:9001",
	})

	assert.Equal(t, 0, c.Registry().Len())
	assert.Empty(t, mockGraph.AddWorkerCalls)

	require.Len(t, journal.RecordRegistrationFailureCalls, 1)
	assert.Equal(t, controller.WorkerAddress("10.0.0.1:9000"), journal.RecordRegistrationFailureCalls[0].Worker)
	assert.Error(t, journal.RecordRegistrationFailureCalls[0].Cause)
}

func TestDispatch_HeartbeatForUnknownWorkerChangesNothing(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock, advance := fixedClock(start)
	c, _, _ := newTestController(t, pipeDialer{}, clock)
	ctx := context.Background()

	c.dispatch(ctx, controller.CoordinationMessage{
		Source: "10.0.0.1:9000", Type: controller.PayloadRegister, Callback: "10.0.0.1:9001",
	})
	c.dispatch(ctx, controller.CoordinationMessage{
		Source: "10.0.0.2:9000", Type: controller.PayloadRegister, Callback: "10.0.0.2:9001",
	})

	advance(start.Add(time.Second))
	c.dispatch(ctx, controller.CoordinationMessage{
		Source: "10.0.0.9:9000", Type: controller.PayloadHeartbeat,
	})

	assert.Equal(t, 2, c.Registry().Len())
	for _, addr := range []controller.WorkerAddress{"10.0.0.1:9000", "10.0.0.2:9000"} {
		ws, _ := c.Registry().Status(addr)
		assert.Equal(t, start, ws.LastHeartbeat)
	}
}

func TestDispatch_UnknownPayloadIsIgnored(t *testing.T) {
	c, mockGraph, _ := newTestController(t, pipeDialer{}, nil)
	ctx := context.Background()

	c.dispatch(ctx, controller.CoordinationMessage{
		Source: "10.0.0.1:9000", Type: controller.PayloadType("rebalance"),
	})
	c.dispatch(ctx, controller.CoordinationMessage{
		Source: "10.0.0.1:9000", Type: controller.PayloadType("snapshot"),
	})

	assert.Equal(t, 0, c.Registry().Len())
	assert.Empty(t, mockGraph.AddWorkerCalls)

	// The loop must stay usable after unknown variants.
	c.dispatch(ctx, controller.CoordinationMessage{
		Source: "10.0.0.1:9000", Type: controller.PayloadRegister, Callback: "10.0.0.1:9001",
	})
	assert.Equal(t, 1, c.Registry().Len())
}

func TestDispatch_DeregisterDemotesWorker(t *testing.T) {
	c, mockGraph, _ := newTestController(t, pipeDialer{}, nil)
	ctx := context.Background()

	c.dispatch(ctx, controller.CoordinationMessage{
		Source: "10.0.0.1:9000", Type: controller.PayloadRegister, Callback: "10.0.0.1:9001",
	})
	c.dispatch(ctx, controller.CoordinationMessage{
		Source: "10.0.0.1:9000", Type: controller.PayloadDeregister,
	})

	ws, ok := c.Registry().Status("10.0.0.1:9000")
	require.True(t, ok, "departure must not evict the entry")
	assert.False(t, ws.Healthy)
	assert.Len(t, mockGraph.AddWorkerCalls, 1)

	// A deregister for a worker that never registered changes nothing.
	c.dispatch(ctx, controller.CoordinationMessage{
		Source: "10.0.0.9:9000", Type: controller.PayloadDeregister,
	})
	assert.Equal(t, 1, c.Registry().Len())
}

func TestDispatch_MalformedRegisterIsDropped(t *testing.T) {
	c, mockGraph, _ := newTestController(t, pipeDialer{}, nil)

	c.dispatch(context.Background(), controller.CoordinationMessage{
		Source: "10.0.0.1:9000", Type: controller.PayloadRegister,
	})

	assert.Equal(t, 0, c.Registry().Len())
	assert.Empty(t, mockGraph.AddWorkerCalls)
}

func TestSweepIfDue_IsTimeGated(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock, advance := fixedClock(start)
	c, _, journal := newTestController(t, pipeDialer{}, clock)
	ctx := context.Background()

	c.dispatch(ctx, controller.CoordinationMessage{
		Source: "10.0.0.1:9000", Type: controller.PayloadRegister, Callback: "10.0.0.1:9001",
	})
	c.lastSweep = start

	// Worker is long stale, but the sweep interval has not elapsed yet.
	advance(start.Add(c.config.HealthcheckEvery))
	c.sweepIfDue(ctx)
	ws, _ := c.Registry().Status("10.0.0.1:9000")
	assert.True(t, ws.Healthy)
	assert.Equal(t, 0, journal.WorkerFailedCallCount())

	// Past the interval and past the liveness threshold: demoted once.
	advance(start.Add(c.config.HealthcheckEvery + time.Second))
	c.sweepIfDue(ctx)
	ws, _ = c.Registry().Status("10.0.0.1:9000")
	assert.False(t, ws.Healthy)
	assert.Equal(t, 1, journal.WorkerFailedCallCount())

	// Later sweeps do not re-report.
	advance(start.Add(10 * c.config.HealthcheckEvery))
	c.sweepIfDue(ctx)
	assert.Equal(t, 1, journal.WorkerFailedCallCount())
}

func TestRun_RequiresListenAddr(t *testing.T) {
	c := New(Config{}, graph.NewShared(graph.NewMockGraph()))

	err := c.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestRun_ReturnsBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	c := New(Config{ListenAddr: ln.Addr().String()}, graph.NewShared(graph.NewMockGraph()))

	err = c.Run(context.Background(), nil)
	assert.Error(t, err)
}

type failingRecipeService struct{}

func (failingRecipeService) Start() error { return errors.New("spawn failed") }

func (failingRecipeService) Shutdown(ctx context.Context) error { return nil }

func TestRun_ReceiverDeathWithoutCancelIsAnError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	c := New(Config{Listener: ln}, graph.NewShared(graph.NewMockGraph()))

	done := make(chan error, 1)
	go func() {
		done <- c.Run(context.Background(), nil)
	}()
	<-c.Ready()

	// The coordination socket dying out from under a running controller
	// must surface as a failure, never as a clean exit.
	require.NoError(t, ln.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop after its listener died")
	}
}

func TestRun_RecipeServiceStartFailureIsFatal(t *testing.T) {
	c, _, _ := newTestController(t, pipeDialer{}, nil)

	err := c.Run(context.Background(), failingRecipeService{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipe service")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	c, mockGraph, _ := newTestController(t, pipeDialer{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, nil) }()

	select {
	case <-c.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not start listening")
	}
	require.NotNil(t, c.Addr())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop")
	}
	assert.Empty(t, mockGraph.AddWorkerCalls)
}

func TestRun_EndToEndRegistration(t *testing.T) {
	mockGraph := graph.NewMockGraph()
	journal := store.NewMockJournal()
	c := New(Config{
		ListenAddr: "127.0.0.1:0",
		Journal:    journal,
	}, graph.NewShared(mockGraph))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, nil) }()

	select {
	case <-c.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not start listening")
	}

	// Callback listener standing in for the worker's push channel.
	callback, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer callback.Close()
	go func() {
		for {
			conn, err := callback.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	conn, err := net.Dial("tcp", c.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	source := controller.WorkerAddress(conn.LocalAddr().String())
	sender := transport.NewSender(conn)
	require.NoError(t, sender.Send(controller.CoordinationMessage{
		Source:   source,
		Type:     controller.PayloadRegister,
		Callback: callback.Addr().String(),
	}))

	require.Eventually(t, func() bool {
		return len(mockGraph.Workers()) == 1
	}, 2*time.Second, 10*time.Millisecond, "worker was not admitted into the graph")
	assert.Equal(t, source, mockGraph.Workers()[0])

	require.NoError(t, sender.Send(controller.CoordinationMessage{
		Source: source,
		Type:   controller.PayloadHeartbeat,
	}))

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop")
	}

	ws, ok := c.Registry().Status(source)
	require.True(t, ok)
	assert.True(t, ws.Healthy)
	assert.Equal(t, 1, journal.RegistrationCallCount())
}
