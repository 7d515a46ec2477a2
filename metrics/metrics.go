package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkersRegisteredTotal tracks the total number of successful worker registrations.
var WorkersRegisteredTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "flowmesh_controller_workers_registered_total",
		Help: "Total successful worker registrations",
	},
	[]string{"cluster"},
)

// RegistrationFailuresTotal tracks registrations whose callback connect failed.
var RegistrationFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "flowmesh_controller_registration_failures_total",
		Help: "Total worker registrations that failed to connect back",
	},
	[]string{"cluster"},
)

// HeartbeatsTotal tracks heartbeats accepted from registered workers.
var HeartbeatsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "flowmesh_controller_heartbeats_total",
		Help: "Total heartbeats recorded for registered workers",
	},
	[]string{"cluster"},
)

// UnknownWorkerHeartbeatsTotal tracks heartbeats from workers the controller
// never registered.
var UnknownWorkerHeartbeatsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "flowmesh_controller_unknown_worker_heartbeats_total",
		Help: "Total heartbeats received for unknown workers",
	},
	[]string{"cluster"},
)

// StaleWorkersTotal tracks workers demoted by a liveness sweep.
var StaleWorkersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "flowmesh_controller_stale_workers_total",
		Help: "Total workers marked unhealthy by liveness sweeps",
	},
	[]string{"cluster"},
)

// UnknownPayloadsTotal tracks coordination messages with unrecognized payload types.
var UnknownPayloadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "flowmesh_controller_unknown_payloads_total",
		Help: "Total coordination messages ignored for unknown payload type",
	},
	[]string{"cluster"},
)

// RecipesAppliedTotal tracks recipes applied through the recipe service.
var RecipesAppliedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "flowmesh_controller_recipes_applied_total",
		Help: "Total recipes applied to the dataflow graph",
	},
	[]string{"cluster"},
)

// HealthyWorkers tracks the number of workers currently marked healthy.
var HealthyWorkers = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "flowmesh_controller_healthy_workers",
		Help: "Number of registered workers currently marked healthy",
	},
	[]string{"cluster"},
)

// RegistrationDuration tracks the time spent establishing the outbound
// connection and admitting a worker.
var RegistrationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "flowmesh_controller_registration_duration_seconds",
		Help:    "Time to complete a worker registration",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"cluster"},
)
