package metrics

// Collector wraps metrics and provides helper methods with a pre-filled
// cluster label.
type Collector struct {
	cluster string
}

// NewCollector creates a new Collector for the given cluster name.
func NewCollector(cluster string) *Collector {
	return &Collector{cluster: cluster}
}

// IncWorkersRegistered increments the registrations counter.
func (c *Collector) IncWorkersRegistered() {
	WorkersRegisteredTotal.WithLabelValues(c.cluster).Inc()
}

// IncRegistrationFailures increments the failed registrations counter.
func (c *Collector) IncRegistrationFailures() {
	RegistrationFailuresTotal.WithLabelValues(c.cluster).Inc()
}

// IncHeartbeats increments the heartbeats counter.
func (c *Collector) IncHeartbeats() {
	HeartbeatsTotal.WithLabelValues(c.cluster).Inc()
}

// IncUnknownWorkerHeartbeats increments the unknown-worker heartbeats counter.
func (c *Collector) IncUnknownWorkerHeartbeats() {
	UnknownWorkerHeartbeatsTotal.WithLabelValues(c.cluster).Inc()
}

// IncStaleWorkers increments the stale workers counter.
func (c *Collector) IncStaleWorkers() {
	StaleWorkersTotal.WithLabelValues(c.cluster).Inc()
}

// IncUnknownPayloads increments the unknown payloads counter.
func (c *Collector) IncUnknownPayloads() {
	UnknownPayloadsTotal.WithLabelValues(c.cluster).Inc()
}

// IncRecipesApplied increments the applied recipes counter.
func (c *Collector) IncRecipesApplied() {
	RecipesAppliedTotal.WithLabelValues(c.cluster).Inc()
}

// SetHealthyWorkers sets the healthy workers gauge.
func (c *Collector) SetHealthyWorkers(count int) {
	HealthyWorkers.WithLabelValues(c.cluster).Set(float64(count))
}

// ObserveRegistrationDuration records a registration duration observation.
func (c *Collector) ObserveRegistrationDuration(seconds float64) {
	RegistrationDuration.WithLabelValues(c.cluster).Observe(seconds)
}
