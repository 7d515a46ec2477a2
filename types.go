package controller

// WorkerAddress is the network identity a worker is known by: the address it
// connects to the controller from, in host:port form. It is the unique key
// into the worker registry.
type WorkerAddress string

// PayloadType discriminates the variants of a CoordinationMessage.
type PayloadType string

const (
	// PayloadRegister announces a new worker. The message must carry the
	// callback address the controller should connect back to.
	PayloadRegister PayloadType = "register"

	// PayloadHeartbeat is a periodic liveness signal from a registered worker.
	PayloadHeartbeat PayloadType = "heartbeat"

	// PayloadDeregister announces explicit worker departure. The controller
	// demotes the worker without waiting for its heartbeats to go stale.
	PayloadDeregister PayloadType = "deregister"
)

// CoordinationMessage is the wire-level envelope exchanged between workers and
// the controller. Socket addresses round-trip as host:port strings.
type CoordinationMessage struct {
	// Source is the address the worker is known by.
	Source WorkerAddress `json:"source"`

	// Type is the payload variant.
	Type PayloadType `json:"type"`

	// Callback is the address the controller should connect back to.
	// Set only on register messages.
	Callback string `json:"callback,omitempty"`
}

// Validate checks that the message is well-formed for its payload type.
// Unknown payload types are not an error here; the control loop decides how
// to treat them.
func (m CoordinationMessage) Validate() error {
	if m.Source == "" {
		return ErrMissingSource
	}
	if m.Type == PayloadRegister && m.Callback == "" {
		return ErrMissingCallback
	}
	return nil
}
