package sshpool

// ConnectionState represents the lifecycle state of a pooled connection.
type ConnectionState string

const (
	// StateConnecting means a handshake for this identity is in flight.
	StateConnecting ConnectionState = "connecting"
	// StateReady means the connection is established and usable.
	StateReady ConnectionState = "ready"
	// StateError means the connection reported an asynchronous fault and is
	// being discarded.
	StateError ConnectionState = "error"
	// StateClosed means the connection was terminated by eviction or
	// shutdown. Closed is terminal; a new Acquire starts a fresh entry.
	StateClosed ConnectionState = "closed"
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	return string(s)
}

// IsValid returns true if the state is one of the defined constants.
func (s ConnectionState) IsValid() bool {
	switch s {
	case StateConnecting, StateReady, StateError, StateClosed:
		return true
	default:
		return false
	}
}
