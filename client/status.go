package client

import "time"

// State is the lifecycle state of a Client.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDisconnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnectionStatus is an immutable snapshot of the client lifecycle.
// A new value replaces the previous one on every transition.
type ConnectionStatus struct {
	State            State
	Err              error     // Set in StateError, and in StateReconnecting with the closure cause
	ReconnectAttempt int       // Attempt number while StateReconnecting
	LastConnectedAt  time.Time // Zero until the first successful connection
}

// Connected reports whether the status is StateConnected.
func (s ConnectionStatus) Connected() bool {
	return s.State == StateConnected
}
