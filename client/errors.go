package client

import "errors"

var (
	// ErrQueueDisabled is returned by SendMessage when offline and queueing is off.
	ErrQueueDisabled = errors.New("not connected and message queue is disabled")

	// ErrDestroyed is returned by SendMessage after Destroy.
	ErrDestroyed = errors.New("client destroyed")

	ErrConnectTimeout       = errors.New("connection attempt timed out")
	ErrHeartbeatTimeout     = errors.New("heartbeat timed out")
	ErrMaxReconnectAttempts = errors.New("max reconnection attempts reached")
	ErrConnectionLost       = errors.New("connection lost")
)
