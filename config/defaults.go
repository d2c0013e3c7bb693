package config

import (
	"time"

	"github.com/google/uuid"
)

// Default timeout and interval values
const (
	// DefaultConnectTimeout bounds how long a single connection attempt may stay in connecting
	DefaultConnectTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds a single frame write
	DefaultWriteTimeout = 10 * time.Second

	// DefaultHeartbeatInterval is the default interval between ping messages
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultHeartbeatTimeout is how long to wait for a pong before forcing closure
	DefaultHeartbeatTimeout = 10 * time.Second

	// DefaultReconnectInitialDelay is the delay before the first reconnection attempt
	DefaultReconnectInitialDelay = time.Second

	// DefaultReconnectMaxDelay caps the reconnection delay
	DefaultReconnectMaxDelay = 30 * time.Second

	DefaultReconnectMaxAttempts       = 10
	DefaultReconnectBackoffMultiplier = 2.0

	// DefaultMessageQueueSize is the number of outbound messages buffered while offline
	DefaultMessageQueueSize = 100

	// DefaultReadLimit is the largest inbound frame accepted, in bytes
	DefaultReadLimit = 1 << 20

	DefaultClientName = "qlink"
	DefaultTokenParam = "token"
	DefaultDriver     = DriverWebSocket
	DefaultALPN       = "qlink"
)

// Transport drivers
const (
	DriverWebSocket = "websocket" // github.com/coder/websocket
	DriverGorilla   = "gorilla"   // github.com/gorilla/websocket
	DriverQUIC      = "quic"      // github.com/quic-go/quic-go
)

// Credential sources
const (
	CredentialNone   = "none"
	CredentialStatic = "static"
	CredentialEnv    = "env"
	CredentialSQLite = "sqlite"
	CredentialRedis  = "redis"
)

// GenerateSessionID generates a new UUID used as the session identifier in
// the init message. The same id is reused across reconnections.
func GenerateSessionID() string {
	return uuid.New().String()
}
