package protocol

// Client -> server message types
const (
	TypeInit    = "init"    // First frame after every successful open
	TypePing    = "ping"    // Heartbeat probe
	TypeMessage = "message" // Chat message
)

// Server -> client message types
const (
	TypeConnected          = "connected"
	TypePong               = "pong" // Heartbeat response, consumed by the client
	TypeTyping             = "typing"
	TypeError              = "error"
	TypeDeploymentProgress = "deployment_progress"
)

const ProtocolVersion = "1.0"

// ClientMessage is a client -> server frame: a type discriminator plus
// arbitrary top-level fields. It is immutable once constructed.
type ClientMessage struct {
	typ    string
	fields map[string]any
}

// NewClientMessage builds a message of the given type. Fields are copied,
// a "type" key in fields is ignored.
func NewClientMessage(typ string, fields map[string]any) ClientMessage {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "type" {
			continue
		}
		copied[k] = v
	}
	return ClientMessage{typ: typ, fields: copied}
}

// NewChatMessage builds a "message" frame carrying user text.
func NewChatMessage(content string) ClientMessage {
	return NewClientMessage(TypeMessage, map[string]any{"content": content})
}

// Type returns the message discriminator.
func (m ClientMessage) Type() string {
	return m.typ
}

// Field returns a single payload field.
func (m ClientMessage) Field(key string) (any, bool) {
	v, ok := m.fields[key]
	return v, ok
}

// MarshalJSON flattens the message into a single JSON object.
func (m ClientMessage) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(m.fields)+1)
	for k, v := range m.fields {
		obj[k] = v
	}
	obj["type"] = m.typ
	return json.Marshal(obj)
}

// InitMsg is sent by the client right after the transport opens
type InitMsg struct {
	SessionID string `json:"session_id"`
	Client    string `json:"client"`
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"` // Unix millis
}

// PingMsg is sent periodically to probe liveness
type PingMsg struct {
	Timestamp int64 `json:"timestamp"` // Unix millis
}

// NewInit builds the init frame.
func NewInit(msg InitMsg) ClientMessage {
	return NewClientMessage(TypeInit, map[string]any{
		"session_id": msg.SessionID,
		"client":     msg.Client,
		"version":    msg.Version,
		"timestamp":  msg.Timestamp,
	})
}

// NewPing builds a ping frame.
func NewPing(msg PingMsg) ClientMessage {
	return NewClientMessage(TypePing, map[string]any{"timestamp": msg.Timestamp})
}

// ServerMessage is a server -> client frame. Only Type is interpreted,
// Raw holds the complete frame as received.
type ServerMessage struct {
	Type string
	Raw  []byte
}

// Decode unmarshals the whole frame into v.
func (m ServerMessage) Decode(v any) error {
	return DecodeMessage(m.Raw, v)
}

// Fields returns the frame as a generic object.
func (m ServerMessage) Fields() (map[string]any, error) {
	var fields map[string]any
	if err := m.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// ErrorMsg is the payload of a server "error" frame
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
