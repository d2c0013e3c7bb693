package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

// json is a drop-in replacement for encoding/json with better performance
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxFrameSize bounds a single frame on stream transports
const MaxFrameSize = 10 * 1024 * 1024

// ErrMalformedMessage is returned for inbound frames that are not a JSON
// object with a non-empty string "type".
var ErrMalformedMessage = errors.New("malformed message")

// EncodeMessage serializes a client message into one frame.
func EncodeMessage(msg ClientMessage) ([]byte, error) {
	if msg.Type() == "" {
		return nil, fmt.Errorf("encode message: empty type")
	}
	buf := getFrameBuffer(0)
	defer putFrameBuffer(buf)

	if err := json.NewEncoder(buf).Encode(msg); err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	// Drop the encoder's trailing newline and detach from the pooled buffer
	data := buf.Bytes()
	if n := len(data); n > 0 && data[n-1] == '\n' {
		data = data[:n-1]
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// ParseServerMessage reads the type discriminator of an inbound frame.
// The frame itself is kept untouched in Raw.
func ParseServerMessage(frame []byte) (ServerMessage, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &head); err != nil {
		return ServerMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if head.Type == "" {
		return ServerMessage{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	raw := make([]byte, len(frame))
	copy(raw, frame)
	return ServerMessage{Type: head.Type, Raw: raw}, nil
}

// DecodeMessage decodes a payload into a message structure
func DecodeMessage(payload []byte, msg any) error {
	if err := json.Unmarshal(payload, msg); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

// Wire format on stream transports: [4 bytes length][payload]

// WriteFrame writes one length-prefixed frame with a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("payload too large: %d bytes", len(payload))
	}
	buf := getFrameBuffer(len(payload) + 4)
	defer putFrameBuffer(buf)

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	buf.Write(header[:])
	buf.Write(payload)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("payload too large: %d bytes", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return payload, nil
}
