package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// GorillaDialer dials WebSocket connections using github.com/gorilla/websocket.
type GorillaDialer struct {
	WriteTimeout time.Duration
	ReadLimit    int64
}

func (d *GorillaDialer) Dial(ctx context.Context, target string) (Socket, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, redactError(fmt.Errorf("dial %s: %w", redact(target), err), target)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &gorillaSocket{conn: conn, writeTimeout: d.WriteTimeout}, nil
}

type gorillaSocket struct {
	closeState
	conn         *websocket.Conn
	writeTimeout time.Duration

	// Write serialization
	writeMu sync.Mutex
}

func (s *gorillaSocket) Send(ctx context.Context, data []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var deadline time.Time
	if s.writeTimeout > 0 {
		deadline = time.Now().Add(s.writeTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	s.conn.SetWriteDeadline(deadline)

	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return s.wrap("write frame", err)
	}
	return nil
}

// Receive ignores ctx once blocked; Close or Abort unblocks it.
func (s *gorillaSocket) Receive(ctx context.Context) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, s.wrap("read frame", err)
	}
	return data, nil
}

func (s *gorillaSocket) Close(reason string) error {
	if !s.markClosed() {
		return nil
	}
	// Close message is best effort, the peer may already be gone
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second),
	)
	return s.conn.Close()
}

func (s *gorillaSocket) Abort() error {
	if !s.markClosed() {
		return nil
	}
	return s.conn.Close()
}
