package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/websocket"
)

// WebSocketDialer dials text-frame WebSocket connections using github.com/coder/websocket.
type WebSocketDialer struct {
	WriteTimeout time.Duration
	ReadLimit    int64
}

func (d *WebSocketDialer) Dial(ctx context.Context, target string) (Socket, error) {
	ws, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return nil, redactError(fmt.Errorf("dial %s: %w", redact(target), err), target)
	}
	if d.ReadLimit > 0 {
		ws.SetReadLimit(d.ReadLimit)
	}
	return &webSocket{ws: ws, writeTimeout: d.WriteTimeout}, nil
}

// webSocket wraps websocket.Conn with write timeouts.
type webSocket struct {
	closeState
	ws           *websocket.Conn
	writeTimeout time.Duration
}

func (s *webSocket) Send(ctx context.Context, data []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}
	if err := s.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return s.wrap("write frame", err)
	}
	return nil
}

func (s *webSocket) Receive(ctx context.Context) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	_, data, err := s.ws.Read(ctx)
	if err != nil {
		return nil, s.wrap("read frame", err)
	}
	return data, nil
}

func (s *webSocket) Close(reason string) error {
	if !s.markClosed() {
		return nil
	}
	return s.ws.Close(websocket.StatusNormalClosure, reason)
}

func (s *webSocket) Abort() error {
	if !s.markClosed() {
		return nil
	}
	return s.ws.CloseNow()
}
