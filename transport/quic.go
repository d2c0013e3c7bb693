package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Mmx233/QLink/config"
	"github.com/Mmx233/QLink/protocol"
	"github.com/quic-go/quic-go"
)

// QUIC application error codes
const (
	quicCodeNormal quic.ApplicationErrorCode = 0
	quicCodeAbort  quic.ApplicationErrorCode = 1
)

// QUICDialer carries frames over a single bidirectional QUIC stream.
// Targets look like quic://host:port/path?query. The first frame written on
// the stream is the request URI (path and query) so the server sees the
// same credential parameter a WebSocket upgrade would carry.
type QUICDialer struct {
	TLSConfig    *tls.Config
	QuicConfig   *quic.Config
	WriteTimeout time.Duration
}

func (d *QUICDialer) Dial(ctx context.Context, target string) (Socket, error) {
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "quic" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, redact(target))
	}

	var tlsConfig *tls.Config
	if d.TLSConfig != nil {
		tlsConfig = d.TLSConfig.Clone()
	} else {
		tlsConfig = &tls.Config{}
	}
	if len(tlsConfig.NextProtos) == 0 {
		tlsConfig.NextProtos = []string{config.DefaultALPN}
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = u.Hostname()
	}

	conn, err := quic.DialAddr(ctx, u.Host, tlsConfig, d.QuicConfig)
	if err != nil {
		return nil, fmt.Errorf("dial server %s: %w", u.Host, err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(quicCodeAbort, "open stream failed")
		return nil, fmt.Errorf("open stream: %w", err)
	}

	s := &quicSocket{conn: conn, stream: stream, writeTimeout: d.WriteTimeout}
	if err := s.Send(ctx, []byte(u.RequestURI())); err != nil {
		_ = s.Abort()
		return nil, fmt.Errorf("send preamble: %w", err)
	}
	return s, nil
}

type quicSocket struct {
	closeState
	conn         *quic.Conn
	stream       *quic.Stream
	writeTimeout time.Duration

	writeMu sync.Mutex
}

func (s *quicSocket) Send(ctx context.Context, data []byte) error {
	if err := s.check(); err != nil {
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
	if err := s.stream.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := protocol.WriteFrame(s.stream, data); err != nil {
		return s.wrap("write frame", err)
	}
	return nil
}

func (s *quicSocket) Receive(ctx context.Context) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := protocol.ReadFrame(s.stream)
	if err != nil {
		return nil, s.wrap("read frame", err)
	}
	return data, nil
}

func (s *quicSocket) Close(reason string) error {
	if !s.markClosed() {
		return nil
	}
	_ = s.stream.Close()
	return s.conn.CloseWithError(quicCodeNormal, reason)
}

func (s *quicSocket) Abort() error {
	if !s.markClosed() {
		return nil
	}
	return s.conn.CloseWithError(quicCodeAbort, "aborted")
}
