// Package transport provides the bidirectional message-stream capability used
// by the client: one Socket per connection attempt, created by a Dialer.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/Mmx233/QLink/config"
)

var (
	ErrClosed         = errors.New("transport closed")
	ErrUnknownDriver  = errors.New("unknown transport driver")
	ErrInvalidAddress = errors.New("invalid transport address")
)

// Socket is a single open bidirectional connection carrying one message per frame.
// Send may be called concurrently with Receive, but not with itself.
type Socket interface {
	// Send writes one frame.
	Send(ctx context.Context, data []byte) error

	// Receive blocks until the next frame arrives or the socket is closed.
	Receive(ctx context.Context) ([]byte, error)

	// Close performs a graceful close.
	Close(reason string) error

	// Abort tears the connection down immediately without a closing handshake.
	Abort() error
}

// Dialer opens sockets to a target address.
type Dialer interface {
	Dial(ctx context.Context, target string) (Socket, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, target string) (Socket, error)

func (f DialerFunc) Dial(ctx context.Context, target string) (Socket, error) {
	return f(ctx, target)
}

// FromConfig builds the dialer selected by cfg.Driver.
func FromConfig(cfg config.Transport) (Dialer, error) {
	switch cfg.Driver {
	case config.DriverWebSocket, "":
		return &WebSocketDialer{
			WriteTimeout: cfg.WriteTimeout,
			ReadLimit:    cfg.ReadLimit,
		}, nil
	case config.DriverGorilla:
		return &GorillaDialer{
			WriteTimeout: cfg.WriteTimeout,
			ReadLimit:    cfg.ReadLimit,
		}, nil
	case config.DriverQUIC:
		tlsConfig, err := cfg.TLS.LoadTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("load tls config: %w", err)
		}
		return &QUICDialer{
			TLSConfig:    tlsConfig,
			QuicConfig:   cfg.Quic.GetConfig(),
			WriteTimeout: cfg.WriteTimeout,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// closeState marks a socket closed locally. Operations started afterwards
// fail with ErrClosed, and errors of interrupted ones wrap it.
type closeState struct {
	closed atomic.Bool
}

// markClosed reports whether this call closed the socket.
func (s *closeState) markClosed() bool {
	return !s.closed.Swap(true)
}

func (s *closeState) check() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (s *closeState) wrap(op string, err error) error {
	if s.closed.Load() {
		return fmt.Errorf("%s: %w: %w", op, ErrClosed, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// redact drops the query string and userinfo, which may carry a credential.
func redact(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

// redactedError hides the target's query string in err's message while
// keeping err reachable through errors.Is and errors.As.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redactError(err error, target string) error {
	u, parseErr := url.Parse(target)
	if parseErr != nil || u.RawQuery == "" {
		return err
	}
	return &redactedError{
		msg: strings.ReplaceAll(err.Error(), u.RawQuery, "REDACTED"),
		err: err,
	}
}
