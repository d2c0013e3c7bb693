// Package client maintains a single persistent, self-healing message channel
// to the backend.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mmx233/QLink/config"
	"github.com/Mmx233/QLink/credential"
	"github.com/Mmx233/QLink/protocol"
	"github.com/Mmx233/QLink/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SendResult reports what SendMessage did with a message.
type SendResult int

const (
	SendFailed SendResult = iota
	SendSent
	SendQueued
)

func (r SendResult) String() string {
	switch r {
	case SendSent:
		return "sent"
	case SendQueued:
		return "queued"
	default:
		return "failed"
	}
}

type timerKind int

const (
	timerConnect timerKind = iota
	timerReconnect
	timerHeartbeat
	timerPong
)

type timer interface {
	Stop() bool
}

type timerFunc func(kind timerKind, d time.Duration, f func()) timer

func afterFunc(_ timerKind, d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

// conn is the state of one connection attempt. Timer and socket callbacks
// hold a pointer to it and are ignored once it is no longer Client.conn.
type conn struct {
	ctx     context.Context
	cancel  context.CancelFunc
	sock    transport.Socket // nil until the transport opens
	ready   bool             // init sent and queue flushed
	timeout timer            // connect timeout, stopped once ready
	hb      heartbeat

	// Writes never run under Client.mu. writeMu orders them on the socket,
	// writing counts callers inside write.
	writeMu sync.Mutex
	writing atomic.Int32
}

// write encodes msg and sends it on the socket. Must not be called with
// Client.mu held.
func (cn *conn) write(msg protocol.ClientMessage) error {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}

	cn.writing.Add(1)
	defer cn.writing.Add(-1)
	cn.writeMu.Lock()
	defer cn.writeMu.Unlock()
	return cn.sock.Send(cn.ctx, data)
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the base logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithCredentials sets the credential provider resolved on every connection attempt.
func WithCredentials(p credential.Provider) Option {
	return func(c *Client) {
		if p != nil {
			c.creds = p
		}
	}
}

// Client owns one transport socket at a time, reconnects with exponential
// backoff after unexpected closures, probes liveness with ping/pong and
// buffers outbound messages while offline.
//
// All methods are safe for concurrent use. Events are delivered after the
// internal lock is released, in the order they occurred, so handlers may
// call back into the Client.
type Client struct {
	conf    *config.Client
	dialer  transport.Dialer
	creds   credential.Provider
	logger  zerolog.Logger
	events  *Dispatcher
	queue   *Queue[protocol.ClientMessage]
	backoff Backoff

	status atomic.Pointer[ConnectionStatus]

	mu             sync.Mutex
	conn           *conn
	attempts       int
	destroyed      bool
	reconnectTimer timer
	reconnectSeq   uint64
	newTimer       timerFunc

	// Event delivery
	pending  []func()
	draining bool
}

// New creates a Client in StateIdle. A nil dialer selects the transport
// named by conf.Transport.Driver.
func New(conf *config.Client, dialer transport.Dialer, opts ...Option) (*Client, error) {
	conf.ApplyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}

	if dialer == nil {
		var err error
		dialer, err = transport.FromConfig(conf.Transport)
		if err != nil {
			return nil, fmt.Errorf("create transport: %w", err)
		}
	}

	c := &Client{
		conf:     conf,
		dialer:   dialer,
		creds:    credential.None{},
		logger:   log.Logger,
		queue:    NewQueue[protocol.ClientMessage](conf.MessageQueue.MaxSize),
		backoff:  NewBackoff(conf.Reconnect),
		newTimer: afterFunc,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With().
		Str("com", "client").
		Str("session_id", conf.SessionID).
		Logger()
	c.events = NewDispatcher(c.logger)
	c.status.Store(&ConnectionStatus{State: StateIdle})

	return c, nil
}

// Connect starts a connection attempt in the background. It is a no-op while
// a socket is open or an attempt is in flight, and after Destroy.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.unlock()

	if c.reconnectTimer != nil {
		c.stopReconnectLocked()
	} else if c.conn == nil {
		c.attempts = 0
	}
	c.connectLocked()
}

// Disconnect closes the connection on purpose. No reconnection follows.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cn := c.disconnectLocked()
	c.unlock()

	c.closeConn(cn, "client disconnect")
}

// Destroy disconnects, drops queued messages and every subscription.
// The Client cannot be used afterwards.
func (c *Client) Destroy() {
	c.mu.Lock()
	cn := c.disconnectLocked()
	c.destroyed = true
	c.queue.Clear()
	c.unlock()

	c.events.Clear()
	c.closeConn(cn, "client destroyed")
}

// SendMessage transmits msg when connected, queues it when offline.
// Only ErrQueueDisabled and ErrDestroyed are returned as errors; transmit
// failures yield SendFailed and are reported through OnError.
//
// The write happens outside the client lock, so a stalled socket delays
// only this call. Disconnect aborts it.
func (c *Client) SendMessage(msg protocol.ClientMessage) (SendResult, error) {
	c.mu.Lock()
	if c.destroyed {
		c.unlock()
		return SendFailed, ErrDestroyed
	}
	cn := c.conn
	if cn == nil || !cn.ready {
		result, err := c.enqueueLocked(msg)
		c.unlock()
		return result, err
	}
	c.unlock()

	if err := cn.write(msg); err != nil {
		c.logger.Warn().Err(err).Str("type", msg.Type()).Msg("send failed")
		c.reportSendError(msg, err)
		return SendFailed, nil
	}
	return SendSent, nil
}

func (c *Client) reportSendError(msg protocol.ClientMessage, err error) {
	c.mu.Lock()
	c.emitErrorLocked(fmt.Errorf("send %s: %w", msg.Type(), err))
	c.unlock()
}

func (c *Client) enqueueLocked(msg protocol.ClientMessage) (SendResult, error) {
	if !c.conf.MessageQueue.IsEnabled() {
		return SendFailed, ErrQueueDisabled
	}
	if evicted, dropped := c.queue.Enqueue(msg); dropped {
		c.logger.Warn().
			Str("type", evicted.Type()).
			Int("max_size", c.conf.MessageQueue.MaxSize).
			Msg("message queue full, dropped oldest message")
	}
	return SendQueued, nil
}

// OnMessage, OnError and OnStatusChange subscribe h and return its
// unsubscribe function. Every call is a separate subscription, see
// Dispatcher.OnMessage.
func (c *Client) OnMessage(h MessageHandler) func()     { return c.events.OnMessage(h) }
func (c *Client) OnError(h ErrorHandler) func()         { return c.events.OnError(h) }
func (c *Client) OnStatusChange(h StatusHandler) func() { return c.events.OnStatusChange(h) }

// Status returns the current status snapshot without blocking.
func (c *Client) Status() ConnectionStatus {
	return *c.status.Load()
}

func (c *Client) IsConnected() bool {
	return c.Status().Connected()
}

// QueueStats returns counters of the outbound queue.
func (c *Client) QueueStats() QueueStats {
	return c.queue.Stats()
}

func (c *Client) connectLocked() {
	if c.destroyed || c.conn != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	cn := &conn{ctx: ctx, cancel: cancel}
	c.conn = cn

	c.setStatusLocked(ConnectionStatus{State: StateConnecting, ReconnectAttempt: c.attempts})
	cn.timeout = c.newTimer(timerConnect, c.conf.ConnectTimeout, func() {
		c.onConnectTimeout(cn)
	})

	go c.dial(cn)
}

func (c *Client) dial(cn *conn) {
	target := c.target(cn.ctx)
	c.logger.Debug().Str("url", c.conf.Server.URL).Msg("dialing")

	sock, err := c.dialer.Dial(cn.ctx, target)

	c.mu.Lock()
	if c.conn != cn {
		c.unlock()
		if sock != nil {
			_ = sock.Abort()
		}
		return
	}

	if err != nil {
		c.logger.Warn().Err(err).Msg("connection attempt failed")
		c.setStatusLocked(ConnectionStatus{State: StateError, Err: err})
		c.emitErrorLocked(err)
		c.closedLocked(cn, err)
		c.unlock()
		return
	}

	cn.sock = sock
	go c.readLoop(cn)
	c.unlock()

	c.handshake(cn)
}

// target returns the server URL with the credential appended when one is available.
func (c *Client) target(ctx context.Context) string {
	token, err := c.creds.Token(ctx)
	switch {
	case errors.Is(err, credential.ErrNotFound):
		c.logger.Debug().Err(err).Msg("no credential available")
		return c.conf.Server.URL
	case err != nil:
		c.logger.Warn().Err(err).Msg("resolve credential failed, connecting without one")
		return c.conf.Server.URL
	case token == "":
		return c.conf.Server.URL
	}

	u, err := url.Parse(c.conf.Server.URL)
	if err != nil {
		return c.conf.Server.URL
	}
	q := u.Query()
	q.Set(c.conf.Server.TokenParam, token)
	u.RawQuery = q.Encode()
	return u.String()
}

// handshake sends init on the freshly opened socket, flushes the queue and
// marks cn connected. Messages queued while it runs are flushed too, so
// nothing sent directly can overtake them. The connect timeout keeps
// running until cn is ready.
func (c *Client) handshake(cn *conn) {
	init := protocol.NewInit(protocol.InitMsg{
		SessionID: c.conf.SessionID,
		Client:    c.conf.ClientName,
		Version:   protocol.ProtocolVersion,
		Timestamp: time.Now().UnixMilli(),
	})
	if err := cn.write(init); err != nil {
		c.mu.Lock()
		defer c.unlock()
		if c.conn == cn {
			c.logger.Warn().Err(err).Msg("send init failed")
			c.closedLocked(cn, fmt.Errorf("send init: %w", err))
		}
		return
	}

	for {
		c.mu.Lock()
		if c.conn != cn {
			c.unlock()
			return
		}
		batch := c.queue.Drain()
		if len(batch) == 0 {
			c.readyLocked(cn)
			c.unlock()
			return
		}
		c.unlock()

		for _, msg := range batch {
			if err := cn.write(msg); err != nil {
				c.logger.Warn().Err(err).Str("type", msg.Type()).Msg("flush queued message failed")
				c.reportSendError(msg, err)
			}
		}
	}
}

func (c *Client) readyLocked(cn *conn) {
	cn.ready = true
	stopTimer(&cn.timeout)
	c.attempts = 0
	c.startHeartbeatLocked(cn)

	c.setStatusLocked(ConnectionStatus{State: StateConnected, LastConnectedAt: time.Now()})
	c.logger.Info().Msg("connected")
}

func (c *Client) readLoop(cn *conn) {
	for {
		data, err := cn.sock.Receive(cn.ctx)
		if err != nil {
			c.onClosed(cn, err)
			return
		}
		c.onFrame(cn, data)
	}
}

func (c *Client) onFrame(cn *conn, data []byte) {
	msg, parseErr := protocol.ParseServerMessage(data)

	c.mu.Lock()
	defer c.unlock()

	if c.conn != cn {
		return
	}
	if parseErr != nil {
		c.logger.Warn().Err(parseErr).Int("size", len(data)).Msg("dropping malformed frame")
		c.emitErrorLocked(parseErr)
		return
	}
	if msg.Type == protocol.TypePong {
		c.handlePongLocked(cn)
		return
	}

	c.emitLocked(func() { c.events.DispatchMessage(msg) })
}

func (c *Client) onClosed(cn *conn, err error) {
	c.mu.Lock()
	defer c.unlock()

	if c.conn != cn {
		return
	}
	c.logger.Warn().Err(err).Msg("connection lost")
	c.closedLocked(cn, fmt.Errorf("%w: %w", ErrConnectionLost, err))
}

func (c *Client) onConnectTimeout(cn *conn) {
	c.mu.Lock()
	defer c.unlock()

	if c.conn != cn || cn.ready {
		return
	}
	c.logger.Warn().Dur("timeout", c.conf.ConnectTimeout).Msg("connection attempt timed out")
	c.closedLocked(cn, ErrConnectTimeout)
}

// closedLocked releases cn after an unexpected closure and applies the
// reconnection policy.
func (c *Client) closedLocked(cn *conn, cause error) {
	c.releaseLocked(cn)
	if cn.sock != nil {
		_ = cn.sock.Abort()
	}
	cn.cancel()

	if !c.conf.Reconnect.IsEnabled() {
		if c.Status().State != StateError {
			c.setStatusLocked(ConnectionStatus{State: StateDisconnected, Err: cause})
		}
		return
	}
	c.scheduleReconnectLocked(cause)
}

func (c *Client) scheduleReconnectLocked(cause error) {
	c.attempts++
	if c.attempts > c.conf.Reconnect.MaxAttempts {
		c.logger.Error().Int("max_attempts", c.conf.Reconnect.MaxAttempts).Msg("giving up reconnecting")
		c.setStatusLocked(ConnectionStatus{State: StateError, Err: ErrMaxReconnectAttempts})
		return
	}

	delay := c.backoff.Delay(c.attempts)
	c.logger.Info().
		Int("attempt", c.attempts).
		Dur("delay", delay).
		AnErr("cause", cause).
		Msg("scheduling reconnection")

	c.setStatusLocked(ConnectionStatus{State: StateReconnecting, Err: cause, ReconnectAttempt: c.attempts})

	c.reconnectSeq++
	seq := c.reconnectSeq
	c.reconnectTimer = c.newTimer(timerReconnect, delay, func() {
		c.mu.Lock()
		defer c.unlock()
		if c.reconnectSeq != seq || c.reconnectTimer == nil {
			return
		}
		c.reconnectTimer = nil
		c.connectLocked()
	})
}

func (c *Client) stopReconnectLocked() {
	c.reconnectSeq++
	stopTimer(&c.reconnectTimer)
}

// disconnectLocked detaches the current connection and returns it for
// closing outside the lock.
func (c *Client) disconnectLocked() *conn {
	c.stopReconnectLocked()

	cn := c.conn
	if cn != nil {
		c.releaseLocked(cn)
	}
	if c.Status().State != StateDisconnected {
		c.setStatusLocked(ConnectionStatus{State: StateDisconnected})
		c.logger.Info().Msg("disconnected")
	}
	return cn
}

// releaseLocked stops every timer of cn and detaches it. Pending callbacks
// of cn become no-ops.
func (c *Client) releaseLocked(cn *conn) {
	c.stopHeartbeatLocked(cn)
	stopTimer(&cn.timeout)
	if c.conn == cn {
		c.conn = nil
	}
}

// closeConn closes a detached connection. A socket with a write in flight is
// aborted, which unblocks the writer instead of waiting behind it.
func (c *Client) closeConn(cn *conn, reason string) {
	if cn == nil {
		return
	}
	if cn.sock != nil {
		var err error
		if cn.writing.Load() > 0 {
			err = cn.sock.Abort()
		} else {
			err = cn.sock.Close(reason)
		}
		if err != nil {
			c.logger.Debug().Err(err).Msg("close socket")
		}
	}
	cn.cancel()
}

// setStatusLocked replaces the status snapshot. LastConnectedAt carries over
// unless next sets it.
func (c *Client) setStatusLocked(next ConnectionStatus) {
	prev := c.status.Load()
	if next.LastConnectedAt.IsZero() {
		next.LastConnectedAt = prev.LastConnectedAt
	}
	c.status.Store(&next)

	c.logger.Debug().
		Stringer("from", prev.State).
		Stringer("to", next.State).
		Int("attempt", next.ReconnectAttempt).
		Msg("status changed")
	c.emitLocked(func() { c.events.DispatchStatus(next) })
}

func (c *Client) emitErrorLocked(err error) {
	c.emitLocked(func() { c.events.DispatchError(err) })
}

func (c *Client) emitLocked(fn func()) {
	c.pending = append(c.pending, fn)
}

// unlock releases mu and delivers the events queued while it was held.
// A nested call from a handler only queues, the outermost caller keeps
// delivering until nothing is pending, which keeps events in order.
func (c *Client) unlock() {
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for {
		events := c.pending
		c.pending = nil
		if len(events) == 0 {
			c.draining = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		for _, fn := range events {
			fn()
		}
		c.mu.Lock()
	}
}

func stopTimer(t *timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
