package client

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Mmx233/QLink/config"
	"github.com/Mmx233/QLink/protocol"
	"github.com/Mmx233/QLink/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var errRefused = errors.New("connection refused")

// mockSocket is an in-memory transport.Socket.
type mockSocket struct {
	mu        sync.Mutex
	sent      [][]byte
	sendErr   error
	stallType string
	stalled   chan struct{}

	incoming  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	aborted   atomic.Bool
	graceful  atomic.Bool
}

func newMockSocket() *mockSocket {
	return &mockSocket{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
		stalled:  make(chan struct{}, 1),
	}
}

func (m *mockSocket) Send(_ context.Context, data []byte) error {
	select {
	case <-m.closed:
		return transport.ErrClosed
	default:
	}
	m.mu.Lock()
	stall := m.stallType != "" && frameType(data) == m.stallType
	m.mu.Unlock()
	if stall {
		// Blocks like a write to a peer that stopped reading
		select {
		case m.stalled <- struct{}{}:
		default:
		}
		<-m.closed
		return transport.ErrClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, append([]byte(nil), data...))
	return nil
}

// StallOn makes writes of frames of type typ block until the socket closes.
func (m *mockSocket) StallOn(typ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stallType = typ
}

func frameType(data []byte) string {
	msg, err := protocol.ParseServerMessage(data)
	if err != nil {
		return ""
	}
	return msg.Type
}

func (m *mockSocket) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-m.incoming:
		return data, nil
	case <-m.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *mockSocket) Close(string) error {
	m.graceful.Store(true)
	m.drop()
	return nil
}

func (m *mockSocket) Abort() error {
	m.aborted.Store(true)
	m.drop()
	return nil
}

// drop simulates the peer going away.
func (m *mockSocket) drop() {
	m.closeOnce.Do(func() { close(m.closed) })
}

func (m *mockSocket) deliver(frame string) {
	m.incoming <- []byte(frame)
}

func (m *mockSocket) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SentTypes returns the type of every frame written so far.
func (m *mockSocket) SentTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.sent))
	for _, frame := range m.sent {
		msg, err := protocol.ParseServerMessage(frame)
		if err != nil {
			types = append(types, "<invalid>")
			continue
		}
		types = append(types, msg.Type)
	}
	return types
}

func (m *mockSocket) SentFrames() []protocol.ServerMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	frames := make([]protocol.ServerMessage, 0, len(m.sent))
	for _, frame := range m.sent {
		msg, _ := protocol.ParseServerMessage(frame)
		frames = append(frames, msg)
	}
	return frames
}

func (m *mockSocket) IsClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// mockDialer hands out scripted dial results in order. Once the script is
// exhausted every dial succeeds with a fresh socket.
type mockDialer struct {
	mu      sync.Mutex
	script  []error
	block   bool          // Dial waits for ctx cancellation
	hold    chan struct{} // Dial waits for close, ignoring ctx
	targets []string
	sockets []*mockSocket
}

func (d *mockDialer) Dial(ctx context.Context, target string) (transport.Socket, error) {
	d.mu.Lock()
	d.targets = append(d.targets, target)
	block, hold := d.block, d.hold
	var err error
	if len(d.script) > 0 {
		err = d.script[0]
		d.script = d.script[1:]
	}
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if hold != nil {
		<-hold
	}
	if err != nil {
		return nil, err
	}

	sock := newMockSocket()
	d.mu.Lock()
	d.sockets = append(d.sockets, sock)
	d.mu.Unlock()
	return sock, nil
}

func (d *mockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.targets)
}

func (d *mockDialer) Targets() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.targets...)
}

// Socket returns the i-th successfully opened socket.
func (d *mockDialer) Socket(i int) *mockSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.sockets) {
		return nil
	}
	return d.sockets[i]
}

// mockTimer records a scheduled callback. Tests fire it explicitly.
type mockTimer struct {
	kind    timerKind
	d       time.Duration
	f       func()
	stopped atomic.Bool
}

func (t *mockTimer) Stop() bool {
	return !t.stopped.Swap(true)
}

// Fire runs the callback unless the timer was stopped.
func (t *mockTimer) Fire() {
	if t.stopped.Load() {
		return
	}
	t.f()
}

type mockTimers struct {
	mu     sync.Mutex
	timers []*mockTimer
}

func (m *mockTimers) newTimer(kind timerKind, d time.Duration, f func()) timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTimer{kind: kind, d: d, f: f}
	m.timers = append(m.timers, t)
	return t
}

func (m *mockTimers) ofKind(kind timerKind) []*mockTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*mockTimer
	for _, t := range m.timers {
		if t.kind == kind {
			out = append(out, t)
		}
	}
	return out
}

func (m *mockTimers) Count(kind timerKind) int {
	return len(m.ofKind(kind))
}

func (m *mockTimers) Last(kind timerKind) *mockTimer {
	timers := m.ofKind(kind)
	if len(timers) == 0 {
		return nil
	}
	return timers[len(timers)-1]
}

func (m *mockTimers) Durations(kind timerKind) []time.Duration {
	var out []time.Duration
	for _, t := range m.ofKind(kind) {
		out = append(out, t.d)
	}
	return out
}

// recorder collects events delivered to the subscribe API.
type recorder struct {
	mu       sync.Mutex
	statuses []ConnectionStatus
	errs     []error
	messages []protocol.ServerMessage
}

func record(c *Client) *recorder {
	r := &recorder{}
	c.OnStatusChange(func(s ConnectionStatus) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.statuses = append(r.statuses, s)
	})
	c.OnError(func(err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.errs = append(r.errs, err)
	})
	c.OnMessage(func(msg protocol.ServerMessage) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.messages = append(r.messages, msg)
	})
	return r
}

func (r *recorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]State, len(r.statuses))
	for i, s := range r.statuses {
		states[i] = s.State
	}
	return states
}

// WaitStates waits until exactly want has been delivered.
func (r *recorder) WaitStates(t *testing.T, want ...State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return slices.Equal(r.States(), want)
	}, 2*time.Second, 5*time.Millisecond, "expected states %v", want)
}

// WaitStatus waits until the last delivered status satisfies fn.
func (r *recorder) WaitStatus(t *testing.T, fn func(ConnectionStatus) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		statuses := r.Statuses()
		return len(statuses) > 0 && fn(statuses[len(statuses)-1])
	}, 2*time.Second, 5*time.Millisecond)
}

func (r *recorder) Statuses() []ConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ConnectionStatus(nil), r.statuses...)
}

func (r *recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) Messages() []protocol.ServerMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.ServerMessage(nil), r.messages...)
}

func testConfig() *config.Client {
	return &config.Client{
		SessionID: "session-1",
		Server:    config.Server{URL: "ws://backend.test/ws"},
		Reconnect: config.Reconnect{
			MaxAttempts:       5,
			InitialDelay:      time.Second,
			MaxDelay:          30 * time.Second,
			BackoffMultiplier: 2,
		},
		Heartbeat: config.Heartbeat{
			Interval: 30 * time.Second,
			Timeout:  10 * time.Second,
		},
		MessageQueue: config.MessageQueue{MaxSize: 100},
	}
}

// newTestClient builds a Client on mock transport and timers. The client is
// destroyed when the test ends.
func newTestClient(t *testing.T, conf *config.Client, dialer *mockDialer, opts ...Option) (*Client, *mockTimers) {
	t.Helper()

	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	c, err := New(conf, dialer, opts...)
	require.NoError(t, err)

	timers := &mockTimers{}
	c.newTimer = timers.newTimer
	t.Cleanup(c.Destroy)
	return c, timers
}

func waitForState(t *testing.T, c *Client, state State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Status().State == state
	}, 2*time.Second, 5*time.Millisecond, "expected state %s, got %s", state, c.Status().State)
}
