package client

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Mmx233/QLink/protocol"
	"github.com/rs/zerolog"
)

type (
	MessageHandler func(msg protocol.ServerMessage)
	ErrorHandler   func(err error)
	StatusHandler  func(status ConnectionStatus)
)

// subscription is a registered handler. active is cleared on unsubscribe so
// a dispatch already iterating a snapshot skips it.
type subscription[T any] struct {
	id      uint64
	handler T
	active  atomic.Bool
}

// registry keeps handlers of one event kind keyed by subscription id.
type registry[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscription[T]
}

func (r *registry[T]) add(handler T) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.subs == nil {
		r.subs = make(map[uint64]*subscription[T])
	}
	r.nextID++
	sub := &subscription[T]{id: r.nextID, handler: handler}
	sub.active.Store(true)
	r.subs[sub.id] = sub

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		sub.active.Store(false)
		delete(r.subs, sub.id)
	}
}

// snapshot returns the current subscriptions in registration order.
func (r *registry[T]) snapshot() []*subscription[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := make([]*subscription[T], 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	slices.SortFunc(subs, func(a, b *subscription[T]) int {
		return cmp.Compare(a.id, b.id)
	})
	return subs
}

func (r *registry[T]) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		sub.active.Store(false)
	}
	r.subs = nil
}

func (r *registry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Dispatcher fans events out to subscribers. Handlers run synchronously on
// the dispatching goroutine; a panicking handler is logged and skipped.
type Dispatcher struct {
	logger   zerolog.Logger
	messages registry[MessageHandler]
	errors   registry[ErrorHandler]
	statuses registry[StatusHandler]
}

func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

// OnMessage registers h and returns an idempotent unsubscribe function.
// Subscriptions are keyed by registration, not by handler: registering the
// same function twice delivers each event to it twice, and each returned
// function removes only its own registration. The same holds for OnError
// and OnStatusChange.
func (d *Dispatcher) OnMessage(h MessageHandler) func() { return d.messages.add(h) }
func (d *Dispatcher) OnError(h ErrorHandler) func()     { return d.errors.add(h) }
func (d *Dispatcher) OnStatusChange(h StatusHandler) func() {
	return d.statuses.add(h)
}

func (d *Dispatcher) DispatchMessage(msg protocol.ServerMessage) {
	for _, sub := range d.messages.snapshot() {
		if sub.active.Load() {
			d.call("message", func() { sub.handler(msg) })
		}
	}
}

func (d *Dispatcher) DispatchError(err error) {
	for _, sub := range d.errors.snapshot() {
		if sub.active.Load() {
			d.call("error", func() { sub.handler(err) })
		}
	}
}

func (d *Dispatcher) DispatchStatus(status ConnectionStatus) {
	for _, sub := range d.statuses.snapshot() {
		if sub.active.Load() {
			d.call("status", func() { sub.handler(status) })
		}
	}
}

// Clear removes every subscription.
func (d *Dispatcher) Clear() {
	d.messages.clear()
	d.errors.clear()
	d.statuses.clear()
}

// Len returns the total number of subscriptions.
func (d *Dispatcher) Len() int {
	return d.messages.len() + d.errors.len() + d.statuses.len()
}

func (d *Dispatcher) call(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("event", event).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()
	fn()
}
