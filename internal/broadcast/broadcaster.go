// Package broadcast fans events out to in-process subscribers.
//
// Delivery is synchronous and at-most-once. Every subscriber first
// receives a snapshot of the current state and then every event published
// after it, with no gap and no duplicate between the two.
package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handler receives events. It runs on the publisher's goroutine while the
// broadcaster's ordering lock is held, so it must return quickly and must
// not call back into the same Broadcaster.
type Handler[E any] func(E)

// Broadcaster delivers events of type E to every registered handler.
type Broadcaster[E any] struct {
	mu       sync.Mutex
	subs     map[uint64]Handler[E]
	nextID   uint64
	snapshot func() E
	logger   *slog.Logger

	published atomic.Int64
	panicked  atomic.Int64
}

// Option configures a Broadcaster.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used to report handler panics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a broadcaster. snapshot is called on every Subscribe to
// produce the baseline event for the new handler; it may be nil.
func New[E any](snapshot func() E, opts ...Option) *Broadcaster[E] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Broadcaster[E]{
		subs:     make(map[uint64]Handler[E]),
		snapshot: snapshot,
		logger:   o.logger,
	}
}

// Subscribe registers h and returns a function that removes it. The
// disposer may be called more than once.
func (b *Broadcaster[E]) Subscribe(h Handler[E]) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.snapshot != nil {
		b.deliver(id, h, b.snapshot())
	}
	b.subs[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers e to all current subscribers.
func (b *Broadcaster[E]) Publish(e E) {
	b.Atomically(func(publish func(E)) { publish(e) })
}

// Atomically runs fn while holding the ordering lock. Events passed to
// publish are delivered immediately, and no Subscribe can take its
// snapshot between a state change made inside fn and the delivery of the
// events describing it.
func (b *Broadcaster[E]) Atomically(fn func(publish func(E))) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.fanOut)
}

func (b *Broadcaster[E]) fanOut(e E) {
	b.published.Add(1)
	for id, h := range b.subs {
		b.deliver(id, h, e)
	}
}

func (b *Broadcaster[E]) deliver(id uint64, h Handler[E], e E) {
	defer func() {
		if r := recover(); r != nil {
			b.panicked.Add(1)
			b.logger.Error("broadcast handler panicked", "subscriber", id, "panic", r)
		}
	}()
	h(e)
}

// Stats describes broadcaster activity.
type Stats struct {
	Subscribers int   `json:"subscribers"`
	Published   int64 `json:"published"`
	Panicked    int64 `json:"panicked"`
}

func (b *Broadcaster[E]) Stats() Stats {
	b.mu.Lock()
	n := len(b.subs)
	b.mu.Unlock()
	return Stats{
		Subscribers: n,
		Published:   b.published.Load(),
		Panicked:    b.panicked.Load(),
	}
}
