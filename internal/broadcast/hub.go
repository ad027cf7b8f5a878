// Package broadcast fans out published records to every live context on a named channel.
// Delivery is best effort: a context that is not listening, or not keeping up, misses
// the message and catches up through storage on its next reconciliation.
package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/rpggio/rollcall/internal/metrics"
)

const defaultBuffer = 16

// Handler receives records from a channel. It must reconcile rather than apply blindly;
// ordering across publishers is not guaranteed.
type Handler func(rec stats.Record)

// Subscription is released with Close.
type Subscription interface {
	Close() error
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

// WithMetrics records drops and subscriber counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// Hub is an in-process channel. Websocket peers join it through ServeWS.
type Hub struct {
	name    string
	origin  string
	buffer  int
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

// NewHub creates a hub for the named channel.
func NewHub(name string, opts ...Option) *Hub {
	if name == "" {
		name = DefaultChannel
	}
	h := &Hub{
		name:   name,
		origin: uuid.NewString(),
		buffer: defaultBuffer,
		subs:   make(map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.New(slog.DiscardHandler)
	}
	return h
}

// Name returns the channel name.
func (h *Hub) Name() string { return h.name }

// Subscribers returns the number of local subscribers and websocket peers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish sends rec to every subscriber without waiting for delivery.
func (h *Hub) Publish(ctx context.Context, rec stats.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := NewUpdate(h.origin, rec)
	if err != nil {
		return err
	}
	return h.deliver(msg)
}

// Subscribe registers handler for every valid STATS_UPDATE on the channel.
func (h *Hub) Subscribe(handler Handler) (Subscription, error) {
	return h.subscribe(uuid.NewString(), func(msg Message) {
		rec, err := msg.Record()
		if err != nil {
			h.logger.Debug("ignoring broadcast message", "channel", h.name, "type", msg.Type, "error", err)
			return
		}
		handler(rec)
	})
}

// Close tears down every subscription. Further publishes fail with ErrClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	return nil
}

// deliver queues msg for every subscriber except the one it came from.
func (h *Hub) deliver(msg Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	for s := range h.subs {
		if s.id == msg.Origin {
			continue
		}
		select {
		case s.ch <- msg:
		default:
			h.metrics.BroadcastDropped()
			h.logger.Warn("broadcast subscriber lagging, message dropped", "channel", h.name, "subscriber", s.id)
		}
	}
	return nil
}

func (h *Hub) subscribe(id string, fn func(Message)) (*subscriber, error) {
	s := &subscriber{
		id:   id,
		hub:  h,
		ch:   make(chan Message, h.buffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	h.metrics.SubscriberAdded()

	go func() {
		defer close(s.done)
		for msg := range s.ch {
			fn(msg)
		}
	}()
	return s, nil
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	h.metrics.SubscriberRemoved()
}

type subscriber struct {
	id   string
	hub  *Hub
	ch   chan Message
	done chan struct{}
	once sync.Once
}

// Close unregisters the subscriber and stops its delivery goroutine once the queue drains.
func (s *subscriber) Close() error {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.ch)
	})
	return nil
}
