// Package realtime carries committed alert mutations to subscribers: an
// in-process change feed, a websocket hub for dashboards and an optional Redis
// relay that joins the feeds of several instances.
package realtime

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garnizeh/campuscare/internal/metrics"
	"github.com/garnizeh/campuscare/internal/models"
)

// Feed is an in-process publish/subscribe channel for alert change events.
// Delivery is best-effort: a subscriber whose buffer is full misses the event.
type Feed struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	seq    uint64
	sinks  []func(models.ChangeEvent)

	origin  string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewFeed creates a feed. origin tags locally published events so relays can
// tell them apart from events received from other instances.
func NewFeed(origin string, logger *slog.Logger, m *metrics.Metrics) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{subs: make(map[uint64]*Subscription), origin: origin, logger: logger, metrics: m}
}

// Origin returns the tag stamped on locally published events.
func (f *Feed) Origin() string { return f.origin }

// Subscription is a handle on a feed registration.
type Subscription struct {
	id      uint64
	ch      chan models.ChangeEvent
	feed    *Feed
	closed  bool
	dropped atomic.Uint64
}

// Subscribe registers a new subscriber with the given buffer size.
func (f *Feed) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s := &Subscription{id: f.nextID, ch: make(chan models.ChangeEvent, buffer), feed: f}
	f.subs[s.id] = s
	return s
}

// Events returns the delivery channel. It is closed by Close.
func (s *Subscription) Events() <-chan models.ChangeEvent { return s.ch }

// Dropped returns how many events this subscriber missed.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close stops delivery and closes the events channel. Safe to call twice.
func (s *Subscription) Close() {
	f := s.feed
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(f.subs, s.id)
	close(s.ch)
}

// OnPublish registers fn to observe every event published locally, after it has
// been fanned out. Used by the Redis relay.
func (f *Feed) OnPublish(fn func(models.ChangeEvent)) {
	f.mu.Lock()
	f.sinks = append(f.sinks, fn)
	f.mu.Unlock()
}

// Publish stamps ev with the next sequence number and delivers it to every
// subscriber without blocking. Events from one publisher reach each subscriber
// in publish order.
func (f *Feed) Publish(ev models.ChangeEvent) models.ChangeEvent {
	if ev.Origin == "" {
		ev.Origin = f.origin
	}
	return f.deliver(ev, ev.Origin == f.origin)
}

func (f *Feed) deliver(ev models.ChangeEvent, local bool) models.ChangeEvent {
	f.mu.Lock()
	f.seq++
	ev.Seq = f.seq
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	for _, s := range f.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
			f.metrics.FeedDropped()
			f.logger.Warn("feed subscriber full, event dropped", "sub", s.id, "alert_id", ev.AlertID(), "type", ev.Type)
		}
	}
	var sinks []func(models.ChangeEvent)
	if local {
		sinks = append(sinks, f.sinks...)
	}
	f.mu.Unlock()

	f.metrics.FeedPublished(string(ev.Type))
	for _, fn := range sinks {
		fn(ev)
	}
	return ev
}

// Subscribers returns the number of open subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
