package server

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mbocsi/telemux/proto"
)

var ErrSubscriptionClosed = errors.New("subscription closed")

// Broker fans every published message out to all subscriptions. Each
// subscription owns a bounded queue; when a slow subscriber's queue is full
// the oldest entry is dropped so Publish never blocks.
type Broker struct {
	capacity int

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

type SubscriberStats struct {
	ID        string `json:"id"`
	Queued    int    `json:"queued"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

type BrokerStats struct {
	Capacity    int               `json:"capacity"`
	Published   uint64            `json:"published"`
	Delivered   uint64            `json:"delivered"`
	Dropped     uint64            `json:"dropped"`
	Subscribers []SubscriberStats `json:"subscribers"`
}

func NewBroker(capacity int) *Broker {
	if capacity < 1 {
		capacity = 1
	}
	return &Broker{
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
}

func (b *Broker) Capacity() int {
	return b.capacity
}

// Subscribe registers a new empty queue. Messages published before the call
// are not replayed. Subscribing to a closed broker returns a closed
// subscription.
func (b *Broker) Subscribe(id string) *Subscription {
	sub := &Subscription{
		id:     id,
		broker: b,
		ring:   make([]proto.Message, b.capacity),
		notify: make(chan struct{}, 1),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		return sub
	}
	b.subs[sub] = struct{}{}
	slog.Debug("Subscribed to broadcast bus", "subscriber", id, "subscribers", len(b.subs))
	return sub
}

// Publish enqueues msg on every live subscription and returns how many
// queued messages were dropped to make room.
func (b *Broker) Publish(msg proto.Message) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.published.Add(1)
	drops := 0
	for sub := range b.subs {
		if sub.push(msg) {
			drops++
		}
	}
	if drops > 0 {
		b.dropped.Add(uint64(drops))
		slog.Debug("Dropped oldest messages for lagging subscribers", "kind", msg.Kind(), "dropped", drops)
	}
	return drops
}

func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broker) Stats() BrokerStats {
	b.mu.RLock()
	subs := make([]SubscriberStats, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, SubscriberStats{
			ID:        sub.id,
			Queued:    sub.Len(),
			Delivered: sub.delivered.Load(),
			Dropped:   sub.dropped.Load(),
		})
	}
	b.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return BrokerStats{
		Capacity:    b.capacity,
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Dropped:     b.dropped.Load(),
		Subscribers: subs,
	}
}

// Close closes every subscription and refuses new ones.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for sub := range subs {
		sub.shut()
	}
	slog.Debug("Broadcast bus closed", "subscribers", len(subs))
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}

// Subscription is one consumer's view of the bus.
type Subscription struct {
	id     string
	broker *Broker

	mu     sync.Mutex
	ring   []proto.Message
	head   int
	size   int
	closed bool
	notify chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func (s *Subscription) ID() string {
	return s.id
}

// Dropped reports how many messages were discarded because this subscriber
// fell behind.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *Subscription) push(msg proto.Message) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	dropped := false
	if s.size == len(s.ring) {
		s.ring[s.head] = nil
		s.head = (s.head + 1) % len(s.ring)
		s.size--
		dropped = true
		s.dropped.Add(1)
	}
	s.ring[(s.head+s.size)%len(s.ring)] = msg
	s.size++
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return dropped
}

// Receive returns the oldest queued message, waiting until one is published,
// the subscription is closed, or ctx is done.
func (s *Subscription) Receive(ctx context.Context) (proto.Message, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrSubscriptionClosed
		}
		if s.size > 0 {
			msg := s.ring[s.head]
			s.ring[s.head] = nil
			s.head = (s.head + 1) % len(s.ring)
			s.size--
			s.mu.Unlock()

			s.delivered.Add(1)
			s.broker.delivered.Add(1)
			return msg, nil
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close unsubscribes from the bus. It is safe to call more than once.
func (s *Subscription) Close() {
	s.broker.remove(s)
	s.shut()
}

func (s *Subscription) shut() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for i := range s.ring {
		s.ring[i] = nil
	}
	s.size = 0
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}
