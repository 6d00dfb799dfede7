package server

import (
	"iter"
	"sync"

	"github.com/mbocsi/telemux/proto"
)

// LatestCache keeps the most recent message of every kind. It is written by
// the ingest path only and read when a client connects.
type LatestCache struct {
	mu    sync.RWMutex
	store map[proto.Kind]proto.Message
}

func NewLatestCache() *LatestCache {
	return &LatestCache{store: make(map[proto.Kind]proto.Message)}
}

// Store replaces the cached message of msg's kind. Last write wins.
func (c *LatestCache) Store(msg proto.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[msg.Kind()] = msg
}

func (c *LatestCache) Get(kind proto.Kind) (proto.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msg, ok := c.store[kind]
	return msg, ok
}

func (c *LatestCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// All yields the cached messages in kind tag order. Each kind is read as it
// is reached, so a concurrent Store may or may not be observed. The sequence
// can be ranged over any number of times.
func (c *LatestCache) All() iter.Seq[proto.Message] {
	return func(yield func(proto.Message) bool) {
		for _, kind := range proto.Kinds() {
			msg, ok := c.Get(kind)
			if !ok {
				continue
			}
			if !yield(msg) {
				return
			}
		}
	}
}

func (c *LatestCache) List() []proto.Message {
	msgs := make([]proto.Message, 0, len(proto.Kinds()))
	for msg := range c.All() {
		msgs = append(msgs, msg)
	}
	return msgs
}
