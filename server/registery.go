package server

import (
	"sort"
	"sync"
)

// ClientRegistry tracks the viewer clients currently attached to any gateway.
type ClientRegistry struct {
	mu    sync.RWMutex
	store map[string]Client
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{store: make(map[string]Client)}
}

func (r *ClientRegistry) Store(client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[client.Meta().Id] = client
}

func (r *ClientRegistry) Get(id string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	val, ok := r.store[id]
	return val, ok
}

func (r *ClientRegistry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.store, id)
}

func (r *ClientRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.store)
}

// List returns the clients ordered by connection time.
func (r *ClientRegistry) List() []Client {
	r.mu.RLock()
	clients := make([]Client, 0, len(r.store))
	for _, client := range r.store {
		clients = append(clients, client)
	}
	r.mu.RUnlock()

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].Meta().ConnectedAt.Before(clients[j].Meta().ConnectedAt)
	})
	return clients
}
