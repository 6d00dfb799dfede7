package server

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mbocsi/telemux/proto"
)

// MockClient implements Client for registry and coordinator tests
type MockClient struct {
	metadata *ClientMetadata
	mu       sync.Mutex
	messages []proto.Message
}

func NewMockClient(id string) *MockClient {
	return &MockClient{metadata: &ClientMetadata{Id: id, Name: "Viewer " + id, ConnectedAt: time.Now()}}
}

func (mc *MockClient) Send(msg proto.Message) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.messages = append(mc.messages, msg)
	return nil
}

func (mc *MockClient) Meta() *ClientMetadata {
	return mc.metadata
}

func TestClientRegistry_StoreGetDelete(t *testing.T) {
	registry := NewClientRegistry()
	client := NewMockClient("ws-1")

	registry.Store(client)
	stored, ok := registry.Get("ws-1")
	if !ok {
		t.Fatal("Expected client to be stored")
	}
	if stored != client {
		t.Error("Expected stored client to match original")
	}

	registry.Delete("ws-1")
	if _, ok := registry.Get("ws-1"); ok {
		t.Error("Expected client to be deleted")
	}
	registry.Delete("missing")
}

func TestClientRegistry_ListByConnectTime(t *testing.T) {
	registry := NewClientRegistry()
	base := time.Now()
	for i := 3; i >= 1; i-- {
		client := NewMockClient(fmt.Sprintf("ws-%d", i))
		client.metadata.ConnectedAt = base.Add(time.Duration(i) * time.Second)
		registry.Store(client)
	}

	clients := registry.List()
	if len(clients) != 3 {
		t.Fatalf("Expected 3 clients, got %d", len(clients))
	}
	for i, client := range clients {
		want := fmt.Sprintf("ws-%d", i+1)
		if client.Meta().Id != want {
			t.Errorf("Expected %s at %d, got %s", want, i, client.Meta().Id)
		}
	}
}

func TestClientRegistry_Concurrent(t *testing.T) {
	registry := NewClientRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("ws-%d", i)
			registry.Store(NewMockClient(id))
			registry.Get(id)
			registry.List()
		}(i)
	}
	wg.Wait()

	if registry.Len() != 50 {
		t.Errorf("Expected 50 clients, got %d", registry.Len())
	}
}
