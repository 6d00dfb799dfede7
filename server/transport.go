package server

import (
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mbocsi/telemux/proto"
)

type Transport interface {
	Start() error
	Shutdown() error
	Meta() TransportMetadata
	SetName(name string)
	SetDescription(description string)
}

// Ingress is a transport that produces decoded messages from the realtime node.
type Ingress interface {
	Transport
	OnMessage(func(proto.Message))
}

// Publisher is a transport that serves viewer clients. It seeds clients
// from the feed and streams live messages to them.
type Publisher interface {
	Transport
	SetFeed(Feed)
	OnConnect(func(Client) error)
	OnDisconnect(func(Client))
}

// Gateway is a publisher whose clients also send command frames, handed to
// OnCommand.
type Gateway interface {
	Publisher
	OnCommand(func(Client, []byte) error)
}

// Feed is the read side of the bridge as seen by a gateway.
type Feed interface {
	Snapshot() iter.Seq[proto.Message]
	Subscribe(id string) *Subscription
}

type TransportMetadata struct {
	ID          string
	Name        string // Human-friendly name, e.g., "UDP ingest", "WebSocket Gateway"
	Protocol    string // Protocol name, e.g., "udp", "websocket"
	Address     string // Bind or destination address
	Description string // Optional, short purpose/use case

	Clients    map[string]Client // Current active clients
	MaxClients int               // Max allowed clients (if applicable, else 0)
	Connected  bool              // Whether the transport is currently running/bound
}

type ClientMetadata struct {
	Id          string
	Name        string
	RemoteAddr  string
	ConnectedAt time.Time
	Transport   Transport

	FramesSent     atomic.Uint64
	FramesReceived atomic.Uint64
	Mu             sync.RWMutex
}

type Client interface {
	Send(proto.Message) error
	Meta() *ClientMetadata
}

func generateClientId(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
