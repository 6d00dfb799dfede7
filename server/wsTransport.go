package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbocsi/telemux/metrics"
	"github.com/mbocsi/telemux/proto"
	"golang.org/x/sync/errgroup"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Viewers are served from any origin
	},
}

var errSessionClosed = errors.New("session closed by peer")

// WSTransport is the connection bridge. It is an http.Handler mounted by the
// web router; every upgraded connection is seeded from the feed and then
// relays live messages out and command frames in until either side stops.
type WSTransport struct {
	Addr         string
	feed         Feed
	onConnect    func(Client) error
	onDisconnect func(Client)
	onCommand    func(Client, []byte) error
	metrics      *metrics.Metrics

	name        string
	description string
	clients     map[string]*WSClient
	cmu         sync.RWMutex

	maxClients   int
	writeTimeout time.Duration
	idleTimeout  time.Duration
	pingInterval time.Duration
	connected    bool
}

func NewWSTransport(addr string) *WSTransport {
	return &WSTransport{
		Addr:         addr,
		maxClients:   64,
		writeTimeout: 5 * time.Second,
		idleTimeout:  60 * time.Second,
		pingInterval: 25 * time.Second,
		clients:      make(map[string]*WSClient),
	}
}

// Start checks that the coordinator wired the transport. Connections are
// accepted through ServeHTTP once it returns.
func (t *WSTransport) Start() error {
	if t.onConnect == nil || t.onDisconnect == nil || t.onCommand == nil || t.feed == nil {
		return fmt.Errorf("The OnConnect, OnDisconnect, OnCommand or feed is not defined. This transport is likely being called outside of the server coordinator.")
	}
	t.cmu.Lock()
	t.connected = true
	t.cmu.Unlock()
	slog.Info("WebSocket bridge accepting connections", "addr", t.Addr, "max_clients", t.maxClients, "idle_timeout", t.idleTimeout)
	return nil
}

func (t *WSTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.cmu.RLock()
	running := t.connected
	t.cmu.RUnlock()
	if !running {
		http.Error(w, "bridge not running", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(proto.MaxFrameSize)

	client := NewWSClient(conn, t)
	if !t.admit(client) {
		slog.Warn("Max clients reached, rejecting connection", "remote_addr", r.RemoteAddr)
		t.metrics.RecordClientRefused()
		client.close(websocket.ClosePolicyViolation, "too many clients")
		return
	}

	t.handleConnection(client)
}

func (t *WSTransport) admit(client *WSClient) bool {
	t.cmu.Lock()
	defer t.cmu.Unlock()
	if !t.connected || (t.maxClients > 0 && len(t.clients) >= t.maxClients) {
		return false
	}
	t.clients[client.Id] = client
	return true
}

func (t *WSTransport) handleConnection(client *WSClient) {
	slog.Info("WebSocket client connected", "addr", client.RemoteAddr, "id", client.Id)

	defer func() {
		t.cmu.Lock()
		delete(t.clients, client.Id)
		t.cmu.Unlock()

		client.close(websocket.CloseNormalClosure, "")
		slog.Info("WebSocket client disconnected", "addr", client.RemoteAddr, "id", client.Id,
			"frames_sent", client.FramesSent.Load(), "frames_received", client.FramesReceived.Load())
	}()

	if err := t.onConnect(client); err != nil {
		slog.Error("Failed to register WebSocket client", "addr", client.RemoteAddr, "error", err.Error())
		return
	}
	defer t.onDisconnect(client)

	// Subscribe before reading the snapshot so nothing published in between
	// is missed. A seeded message may therefore arrive twice.
	sub := t.feed.Subscribe(client.Id)
	defer sub.Close()

	seeded := 0
	for msg := range t.feed.Snapshot() {
		if err := client.send(msg, true); err != nil {
			if errors.Is(err, proto.ErrEncode) {
				slog.Warn("Skipping unencodable cached message", "id", client.Id, "kind", msg.Kind(), "error", err)
				t.metrics.RecordEncodeError()
				continue
			}
			slog.Warn("Failed to seed WebSocket client", "id", client.Id, "error", err)
			return
		}
		seeded++
	}
	slog.Debug("Seeded WebSocket client", "id", client.Id, "kinds", seeded)

	err := t.relay(client, sub)
	switch {
	case err == nil, errors.Is(err, errSessionClosed), errors.Is(err, ErrSubscriptionClosed):
	case errors.Is(err, ErrEgressQueueFull):
		slog.Warn("Ending WebSocket session, egress queue full", "id", client.Id)
	default:
		slog.Warn("WebSocket session ended", "id", client.Id, "error", err)
	}
}

// relay runs the outbound and inbound halves of a session in one
// cancellation scope. Whichever half finishes first cancels the other.
func (t *WSTransport) relay(client *WSClient, sub *Subscription) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return t.outbound(ctx, client, sub)
	})
	g.Go(func() error {
		defer cancel()
		return t.inbound(ctx, client)
	})
	if t.idleTimeout > 0 && t.pingInterval > 0 {
		g.Go(func() error {
			return t.keepalive(ctx, client)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		client.close(websocket.CloseNormalClosure, "")
		return nil
	})

	return g.Wait()
}

func (t *WSTransport) outbound(ctx context.Context, client *WSClient, sub *Subscription) error {
	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := client.Send(msg); err != nil {
			if errors.Is(err, proto.ErrEncode) {
				slog.Warn("Skipping unencodable message", "id", client.Id, "kind", msg.Kind(), "error", err)
				t.metrics.RecordEncodeError()
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (t *WSTransport) inbound(ctx context.Context, client *WSClient) error {
	conn := client.conn
	extend := func() {
		if t.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(t.idleTimeout))
		}
	}
	extend()
	conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					slog.Warn("WebSocket connection error", "id", client.Id, "error", err)
				}
				return errSessionClosed
			}
			return err
		}
		extend()

		switch messageType {
		case websocket.BinaryMessage:
			client.FramesReceived.Add(1)
			if err := t.onCommand(client, data); err != nil {
				if errors.Is(err, ErrEgressQueueFull) {
					client.close(websocket.CloseTryAgainLater, "egress queue full")
				}
				return err
			}
		default:
			slog.Debug("Ignoring non-binary WebSocket frame", "id", client.Id, "type", messageType, "size", len(data))
		}
	}
}

func (t *WSTransport) keepalive(ctx context.Context, client *WSClient) error {
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := client.ping(); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("ping %s: %w", client.Id, err)
			}
		}
	}
}

// Shutdown stops accepting connections and closes every live session.
func (t *WSTransport) Shutdown() error {
	slog.Info("Shutting down WebSocket bridge", "addr", t.Addr)
	t.cmu.Lock()
	t.connected = false
	clients := make([]*WSClient, 0, len(t.clients))
	for _, client := range t.clients {
		clients = append(clients, client)
	}
	t.cmu.Unlock()

	for _, client := range clients {
		client.close(websocket.CloseGoingAway, "server shutting down")
	}
	return nil
}

func (t *WSTransport) SetFeed(feed Feed) {
	t.feed = feed
}

func (t *WSTransport) SetMetrics(m *metrics.Metrics) {
	t.metrics = m
}

func (t *WSTransport) OnConnect(fn func(Client) error) {
	t.onConnect = fn
}

func (t *WSTransport) OnDisconnect(fn func(Client)) {
	t.onDisconnect = fn
}

func (t *WSTransport) OnCommand(fn func(Client, []byte) error) {
	t.onCommand = fn
}

func (t *WSTransport) Meta() TransportMetadata {
	t.cmu.RLock()
	defer t.cmu.RUnlock()
	clients := make(map[string]Client, len(t.clients))
	for id, client := range t.clients {
		clients[id] = client
	}
	return TransportMetadata{
		ID:          "ws-" + t.Addr,
		Name:        t.name,
		Description: t.description,
		Protocol:    "websocket",
		Address:     t.Addr,
		Clients:     clients,
		MaxClients:  t.maxClients,
		Connected:   t.connected,
	}
}

func (t *WSTransport) SetName(name string) {
	t.name = name
}

func (t *WSTransport) SetMaxClients(n int) {
	t.maxClients = n
}

// SetTimeouts configures the write deadline and idle policy. An idle timeout
// of zero disables both the read deadline and pings.
func (t *WSTransport) SetTimeouts(write, idle, ping time.Duration) {
	t.writeTimeout = write
	t.idleTimeout = idle
	t.pingInterval = ping
}

func (t *WSTransport) SetDescription(description string) {
	t.description = description
}
