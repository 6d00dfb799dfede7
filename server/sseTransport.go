package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mbocsi/telemux/metrics"
	"github.com/mbocsi/telemux/proto"
	"golang.org/x/sync/errgroup"
)

// SSETransport serves the feed as Server-Sent Events for consumers that
// cannot speak the binary frame protocol. It is read only: SSE clients have
// no command path.
type SSETransport struct {
	Addr         string
	feed         Feed
	onConnect    func(Client) error
	onDisconnect func(Client)
	metrics      *metrics.Metrics

	name        string
	description string
	clients     map[string]*SSEClient
	cancels     map[string]context.CancelFunc
	cmu         sync.RWMutex

	maxClients   int
	writeTimeout time.Duration
	keepalive    time.Duration
	connected    bool
}

func NewSSETransport(addr string) *SSETransport {
	return &SSETransport{
		Addr:         addr,
		maxClients:   64,
		writeTimeout: 5 * time.Second,
		keepalive:    15 * time.Second,
		clients:      make(map[string]*SSEClient),
		cancels:      make(map[string]context.CancelFunc),
	}
}

func (t *SSETransport) Start() error {
	if t.onConnect == nil || t.onDisconnect == nil || t.feed == nil {
		return fmt.Errorf("The OnConnect, OnDisconnect or feed is not defined. This transport is likely being called outside of the server coordinator.")
	}
	t.cmu.Lock()
	t.connected = true
	maxClients := t.maxClients
	t.cmu.Unlock()
	slog.Info("SSE stream accepting connections", "addr", t.Addr, "max_clients", maxClients)
	return nil
}

// ParseKinds reads a comma separated kind filter such as
// "SensorBatch,Heartbeat". An empty string selects every kind.
func ParseKinds(s string) (map[proto.Kind]bool, error) {
	kinds := make(map[proto.Kind]bool)
	for _, name := range strings.Split(s, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		k, err := proto.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds[k] = true
	}
	return kinds, nil
}

func (t *SSETransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.cmu.RLock()
	running := t.connected
	t.cmu.RUnlock()
	if !running {
		http.Error(w, "bridge not running", http.StatusServiceUnavailable)
		return
	}

	kinds, err := ParseKinds(r.URL.Query().Get("kinds"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	client, err := NewSSEClient(w, r, kinds, t)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if !t.admit(client, cancel) {
		slog.Warn("Max clients reached, rejecting SSE stream", "remote_addr", r.RemoteAddr)
		t.metrics.RecordClientRefused()
		http.Error(w, "too many clients", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	client.flusher.Flush()

	t.handleStream(ctx, client)
}

func (t *SSETransport) admit(client *SSEClient, cancel context.CancelFunc) bool {
	t.cmu.Lock()
	defer t.cmu.Unlock()
	if !t.connected || (t.maxClients > 0 && len(t.clients) >= t.maxClients) {
		return false
	}
	t.clients[client.Id] = client
	t.cancels[client.Id] = cancel
	return true
}

func (t *SSETransport) handleStream(ctx context.Context, client *SSEClient) {
	slog.Info("SSE client connected", "addr", client.RemoteAddr, "id", client.Id)

	defer func() {
		t.cmu.Lock()
		delete(t.clients, client.Id)
		delete(t.cancels, client.Id)
		t.cmu.Unlock()
		slog.Info("SSE client disconnected", "addr", client.RemoteAddr, "id", client.Id, "events_sent", client.FramesSent.Load())
	}()

	if err := t.onConnect(client); err != nil {
		slog.Error("Failed to register SSE client", "addr", client.RemoteAddr, "error", err.Error())
		return
	}
	defer t.onDisconnect(client)

	sub := t.feed.Subscribe(client.Id)
	defer sub.Close()

	for msg := range t.feed.Snapshot() {
		if err := client.send(msg, true); err != nil {
			if errors.Is(err, proto.ErrEncode) {
				t.metrics.RecordEncodeError()
				continue
			}
			slog.Warn("Failed to seed SSE client", "id", client.Id, "error", err)
			return
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			msg, err := sub.Receive(gctx)
			if err != nil {
				return err
			}
			if err := client.Send(msg); err != nil && !errors.Is(err, proto.ErrEncode) {
				return err
			}
		}
	})
	if t.keepalive > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(t.keepalive)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-ticker.C:
					if err := client.comment("keepalive"); err != nil {
						return err
					}
				}
			}
		})
	}

	err := g.Wait()
	switch {
	case ctx.Err() != nil, errors.Is(err, ErrSubscriptionClosed):
	default:
		slog.Warn("SSE stream ended", "id", client.Id, "error", err)
	}
}

// Shutdown ends every open stream.
func (t *SSETransport) Shutdown() error {
	slog.Info("Shutting down SSE stream", "addr", t.Addr)
	t.cmu.Lock()
	t.connected = false
	for _, cancel := range t.cancels {
		cancel()
	}
	t.cmu.Unlock()
	return nil
}

func (t *SSETransport) SetFeed(feed Feed) {
	t.feed = feed
}

func (t *SSETransport) SetMetrics(m *metrics.Metrics) {
	t.metrics = m
}

func (t *SSETransport) OnConnect(fn func(Client) error) {
	t.onConnect = fn
}

func (t *SSETransport) OnDisconnect(fn func(Client)) {
	t.onDisconnect = fn
}

func (t *SSETransport) Meta() TransportMetadata {
	t.cmu.RLock()
	defer t.cmu.RUnlock()
	clients := make(map[string]Client, len(t.clients))
	for id, client := range t.clients {
		clients[id] = client
	}
	return TransportMetadata{
		ID:          "sse-" + t.Addr,
		Name:        t.name,
		Description: t.description,
		Protocol:    "sse",
		Address:     t.Addr,
		Clients:     clients,
		MaxClients:  t.maxClients,
		Connected:   t.connected,
	}
}

func (t *SSETransport) SetName(name string) {
	t.name = name
}

func (t *SSETransport) SetMaxClients(n int) {
	t.cmu.Lock()
	t.maxClients = n
	t.cmu.Unlock()
}

// SetKeepalive sets the interval of keepalive comments, zero disables them.
func (t *SSETransport) SetKeepalive(d time.Duration) {
	t.keepalive = d
}

func (t *SSETransport) SetDescription(description string) {
	t.description = description
}
