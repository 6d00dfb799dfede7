package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mbocsi/telemux/metrics"
	"github.com/mbocsi/telemux/proto"
	"golang.org/x/sync/errgroup"
)

// TCPTransport is a gateway for native clients that cannot run a WebSocket
// stack. Each connection carries length prefixed frames in both directions
// and otherwise behaves like a WebSocket session.
type TCPTransport struct {
	Addr         string
	listener     net.Listener
	feed         Feed
	onConnect    func(Client) error
	onDisconnect func(Client)
	onCommand    func(Client, []byte) error
	metrics      *metrics.Metrics

	name        string
	description string
	clients     map[string]*TCPClient
	cmu         sync.RWMutex

	maxClients   int
	writeTimeout time.Duration
	idleTimeout  time.Duration
	connected    bool
	closing      bool
}

func NewTCPTransport(addr string) *TCPTransport {
	return &TCPTransport{
		Addr:         addr,
		maxClients:   16,
		writeTimeout: 5 * time.Second,
		idleTimeout:  60 * time.Second,
		clients:      make(map[string]*TCPClient),
	}
}

// Listen binds the listener. It is a no-op when already bound and fails
// with net.ErrClosed once Shutdown has been called.
func (t *TCPTransport) Listen() error {
	t.cmu.Lock()
	defer t.cmu.Unlock()
	if t.closing {
		return fmt.Errorf("bind tcp gateway %s: %w", t.Addr, net.ErrClosed)
	}
	if t.listener != nil {
		return nil
	}

	l, err := net.Listen("tcp", t.Addr)
	if err != nil {
		return fmt.Errorf("bind tcp gateway %s: %w", t.Addr, err)
	}
	t.listener = l
	return nil
}

// LocalAddr returns the bound address, or nil before Listen.
func (t *TCPTransport) LocalAddr() net.Addr {
	t.cmu.RLock()
	defer t.cmu.RUnlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *TCPTransport) Start() error {
	if t.onConnect == nil || t.onDisconnect == nil || t.onCommand == nil || t.feed == nil {
		return fmt.Errorf("The OnConnect, OnDisconnect, OnCommand or feed is not defined. This transport is likely being called outside of the server coordinator.")
	}
	if err := t.Listen(); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	}

	t.cmu.Lock()
	l := t.listener
	maxClients := t.maxClients
	t.connected = true
	t.cmu.Unlock()
	slog.Info("Starting tcp gateway", "addr", l.Addr().String(), "max_clients", maxClients)

	defer func() {
		t.cmu.Lock()
		t.connected = false
		t.cmu.Unlock()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			t.cmu.RLock()
			closing := t.closing
			t.cmu.RUnlock()
			if closing {
				return nil
			}
			return err
		}

		client := NewTCPClient(conn, t)
		if !t.admit(client) {
			slog.Warn("Max clients reached, rejecting connection", "remote_addr", conn.RemoteAddr())
			t.metrics.RecordClientRefused()
			conn.Close()
			continue
		}

		go t.handleConnection(client)
	}
}

func (t *TCPTransport) admit(client *TCPClient) bool {
	t.cmu.Lock()
	defer t.cmu.Unlock()
	if t.closing || (t.maxClients > 0 && len(t.clients) >= t.maxClients) {
		return false
	}
	t.clients[client.Id] = client
	return true
}

func (t *TCPTransport) handleConnection(client *TCPClient) {
	slog.Info("TCP client connected", "addr", client.RemoteAddr, "id", client.Id)

	defer func() {
		t.cmu.Lock()
		delete(t.clients, client.Id)
		t.cmu.Unlock()

		client.close()
		slog.Info("TCP client disconnected", "addr", client.RemoteAddr, "id", client.Id,
			"frames_sent", client.FramesSent.Load(), "frames_received", client.FramesReceived.Load())
	}()

	if err := t.onConnect(client); err != nil {
		slog.Error("Failed to register TCP client", "addr", client.RemoteAddr, "error", err.Error())
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
			slog.Warn("Failed to seed TCP client", "id", client.Id, "error", err)
			return
		}
	}

	err := t.relay(client, sub)
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, ErrSubscriptionClosed):
	case errors.Is(err, ErrEgressQueueFull):
		slog.Warn("Ending TCP session, egress queue full", "id", client.Id)
	default:
		slog.Warn("TCP session ended", "id", client.Id, "error", err)
	}
}

func (t *TCPTransport) relay(client *TCPClient, sub *Subscription) error {
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
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
					t.metrics.RecordEncodeError()
					continue
				}
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	})
	g.Go(func() error {
		err := t.inbound(client)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		client.close()
		return nil
	})

	return g.Wait()
}

func (t *TCPTransport) inbound(client *TCPClient) error {
	for {
		if t.idleTimeout > 0 {
			client.conn.SetReadDeadline(time.Now().Add(t.idleTimeout))
		}
		frame, err := proto.ReadFrame(client.conn)
		if err != nil {
			return err
		}
		if len(frame) == 0 {
			continue // keepalive
		}
		client.FramesReceived.Add(1)
		if err := t.onCommand(client, frame); err != nil {
			return err
		}
	}
}

// Shutdown closes the listener and every live connection.
func (t *TCPTransport) Shutdown() error {
	slog.Info("Shutting down tcp gateway", "addr", t.Addr)
	t.cmu.Lock()
	t.closing = true
	l := t.listener
	clients := make([]*TCPClient, 0, len(t.clients))
	for _, client := range t.clients {
		clients = append(clients, client)
	}
	t.cmu.Unlock()

	for _, client := range clients {
		client.close()
	}
	if l != nil {
		if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
	}
	return nil
}

func (t *TCPTransport) SetFeed(feed Feed) {
	t.feed = feed
}

func (t *TCPTransport) SetMetrics(m *metrics.Metrics) {
	t.metrics = m
}

func (t *TCPTransport) OnConnect(fn func(Client) error) {
	t.onConnect = fn
}

func (t *TCPTransport) OnDisconnect(fn func(Client)) {
	t.onDisconnect = fn
}

func (t *TCPTransport) OnCommand(fn func(Client, []byte) error) {
	t.onCommand = fn
}

func (t *TCPTransport) Meta() TransportMetadata {
	t.cmu.RLock()
	defer t.cmu.RUnlock()
	clients := make(map[string]Client, len(t.clients))
	for id, client := range t.clients {
		clients[id] = client
	}
	addr := t.Addr
	if t.listener != nil {
		addr = t.listener.Addr().String()
	}
	return TransportMetadata{
		ID:          "tcp-" + t.Addr,
		Name:        t.name,
		Description: t.description,
		Protocol:    "tcp",
		Address:     addr,
		Clients:     clients,
		MaxClients:  t.maxClients,
		Connected:   t.connected,
	}
}

func (t *TCPTransport) SetName(name string) {
	t.name = name
}

func (t *TCPTransport) SetMaxClients(n int) {
	t.cmu.Lock()
	t.maxClients = n
	t.cmu.Unlock()
}

// SetTimeouts configures the write deadline and the idle read deadline. An
// idle timeout of zero keeps silent connections open forever.
func (t *TCPTransport) SetTimeouts(write, idle time.Duration) {
	t.writeTimeout = write
	t.idleTimeout = idle
}

func (t *TCPTransport) SetDescription(description string) {
	t.description = description
}
