package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mbocsi/telemux/metrics"
	"github.com/mbocsi/telemux/proto"
)

// UDPTransport receives tagged frames from the realtime node and hands every
// decoded message to the OnMessage hook. Bad datagrams are logged and skipped.
type UDPTransport struct {
	Addr      string
	codec     proto.Codec
	conn      net.PacketConn
	onMessage func(proto.Message)
	metrics   *metrics.Metrics

	name        string
	description string

	mu        sync.RWMutex
	connected bool
	closing   bool
}

func NewUDPTransport(addr string, codec proto.Codec) *UDPTransport {
	return &UDPTransport{Addr: addr, codec: codec}
}

func (t *UDPTransport) SetMetrics(m *metrics.Metrics) {
	t.metrics = m
}

// Listen binds the socket. It is a no-op when already bound and fails with
// net.ErrClosed once Shutdown has been called.
func (t *UDPTransport) Listen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing {
		return fmt.Errorf("bind udp ingest %s: %w", t.Addr, net.ErrClosed)
	}
	if t.conn != nil {
		return nil
	}

	conn, err := net.ListenPacket("udp", t.Addr)
	if err != nil {
		return fmt.Errorf("bind udp ingest %s: %w", t.Addr, err)
	}
	t.conn = conn
	t.connected = true
	slog.Info("UDP ingest bound", "addr", conn.LocalAddr().String(), "strict", t.codec.Strict)
	return nil
}

// LocalAddr returns the bound address, or nil before Listen.
func (t *UDPTransport) LocalAddr() net.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

func (t *UDPTransport) Start() error {
	if t.onMessage == nil {
		return fmt.Errorf("The OnMessage function is not defined. This transport is likely being called outside of the server coordinator.")
	}
	if err := t.Listen(); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	}
	return t.Serve()
}

// Serve runs the receive loop until Shutdown closes the socket.
func (t *UDPTransport) Serve() error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("udp ingest %s: not bound", t.Addr)
	}

	defer func() {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
	}()

	buf := make([]byte, proto.MaxFrameSize)
	failures := 0
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if t.isClosing() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			failures++
			delay := receiveBackoff(failures)
			slog.Warn("UDP receive error", "addr", t.Addr, "error", err, "failures", failures, "backoff", delay)
			t.metrics.RecordReceiveError()
			time.Sleep(delay)
			continue
		}
		failures = 0
		t.metrics.RecordDatagram()

		msg, err := t.codec.Decode(buf[:n])
		if err != nil {
			reason := proto.ErrorReason(err)
			slog.Warn("Dropping undecodable datagram", "from", from.String(), "size", n, "reason", reason, "error", err)
			t.metrics.RecordDecodeError(reason)
			continue
		}

		slog.Debug("Datagram received", "from", from.String(), "kind", msg.Kind(), "size", n)
		t.metrics.RecordIngest(msg.Kind().String())
		t.onMessage(msg)
	}
}

const (
	minReceiveBackoff = 10 * time.Millisecond
	maxReceiveBackoff = time.Second
)

// receiveBackoff doubles from minReceiveBackoff per consecutive failure and
// is capped at maxReceiveBackoff.
func receiveBackoff(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	d := minReceiveBackoff
	for i := 1; i < failures && d < maxReceiveBackoff; i++ {
		d *= 2
	}
	return min(d, maxReceiveBackoff)
}

func (t *UDPTransport) isClosing() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closing
}

func (t *UDPTransport) Shutdown() error {
	slog.Info("Shutting down UDP ingest", "addr", t.Addr)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closing = true
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

func (t *UDPTransport) OnMessage(fn func(proto.Message)) {
	t.onMessage = fn
}

func (t *UDPTransport) Meta() TransportMetadata {
	t.mu.RLock()
	defer t.mu.RUnlock()
	addr := t.Addr
	if t.conn != nil {
		addr = t.conn.LocalAddr().String()
	}
	return TransportMetadata{
		ID:          "udp-" + t.Addr,
		Name:        t.name,
		Description: t.description,
		Protocol:    "udp",
		Address:     addr,
		Connected:   t.connected,
	}
}

func (t *UDPTransport) SetName(name string) {
	t.name = name
}

func (t *UDPTransport) SetDescription(description string) {
	t.description = description
}
