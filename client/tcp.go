package client

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbocsi/telemux/proto"
)

// TCPTransport talks to the bridge's TCP gateway, which carries length
// prefixed frames instead of WebSocket messages.
type TCPTransport struct {
	Codec        proto.Codec
	WriteTimeout time.Duration

	conn   net.Conn
	reader *bufio.Reader
	wmu    sync.Mutex
	closed atomic.Bool
}

func NewTCPTransport() *TCPTransport {
	return &TCPTransport{WriteTimeout: 5 * time.Second}
}

// Connect dials addr, given as host:port or tcp://host:port.
func (t *TCPTransport) Connect(ctx context.Context, addr string) error {
	addr = strings.TrimPrefix(addr, "tcp://")
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to TCP gateway: %w", err)
	}
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	slog.Debug("Connected to bridge", "addr", addr)
	return nil
}

func (t *TCPTransport) Send(msg proto.Message) error {
	frame, err := t.Codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := t.SendFrame(frame); err != nil {
		return err
	}
	slog.Debug("Sent TCP frame", "kind", msg.Kind(), "seq", msg.GetHeader().GetSeq(), "size", len(frame))
	return nil
}

func (t *TCPTransport) SendFrame(frame []byte) error {
	if t.conn == nil {
		return ErrNotConnected
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()
	if t.WriteTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.WriteTimeout))
	}
	if err := proto.WriteFrame(t.conn, frame); err != nil {
		return fmt.Errorf("failed to send TCP frame: %w", err)
	}
	return nil
}

// Read blocks for the next frame and decodes it. Keepalive frames are
// skipped.
func (t *TCPTransport) Read() (proto.Message, error) {
	if t.conn == nil {
		return nil, ErrNotConnected
	}

	for {
		frame, err := proto.ReadFrame(t.reader)
		if err != nil {
			return nil, fmt.Errorf("connection closed: %w", err)
		}
		if len(frame) == 0 {
			continue
		}
		msg, err := t.Codec.Decode(frame)
		if err != nil {
			return nil, fmt.Errorf("invalid frame: %w", err)
		}
		return msg, nil
	}
}

func (t *TCPTransport) Close() error {
	if t.conn == nil || !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.conn.Close()
}
