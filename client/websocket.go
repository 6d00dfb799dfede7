package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbocsi/telemux/proto"
)

// ErrNotConnected is returned when the transport is used before Connect.
var ErrNotConnected = errors.New("transport is not connected")

// WebSocketTransport speaks the bridge's binary frame protocol: every
// WebSocket binary message is one encoded frame.
type WebSocketTransport struct {
	Codec        proto.Codec
	WriteTimeout time.Duration

	conn   *websocket.Conn
	wmu    sync.Mutex
	closed atomic.Bool
}

func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{WriteTimeout: 5 * time.Second}
}

func (t *WebSocketTransport) Connect(ctx context.Context, addr string) error {
	// host:port without a scheme
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return fmt.Errorf("invalid WebSocket URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return fmt.Errorf("unsupported WebSocket scheme %q", u.Scheme)
	}
	if u.Path == "" {
		u.Path = "/ws"
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket server: %w", err)
	}

	t.conn = conn
	slog.Debug("Connected to bridge", "url", u.String())
	return nil
}

func (t *WebSocketTransport) Send(msg proto.Message) error {
	frame, err := t.Codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := t.SendFrame(frame); err != nil {
		return err
	}

	slog.Debug("Sent WebSocket frame", "kind", msg.Kind(), "seq", msg.GetHeader().GetSeq(), "size", len(frame))
	return nil
}

func (t *WebSocketTransport) SendFrame(frame []byte) error {
	if t.conn == nil {
		return ErrNotConnected
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()
	if t.WriteTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.WriteTimeout))
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("failed to send WebSocket message: %w", err)
	}
	return nil
}

// Read blocks for the next binary frame and decodes it. A frame that does
// not decode is reported as a proto error; the connection stays usable.
func (t *WebSocketTransport) Read() (proto.Message, error) {
	if t.conn == nil {
		return nil, ErrNotConnected
	}

	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, fmt.Errorf("WebSocket connection error: %w", err)
			}
			return nil, fmt.Errorf("connection closed: %w", err)
		}
		if mt != websocket.BinaryMessage {
			continue
		}

		msg, err := t.Codec.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("invalid frame: %w", err)
		}
		return msg, nil
	}
}

func (t *WebSocketTransport) Close() error {
	if t.conn == nil || !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.wmu.Lock()
	err := t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.wmu.Unlock()
	if err != nil {
		slog.Warn("Failed to send close message", "error", err)
	}

	return t.conn.Close()
}
