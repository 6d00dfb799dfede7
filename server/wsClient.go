package server

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbocsi/telemux/metrics"
	"github.com/mbocsi/telemux/proto"
)

type WSClient struct {
	ClientMetadata
	conn         *websocket.Conn
	writeTimeout time.Duration
	metrics      *metrics.Metrics

	wmu       sync.Mutex
	closeOnce sync.Once
}

func NewWSClient(conn *websocket.Conn, t *WSTransport) *WSClient {
	return &WSClient{
		conn:         conn,
		writeTimeout: t.writeTimeout,
		metrics:      t.metrics,
		ClientMetadata: ClientMetadata{
			Id:          generateClientId("ws"),
			RemoteAddr:  conn.RemoteAddr().String(),
			ConnectedAt: time.Now(),
			Transport:   t,
		},
	}
}

// Send encodes msg and writes it as one binary frame.
func (c *WSClient) Send(msg proto.Message) error {
	return c.send(msg, false)
}

func (c *WSClient) send(msg proto.Message, seed bool) error {
	frame, err := proto.Encode(msg)
	if err != nil {
		return err
	}
	if err := c.WriteFrame(frame); err != nil {
		return err
	}

	c.metrics.RecordFrameSent(seed)
	slog.Debug("Sent WebSocket frame", "to", c.Id, "kind", msg.Kind(), "size", len(frame), "seed", seed)
	return nil
}

// WriteFrame writes an already encoded frame.
func (c *WSClient) WriteFrame(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("write to %s: %w", c.Id, err)
	}
	c.FramesSent.Add(1)
	return nil
}

func (c *WSClient) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, c.controlDeadline())
}

// close sends a close frame, best effort, and closes the socket so a
// blocked reader returns.
func (c *WSClient) close(code int, text string) {
	c.closeOnce.Do(func() {
		c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), c.controlDeadline())
		c.conn.Close()
	})
}

func (c *WSClient) controlDeadline() time.Time {
	timeout := c.writeTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return time.Now().Add(timeout)
}

func (c *WSClient) Meta() *ClientMetadata {
	return &c.ClientMetadata
}
