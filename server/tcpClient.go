package server

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mbocsi/telemux/metrics"
	"github.com/mbocsi/telemux/proto"
)

type TCPClient struct {
	ClientMetadata
	conn         net.Conn
	writeTimeout time.Duration
	metrics      *metrics.Metrics

	wmu       sync.Mutex
	closeOnce sync.Once
}

func NewTCPClient(conn net.Conn, t *TCPTransport) *TCPClient {
	return &TCPClient{
		conn:         conn,
		writeTimeout: t.writeTimeout,
		metrics:      t.metrics,
		ClientMetadata: ClientMetadata{
			Id:          generateClientId("tcp"),
			RemoteAddr:  conn.RemoteAddr().String(),
			ConnectedAt: time.Now(),
			Transport:   t,
		},
	}
}

func (c *TCPClient) Send(msg proto.Message) error {
	return c.send(msg, false)
}

func (c *TCPClient) send(msg proto.Message, seed bool) error {
	frame, err := proto.Encode(msg)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	err = proto.WriteFrame(c.conn, frame)
	c.wmu.Unlock()
	if err != nil {
		return fmt.Errorf("write to %s: %w", c.Id, err)
	}

	c.FramesSent.Add(1)
	c.metrics.RecordFrameSent(seed)
	slog.Debug("Sent TCP frame", "to", c.Id, "kind", msg.Kind(), "size", len(frame), "seed", seed)
	return nil
}

func (c *TCPClient) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

func (c *TCPClient) Meta() *ClientMetadata {
	return &c.ClientMetadata
}
