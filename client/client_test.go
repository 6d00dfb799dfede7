package client

import (
	"context"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/mbocsi/telemux/proto"
	"github.com/mbocsi/telemux/server"
)

func newBridge(t *testing.T) (*server.Coordinator, *httptest.Server) {
	t.Helper()
	c := server.NewCoordinator(server.Options{})
	ws := server.NewWSTransport("test")
	c.RegisterTransport(ws)
	if err := ws.Start(); err != nil {
		t.Fatalf("Failed to start WebSocket transport: %v", err)
	}
	srv := httptest.NewServer(ws)
	t.Cleanup(func() {
		ws.Shutdown()
		srv.Close()
	})
	return c, srv
}

func connect(t *testing.T, srv *httptest.Server, name string) *Client {
	t.Helper()
	c := NewClient(name, NewWebSocketTransport())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx, srv.URL); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return c
}

func TestClient_ReceivesSeedAndLive(t *testing.T) {
	bridge, srv := newBridge(t)
	bridge.Handle(&proto.Heartbeat{Header: &proto.Header{Seq: 1}, UptimeMs: 10})

	c := connect(t, srv, "viewer")
	received := make(chan proto.Message, 8)
	c.HandleAll(func(msg proto.Message) error {
		received <- msg
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case msg := <-received:
		if msg.Kind() != proto.KindHeartbeat || msg.GetHeader().GetSeq() != 1 {
			t.Errorf("Expected seeded heartbeat, got %s seq %d", msg.Kind(), msg.GetHeader().GetSeq())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for seed frame")
	}

	// The subscription exists once the seed has been delivered.
	bridge.Handle(&proto.SensorBatch{Header: &proto.Header{Seq: 2}})
	select {
	case msg := <-received:
		if msg.Kind() != proto.KindSensorBatch {
			t.Errorf("Expected live SensorBatch, got %s", msg.Kind())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for live frame")
	}

	if _, ok := c.Latest(proto.KindSensorBatch); !ok {
		t.Error("Expected latest SensorBatch to be tracked")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean stop on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if c.Connected() {
		t.Error("Expected client to be disconnected")
	}
}

func TestClient_SendCommandAwait(t *testing.T) {
	bridge, srv := newBridge(t)
	c := connect(t, srv, "console")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go c.Run(ctx)

	// Play the realtime node: ack whatever reaches the egress queue.
	go func() {
		frame := <-bridge.Egress.Frames()
		msg, err := proto.Decode(frame)
		if err != nil {
			return
		}
		cmd := msg.(*proto.ActuatorCommand)
		bridge.Handle(&proto.Ack{
			Header:   &proto.Header{Source: "rt", Dest: cmd.Header.Source},
			AckedSeq: cmd.Header.Seq,
			OK:       true,
		})
	}()

	ack, err := c.SendCommandAwait(ctx, "fan", "speed", 0.8, 1)
	if err != nil {
		t.Fatalf("Expected ack, got %v", err)
	}
	if !ack.OK || ack.GetHeader().GetDest() != "console" {
		t.Errorf("Unexpected ack %+v", ack)
	}
}

func TestClient_Send(t *testing.T) {
	bridge, srv := newBridge(t)
	c := connect(t, srv, "console")
	defer c.Close()

	seq, err := c.SendCommand("valve", "close", 0)
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}

	select {
	case frame := <-bridge.Egress.Frames():
		msg, err := proto.Decode(frame)
		if err != nil {
			t.Fatalf("Forwarded frame does not decode: %v", err)
		}
		header := msg.GetHeader()
		if header.GetSeq() != seq || header.GetSource() != "console" || header.Timestamp == nil {
			t.Errorf("Unexpected header %+v", header)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for forwarded frame")
	}

	if _, err := c.Send(&proto.Heartbeat{}); err == nil {
		t.Error("Expected error for message without header")
	}
	if err := c.Handle(proto.Kind(0), func(proto.Message) error { return nil }); err == nil {
		t.Error("Expected error for invalid kind")
	}
}

func TestWebSocketTransport_NotConnected(t *testing.T) {
	tr := NewWebSocketTransport()
	if _, err := tr.Read(); err != ErrNotConnected {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if err := tr.SendFrame([]byte{11}); err != ErrNotConnected {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if err := tr.Connect(context.Background(), "ftp://example.com"); err == nil {
		t.Error("Expected error for unsupported scheme")
	}
}

func TestFromEntry(t *testing.T) {
	service, err := fromEntry(&mdns.ServiceEntry{
		Name:       "lab._telemux-ws._tcp.local.",
		AddrV4:     net.ParseIP("192.168.1.20"),
		Port:       3000,
		InfoFields: []string{"path=/stream"},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := service.URL(); got != "ws://192.168.1.20:3000/stream" {
		t.Errorf("Expected ws://192.168.1.20:3000/stream, got %s", got)
	}

	if _, err := fromEntry(&mdns.ServiceEntry{Name: "empty", Port: 1}); err == nil {
		t.Error("Expected error for entry without address")
	}
}
