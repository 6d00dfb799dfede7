package client

import (
	"context"
	"testing"
	"time"

	"github.com/mbocsi/telemux/proto"
	"github.com/mbocsi/telemux/server"
)

func TestTCPTransport_RoundTrip(t *testing.T) {
	bridge := server.NewCoordinator(server.Options{})
	gw := server.NewTCPTransport("127.0.0.1:0")
	bridge.RegisterTransport(gw)
	if err := gw.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go gw.Start()
	t.Cleanup(func() { gw.Shutdown() })
	bridge.Handle(&proto.Heartbeat{Header: &proto.Header{Seq: 8}, UptimeMs: 80})

	transport := NewTCPTransport()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := transport.Connect(ctx, "tcp://"+gw.LocalAddr().String()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer transport.Close()

	msg, err := transport.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if msg.Kind() != proto.KindHeartbeat || msg.GetHeader().GetSeq() != 8 {
		t.Errorf("Expected seeded heartbeat seq 8, got %s seq %d", msg.Kind(), msg.GetHeader().GetSeq())
	}

	cmd := &proto.ActuatorCommand{Header: &proto.Header{Source: "native", Seq: 2}, ActuatorID: "led", Command: "on"}
	if err := transport.Send(cmd); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case frame := <-bridge.Egress.Frames():
		got, err := proto.Decode(frame)
		if err != nil {
			t.Fatalf("Forwarded frame does not decode: %v", err)
		}
		if got.(*proto.ActuatorCommand).ActuatorID != "led" {
			t.Errorf("Expected led command, got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Command was not forwarded")
	}
}

func TestTCPTransport_NotConnected(t *testing.T) {
	transport := NewTCPTransport()
	if err := transport.SendFrame([]byte{1}); err != ErrNotConnected {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if _, err := transport.Read(); err != ErrNotConnected {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if err := transport.Close(); err != nil {
		t.Errorf("Expected nil close on unconnected transport, got %v", err)
	}
}
