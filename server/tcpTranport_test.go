package server

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/mbocsi/telemux/proto"
)

func newTCPGateway(t *testing.T, opts Options) (*Coordinator, *TCPTransport) {
	t.Helper()
	c := NewCoordinator(opts)
	gw := NewTCPTransport("127.0.0.1:0")
	c.RegisterTransport(gw)
	if err := gw.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- gw.Start() }()
	t.Cleanup(func() {
		gw.Shutdown()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Expected Start to return nil after Shutdown, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("TCP gateway did not stop")
		}
	})
	waitFor(t, time.Second, func() bool { return gw.Meta().Connected })
	return c, gw
}

func dialTCP(t *testing.T, gw *TCPTransport) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", gw.LocalAddr().String())
	if err != nil {
		t.Fatalf("Failed to dial gateway: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func readTCPMessage(t *testing.T, conn net.Conn, r *bufio.Reader) proto.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := proto.ReadFrame(r)
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	msg, err := proto.Decode(frame)
	if err != nil {
		t.Fatalf("Failed to decode frame: %v", err)
	}
	return msg
}

func TestNewTCPTransport(t *testing.T) {
	addr := "localhost:0"
	transport := NewTCPTransport(addr)

	if transport.Addr != addr {
		t.Errorf("Expected addr %s, got %s", addr, transport.Addr)
	}
	if transport.maxClients != 16 {
		t.Errorf("Expected maxClients 16, got %d", transport.maxClients)
	}
	if transport.clients == nil {
		t.Error("Expected clients map to be initialized")
	}
}

func TestTCPTransport_SetMethods(t *testing.T) {
	transport := NewTCPTransport("localhost:0")

	transport.SetName("test-transport")
	transport.SetMaxClients(10)
	transport.SetDescription("Test transport")

	meta := transport.Meta()
	if meta.Name != "test-transport" {
		t.Errorf("Expected name 'test-transport', got %s", meta.Name)
	}
	if meta.MaxClients != 10 {
		t.Errorf("Expected maxClients 10, got %d", meta.MaxClients)
	}
	if meta.Description != "Test transport" {
		t.Errorf("Expected description 'Test transport', got %s", meta.Description)
	}
	if meta.Protocol != "tcp" {
		t.Errorf("Expected protocol tcp, got %s", meta.Protocol)
	}
}

func TestTCPTransport_StartWithoutCallbacks(t *testing.T) {
	transport := NewTCPTransport("localhost:0")

	if err := transport.Start(); err == nil {
		t.Error("Expected error when starting without callbacks")
	}
}

func TestTCPTransport_StartAfterShutdown(t *testing.T) {
	c := NewCoordinator(Options{})
	gw := NewTCPTransport("127.0.0.1:0")
	c.RegisterTransport(gw)
	if err := gw.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if err := gw.Listen(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Expected net.ErrClosed from Listen after shutdown, got %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- gw.Start() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected Start to return nil after shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start blocked after shutdown")
	}
	if gw.LocalAddr() != nil {
		t.Error("Expected no listener after shutdown")
	}
}

func TestTCPTransport_SeedAndLive(t *testing.T) {
	c, gw := newTCPGateway(t, Options{})
	c.Handle(&proto.Heartbeat{Header: &proto.Header{Seq: 1}, UptimeMs: 10})

	conn, r := dialTCP(t, gw)
	seed := readTCPMessage(t, conn, r)
	if seed.Kind() != proto.KindHeartbeat {
		t.Errorf("Expected seeded Heartbeat, got %s", seed.Kind())
	}

	waitFor(t, time.Second, func() bool { return c.Broker.Len() == 1 })
	c.Handle(sensorBatch(5))

	live := readTCPMessage(t, conn, r)
	if live.Kind() != proto.KindSensorBatch || live.GetHeader().GetSeq() != 5 {
		t.Errorf("Expected SensorBatch seq 5, got %v", live)
	}
	if c.Registry.Len() != 1 || len(gw.Meta().Clients) != 1 {
		t.Errorf("Expected one registered client, got %d", c.Registry.Len())
	}
}

func TestTCPTransport_CommandsReachEgress(t *testing.T) {
	c, gw := newTCPGateway(t, Options{})
	conn, _ := dialTCP(t, gw)
	waitFor(t, time.Second, func() bool { return c.Registry.Len() == 1 })

	frame := mustEncode(t, &proto.ActuatorCommand{
		Header:     &proto.Header{Source: "native", Seq: 3},
		ActuatorID: "fan",
		Command:    "speed",
		Value:      0.5,
	})
	if err := proto.WriteFrame(conn, nil); err != nil {
		t.Fatalf("Failed to write keepalive: %v", err)
	}
	if err := proto.WriteFrame(conn, frame); err != nil {
		t.Fatalf("Failed to write command: %v", err)
	}

	select {
	case got := <-c.Egress.Frames():
		if !bytes.Equal(got, frame) {
			t.Errorf("Expected verbatim frame\n got: %x\nwant: %x", got, frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Command never reached the egress queue")
	}
	if c.Egress.Len() != 0 {
		t.Errorf("Expected keepalive to be dropped, egress holds %d frames", c.Egress.Len())
	}
}

func TestTCPTransport_MaxClients(t *testing.T) {
	c, gw := newTCPGateway(t, Options{})
	gw.SetMaxClients(1)

	dialTCP(t, gw)
	waitFor(t, time.Second, func() bool { return c.Registry.Len() == 1 })

	conn, r := dialTCP(t, gw)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := r.ReadByte(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected refused connection to be closed, got %v", err)
	}
}

func TestTCPTransport_ShutdownClosesSessions(t *testing.T) {
	c, gw := newTCPGateway(t, Options{})
	conn, r := dialTCP(t, gw)
	waitFor(t, time.Second, func() bool { return c.Registry.Len() == 1 })

	if err := gw.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := proto.ReadFrame(r); err == nil {
		t.Error("Expected session to be closed")
	}
	waitFor(t, time.Second, func() bool { return c.Registry.Len() == 0 })
}
