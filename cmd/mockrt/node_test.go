package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mbocsi/telemux/proto"
)

// newPair starts a node whose backend is a plain UDP socket owned by the test.
func newPair(t *testing.T) (*Node, *net.UDPConn) {
	t.Helper()
	backend, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("Failed to bind backend: %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	node, err := NewNode("127.0.0.1:0", backend.LocalAddr().String(), 5*time.Millisecond)
	if err != nil {
		t.Fatalf("NewNode failed: %v", err)
	}
	t.Cleanup(func() { node.Close() })
	return node, backend
}

func readFrame(t *testing.T, conn *net.UDPConn) proto.Message {
	t.Helper()
	buf := make([]byte, proto.MaxFrameSize)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("Failed to read datagram: %v", err)
	}
	msg, err := proto.Codec{Strict: true}.Decode(buf[:n])
	if err != nil {
		t.Fatalf("Datagram does not decode strictly: %v", err)
	}
	return msg
}

func TestBatchContents(t *testing.T) {
	n := &Node{}
	batch := n.Batch(7, 0)

	if batch.Header.Seq != 7 || batch.Header.Source != source {
		t.Errorf("Unexpected header %+v", batch.Header)
	}
	if len(batch.Readings) != 3 {
		t.Fatalf("Expected 3 readings, got %d", len(batch.Readings))
	}
	if batch.Readings[0].Scalar != 20.0 {
		t.Errorf("Expected sine to start at 20, got %v", batch.Readings[0].Scalar)
	}
	if v := batch.Readings[1].Vector; len(v) != 3 || v[0] != 5.0 {
		t.Errorf("Expected vector to start at radius 5 on x, got %v", v)
	}
	if temp := batch.Readings[2].Temperature; temp == nil || temp.Board != temp.Ambient+2.0 {
		t.Errorf("Unexpected temperature %+v", temp)
	}
}

func TestRunTelemetry(t *testing.T) {
	node, backend := newPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go node.RunTelemetry(ctx)

	sawStatus, sawHeartbeat := false, false
	for i := 0; i < 12 && !(sawStatus && sawHeartbeat); i++ {
		switch msg := readFrame(t, backend).(type) {
		case *proto.SensorBatch:
			if len(msg.Readings) != 3 {
				t.Errorf("Expected 3 readings, got %d", len(msg.Readings))
			}
		case *proto.SystemStatus:
			sawStatus = true
		case *proto.Heartbeat:
			sawHeartbeat = true
		}
	}
	if !sawStatus || !sawHeartbeat {
		t.Errorf("Expected status and heartbeat within the first ten ticks")
	}
}

func TestRunCommands_Acks(t *testing.T) {
	node, backend := newPair(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- node.RunCommands(ctx) }()

	frame, err := proto.Encode(&proto.ActuatorCommand{
		Header:     &proto.Header{Source: "ws-1", Seq: 42},
		ActuatorID: "valve",
		Command:    "open",
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// garbage first, the node must keep going
	backend.WriteToUDP([]byte{0xFF, 0x01}, node.LocalAddr().(*net.UDPAddr))
	backend.WriteToUDP(frame, node.LocalAddr().(*net.UDPAddr))

	ack, ok := readFrame(t, backend).(*proto.Ack)
	if !ok {
		t.Fatal("Expected an Ack")
	}
	if ack.AckedSeq != 42 || !ack.OK || ack.Header.Dest != "ws-1" {
		t.Errorf("Unexpected ack %+v", ack)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunCommands did not stop")
	}
}
