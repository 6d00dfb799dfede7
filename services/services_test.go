package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbocsi/telemux/proto"
	"github.com/mbocsi/telemux/server"
)

func serviceCode(err error) string {
	var se ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func TestStateService(t *testing.T) {
	c := server.NewCoordinator(server.Options{})
	state := NewStateService(c.Cache)

	if _, err := state.GetLatest("Heartbeat"); serviceCode(err) != ErrCodeNotFound {
		t.Errorf("Expected NOT_FOUND before any heartbeat, got %v", err)
	}
	if _, err := state.GetLatest("Bogus"); serviceCode(err) != ErrCodeInvalidInput {
		t.Errorf("Expected INVALID_INPUT for unknown kind, got %v", err)
	}

	c.Handle(&proto.Heartbeat{Header: &proto.Header{Seq: 4}, UptimeMs: 1000})

	for _, name := range []string{"Heartbeat", "heartbeat", "11"} {
		value, err := state.GetLatest(name)
		if err != nil {
			t.Fatalf("GetLatest(%q) failed: %v", name, err)
		}
		if value.Kind != proto.KindHeartbeat || value.Tag != 11 {
			t.Errorf("Unexpected value for %q: %+v", name, value)
		}
	}

	kinds := state.ListKinds()
	if len(kinds) != 12 {
		t.Fatalf("Expected 12 kinds, got %d", len(kinds))
	}
	for _, k := range kinds {
		if k.Cached != (k.Name == "Heartbeat") {
			t.Errorf("Unexpected cached flag for %s: %v", k.Name, k.Cached)
		}
	}
	if latest := state.ListLatest(); len(latest) != 1 {
		t.Errorf("Expected 1 latest value, got %d", len(latest))
	}
}

type fakeClient struct {
	meta *server.ClientMetadata
}

func (f *fakeClient) Send(proto.Message) error { return nil }
func (f *fakeClient) Meta() *server.ClientMetadata { return f.meta }

func TestClientService(t *testing.T) {
	registry := server.NewClientRegistry()
	client := &fakeClient{meta: &server.ClientMetadata{Id: "ws-1", RemoteAddr: "127.0.0.1:4000", ConnectedAt: time.Now()}}
	client.meta.FramesSent.Add(3)
	registry.Store(client)

	svc := NewClientService(registry)
	clients, err := svc.ListClients()
	if err != nil || len(clients) != 1 {
		t.Fatalf("Expected 1 client, got %v (%v)", clients, err)
	}
	if clients[0].FramesSent != 3 || clients[0].RemoteAddr != "127.0.0.1:4000" {
		t.Errorf("Unexpected client info %+v", clients[0])
	}

	if err := svc.RenameClient("ws-1", "control room"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	info, _ := svc.GetClient("ws-1")
	if info.Name != "control room" {
		t.Errorf("Expected renamed client, got %s", info.Name)
	}
	if err := svc.RenameClient("ws-1", ""); serviceCode(err) != ErrCodeInvalidInput {
		t.Errorf("Expected INVALID_INPUT for empty name, got %v", err)
	}
	if _, err := svc.GetClient("missing"); serviceCode(err) != ErrCodeNotFound {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}

func TestTransportAndBridgeServices(t *testing.T) {
	c := server.NewCoordinator(server.Options{EgressCapacity: 7})
	c.RegisterTransport(server.NewWSTransport("/ws"))

	transports, err := NewTransportService(c).ListTransports()
	if err != nil {
		t.Fatalf("ListTransports failed: %v", err)
	}
	if len(transports) != 2 || transports[0].Type != "websocket" || transports[1].Type != "udp" {
		t.Errorf("Unexpected transports %+v", transports)
	}
	if _, err := NewTransportService(c).GetTransport(5); serviceCode(err) != ErrCodeNotFound {
		t.Errorf("Expected NOT_FOUND for bad index, got %v", err)
	}

	agg, err := NewTransportService(c).GetTransportStats()
	if err != nil {
		t.Fatalf("GetTransportStats failed: %v", err)
	}
	if agg["total_transports"] != 2 || agg["total_connections"] != 0 {
		t.Errorf("Unexpected transport stats %v", agg)
	}
	if _, ok := agg["connections_by_protocol"].(map[string]int); !ok {
		t.Errorf("Expected per protocol breakdown, got %T", agg["connections_by_protocol"])
	}

	stats := NewBridgeService(c).Stats()
	if stats.Running || stats.EgressCapacity != 7 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestCommandService_Validation(t *testing.T) {
	c := server.NewCoordinator(server.Options{})
	svc := NewCommandService(c, NewAckTracker(c, CommandSource))

	_, err := svc.SendActuatorCommand(context.Background(), CommandRequest{Command: "open"})
	if serviceCode(err) != ErrCodeInvalidInput {
		t.Errorf("Expected INVALID_INPUT without actuator, got %v", err)
	}
	if err := svc.SendFrame("api", []byte{0}); serviceCode(err) != ErrCodeInvalidInput {
		t.Errorf("Expected INVALID_INPUT for bad tag, got %v", err)
	}
}

func TestCommandService_QueueFull(t *testing.T) {
	c := server.NewCoordinator(server.Options{EgressCapacity: 1})
	svc := NewCommandService(c, NewAckTracker(c, CommandSource))

	req := CommandRequest{ActuatorID: "valve", Command: "open"}
	if _, err := svc.SendActuatorCommand(context.Background(), req); err != nil {
		t.Fatalf("First command failed: %v", err)
	}
	_, err := svc.SendActuatorCommand(context.Background(), req)
	if serviceCode(err) != ErrCodeUnavailable || !errors.Is(err, server.ErrEgressQueueFull) {
		t.Errorf("Expected UNAVAILABLE wrapping queue full, got %v", err)
	}
}

func TestCommandService_WaitForAck(t *testing.T) {
	c := server.NewCoordinator(server.Options{})
	tracker := NewAckTracker(c, CommandSource)
	svc := NewCommandService(c, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tracker.Run(ctx)
	deadline := time.Now().Add(time.Second)
	for c.Broker.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// Play the realtime node: acknowledge whatever is queued.
	go func() {
		frame := <-c.Egress.Frames()
		msg, err := proto.Decode(frame)
		if err != nil {
			return
		}
		cmd := msg.(*proto.ActuatorCommand)
		c.Handle(&proto.Ack{
			Header:   &proto.Header{Source: "rt", Dest: cmd.Header.Source},
			AckedSeq: cmd.Header.Seq,
			OK:       true,
			Detail:   "applied",
		})
	}()

	receipt, err := svc.SendActuatorCommand(ctx, CommandRequest{
		ActuatorID: "heater",
		Command:    "set",
		Value:      21.5,
		WaitForAck: true,
		Timeout:    2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Expected ack, got %v", err)
	}
	if receipt.Ack == nil || !receipt.Ack.OK || receipt.Ack.AckedSeq != receipt.Seq {
		t.Errorf("Unexpected receipt %+v", receipt)
	}
}

func TestCommandService_AckTimeout(t *testing.T) {
	c := server.NewCoordinator(server.Options{})
	svc := NewCommandService(c, NewAckTracker(c, CommandSource))

	receipt, err := svc.SendActuatorCommand(context.Background(), CommandRequest{
		ActuatorID: "heater",
		Command:    "off",
		WaitForAck: true,
		Timeout:    30 * time.Millisecond,
	})
	if serviceCode(err) != ErrCodeTimeout {
		t.Errorf("Expected TIMEOUT, got %v", err)
	}
	if receipt == nil || receipt.Seq == 0 {
		t.Error("Expected receipt for the queued command even without ack")
	}
}

func TestAckTracker_IgnoresOtherDestinations(t *testing.T) {
	tracker := NewAckTracker(nil, CommandSource)
	ch, cancel := tracker.Expect(9)
	defer cancel()

	if tracker.HandleMessage(&proto.Ack{Header: &proto.Header{Dest: "ws-other"}, AckedSeq: 9}) {
		t.Error("Expected ack for another source to be ignored")
	}
	if tracker.HandleMessage(&proto.Heartbeat{}) {
		t.Error("Expected non-ack to be ignored")
	}
	if !tracker.HandleMessage(&proto.Ack{Header: &proto.Header{Dest: CommandSource}, AckedSeq: 9}) {
		t.Fatal("Expected matching ack to resolve")
	}
	if ack := <-ch; ack.AckedSeq != 9 {
		t.Errorf("Expected seq 9, got %d", ack.AckedSeq)
	}
}
