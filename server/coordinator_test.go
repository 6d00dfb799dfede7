package server

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/mbocsi/telemux/proto"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubRunner struct {
	started chan struct{}
	stopped chan struct{}
}

func (r *stubRunner) Run(ctx context.Context) error {
	close(r.started)
	<-ctx.Done()
	close(r.stopped)
	return nil
}

func TestNewCoordinator_Defaults(t *testing.T) {
	c := NewCoordinator(Options{})
	if c.Cache == nil || c.Broker == nil || c.Egress == nil || c.Registry == nil || c.Metrics == nil || c.Sender == nil {
		t.Fatal("Expected every component to be created")
	}
	if c.Broker.Capacity() != 100 || c.Egress.Cap() != 100 {
		t.Errorf("Expected default capacities 100/100, got %d/%d", c.Broker.Capacity(), c.Egress.Cap())
	}
	if c.Sender.Dest != "127.0.0.1:5001" {
		t.Errorf("Expected default realtime host, got %s", c.Sender.Dest)
	}
}

func TestCoordinator_HandleCachesThenPublishes(t *testing.T) {
	c := NewCoordinator(Options{BroadcastCapacity: 1})
	sub := c.Subscribe("viewer")
	defer sub.Close()

	c.Handle(heartbeat(1))
	c.Handle(heartbeat(2))

	cached, ok := c.Cache.Get(proto.KindHeartbeat)
	if !ok || cached.GetHeader().Seq != 2 {
		t.Errorf("Expected cached heartbeat seq 2, got %v", cached)
	}
	if msg := receive(t, sub); msg.GetHeader().Seq != 2 {
		t.Errorf("Expected newest message after overflow, got seq %d", msg.GetHeader().Seq)
	}
	if got := testutil.ToFloat64(c.Metrics.SubscriberDrops); got != 1 {
		t.Errorf("Expected 1 drop recorded, got %v", got)
	}

	var kinds []proto.Kind
	for msg := range c.Snapshot() {
		kinds = append(kinds, msg.Kind())
	}
	if len(kinds) != 1 || kinds[0] != proto.KindHeartbeat {
		t.Errorf("Expected snapshot [Heartbeat], got %v", kinds)
	}
}

func TestCoordinator_Submit(t *testing.T) {
	c := NewCoordinator(Options{EgressCapacity: 1})
	client := NewMockClient("ws-a")

	frame := []byte{byte(proto.KindActuatorCommand)}
	if err := c.Forward(client, frame); err != nil {
		t.Fatalf("Expected first forward to succeed, got %v", err)
	}
	err := c.Forward(client, frame)
	if !errors.Is(err, ErrEgressQueueFull) {
		t.Errorf("Expected ErrEgressQueueFull, got %v", err)
	}
	if got := testutil.ToFloat64(c.Metrics.CommandsForwarded.WithLabelValues("ActuatorCommand")); got != 1 {
		t.Errorf("Expected 1 ActuatorCommand forwarded, got %v", got)
	}

	c.Egress.Close()
	if err := c.Submit("api", frame); !errors.Is(err, ErrEgressClosed) {
		t.Errorf("Expected ErrEgressClosed, got %v", err)
	}
	if got := testutil.ToFloat64(c.Metrics.CommandsRejected.WithLabelValues("closed")); got != 1 {
		t.Errorf("Expected 1 closed rejection, got %v", got)
	}
}

func TestCoordinator_SubmitMessage(t *testing.T) {
	c := NewCoordinator(Options{})
	cmd := &proto.ActuatorCommand{ActuatorID: "fan", Command: "spin", Value: 3}
	if err := c.SubmitMessage("mcp", cmd); err != nil {
		t.Fatalf("SubmitMessage failed: %v", err)
	}
	frame := <-c.Egress.Frames()
	decoded, err := proto.Decode(frame)
	if err != nil {
		t.Fatalf("Queued frame does not decode: %v", err)
	}
	if got := decoded.(*proto.ActuatorCommand); got.ActuatorID != "fan" || got.Value != 3 {
		t.Errorf("Unexpected command %+v", got)
	}

	bad := &proto.ActuatorCommand{ActuatorID: string([]byte{0xc3})}
	if err := c.SubmitMessage("mcp", bad); !errors.Is(err, proto.ErrEncode) {
		t.Errorf("Expected ErrEncode, got %v", err)
	}
}

func TestCoordinator_RegisterTransportWiresHooks(t *testing.T) {
	c := NewCoordinator(Options{})
	ingest := NewUDPTransport("127.0.0.1:0", proto.Codec{})
	ws := NewWSTransport("/ws")
	c.RegisterTransport(ingest)
	c.RegisterTransport(ws)

	if ingest.onMessage == nil {
		t.Error("Expected ingest OnMessage to be wired")
	}
	if ws.onConnect == nil || ws.onDisconnect == nil || ws.onCommand == nil || ws.feed == nil {
		t.Error("Expected gateway hooks to be wired")
	}
	if ingest.metrics != c.Metrics || ws.metrics != c.Metrics {
		t.Error("Expected metrics to be shared")
	}
	if metas := c.TransportsMeta(); len(metas) != 3 {
		t.Errorf("Expected 2 transports plus egress, got %d", len(metas))
	}
}

func TestCoordinator_StartAndStop(t *testing.T) {
	c := NewCoordinator(Options{})
	ingest := NewUDPTransport("127.0.0.1:0", proto.Codec{})
	c.RegisterTransport(ingest)
	runner := &stubRunner{started: make(chan struct{}), stopped: make(chan struct{})}
	c.RegisterRunner(runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("Runner was not started")
	}
	waitFor(t, time.Second, func() bool { return ingest.Meta().Connected && c.Running() })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	<-runner.stopped

	if err := c.Egress.Push([]byte{10}); !errors.Is(err, ErrEgressClosed) {
		t.Errorf("Expected egress to be closed after shutdown, got %v", err)
	}
	if c.Running() {
		t.Error("Expected coordinator to report stopped")
	}
}

func TestCoordinator_StartBindFailureIsFatal(t *testing.T) {
	taken, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to bind: %v", err)
	}
	defer taken.Close()

	c := NewCoordinator(Options{})
	c.RegisterTransport(NewUDPTransport(taken.LocalAddr().String(), proto.Codec{}))

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()
	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected bind failure to be returned")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not fail on bind error")
	}
}

func TestCoordinator_StartWithCancelledContext(t *testing.T) {
	for i := 0; i < 50; i++ {
		c := NewCoordinator(Options{RealtimeHost: "127.0.0.1:9"})
		ingest := NewUDPTransport("127.0.0.1:0", proto.Codec{})
		c.RegisterTransport(ingest)
		gateway := NewTCPTransport("127.0.0.1:0")
		c.RegisterTransport(gateway)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		done := make(chan error, 1)
		go func() { done <- c.Start(ctx) }()

		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Expected clean exit on cancelled context, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Start blocked on an already cancelled context (run %d)", i)
		}
		if ingest.Meta().Connected {
			t.Error("Expected ingest to be stopped")
		}
	}
}
