//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mbocsi/telemux/client"
	"github.com/mbocsi/telemux/metrics"
	"github.com/mbocsi/telemux/proto"
	"github.com/mbocsi/telemux/server"
	"github.com/mbocsi/telemux/services"
	"github.com/mbocsi/telemux/web"
)

// testBridge is a fully started bridge on loopback sockets. The realtime
// node is a plain UDP socket owned by the test.
type testBridge struct {
	Coordinator *server.Coordinator
	Metrics     *metrics.Metrics
	HTTP        *httptest.Server
	Ingest      *net.UDPAddr
	Realtime    *net.UDPConn
}

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func startBridge(t *testing.T, opts server.Options) *testBridge {
	t.Helper()

	rt, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("Failed to bind realtime socket: %v", err)
	}
	t.Cleanup(func() { rt.Close() })

	opts.RealtimeHost = rt.LocalAddr().String()
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	c := server.NewCoordinator(opts)

	udp := server.NewUDPTransport("127.0.0.1:0", c.Codec)
	if err := udp.Listen(); err != nil {
		t.Fatalf("Failed to bind ingest: %v", err)
	}
	ws := server.NewWSTransport("/ws")
	ws.SetTimeouts(time.Second, 5*time.Second, time.Second)
	sse := server.NewSSETransport("/api/events")
	sse.SetKeepalive(0)
	c.RegisterTransport(udp)
	c.RegisterTransport(ws)
	c.RegisterTransport(sse)

	api := web.NewAPI(services.NewServiceContainer(c), web.Endpoints{
		WS:      ws,
		Events:  sse,
		Metrics: opts.Metrics.Handler(),
	})
	srv := httptest.NewServer(api.Routes())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Coordinator stopped with error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Coordinator did not stop")
		}
		srv.Close()
	})

	// the ack tracker holds the first bus subscription
	waitFor(t, "bridge running", func() bool {
		return c.Running() && ws.Meta().Connected && sse.Meta().Connected && c.Broker.Len() == 1
	})

	return &testBridge{
		Coordinator: c,
		Metrics:     opts.Metrics,
		HTTP:        srv,
		Ingest:      udp.LocalAddr().(*net.UDPAddr),
		Realtime:    rt,
	}
}

// publish sends msg from the realtime socket to the bridge ingest.
func (b *testBridge) publish(t *testing.T, msg proto.Message) {
	t.Helper()
	frame, err := proto.Encode(msg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	b.publishRaw(t, frame)
}

func (b *testBridge) publishRaw(t *testing.T, frame []byte) {
	t.Helper()
	if _, err := b.Realtime.WriteToUDP(frame, b.Ingest); err != nil {
		t.Fatalf("Failed to send datagram: %v", err)
	}
}

// receive reads one datagram the bridge forwarded to the realtime node.
func (b *testBridge) receive(t *testing.T) []byte {
	t.Helper()
	frame, err := b.readDatagram()
	if err != nil {
		t.Fatalf("No datagram forwarded to realtime node: %v", err)
	}
	return frame
}

func (b *testBridge) readDatagram() ([]byte, error) {
	buf := make([]byte, proto.MaxFrameSize)
	b.Realtime.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := b.Realtime.ReadFromUDP(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// ackNext plays the realtime node for one command: it acks the next
// forwarded frame back to its source. Safe to run in a goroutine.
func (b *testBridge) ackNext(dest string) {
	frame, err := b.readDatagram()
	if err != nil {
		return
	}
	msg, err := proto.Decode(frame)
	if err != nil {
		return
	}
	if dest == "" {
		dest = msg.GetHeader().GetSource()
	}
	ack, err := proto.Encode(&proto.Ack{
		Header:   &proto.Header{Source: "mock_realtime", Dest: dest},
		AckedSeq: msg.GetHeader().GetSeq(),
		OK:       true,
		Detail:   "applied",
	})
	if err != nil {
		return
	}
	b.Realtime.WriteToUDP(ack, b.Ingest)
}

// waitViewers waits until n viewers hold bus subscriptions.
func (b *testBridge) waitViewers(t *testing.T, n int) {
	t.Helper()
	waitFor(t, "viewer subscriptions", func() bool { return b.Coordinator.Broker.Len() == n+1 })
}

// viewer connects a client and collects everything it receives.
func (b *testBridge) viewer(t *testing.T, name string) (*client.Client, <-chan proto.Message) {
	t.Helper()
	c := client.NewClient(name, client.NewWebSocketTransport())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx, b.HTTP.URL+"/ws"); err != nil {
		t.Fatalf("Viewer %s failed to connect: %v", name, err)
	}

	received := make(chan proto.Message, 256)
	c.HandleAll(func(msg proto.Message) error {
		select {
		case received <- msg:
		default:
		}
		return nil
	})

	runCtx, stop := context.WithCancel(context.Background())
	go c.Run(runCtx)
	t.Cleanup(stop)
	return c, received
}

func expectKind(t *testing.T, ch <-chan proto.Message, kind proto.Kind) proto.Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg := <-ch:
			if msg.Kind() == kind {
				return msg
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for %s", kind)
			return nil
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
