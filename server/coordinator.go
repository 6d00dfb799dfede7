package server

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/mbocsi/telemux/metrics"
	"github.com/mbocsi/telemux/proto"
	"golang.org/x/sync/errgroup"
)

// Runner is a background component that lives as long as the coordinator,
// such as the MCP host or the mDNS advertiser.
type Runner interface {
	Run(ctx context.Context) error
}

type instrumented interface {
	SetMetrics(*metrics.Metrics)
}

// Coordinator is the process context. It owns the shared state of the bridge
// and wires every registered transport to it.
type Coordinator struct {
	Cache    *LatestCache
	Broker   *Broker
	Egress   *EgressQueue
	Registry *ClientRegistry
	Metrics  *metrics.Metrics
	Codec    proto.Codec
	Sender   *UDPSender

	Transports []Transport
	runners    []Runner

	startedAt time.Time
	mu        sync.RWMutex
	running   bool
}

func NewCoordinator(opts Options) *Coordinator {
	opts.defaults()
	c := &Coordinator{
		Cache:    opts.Cache,
		Broker:   opts.Broker,
		Egress:   opts.Egress,
		Registry: opts.Registry,
		Metrics:  opts.Metrics,
		Codec:    opts.Codec,
	}
	c.Sender = NewUDPSender(opts.RealtimeHost, c.Egress)
	c.Sender.SetName("Realtime egress")
	c.Sender.SetDescription("Relays client command frames to the realtime node")
	c.Sender.SetMetrics(c.Metrics)
	return c
}

// RegisterTransport wires the coordinator's hooks into t according to what
// it can do.
func (c *Coordinator) RegisterTransport(t Transport) {
	if in, ok := t.(Ingress); ok {
		in.OnMessage(c.Handle)
	}
	if pub, ok := t.(Publisher); ok {
		pub.SetFeed(c)
		pub.OnConnect(c.RegisterClient)
		pub.OnDisconnect(c.UnregisterClient)
	}
	if gw, ok := t.(Gateway); ok {
		gw.OnCommand(c.Forward)
	}
	if m, ok := t.(instrumented); ok {
		m.SetMetrics(c.Metrics)
	}
	c.Transports = append(c.Transports, t)
}

func (c *Coordinator) RegisterRunner(r Runner) {
	c.runners = append(c.runners, r)
}

func (c *Coordinator) RegisterClient(client Client) error {
	c.Registry.Store(client)
	c.Metrics.RecordClientConnected()

	slog.Info("Registered client", "id", client.Meta().Id, "clients", c.Registry.Len())
	return nil
}

func (c *Coordinator) UnregisterClient(client Client) {
	c.Registry.Delete(client.Meta().Id)
	c.Metrics.RecordClientDisconnected()

	slog.Info("Unregistered client", "id", client.Meta().Id, "clients", c.Registry.Len())
}

func (c *Coordinator) Snapshot() iter.Seq[proto.Message] {
	return c.Cache.All()
}

func (c *Coordinator) Subscribe(id string) *Subscription {
	return c.Broker.Subscribe(id)
}

// Start runs every transport, the egress sender and the registered runners
// until ctx is cancelled or one of them fails. Either way everything is shut
// down before Start returns.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	c.running = true
	c.startedAt = time.Now()
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	for _, t := range c.Transports {
		g.Go(func() error {
			if err := t.Start(); err != nil {
				return fmt.Errorf("transport %s: %w", t.Meta().ID, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return c.Sender.Run(gctx)
	})
	for _, r := range c.runners {
		g.Go(func() error {
			return r.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		c.shutdown()
		return nil
	})

	err := g.Wait()
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	return err
}

func (c *Coordinator) shutdown() {
	slog.Info("Shutting down transports and bridge")
	for _, t := range c.Transports {
		if err := t.Shutdown(); err != nil {
			slog.Error("There was an error when shutting down transport", "id", t.Meta().ID, "error", err.Error())
		}
	}
	c.Broker.Close()
	c.Egress.Close()
	if err := c.Sender.Shutdown(); err != nil {
		slog.Error("There was an error when shutting down egress sender", "error", err.Error())
	}
}

func (c *Coordinator) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *Coordinator) StartedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.startedAt
}

// TransportsMeta lists the registered transports followed by the egress
// sender.
func (c *Coordinator) TransportsMeta() []TransportMetadata {
	metas := make([]TransportMetadata, 0, len(c.Transports)+1)
	for _, t := range c.Transports {
		metas = append(metas, t.Meta())
	}
	return append(metas, c.Sender.Meta())
}
