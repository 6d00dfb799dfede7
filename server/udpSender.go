package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/mbocsi/telemux/metrics"
	"github.com/mbocsi/telemux/proto"
)

// UDPSender drains the egress queue and writes each frame, unmodified, to
// the realtime node as one datagram.
type UDPSender struct {
	Dest    string
	queue   *EgressQueue
	metrics *metrics.Metrics

	name        string
	description string

	mu        sync.RWMutex
	conn      net.PacketConn
	dest      net.Addr
	connected bool
	closing   bool
	cancel    context.CancelFunc
}

func NewUDPSender(dest string, queue *EgressQueue) *UDPSender {
	return &UDPSender{Dest: dest, queue: queue}
}

func (s *UDPSender) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Listen binds an ephemeral local endpoint and resolves the destination.
func (s *UDPSender) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return fmt.Errorf("bind udp egress: %w", net.ErrClosed)
	}
	if s.conn != nil {
		return nil
	}

	dest, err := net.ResolveUDPAddr("udp", s.Dest)
	if err != nil {
		return fmt.Errorf("resolve realtime host %s: %w", s.Dest, err)
	}
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return fmt.Errorf("bind udp egress: %w", err)
	}
	s.conn = conn
	s.dest = dest
	s.connected = true
	slog.Info("UDP egress bound", "local", conn.LocalAddr().String(), "dest", dest.String())
	return nil
}

func (s *UDPSender) LocalAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Run sends queued frames until the queue is closed and drained or ctx is
// cancelled. Send failures are logged and counted but do not stop the loop.
func (s *UDPSender) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	}
	s.mu.RLock()
	conn, dest := s.conn, s.dest
	s.mu.RUnlock()

	defer func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-s.queue.Frames():
			if !ok {
				return nil
			}
			kind, _ := proto.FrameKind(frame)
			if _, err := conn.WriteTo(frame, dest); err != nil {
				slog.Warn("Failed to send frame to realtime node", "dest", dest.String(), "kind", kind, "size", len(frame), "error", err)
				s.metrics.RecordEgressError(s.queue.Len())
				continue
			}
			slog.Debug("Frame sent to realtime node", "dest", dest.String(), "kind", kind, "size", len(frame))
			s.metrics.RecordEgressSent(s.queue.Len())
		}
	}
}

// Start runs the sender until Shutdown.
func (s *UDPSender) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()
	return s.Run(ctx)
}

func (s *UDPSender) Shutdown() error {
	slog.Info("Shutting down UDP egress", "dest", s.Dest)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closing = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *UDPSender) Meta() TransportMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return TransportMetadata{
		ID:          "udp-egress-" + s.Dest,
		Name:        s.name,
		Description: s.description,
		Protocol:    "udp",
		Address:     s.Dest,
		Connected:   s.connected,
	}
}

func (s *UDPSender) SetName(name string) {
	s.name = name
}

func (s *UDPSender) SetDescription(description string) {
	s.description = description
}
