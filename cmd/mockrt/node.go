package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"time"

	"github.com/mbocsi/telemux/proto"
)

const source = "mock_realtime"

// Node plays the realtime software: it streams telemetry to the bridge and
// acknowledges every command the bridge forwards to it.
type Node struct {
	conn   *net.UDPConn
	target *net.UDPAddr
	codec  proto.Codec
	rate   time.Duration
	start  time.Time
	seq    uint64
}

func NewNode(listen, target string, rate time.Duration) (*Node, error) {
	laddr, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, fmt.Errorf("resolve listen address %s: %w", listen, err)
	}
	raddr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("resolve backend address %s: %w", target, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("bind udp %s: %w", listen, err)
	}
	if rate <= 0 {
		rate = 100 * time.Millisecond
	}
	return &Node{conn: conn, target: raddr, rate: rate, start: time.Now()}, nil
}

func (n *Node) LocalAddr() net.Addr {
	return n.conn.LocalAddr()
}

func (n *Node) Close() error {
	return n.conn.Close()
}

func (n *Node) header(seq uint64, frameID string) *proto.Header {
	return &proto.Header{
		Source:    source,
		Dest:      "backend",
		Seq:       seq,
		Timestamp: proto.TimestampOf(time.Now()),
		FrameID:   frameID,
	}
}

// Batch builds the sensor readings for a point in time: a sine scalar, a
// rotating position vector and slowly drifting temperatures.
func (n *Node) Batch(seq uint64, elapsed float64) *proto.SensorBatch {
	const radius = 5.0
	angle := elapsed
	ambient := 25.0 + math.Sin(elapsed*0.05)*5.0

	return &proto.SensorBatch{
		Header: n.header(seq, "world"),
		Readings: []*proto.SensorReading{
			{
				SensorID: "sine_wave",
				Type:     proto.SensorTypeScalar,
				Scalar:   math.Sin(elapsed*0.5)*10.0 + 20.0,
				Units:    "V",
			},
			{
				SensorID: "position_vector",
				Type:     proto.SensorTypeVector,
				Vector:   []float64{radius * math.Cos(angle), radius * math.Sin(angle), math.Sin(elapsed*0.1) * 2.0},
				Units:    "m",
			},
			{
				SensorID: "main_temp",
				Type:     proto.SensorTypeTemperature,
				Temperature: &proto.TemperatureData{
					Ambient: ambient,
					CPU:     45.0 + math.Sin(elapsed*0.1)*10.0,
					Board:   ambient + 2.0,
				},
				Units: "C",
			},
		},
	}
}

func (n *Node) Status(seq uint64, elapsed float64) *proto.SystemStatus {
	return &proto.SystemStatus{
		Header: n.header(seq, "system"),
		State:  proto.SystemStateRunning,
		Detail: "System is running normally",
		Metrics: map[string]float64{
			"cpu_load":     15.0 + math.Sin(elapsed*0.2)*5.0,
			"memory_usage": 256.0,
		},
	}
}

func (n *Node) Heartbeat(seq uint64, elapsed float64) *proto.Heartbeat {
	return &proto.Heartbeat{
		Header:   n.header(seq, "system"),
		UptimeMs: uint64(elapsed * 1000),
	}
}

// Ack answers a command back to its issuer through the bridge.
func (n *Node) Ack(msg proto.Message, seq uint64) *proto.Ack {
	detail := "accepted " + msg.Kind().String()
	if cmd, ok := msg.(*proto.ActuatorCommand); ok {
		detail = fmt.Sprintf("applied %s on %s", cmd.Command, cmd.ActuatorID)
	}
	header := n.header(seq, "system")
	header.Dest = msg.GetHeader().GetSource()
	return &proto.Ack{
		Header:   header,
		AckedSeq: msg.GetHeader().GetSeq(),
		OK:       true,
		Detail:   detail,
	}
}

func (n *Node) send(msg proto.Message) {
	frame, err := n.codec.Encode(msg)
	if err != nil {
		slog.Error("Failed to encode packet", "kind", msg.Kind(), "error", err)
		return
	}
	if _, err := n.conn.WriteToUDP(frame, n.target); err != nil {
		slog.Error("Failed to send packet", "kind", msg.Kind(), "error", err)
	}
}

// RunTelemetry sends a SensorBatch every tick and a SystemStatus and
// Heartbeat every tenth tick.
func (n *Node) RunTelemetry(ctx context.Context) error {
	ticker := time.NewTicker(n.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		n.seq++
		elapsed := time.Since(n.start).Seconds()
		n.send(n.Batch(n.seq, elapsed))
		if n.seq%10 == 0 {
			n.send(n.Status(n.seq, elapsed))
			n.send(n.Heartbeat(n.seq, elapsed))
		}
	}
}

// RunCommands decodes every datagram the bridge forwards and acks it.
func (n *Node) RunCommands(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		n.conn.Close()
	})
	defer stop()

	var ackSeq uint64
	buf := make([]byte, proto.MaxFrameSize)
	for {
		size, from, err := n.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read command: %w", err)
		}

		msg, err := n.codec.Decode(buf[:size])
		if err != nil {
			slog.Warn("Dropping undecodable command", "from", from, "reason", proto.ErrorReason(err), "error", err)
			continue
		}
		slog.Info("Command received", "kind", msg.Kind(), "seq", msg.GetHeader().GetSeq(), "source", msg.GetHeader().GetSource())

		ackSeq++
		n.send(n.Ack(msg, ackSeq))
	}
}
