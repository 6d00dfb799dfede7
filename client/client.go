package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbocsi/telemux/proto"
)

// Client follows the bridge's telemetry stream and sends commands to the
// realtime node through it.
type Client struct {
	Name      string
	transport Transport
	connected atomic.Bool

	// Handlers
	handlerMu sync.RWMutex
	handlers  map[proto.Kind]func(proto.Message) error
	fallback  func(proto.Message) error

	latestMu sync.RWMutex
	latest   map[proto.Kind]proto.Message

	// Pending command acks by seq
	ackMu    sync.Mutex
	ackChans map[uint64]chan *proto.Ack

	seq atomic.Uint64
}

func NewClient(name string, t Transport) *Client {
	c := &Client{
		Name:      name,
		transport: t,
		handlers:  make(map[proto.Kind]func(proto.Message) error),
		latest:    make(map[proto.Kind]proto.Message),
		ackChans:  make(map[uint64]chan *proto.Ack),
	}
	c.seq.Store(uint64(time.Now().UnixNano()) & 0xFFFFFFFF)
	return c
}

func (c *Client) Connect(ctx context.Context, addr string) error {
	if err := c.transport.Connect(ctx, addr); err != nil {
		return err
	}
	c.connected.Store(true)
	slog.Info("Connected to bridge", "addr", addr, "name", c.Name)
	return nil
}

// Start connects and runs the read loop until ctx is cancelled or the
// connection ends.
func (c *Client) Start(ctx context.Context, addr string) error {
	if err := c.Connect(ctx, addr); err != nil {
		return err
	}
	return c.Run(ctx)
}

func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Run reads frames and dispatches them to the registered handlers.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		c.Close()
	})
	defer stop()

	for {
		msg, err := c.transport.Read()
		if err != nil {
			if isDecodeError(err) {
				slog.Warn("Skipping undecodable frame", "reason", proto.ErrorReason(err), "error", err)
				continue
			}
			c.connected.Store(false)
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg proto.Message) {
	slog.Debug("Message Received", "kind", msg.Kind(), "seq", msg.GetHeader().GetSeq(), "source", msg.GetHeader().GetSource())

	c.latestMu.Lock()
	c.latest[msg.Kind()] = msg
	c.latestMu.Unlock()

	if ack, ok := msg.(*proto.Ack); ok {
		c.resolveAck(ack)
	}

	c.handlerMu.RLock()
	handler, ok := c.handlers[msg.Kind()]
	if !ok {
		handler = c.fallback
	}
	c.handlerMu.RUnlock()
	if handler == nil {
		return
	}
	if err := handler(msg); err != nil {
		slog.Warn("An error occured in message handler", "kind", msg.Kind(), "error", err.Error())
	}
}

func (c *Client) resolveAck(ack *proto.Ack) {
	if dest := ack.GetHeader().GetDest(); dest != "" && dest != c.Name {
		return
	}
	c.ackMu.Lock()
	ch, ok := c.ackChans[ack.AckedSeq]
	if ok {
		ch <- ack
		close(ch)
		delete(c.ackChans, ack.AckedSeq)
	}
	c.ackMu.Unlock()
}

// Handle registers the handler for one kind, replacing any previous one.
func (c *Client) Handle(kind proto.Kind, handler func(proto.Message) error) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %d", proto.ErrUnknownKind, uint8(kind))
	}
	if handler == nil {
		return fmt.Errorf("handler must be provided for %s", kind)
	}
	c.handlerMu.Lock()
	c.handlers[kind] = handler
	c.handlerMu.Unlock()
	return nil
}

// HandleAll registers the handler for kinds without their own handler.
func (c *Client) HandleAll(handler func(proto.Message) error) {
	c.handlerMu.Lock()
	c.fallback = handler
	c.handlerMu.Unlock()
}

// Latest returns the last message of a kind seen on this connection.
func (c *Client) Latest(kind proto.Kind) (proto.Message, bool) {
	c.latestMu.RLock()
	defer c.latestMu.RUnlock()
	msg, ok := c.latest[kind]
	return msg, ok
}

// Send stamps the header with this client's name, the next sequence number
// and the current time, then sends the message as one binary frame.
func (c *Client) Send(msg proto.Message) (uint64, error) {
	header := msg.GetHeader()
	if header == nil {
		return 0, fmt.Errorf("%w: %s without header", proto.ErrEncode, msg.Kind())
	}
	if header.Source == "" {
		header.Source = c.Name
	}
	if header.Seq == 0 {
		header.Seq = c.seq.Add(1)
	}
	if header.Timestamp == nil {
		header.Timestamp = proto.TimestampOf(time.Now())
	}
	return header.Seq, c.transport.Send(msg)
}

// SendFrame sends an already encoded frame untouched.
func (c *Client) SendFrame(frame []byte) error {
	return c.transport.SendFrame(frame)
}

func (c *Client) SendCommand(actuatorID, command string, value float64, args ...float64) (uint64, error) {
	return c.Send(newCommand(actuatorID, command, value, args))
}

// SendCommandAwait sends an actuator command and waits for the realtime
// node's Ack. Run must be active for the ack to be seen.
func (c *Client) SendCommandAwait(ctx context.Context, actuatorID, command string, value float64, args ...float64) (*proto.Ack, error) {
	cmd := newCommand(actuatorID, command, value, args)
	cmd.Header.Seq = c.seq.Add(1)

	ch := make(chan *proto.Ack, 1)
	c.ackMu.Lock()
	c.ackChans[cmd.Header.Seq] = ch
	c.ackMu.Unlock()
	defer func() {
		c.ackMu.Lock()
		delete(c.ackChans, cmd.Header.Seq)
		c.ackMu.Unlock()
	}()

	if _, err := c.Send(cmd); err != nil {
		return nil, err
	}

	select {
	case ack := <-ch:
		return ack, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for ack of seq %d: %w", cmd.Header.Seq, ctx.Err())
	}
}

func (c *Client) Close() error {
	c.connected.Store(false)
	return c.transport.Close()
}

func newCommand(actuatorID, command string, value float64, args []float64) *proto.ActuatorCommand {
	return &proto.ActuatorCommand{
		Header:     &proto.Header{},
		ActuatorID: actuatorID,
		Command:    command,
		Value:      value,
		Args:       args,
	}
}

func isDecodeError(err error) bool {
	return errors.Is(err, proto.ErrEmptyFrame) ||
		errors.Is(err, proto.ErrUnknownKind) ||
		errors.Is(err, proto.ErrMalformedPayload)
}
