package server

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mbocsi/telemux/proto"
)

// ---------- ingest ---------- //

// Handle is the ingest path: the latest value is cached first, then the
// message is fanned out to every subscriber.
func (c *Coordinator) Handle(msg proto.Message) {
	c.Cache.Store(msg)
	drops := c.Broker.Publish(msg)
	c.Metrics.RecordDrops(drops)

	slog.Debug("Message ingested", "kind", msg.Kind(), "seq", msg.GetHeader().GetSeq(), "dropped", drops)
}

// ---------- commands ---------- //

// Forward queues a raw client frame for the realtime node. The payload is
// not decoded; the realtime node is the authority on commands.
func (c *Coordinator) Forward(client Client, frame []byte) error {
	return c.Submit(client.Meta().Id, frame)
}

// Submit queues a frame on behalf of source, which is a client id or the
// name of an internal caller such as the HTTP API.
func (c *Coordinator) Submit(source string, frame []byte) error {
	label := "unknown"
	if kind, err := proto.FrameKind(frame); err == nil {
		label = kind.String()
	}

	if err := c.Egress.Push(frame); err != nil {
		reason := "queue_full"
		if errors.Is(err, ErrEgressClosed) {
			reason = "closed"
		}
		c.Metrics.RecordCommandRejected(reason)
		slog.Warn("Command frame rejected", "source", source, "kind", label, "size", len(frame), "reason", reason)
		return fmt.Errorf("forward from %s: %w", source, err)
	}

	c.Metrics.RecordCommandForwarded(label, c.Egress.Len())
	slog.Debug("Command frame queued", "source", source, "kind", label, "size", len(frame), "depth", c.Egress.Len())
	return nil
}

// SubmitMessage encodes msg and queues it like a client frame.
func (c *Coordinator) SubmitMessage(source string, msg proto.Message) error {
	frame, err := c.Codec.Encode(msg)
	if err != nil {
		c.Metrics.RecordEncodeError()
		return err
	}
	return c.Submit(source, frame)
}
