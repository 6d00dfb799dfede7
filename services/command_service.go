package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/mbocsi/telemux/proto"
	"github.com/mbocsi/telemux/server"
)

// CommandSource is the header source of commands issued by the bridge itself.
const CommandSource = "telemux"

// CommandServiceImpl implements CommandService
type CommandServiceImpl struct {
	coordinator *server.Coordinator
	tracker     *AckTracker
	seq         atomic.Uint64
}

// NewCommandService creates a new command service
func NewCommandService(c *server.Coordinator, tracker *AckTracker) CommandService {
	cs := &CommandServiceImpl{coordinator: c, tracker: tracker}
	cs.seq.Store(uint64(time.Now().Unix()) << 16)
	return cs
}

// SendActuatorCommand builds, encodes and queues an ActuatorCommand. With
// WaitForAck it blocks until the realtime node acknowledges it.
func (cs *CommandServiceImpl) SendActuatorCommand(ctx context.Context, req CommandRequest) (*CommandReceipt, error) {
	if err := validateCommand(req); err != nil {
		return nil, err
	}

	seq := cs.seq.Add(1)
	cmd := &proto.ActuatorCommand{
		Header: &proto.Header{
			Source:    CommandSource,
			Dest:      req.Dest,
			Seq:       seq,
			Timestamp: proto.TimestampOf(time.Now()),
		},
		ActuatorID: req.ActuatorID,
		Command:    req.Command,
		Value:      req.Value,
		Args:       req.Args,
	}
	frame, err := cs.coordinator.Codec.Encode(cmd)
	if err != nil {
		return nil, ServiceError{
			Code:    ErrCodeInvalidInput,
			Message: "Failed to encode actuator command",
			Cause:   err,
		}
	}

	var acks <-chan *proto.Ack
	if req.WaitForAck {
		var cancel func()
		acks, cancel = cs.tracker.Expect(seq)
		defer cancel()
	}

	if err := cs.SendFrame(CommandSource, frame); err != nil {
		return nil, err
	}

	receipt := &CommandReceipt{Seq: seq, Source: CommandSource, Bytes: len(frame)}
	if req.WaitForAck {
		ack, err := cs.tracker.Wait(ctx, seq, acks, req.Timeout)
		if err != nil {
			return receipt, err
		}
		receipt.Ack = ack
	}
	return receipt, nil
}

// SendFrame queues an already encoded frame
func (cs *CommandServiceImpl) SendFrame(source string, frame []byte) error {
	if _, err := proto.FrameKind(frame); err != nil {
		return ServiceError{
			Code:    ErrCodeInvalidInput,
			Message: "Frame does not start with a known kind tag",
			Cause:   err,
		}
	}
	if err := cs.coordinator.Submit(source, frame); err != nil {
		code := ErrCodeInternal
		if errors.Is(err, server.ErrEgressQueueFull) || errors.Is(err, server.ErrEgressClosed) {
			code = ErrCodeUnavailable
		}
		return ServiceError{
			Code:    code,
			Message: "Failed to queue frame for the realtime node",
			Cause:   err,
		}
	}
	return nil
}
