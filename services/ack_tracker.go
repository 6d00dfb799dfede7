package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mbocsi/telemux/proto"
	"github.com/mbocsi/telemux/server"
)

// AckTracker correlates Ack messages from the realtime node with commands
// sent by the service layer. It matches on the ack's destination and acked
// sequence number.
type AckTracker struct {
	feed    server.Feed
	source  string
	timeout time.Duration

	mu      sync.Mutex
	pending map[uint64]chan *proto.Ack
}

func NewAckTracker(feed server.Feed, source string) *AckTracker {
	return &AckTracker{
		feed:    feed,
		source:  source,
		timeout: 5 * time.Second,
		pending: make(map[uint64]chan *proto.Ack),
	}
}

// Expect registers interest in the ack for seq. The returned cancel func
// must be called once the caller stops waiting.
func (at *AckTracker) Expect(seq uint64) (<-chan *proto.Ack, func()) {
	ch := make(chan *proto.Ack, 1)
	at.mu.Lock()
	at.pending[seq] = ch
	at.mu.Unlock()

	return ch, func() {
		at.mu.Lock()
		delete(at.pending, seq)
		at.mu.Unlock()
	}
}

// Wait blocks until the ack arrives, the timeout passes or ctx is done.
func (at *AckTracker) Wait(ctx context.Context, seq uint64, ch <-chan *proto.Ack, timeout time.Duration) (*proto.Ack, error) {
	if timeout <= 0 {
		timeout = at.timeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack := <-ch:
		return ack, nil
	case <-timer.C:
		return nil, ServiceError{
			Code:    ErrCodeTimeout,
			Message: fmt.Sprintf("No ack for seq %d after %v", seq, timeout),
		}
	case <-ctx.Done():
		return nil, ServiceError{
			Code:    ErrCodeTimeout,
			Message: fmt.Sprintf("Gave up waiting for ack of seq %d", seq),
			Cause:   ctx.Err(),
		}
	}
}

// HandleMessage resolves a pending command if msg is its ack.
func (at *AckTracker) HandleMessage(msg proto.Message) bool {
	ack, ok := msg.(*proto.Ack)
	if !ok {
		return false
	}
	if dest := ack.GetHeader().GetDest(); dest != "" && dest != at.source {
		return false
	}

	at.mu.Lock()
	ch, exists := at.pending[ack.AckedSeq]
	if exists {
		delete(at.pending, ack.AckedSeq)
	}
	at.mu.Unlock()
	if !exists {
		return false
	}

	select {
	case ch <- ack:
		return true
	default:
		return false
	}
}

// Run follows the bus until ctx is cancelled or the bus closes.
func (at *AckTracker) Run(ctx context.Context) error {
	sub := at.feed.Subscribe("ack-tracker")
	defer sub.Close()

	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, server.ErrSubscriptionClosed) {
				return nil
			}
			return err
		}
		if at.HandleMessage(msg) {
			slog.Debug("Command acknowledged", "seq", msg.(*proto.Ack).AckedSeq)
		}
	}
}
