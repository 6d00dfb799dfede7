package server

import (
	"errors"
	"sync"
)

var (
	ErrEgressQueueFull = errors.New("egress queue full")
	ErrEgressClosed    = errors.New("egress queue closed")
)

// EgressQueue is the bounded hand-off between every client session and the
// single UDP sender. Producers never wait.
type EgressQueue struct {
	frames chan []byte

	mu     sync.RWMutex
	closed bool
}

func NewEgressQueue(capacity int) *EgressQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &EgressQueue{frames: make(chan []byte, capacity)}
}

// Push queues a copy of frame for the sender.
func (q *EgressQueue) Push(frame []byte) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrEgressClosed
	}

	buf := make([]byte, len(frame))
	copy(buf, frame)
	select {
	case q.frames <- buf:
		return nil
	default:
		return ErrEgressQueueFull
	}
}

// Frames is drained by the sender. It is closed by Close once the remaining
// frames have been read.
func (q *EgressQueue) Frames() <-chan []byte {
	return q.frames
}

func (q *EgressQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.frames)
}

func (q *EgressQueue) Len() int {
	return len(q.frames)
}

func (q *EgressQueue) Cap() int {
	return cap(q.frames)
}
