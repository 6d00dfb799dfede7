package server

import (
	"bytes"
	"errors"
	"testing"
)

func TestEgressQueue_PushUntilFull(t *testing.T) {
	q := NewEgressQueue(2)

	if err := q.Push([]byte{10, 1}); err != nil {
		t.Fatalf("Expected first push to succeed, got %v", err)
	}
	if err := q.Push([]byte{10, 2}); err != nil {
		t.Fatalf("Expected second push to succeed, got %v", err)
	}
	if err := q.Push([]byte{10, 3}); !errors.Is(err, ErrEgressQueueFull) {
		t.Errorf("Expected ErrEgressQueueFull, got %v", err)
	}
	if q.Len() != 2 || q.Cap() != 2 {
		t.Errorf("Expected len 2 cap 2, got len %d cap %d", q.Len(), q.Cap())
	}

	first := <-q.Frames()
	if !bytes.Equal(first, []byte{10, 1}) {
		t.Errorf("Expected FIFO order, got %v", first)
	}
}

func TestEgressQueue_PushCopiesFrame(t *testing.T) {
	q := NewEgressQueue(1)
	frame := []byte{10, 7, 7}
	q.Push(frame)
	frame[1] = 0

	got := <-q.Frames()
	if got[1] != 7 {
		t.Errorf("Expected queued frame to be independent of caller buffer, got %v", got)
	}
}

func TestEgressQueue_Close(t *testing.T) {
	q := NewEgressQueue(4)
	q.Push([]byte{10})
	q.Close()
	q.Close()

	if err := q.Push([]byte{10}); !errors.Is(err, ErrEgressClosed) {
		t.Errorf("Expected ErrEgressClosed, got %v", err)
	}

	var drained int
	for range q.Frames() {
		drained++
	}
	if drained != 1 {
		t.Errorf("Expected remaining frame to be drained after close, got %d", drained)
	}
}
