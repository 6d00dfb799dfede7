package proto

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFrameStream(t *testing.T) {
	frame, err := Encode(&Heartbeat{Header: &Header{Seq: 12}, UptimeMs: 500})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, frame); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if err := WriteFrame(&buf, nil); err != nil {
		t.Fatalf("WriteFrame keepalive failed: %v", err)
	}
	if buf.Len() != len(frame)+4 {
		t.Errorf("Expected %d buffered bytes, got %d", len(frame)+4, buf.Len())
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Errorf("Expected %x, got %x", frame, got)
	}
	keepalive, err := ReadFrame(&buf)
	if err != nil || len(keepalive) != 0 {
		t.Errorf("Expected empty keepalive frame, got %x %v", keepalive, err)
	}
	if _, err := ReadFrame(&buf); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF at end of stream, got %v", err)
	}
}

func TestReadFrame_Truncated(t *testing.T) {
	r := bytes.NewReader([]byte{0x00, 0x05, 0x01, 0x02})
	if _, err := ReadFrame(r); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestWriteFrame_TooLarge(t *testing.T) {
	if err := WriteFrame(io.Discard, make([]byte, MaxFrameSize+1)); err == nil {
		t.Error("Expected error for oversized frame")
	}
}
