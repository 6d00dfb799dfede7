package proto

import (
	"errors"
	"fmt"
)

// MaxFrameSize is the largest frame a UDP datagram can carry.
const MaxFrameSize = 65535

var (
	ErrEmptyFrame       = errors.New("empty frame")
	ErrUnknownKind      = errors.New("unknown message kind")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrEncode           = errors.New("encode message")
)

// Codec turns messages into wire frames and back. A frame is one kind tag
// byte followed by the protobuf encoding of the payload.
//
// In strict mode any field number the schema does not define is rejected as
// a malformed payload. Lenient mode skips such fields the way protobuf
// runtimes do, which keeps older bridges compatible with newer nodes.
type Codec struct {
	Strict bool
}

var defaultCodec = Codec{}

func Encode(msg Message) ([]byte, error) { return defaultCodec.Encode(msg) }

func Decode(frame []byte) (Message, error) { return defaultCodec.Decode(frame) }

func (c Codec) Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrEncode)
	}
	kind := msg.Kind()
	e := &encoder{buf: []byte{byte(kind)}}
	msg.marshal(e)
	if e.err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrEncode, kind, e.err)
	}
	return e.buf, nil
}

func (c Codec) Decode(frame []byte) (Message, error) {
	kind, err := FrameKind(frame)
	if err != nil {
		return nil, err
	}
	msg, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err := msg.unmarshal(frame[1:], c.Strict); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, kind, err)
	}
	return msg, nil
}

// FrameKind reads the kind tag of a frame without decoding the payload.
func FrameKind(frame []byte) (Kind, error) {
	if len(frame) == 0 {
		return 0, ErrEmptyFrame
	}
	kind := Kind(frame[0])
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: tag %d", ErrUnknownKind, frame[0])
	}
	return kind, nil
}

// ErrorReason names a decode error for logs and metric labels.
func ErrorReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrEmptyFrame):
		return "empty_frame"
	case errors.Is(err, ErrUnknownKind):
		return "unknown_kind"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, ErrEncode):
		return "encode"
	default:
		return "other"
	}
}
