package proto

import (
	"time"
)

// Message is one decoded payload of a known kind. The set of implementations
// is closed: only the payload types of this package satisfy it.
type Message interface {
	Kind() Kind
	GetHeader() *Header

	marshal(*encoder)
	unmarshal(b []byte, strict bool) error
}

// Timestamp mirrors google.protobuf.Timestamp on the wire.
type Timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

func TimestampOf(t time.Time) *Timestamp {
	return &Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

func (t *Timestamp) AsTime() time.Time {
	if t == nil {
		return time.Time{}
	}
	return time.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

func (t *Timestamp) marshal(e *encoder) {
	e.int64(1, t.Seconds)
	e.int32(2, t.Nanos)
}

func (t *Timestamp) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) (err error) {
		switch f.num {
		case 1:
			t.Seconds, err = f.int64()
		case 2:
			t.Nanos, err = f.int32()
		default:
			return errUnknownField
		}
		return err
	})
}

type QoS struct {
	Reliable   bool   `json:"reliable,omitempty"`
	Priority   uint32 `json:"priority,omitempty"`
	DeadlineMs uint32 `json:"deadline_ms,omitempty"`
}

func (q *QoS) marshal(e *encoder) {
	e.bool(1, q.Reliable)
	e.uint64(2, uint64(q.Priority))
	e.uint64(3, uint64(q.DeadlineMs))
}

func (q *QoS) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) (err error) {
		switch f.num {
		case 1:
			q.Reliable, err = f.bool()
		case 2:
			q.Priority, err = f.uint32()
		case 3:
			q.DeadlineMs, err = f.uint32()
		default:
			return errUnknownField
		}
		return err
	})
}

// Header is carried as field 1 of every message kind.
type Header struct {
	Source    string     `json:"source,omitempty"`
	Dest      string     `json:"dest,omitempty"`
	Seq       uint64     `json:"seq,omitempty"`
	Timestamp *Timestamp `json:"timestamp,omitempty"`
	FrameID   string     `json:"frame_id,omitempty"`
	QoS       *QoS       `json:"qos,omitempty"`
}

func (h *Header) GetSeq() uint64 {
	if h == nil {
		return 0
	}
	return h.Seq
}

func (h *Header) GetDest() string {
	if h == nil {
		return ""
	}
	return h.Dest
}

func (h *Header) GetSource() string {
	if h == nil {
		return ""
	}
	return h.Source
}

func (h *Header) marshal(e *encoder) {
	e.string(1, h.Source)
	e.string(2, h.Dest)
	e.uint64(3, h.Seq)
	e.message(4, h.Timestamp, h.Timestamp != nil)
	e.string(5, h.FrameID)
	e.message(6, h.QoS, h.QoS != nil)
}

func (h *Header) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) (err error) {
		switch f.num {
		case 1:
			h.Source, err = f.string()
		case 2:
			h.Dest, err = f.string()
		case 3:
			h.Seq, err = f.uint64()
		case 4:
			h.Timestamp = &Timestamp{}
			err = f.message(h.Timestamp)
		case 5:
			h.FrameID, err = f.string()
		case 6:
			h.QoS = &QoS{}
			err = f.message(h.QoS)
		default:
			return errUnknownField
		}
		return err
	})
}

// header helpers shared by every kind

func marshalHeader(e *encoder, h *Header) {
	e.message(1, h, h != nil)
}

func unmarshalHeader(f field, h **Header) error {
	*h = &Header{}
	return f.message(*h)
}
