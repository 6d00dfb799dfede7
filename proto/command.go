package proto

// Kinds flowing from the dashboard back to the realtime node, and the
// node's acknowledgement.

type ActuatorCommand struct {
	Header     *Header   `json:"header,omitempty"`
	ActuatorID string    `json:"actuator_id"`
	Command    string    `json:"command"`
	Value      float64   `json:"value,omitempty"`
	Args       []float64 `json:"args,omitempty"`
}

func (*ActuatorCommand) Kind() Kind            { return KindActuatorCommand }
func (m *ActuatorCommand) GetHeader() *Header { return m.Header }

func (m *ActuatorCommand) marshal(e *encoder) {
	marshalHeader(e, m.Header)
	e.string(2, m.ActuatorID)
	e.string(3, m.Command)
	e.double(4, m.Value)
	e.doubles(5, m.Args)
}

func (m *ActuatorCommand) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) (err error) {
		switch f.num {
		case 1:
			err = unmarshalHeader(f, &m.Header)
		case 2:
			m.ActuatorID, err = f.string()
		case 3:
			m.Command, err = f.string()
		case 4:
			m.Value, err = f.double()
		case 5:
			m.Args, err = f.doubles(m.Args)
		default:
			return errUnknownField
		}
		return err
	})
}

type Ack struct {
	Header   *Header `json:"header,omitempty"`
	AckedSeq uint64  `json:"acked_seq"`
	OK       bool    `json:"ok"`
	Detail   string  `json:"detail,omitempty"`
}

func (*Ack) Kind() Kind            { return KindAck }
func (m *Ack) GetHeader() *Header { return m.Header }

func (m *Ack) marshal(e *encoder) {
	marshalHeader(e, m.Header)
	e.uint64(2, m.AckedSeq)
	e.bool(3, m.OK)
	e.string(4, m.Detail)
}

func (m *Ack) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) (err error) {
		switch f.num {
		case 1:
			err = unmarshalHeader(f, &m.Header)
		case 2:
			m.AckedSeq, err = f.uint64()
		case 3:
			m.OK, err = f.bool()
		case 4:
			m.Detail, err = f.string()
		default:
			return errUnknownField
		}
		return err
	})
}
