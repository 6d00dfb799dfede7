package proto

import "fmt"

// Telemetry published by the realtime node.

type SensorType int32

const (
	SensorTypeUnspecified SensorType = 0
	SensorTypeScalar      SensorType = 1
	SensorTypeVector      SensorType = 2
	SensorTypeTemperature SensorType = 3
)

type TemperatureData struct {
	Ambient float64 `json:"ambient"`
	CPU     float64 `json:"cpu"`
	Board   float64 `json:"board"`
}

func (t *TemperatureData) marshal(e *encoder) {
	e.double(1, t.Ambient)
	e.double(2, t.CPU)
	e.double(3, t.Board)
}

func (t *TemperatureData) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) (err error) {
		switch f.num {
		case 1:
			t.Ambient, err = f.double()
		case 2:
			t.CPU, err = f.double()
		case 3:
			t.Board, err = f.double()
		default:
			return errUnknownField
		}
		return err
	})
}

type SensorReading struct {
	SensorID    string           `json:"sensor_id"`
	Type        SensorType       `json:"type"`
	Scalar      float64          `json:"scalar,omitempty"`
	Vector      []float64        `json:"vector,omitempty"`
	Temperature *TemperatureData `json:"temperature,omitempty"`
	Units       string           `json:"units,omitempty"`
}

func (r *SensorReading) marshal(e *encoder) {
	e.string(1, r.SensorID)
	e.int32(2, int32(r.Type))
	e.double(3, r.Scalar)
	e.doubles(4, r.Vector)
	e.message(5, r.Temperature, r.Temperature != nil)
	e.string(6, r.Units)
}

func (r *SensorReading) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) (err error) {
		switch f.num {
		case 1:
			r.SensorID, err = f.string()
		case 2:
			var v int32
			v, err = f.int32()
			r.Type = SensorType(v)
		case 3:
			r.Scalar, err = f.double()
		case 4:
			r.Vector, err = f.doubles(r.Vector)
		case 5:
			r.Temperature = &TemperatureData{}
			err = f.message(r.Temperature)
		case 6:
			r.Units, err = f.string()
		default:
			return errUnknownField
		}
		return err
	})
}

type SensorBatch struct {
	Header   *Header          `json:"header,omitempty"`
	Readings []*SensorReading `json:"readings,omitempty"`
}

func (*SensorBatch) Kind() Kind            { return KindSensorBatch }
func (m *SensorBatch) GetHeader() *Header { return m.Header }

func (m *SensorBatch) marshal(e *encoder) {
	marshalHeader(e, m.Header)
	for i, r := range m.Readings {
		if r == nil {
			e.fail(fmt.Errorf("field 2: reading %d is nil", i))
			return
		}
		e.message(2, r, true)
	}
}

func (m *SensorBatch) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) error {
		switch f.num {
		case 1:
			return unmarshalHeader(f, &m.Header)
		case 2:
			r := &SensorReading{}
			if err := f.message(r); err != nil {
				return err
			}
			m.Readings = append(m.Readings, r)
			return nil
		default:
			return errUnknownField
		}
	})
}

type SystemState int32

const (
	SystemStateUnspecified SystemState = 0
	SystemStateIdle        SystemState = 1
	SystemStateRunning     SystemState = 2
	SystemStatePaused      SystemState = 3
	SystemStateFault       SystemState = 4
	SystemStateStopped     SystemState = 5
)

type RealtimeStats struct {
	CycleTimeUs float64 `json:"cycle_time_us"`
	JitterUs    float64 `json:"jitter_us"`
	Overruns    uint64  `json:"overruns"`
}

func (s *RealtimeStats) marshal(e *encoder) {
	e.double(1, s.CycleTimeUs)
	e.double(2, s.JitterUs)
	e.uint64(3, s.Overruns)
}

func (s *RealtimeStats) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) (err error) {
		switch f.num {
		case 1:
			s.CycleTimeUs, err = f.double()
		case 2:
			s.JitterUs, err = f.double()
		case 3:
			s.Overruns, err = f.uint64()
		default:
			return errUnknownField
		}
		return err
	})
}

type SystemStatus struct {
	Header  *Header            `json:"header,omitempty"`
	State   SystemState        `json:"state"`
	Detail  string             `json:"detail,omitempty"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
	RT      *RealtimeStats     `json:"rt,omitempty"`
}

func (*SystemStatus) Kind() Kind            { return KindSystemStatus }
func (m *SystemStatus) GetHeader() *Header { return m.Header }

func (m *SystemStatus) marshal(e *encoder) {
	marshalHeader(e, m.Header)
	e.int32(2, int32(m.State))
	e.string(3, m.Detail)
	e.stringDoubleMap(4, m.Metrics)
	e.message(5, m.RT, m.RT != nil)
}

func (m *SystemStatus) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) (err error) {
		switch f.num {
		case 1:
			err = unmarshalHeader(f, &m.Header)
		case 2:
			var v int32
			v, err = f.int32()
			m.State = SystemState(v)
		case 3:
			m.Detail, err = f.string()
		case 4:
			m.Metrics, err = f.stringDoubleEntry(m.Metrics)
		case 5:
			m.RT = &RealtimeStats{}
			err = f.message(m.RT)
		default:
			return errUnknownField
		}
		return err
	})
}

type HardwareStatus struct {
	Header      *Header `json:"header,omitempty"`
	DeviceID    string  `json:"device_id"`
	Online      bool    `json:"online"`
	Firmware    string  `json:"firmware,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Voltage     float64 `json:"voltage,omitempty"`
	ErrorCode   uint32  `json:"error_code,omitempty"`
}

func (*HardwareStatus) Kind() Kind            { return KindHardwareStatus }
func (m *HardwareStatus) GetHeader() *Header { return m.Header }

func (m *HardwareStatus) marshal(e *encoder) {
	marshalHeader(e, m.Header)
	e.string(2, m.DeviceID)
	e.bool(3, m.Online)
	e.string(4, m.Firmware)
	e.double(5, m.Temperature)
	e.double(6, m.Voltage)
	e.uint64(7, uint64(m.ErrorCode))
}

func (m *HardwareStatus) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) (err error) {
		switch f.num {
		case 1:
			err = unmarshalHeader(f, &m.Header)
		case 2:
			m.DeviceID, err = f.string()
		case 3:
			m.Online, err = f.bool()
		case 4:
			m.Firmware, err = f.string()
		case 5:
			m.Temperature, err = f.double()
		case 6:
			m.Voltage, err = f.double()
		case 7:
			m.ErrorCode, err = f.uint32()
		default:
			return errUnknownField
		}
		return err
	})
}

type Heartbeat struct {
	Header   *Header `json:"header,omitempty"`
	UptimeMs uint64  `json:"uptime_ms"`
	Load     float64 `json:"load,omitempty"`
}

func (*Heartbeat) Kind() Kind            { return KindHeartbeat }
func (m *Heartbeat) GetHeader() *Header { return m.Header }

func (m *Heartbeat) marshal(e *encoder) {
	marshalHeader(e, m.Header)
	e.uint64(2, m.UptimeMs)
	e.double(3, m.Load)
}

func (m *Heartbeat) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) (err error) {
		switch f.num {
		case 1:
			err = unmarshalHeader(f, &m.Header)
		case 2:
			m.UptimeMs, err = f.uint64()
		case 3:
			m.Load, err = f.double()
		default:
			return errUnknownField
		}
		return err
	})
}

// TimeSync carries an NTP style exchange: T1 client send, T2 server
// receive, T3 server send, all in Unix nanoseconds.
type TimeSync struct {
	Header   *Header `json:"header,omitempty"`
	T1       int64   `json:"t1"`
	T2       int64   `json:"t2"`
	T3       int64   `json:"t3"`
	OffsetNs int64   `json:"offset_ns"`
}

func (*TimeSync) Kind() Kind            { return KindTimeSync }
func (m *TimeSync) GetHeader() *Header { return m.Header }

func (m *TimeSync) marshal(e *encoder) {
	marshalHeader(e, m.Header)
	e.int64(2, m.T1)
	e.int64(3, m.T2)
	e.int64(4, m.T3)
	e.int64(5, m.OffsetNs)
}

func (m *TimeSync) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) (err error) {
		switch f.num {
		case 1:
			err = unmarshalHeader(f, &m.Header)
		case 2:
			m.T1, err = f.int64()
		case 3:
			m.T2, err = f.int64()
		case 4:
			m.T3, err = f.int64()
		case 5:
			m.OffsetNs, err = f.int64()
		default:
			return errUnknownField
		}
		return err
	})
}
