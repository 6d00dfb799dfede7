package proto

// Kinds driving the simulation and test harness on the realtime node.

type ClockModulation struct {
	Header  *Header `json:"header,omitempty"`
	Factor  float64 `json:"factor"`
	Enabled bool    `json:"enabled"`
}

func (*ClockModulation) Kind() Kind            { return KindClockModulation }
func (m *ClockModulation) GetHeader() *Header { return m.Header }

func (m *ClockModulation) marshal(e *encoder) {
	marshalHeader(e, m.Header)
	e.double(2, m.Factor)
	e.bool(3, m.Enabled)
}

func (m *ClockModulation) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) (err error) {
		switch f.num {
		case 1:
			err = unmarshalHeader(f, &m.Header)
		case 2:
			m.Factor, err = f.double()
		case 3:
			m.Enabled, err = f.bool()
		default:
			return errUnknownField
		}
		return err
	})
}

type TestCase struct {
	Header      *Header           `json:"header,omitempty"`
	ID          string            `json:"id"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	TimeoutMs   uint32            `json:"timeout_ms,omitempty"`
}

func (*TestCase) Kind() Kind            { return KindTestCase }
func (m *TestCase) GetHeader() *Header { return m.Header }

func (m *TestCase) marshal(e *encoder) {
	marshalHeader(e, m.Header)
	e.string(2, m.ID)
	e.string(3, m.Name)
	e.string(4, m.Description)
	e.stringStringMap(5, m.Parameters)
	e.uint64(6, uint64(m.TimeoutMs))
}

func (m *TestCase) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) (err error) {
		switch f.num {
		case 1:
			err = unmarshalHeader(f, &m.Header)
		case 2:
			m.ID, err = f.string()
		case 3:
			m.Name, err = f.string()
		case 4:
			m.Description, err = f.string()
		case 5:
			m.Parameters, err = f.stringStringEntry(m.Parameters)
		case 6:
			m.TimeoutMs, err = f.uint32()
		default:
			return errUnknownField
		}
		return err
	})
}

type SimState int32

const (
	SimStateUnspecified SimState = 0
	SimStateStopped     SimState = 1
	SimStateRunning     SimState = 2
	SimStatePaused      SimState = 3
	SimStateStepping    SimState = 4
)

type SimulationState struct {
	Header         *Header  `json:"header,omitempty"`
	State          SimState `json:"state"`
	SimTime        float64  `json:"sim_time"`
	Step           uint64   `json:"step"`
	RealTimeFactor float64  `json:"real_time_factor"`
}

func (*SimulationState) Kind() Kind            { return KindSimulationState }
func (m *SimulationState) GetHeader() *Header { return m.Header }

func (m *SimulationState) marshal(e *encoder) {
	marshalHeader(e, m.Header)
	e.int32(2, int32(m.State))
	e.double(3, m.SimTime)
	e.uint64(4, m.Step)
	e.double(5, m.RealTimeFactor)
}

func (m *SimulationState) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) (err error) {
		switch f.num {
		case 1:
			err = unmarshalHeader(f, &m.Header)
		case 2:
			var v int32
			v, err = f.int32()
			m.State = SimState(v)
		case 3:
			m.SimTime, err = f.double()
		case 4:
			m.Step, err = f.uint64()
		case 5:
			m.RealTimeFactor, err = f.double()
		default:
			return errUnknownField
		}
		return err
	})
}

type Verdict int32

const (
	VerdictUnspecified Verdict = 0
	VerdictPass        Verdict = 1
	VerdictFail        Verdict = 2
	VerdictError       Verdict = 3
	VerdictSkipped     Verdict = 4
)

type TestResult struct {
	Header       *Header            `json:"header,omitempty"`
	TestID       string             `json:"test_id"`
	Verdict      Verdict            `json:"verdict"`
	Message      string             `json:"message,omitempty"`
	DurationMs   uint64             `json:"duration_ms,omitempty"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
}

func (*TestResult) Kind() Kind            { return KindTestResult }
func (m *TestResult) GetHeader() *Header { return m.Header }

func (m *TestResult) marshal(e *encoder) {
	marshalHeader(e, m.Header)
	e.string(2, m.TestID)
	e.int32(3, int32(m.Verdict))
	e.string(4, m.Message)
	e.uint64(5, m.DurationMs)
	e.stringDoubleMap(6, m.Measurements)
}

func (m *TestResult) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) (err error) {
		switch f.num {
		case 1:
			err = unmarshalHeader(f, &m.Header)
		case 2:
			m.TestID, err = f.string()
		case 3:
			var v int32
			v, err = f.int32()
			m.Verdict = Verdict(v)
		case 4:
			m.Message, err = f.string()
		case 5:
			m.DurationMs, err = f.uint64()
		case 6:
			m.Measurements, err = f.stringDoubleEntry(m.Measurements)
		default:
			return errUnknownField
		}
		return err
	})
}

type FaultType int32

const (
	FaultTypeUnspecified FaultType = 0
	FaultTypeDrop        FaultType = 1
	FaultTypeDelay       FaultType = 2
	FaultTypeCorrupt     FaultType = 3
	FaultTypeStuck       FaultType = 4
	FaultTypeNoise       FaultType = 5
)

type FaultInjection struct {
	Header     *Header   `json:"header,omitempty"`
	Target     string    `json:"target"`
	Fault      FaultType `json:"fault"`
	Active     bool      `json:"active"`
	Magnitude  float64   `json:"magnitude,omitempty"`
	DurationMs uint32    `json:"duration_ms,omitempty"`
}

func (*FaultInjection) Kind() Kind            { return KindFaultInjection }
func (m *FaultInjection) GetHeader() *Header { return m.Header }

func (m *FaultInjection) marshal(e *encoder) {
	marshalHeader(e, m.Header)
	e.string(2, m.Target)
	e.int32(3, int32(m.Fault))
	e.bool(4, m.Active)
	e.double(5, m.Magnitude)
	e.uint64(6, uint64(m.DurationMs))
}

func (m *FaultInjection) unmarshal(b []byte, strict bool) error {
	return walk(b, strict, func(f field) (err error) {
		switch f.num {
		case 1:
			err = unmarshalHeader(f, &m.Header)
		case 2:
			m.Target, err = f.string()
		case 3:
			var v int32
			v, err = f.int32()
			m.Fault = FaultType(v)
		case 4:
			m.Active, err = f.bool()
		case 5:
			m.Magnitude, err = f.double()
		case 6:
			m.DurationMs, err = f.uint32()
		default:
			return errUnknownField
		}
		return err
	})
}
