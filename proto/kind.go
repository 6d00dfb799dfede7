package proto

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the one byte tag that prefixes every wire frame.
// The numbering is part of the wire contract with the realtime node.
type Kind uint8

const (
	KindSensorBatch     Kind = 1
	KindSystemStatus    Kind = 2
	KindHardwareStatus  Kind = 3
	KindClockModulation Kind = 4
	KindTestCase        Kind = 5
	KindSimulationState Kind = 6
	KindTestResult      Kind = 7
	KindTimeSync        Kind = 8
	KindFaultInjection  Kind = 9
	KindActuatorCommand Kind = 10
	KindHeartbeat       Kind = 11
	KindAck             Kind = 12
)

var kindNames = [...]string{
	KindSensorBatch:     "SensorBatch",
	KindSystemStatus:    "SystemStatus",
	KindHardwareStatus:  "HardwareStatus",
	KindClockModulation: "ClockModulation",
	KindTestCase:        "TestCase",
	KindSimulationState: "SimulationState",
	KindTestResult:      "TestResult",
	KindTimeSync:        "TimeSync",
	KindFaultInjection:  "FaultInjection",
	KindActuatorCommand: "ActuatorCommand",
	KindHeartbeat:       "Heartbeat",
	KindAck:             "Ack",
}

// Kinds returns every known kind in tag order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames)-1)
	for k := KindSensorBatch; k <= KindAck; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

func (k Kind) Valid() bool {
	return k >= KindSensorBatch && k <= KindAck
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind accepts a kind name (case insensitive) or its tag number.
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	for _, k := range Kinds() {
		if strings.EqualFold(k.String(), s) {
			return k, nil
		}
	}
	if n, err := strconv.ParseUint(s, 10, 8); err == nil && Kind(n).Valid() {
		return Kind(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// New returns the zero value message for a kind.
func New(k Kind) (Message, error) {
	switch k {
	case KindSensorBatch:
		return &SensorBatch{}, nil
	case KindSystemStatus:
		return &SystemStatus{}, nil
	case KindHardwareStatus:
		return &HardwareStatus{}, nil
	case KindClockModulation:
		return &ClockModulation{}, nil
	case KindTestCase:
		return &TestCase{}, nil
	case KindSimulationState:
		return &SimulationState{}, nil
	case KindTestResult:
		return &TestResult{}, nil
	case KindTimeSync:
		return &TimeSync{}, nil
	case KindFaultInjection:
		return &FaultInjection{}, nil
	case KindActuatorCommand:
		return &ActuatorCommand{}, nil
	case KindHeartbeat:
		return &Heartbeat{}, nil
	case KindAck:
		return &Ack{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(k))
	}
}
