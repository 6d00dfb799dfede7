package proto

import (
	"encoding/json"
	"math"
)

// JSON rendering for kinds carrying doubles. The realtime node may publish
// NaN or infinite readings, which encoding/json rejects; they render as null.

type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func jsonFloats(v []float64) []jsonFloat {
	if v == nil {
		return nil
	}
	out := make([]jsonFloat, len(v))
	for i, f := range v {
		out[i] = jsonFloat(f)
	}
	return out
}

func jsonFloatMap(m map[string]float64) map[string]jsonFloat {
	if m == nil {
		return nil
	}
	out := make(map[string]jsonFloat, len(m))
	for k, f := range m {
		out[k] = jsonFloat(f)
	}
	return out
}

func (m *ActuatorCommand) MarshalJSON() ([]byte, error) {
	type alias ActuatorCommand
	return json.Marshal(&struct {
		*alias
		Value jsonFloat   `json:"value,omitempty"`
		Args  []jsonFloat `json:"args,omitempty"`
	}{(*alias)(m), jsonFloat(m.Value), jsonFloats(m.Args)})
}

func (m *ClockModulation) MarshalJSON() ([]byte, error) {
	type alias ClockModulation
	return json.Marshal(&struct {
		*alias
		Factor jsonFloat `json:"factor"`
	}{(*alias)(m), jsonFloat(m.Factor)})
}

func (m *SimulationState) MarshalJSON() ([]byte, error) {
	type alias SimulationState
	return json.Marshal(&struct {
		*alias
		SimTime        jsonFloat `json:"sim_time"`
		RealTimeFactor jsonFloat `json:"real_time_factor"`
	}{(*alias)(m), jsonFloat(m.SimTime), jsonFloat(m.RealTimeFactor)})
}

func (m *TestResult) MarshalJSON() ([]byte, error) {
	type alias TestResult
	return json.Marshal(&struct {
		*alias
		Measurements map[string]jsonFloat `json:"measurements,omitempty"`
	}{(*alias)(m), jsonFloatMap(m.Measurements)})
}

func (m *FaultInjection) MarshalJSON() ([]byte, error) {
	type alias FaultInjection
	return json.Marshal(&struct {
		*alias
		Magnitude jsonFloat `json:"magnitude,omitempty"`
	}{(*alias)(m), jsonFloat(m.Magnitude)})
}

func (t *TemperatureData) MarshalJSON() ([]byte, error) {
	type alias TemperatureData
	return json.Marshal(&struct {
		*alias
		Ambient jsonFloat `json:"ambient"`
		CPU     jsonFloat `json:"cpu"`
		Board   jsonFloat `json:"board"`
	}{(*alias)(t), jsonFloat(t.Ambient), jsonFloat(t.CPU), jsonFloat(t.Board)})
}

func (r *SensorReading) MarshalJSON() ([]byte, error) {
	type alias SensorReading
	return json.Marshal(&struct {
		*alias
		Scalar jsonFloat   `json:"scalar,omitempty"`
		Vector []jsonFloat `json:"vector,omitempty"`
	}{(*alias)(r), jsonFloat(r.Scalar), jsonFloats(r.Vector)})
}

func (s *RealtimeStats) MarshalJSON() ([]byte, error) {
	type alias RealtimeStats
	return json.Marshal(&struct {
		*alias
		CycleTimeUs jsonFloat `json:"cycle_time_us"`
		JitterUs    jsonFloat `json:"jitter_us"`
	}{(*alias)(s), jsonFloat(s.CycleTimeUs), jsonFloat(s.JitterUs)})
}

func (m *SystemStatus) MarshalJSON() ([]byte, error) {
	type alias SystemStatus
	return json.Marshal(&struct {
		*alias
		Metrics map[string]jsonFloat `json:"metrics,omitempty"`
	}{(*alias)(m), jsonFloatMap(m.Metrics)})
}

func (m *HardwareStatus) MarshalJSON() ([]byte, error) {
	type alias HardwareStatus
	return json.Marshal(&struct {
		*alias
		Temperature jsonFloat `json:"temperature,omitempty"`
		Voltage     jsonFloat `json:"voltage,omitempty"`
	}{(*alias)(m), jsonFloat(m.Temperature), jsonFloat(m.Voltage)})
}

func (m *Heartbeat) MarshalJSON() ([]byte, error) {
	type alias Heartbeat
	return json.Marshal(&struct {
		*alias
		Load jsonFloat `json:"load,omitempty"`
	}{(*alias)(m), jsonFloat(m.Load)})
}
