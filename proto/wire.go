package proto

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

var errUnknownField = errors.New("unknown field")

// encoder appends proto3 fields to buf. Zero scalars are omitted, the way
// protoc generated code does it. The first error sticks.
type encoder struct {
	buf []byte
	err error
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encoder) string(num protowire.Number, s string) {
	if s == "" {
		return
	}
	if !utf8.ValidString(s) {
		e.fail(fmt.Errorf("field %d: string is not valid UTF-8", num))
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, s)
}

func (e *encoder) uint64(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
}

func (e *encoder) int64(num protowire.Number, v int64) {
	e.uint64(num, uint64(v))
}

func (e *encoder) int32(num protowire.Number, v int32) {
	// negative int32 is sign extended to ten bytes on the wire
	e.uint64(num, uint64(int64(v)))
}

func (e *encoder) bool(num protowire.Number, v bool) {
	if !v {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, protowire.EncodeBool(v))
}

func (e *encoder) double(num protowire.Number, v float64) {
	bits := math.Float64bits(v)
	if bits == 0 {
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.Fixed64Type)
	e.buf = protowire.AppendFixed64(e.buf, bits)
}

func (e *encoder) doubles(num protowire.Number, vs []float64) {
	if len(vs) == 0 {
		return
	}
	packed := make([]byte, 0, 8*len(vs))
	for _, v := range vs {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, packed)
}

// message embeds a nested message. A nil pointer is an absent field.
func (e *encoder) message(num protowire.Number, m interface{ marshal(*encoder) }, present bool) {
	if !present {
		return
	}
	sub := &encoder{}
	m.marshal(sub)
	if sub.err != nil {
		e.fail(fmt.Errorf("field %d: %w", num, sub.err))
		return
	}
	e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, sub.buf)
}

// Map entries are written in key order so encoding is deterministic.
func (e *encoder) stringDoubleMap(num protowire.Number, m map[string]float64) {
	for _, k := range sortedKeys(m) {
		entry := &encoder{}
		entry.string(1, k)
		entry.double(2, m[k])
		if entry.err != nil {
			e.fail(fmt.Errorf("field %d: %w", num, entry.err))
			return
		}
		e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
		e.buf = protowire.AppendBytes(e.buf, entry.buf)
	}
}

func (e *encoder) stringStringMap(num protowire.Number, m map[string]string) {
	for _, k := range sortedKeys(m) {
		entry := &encoder{}
		entry.string(1, k)
		entry.string(2, m[k])
		if entry.err != nil {
			e.fail(fmt.Errorf("field %d: %w", num, entry.err))
			return
		}
		e.buf = protowire.AppendTag(e.buf, num, protowire.BytesType)
		e.buf = protowire.AppendBytes(e.buf, entry.buf)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// field is one decoded tag/value pair.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	scalar uint64
	raw    []byte
	strict bool
}

// walk iterates the fields of b. fn returns errUnknownField for field
// numbers it does not recognise; those are skipped unless strict is set.
func walk(b []byte, strict bool, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ, strict: strict}
		switch typ {
		case protowire.VarintType:
			f.scalar, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.scalar, n = protowire.ConsumeFixed64(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.scalar = uint64(v)
		case protowire.BytesType:
			f.raw, n = protowire.ConsumeBytes(b)
		default:
			return fmt.Errorf("field %d: unsupported wire type %d", num, typ)
		}
		if n < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			if errors.Is(err, errUnknownField) && !strict {
				continue
			}
			if errors.Is(err, errUnknownField) {
				return fmt.Errorf("field %d: %w", num, err)
			}
			return err
		}
	}
	return nil
}

func (f field) want(typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("field %d: wire type %d, want %d", f.num, f.typ, typ)
	}
	return nil
}

func (f field) string() (string, error) {
	if err := f.want(protowire.BytesType); err != nil {
		return "", err
	}
	if !utf8.Valid(f.raw) {
		return "", fmt.Errorf("field %d: string is not valid UTF-8", f.num)
	}
	return string(f.raw), nil
}

func (f field) uint64() (uint64, error) {
	return f.scalar, f.want(protowire.VarintType)
}

func (f field) uint32() (uint32, error) {
	return uint32(f.scalar), f.want(protowire.VarintType)
}

func (f field) int64() (int64, error) {
	return int64(f.scalar), f.want(protowire.VarintType)
}

func (f field) int32() (int32, error) {
	return int32(f.scalar), f.want(protowire.VarintType)
}

func (f field) bool() (bool, error) {
	return protowire.DecodeBool(f.scalar), f.want(protowire.VarintType)
}

func (f field) double() (float64, error) {
	return math.Float64frombits(f.scalar), f.want(protowire.Fixed64Type)
}

// doubles accepts both packed and unpacked encodings of a repeated double.
func (f field) doubles(dst []float64) ([]float64, error) {
	switch f.typ {
	case protowire.Fixed64Type:
		return append(dst, math.Float64frombits(f.scalar)), nil
	case protowire.BytesType:
		b := f.raw
		for len(b) > 0 {
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return dst, fmt.Errorf("field %d: %w", f.num, protowire.ParseError(n))
			}
			dst = append(dst, math.Float64frombits(v))
			b = b[n:]
		}
		return dst, nil
	default:
		return dst, f.want(protowire.BytesType)
	}
}

func (f field) message(m interface{ unmarshal([]byte, bool) error }) error {
	if err := f.want(protowire.BytesType); err != nil {
		return err
	}
	if err := m.unmarshal(f.raw, f.strict); err != nil {
		return fmt.Errorf("field %d: %w", f.num, err)
	}
	return nil
}

func (f field) stringDoubleEntry(m map[string]float64) (map[string]float64, error) {
	if err := f.want(protowire.BytesType); err != nil {
		return m, err
	}
	var key string
	var val float64
	err := walk(f.raw, f.strict, func(e field) error {
		var err error
		switch e.num {
		case 1:
			key, err = e.string()
		case 2:
			val, err = e.double()
		default:
			return errUnknownField
		}
		return err
	})
	if err != nil {
		return m, fmt.Errorf("field %d: %w", f.num, err)
	}
	if m == nil {
		m = make(map[string]float64)
	}
	m[key] = val
	return m, nil
}

func (f field) stringStringEntry(m map[string]string) (map[string]string, error) {
	if err := f.want(protowire.BytesType); err != nil {
		return m, err
	}
	var key, val string
	err := walk(f.raw, f.strict, func(e field) error {
		var err error
		switch e.num {
		case 1:
			key, err = e.string()
		case 2:
			val, err = e.string()
		default:
			return errUnknownField
		}
		return err
	})
	if err != nil {
		return m, fmt.Errorf("field %d: %w", f.num, err)
	}
	if m == nil {
		m = make(map[string]string)
	}
	m[key] = val
	return m, nil
}
