package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindScalar
	KindBytes
	KindMapping
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindScalar:
		return "scalar"
	case KindBytes:
		return "bytes"
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// Value is one node of an untyped record tree. The zero Value is null.
type Value struct {
	kind     Kind
	scalar   any
	bytes    []byte
	mapping  Record
	sequence []Value
}

// Record is a mapping from field name to Value.
type Record map[string]Value

// ErrNotObject is returned when a document body is not a JSON object.
var ErrNotObject = errors.New("document must be a JSON object")

// ErrNumberRange is returned when a JSON number does not fit a float64.
var ErrNumberRange = errors.New("number out of range")

// bufferTypeTag is the tag Node-style clients use when serializing raw bytes
// as {"type":"Buffer","data":[...]}.
const bufferTypeTag = "Buffer"

func Null() Value { return Value{} }

func String(s string) Value { return Value{kind: KindScalar, scalar: s} }

// Scalar wraps a JSON scalar. Integers are normalized to int64 and floats to
// float64 so values compare equally regardless of their source.
func Scalar(v any) Value {
	if v == nil {
		return Null()
	}
	return Value{kind: KindScalar, scalar: normalizeScalar(v)}
}

func Bytes(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{kind: KindBytes, bytes: b}
}

func Mapping(r Record) Value {
	if r == nil {
		r = Record{}
	}
	return Value{kind: KindMapping, mapping: r}
}

func Sequence(vs ...Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{kind: KindSequence, sequence: vs}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsString() (string, bool) {
	if v.kind != KindScalar {
		return "", false
	}
	s, ok := v.scalar.(string)
	return s, ok
}

func (v Value) AsScalar() (any, bool) {
	if v.kind != KindScalar {
		return nil, false
	}
	return v.scalar, true
}

// AsNumber reports the scalar as a float64 when it holds a number.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindScalar {
		return 0, false
	}
	switch n := v.scalar.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.bytes, true
}

func (v Value) AsMapping() (Record, bool) {
	if v.kind != KindMapping {
		return nil, false
	}
	return v.mapping, true
}

func (v Value) AsSequence() ([]Value, bool) {
	if v.kind != KindSequence {
		return nil, false
	}
	return v.sequence, true
}

// Equal reports whether two values have the same variant and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindScalar:
		return v.scalar == o.scalar
	case KindBytes:
		return bytes.Equal(v.bytes, o.bytes)
	case KindMapping:
		return v.mapping.Equal(o.mapping)
	case KindSequence:
		if len(v.sequence) != len(o.sequence) {
			return false
		}
		for i := range v.sequence {
			if !v.sequence[i].Equal(o.sequence[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Native converts the value into plain Go types: nil, scalars, []byte,
// map[string]any and []any.
func (v Value) Native() any {
	switch v.kind {
	case KindScalar:
		return v.scalar
	case KindBytes:
		return v.bytes
	case KindMapping:
		return v.mapping.Native()
	case KindSequence:
		out := make([]any, len(v.sequence))
		for i, el := range v.sequence {
			out[i] = el.Native()
		}
		return out
	}
	return nil
}

// FromNative builds a Value from decoded JSON or driver output. A
// {"type":"Buffer","data":[...]} object becomes Bytes.
func FromNative(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case Record:
		return Mapping(t)
	case []Value:
		return Sequence(t...)
	case []byte:
		return Bytes(t)
	case map[string]any:
		if b, ok := bufferBytes(t); ok {
			return Bytes(b)
		}
		rec := make(Record, len(t))
		for k, el := range t {
			rec[k] = FromNative(el)
		}
		return Mapping(rec)
	case []any:
		seq := make([]Value, len(t))
		for i, el := range t {
			seq[i] = FromNative(el)
		}
		return Sequence(seq...)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return Scalar(n)
		}
		f, _ := t.Float64()
		return Scalar(f)
	}
	return Scalar(x)
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindScalar:
		return json.Marshal(v.scalar)
	case KindBytes:
		data := make([]int, len(v.bytes))
		for i, b := range v.bytes {
			data[i] = int(b)
		}
		return json.Marshal(struct {
			Type string `json:"type"`
			Data []int  `json:"data"`
		}{Type: bufferTypeTag, Data: data})
	case KindMapping:
		return json.Marshal(v.mapping)
	case KindSequence:
		return json.Marshal(v.sequence)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if err := checkNumbers(raw); err != nil {
		return err
	}
	*v = FromNative(raw)
	return nil
}

// Get returns the value stored under key.
func (r Record) Get(key string) (Value, bool) {
	v, ok := r[key]
	return v, ok
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v.clone()
	}
	return out
}

func (v Value) clone() Value {
	switch v.kind {
	case KindBytes:
		return Bytes(append([]byte(nil), v.bytes...))
	case KindMapping:
		return Mapping(v.mapping.Clone())
	case KindSequence:
		seq := make([]Value, len(v.sequence))
		for i, el := range v.sequence {
			seq[i] = el.clone()
		}
		return Sequence(seq...)
	}
	return v
}

func (r Record) Equal(o Record) bool {
	if len(r) != len(o) {
		return false
	}
	for k, v := range r {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (r Record) Native() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v.Native()
	}
	return out
}

// DecodeRecord reads a single JSON object from r.
func DecodeRecord(r io.Reader) (Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	if err := checkNumbers(obj); err != nil {
		return nil, err
	}
	rec, _ := FromNative(obj).AsMapping()
	if rec == nil {
		// a lone {"type":"Buffer",...} body decodes to Bytes
		return nil, ErrNotObject
	}
	return rec, nil
}

// checkNumbers rejects numbers in decoded JSON that overflow a float64.
func checkNumbers(raw any) error {
	switch t := raw.(type) {
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return nil
		}
		if _, err := t.Float64(); err != nil {
			return fmt.Errorf("%w: %s", ErrNumberRange, t)
		}
	case map[string]any:
		for _, el := range t {
			if err := checkNumbers(el); err != nil {
				return err
			}
		}
	case []any:
		for _, el := range t {
			if err := checkNumbers(el); err != nil {
				return err
			}
		}
	}
	return nil
}

func bufferBytes(m map[string]any) ([]byte, bool) {
	if len(m) != 2 {
		return nil, false
	}
	if tag, _ := m["type"].(string); tag != bufferTypeTag {
		return nil, false
	}
	items, ok := m["data"].([]any)
	if !ok {
		return nil, false
	}
	return octets(items)
}

// octets converts a sequence of numbers in [0,255] into bytes.
func octets(items []any) ([]byte, bool) {
	out := make([]byte, len(items))
	for i, item := range items {
		var f float64
		switch n := item.(type) {
		case json.Number:
			parsed, err := n.Float64()
			if err != nil {
				return nil, false
			}
			f = parsed
		case float64:
			f = n
		case int64:
			f = float64(n)
		case int:
			f = float64(n)
		default:
			return nil, false
		}
		if f < 0 || f > 255 || f != math.Trunc(f) {
			return nil, false
		}
		out[i] = byte(f)
	}
	return out, true
}

// OctetsFromSequence converts a sequence of integer scalars in [0,255] into
// bytes.
func OctetsFromSequence(seq []Value) ([]byte, error) {
	items := make([]any, len(seq))
	for i, el := range seq {
		s, ok := el.AsScalar()
		if !ok {
			return nil, fmt.Errorf("element %d is a %s, not a byte", i, el.Kind())
		}
		items[i] = s
	}
	b, ok := octets(items)
	if !ok {
		return nil, fmt.Errorf("sequence is not a list of bytes")
	}
	return b, nil
}

func normalizeScalar(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case float32:
		return float64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, _ := n.Float64()
		return f
	case time.Time:
		return n.UTC()
	}
	return v
}
