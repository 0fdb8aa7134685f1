package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the variant tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Value is a single slot value: null, integer, float or string.
// The zero Value is null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// Null returns the null value.
func Null() Value { return Value{} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating-point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// ValueOf coerces a raw decoded scalar into a Value.
// Booleans become the integers 1 and 0. Any other non-scalar type is rejected.
func ValueOf(raw interface{}) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return v, nil
	case bool:
		if v {
			return Int(1), nil
		}
		return Int(0), nil
	case int:
		return Int(int64(v)), nil
	case int8:
		return Int(int64(v)), nil
	case int16:
		return Int(int64(v)), nil
	case int32:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case uint:
		return uintValue(uint64(v))
	case uint8:
		return Int(int64(v)), nil
	case uint16:
		return Int(int64(v)), nil
	case uint32:
		return Int(int64(v)), nil
	case uint64:
		return uintValue(v)
	case float32:
		return Float(float64(v)), nil
	case float64:
		return Float(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", v, err)
		}
		return Float(f), nil
	case string:
		return String(v), nil
	default:
		return Value{}, fmt.Errorf("unsupported type %T", raw)
	}
}

func uintValue(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Float(float64(u)), nil
	}
	return Int(int64(u)), nil
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Equal reports value equality. Integers and floats compare numerically.
func (v Value) Equal(o Value) bool {
	switch v.kind {
	case KindNull:
		return o.kind == KindNull
	case KindString:
		return o.kind == KindString && v.s == o.s
	case KindInt:
		switch o.kind {
		case KindInt:
			return v.i == o.i
		case KindFloat:
			return float64(v.i) == o.f
		}
	case KindFloat:
		switch o.kind {
		case KindFloat:
			return v.f == o.f
		case KindInt:
			return v.f == float64(o.i)
		}
	}
	return false
}

// Interface returns the value as a plain Go scalar (nil, int64, float64 or string).
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	default:
		return nil
	}
}

// Format renders the value for substitution into a parameter string.
// Null renders as the empty string. Floats use the shortest representation
// that round-trips: fixed notation with at least one decimal for exponents
// in [-4, 16), otherwise scientific notation such as 1e+20.
func (v Value) Format() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return v.s
	default:
		return ""
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return sci
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// String implements fmt.Stringer with a quoted, debug-friendly rendering.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return strconv.Quote(v.s)
	default:
		return v.Format()
	}
}

// MarshalJSON encodes the value as its plain JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes a JSON scalar into the value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Tuple is an ordered sequence of slot values. A tuple shorter than the slot
// list specifies only its first len(t) slots.
type Tuple []Value

// Equal reports elementwise equality.
func (t Tuple) Equal(o Tuple) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if !t[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Interfaces returns the tuple as plain Go scalars.
func (t Tuple) Interfaces() []interface{} {
	out := make([]interface{}, len(t))
	for i, v := range t {
		out[i] = v.Interface()
	}
	return out
}

// String renders the tuple for logs and error messages.
func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// TupleOf builds a tuple from plain scalars. It fails with InvalidValueType
// on the first element that cannot be represented.
func TupleOf(items ...interface{}) (Tuple, error) {
	t := make(Tuple, len(items))
	for i, item := range items {
		v, err := ValueOf(item)
		if err != nil {
			return nil, NewInvalidValueTypeError(i, item)
		}
		t[i] = v
	}
	return t, nil
}

// MustTuple is like TupleOf but panics on error. Intended for tests and
// static defaults.
func MustTuple(items ...interface{}) Tuple {
	t, err := TupleOf(items...)
	if err != nil {
		panic(err)
	}
	return t
}
