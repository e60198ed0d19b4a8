// Package fields defines the typed field map exchanged with the remote store.
package fields

import (
	"cmp"
	"fmt"
	"math"
	"time"

	"github.com/matheus3301/chatsync/internal/syncerr"
)

// Kind is the wire type of a field value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt64
	KindBool
	KindFloat64
	KindString
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindInt64:
		return "int64"
	case KindBool:
		return "bool"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	default:
		return "invalid"
	}
}

// Value is a single typed field value. The zero Value is invalid.
type Value struct {
	kind Kind
	i    int64
	b    bool
	f    float64
	s    string
	t    time.Time
}

func Int64(v int64) Value          { return Value{kind: KindInt64, i: v} }
func Bool(v bool) Value            { return Value{kind: KindBool, b: v} }
func Float64(v float64) Value      { return Value{kind: KindFloat64, f: v} }
func String(v string) Value        { return Value{kind: KindString, s: v} }
func Timestamp(v time.Time) Value  { return Value{kind: KindTimestamp, t: v.UTC()} }
func (v Value) Kind() Kind         { return v.kind }
func (v Value) IsValid() bool      { return v.kind != KindInvalid }
func (v Value) AsInt64() int64     { return v.i }
func (v Value) AsBool() bool       { return v.b }
func (v Value) AsFloat64() float64 { return v.f }
func (v Value) AsString() string   { return v.s }
func (v Value) AsTime() time.Time  { return v.t }

// FromAny converts a Go value into a Value. Types outside the supported set
// return an error wrapping syncerr.ErrUnsupported.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case int:
		return Int64(int64(x)), nil
	case int32:
		return Int64(int64(x)), nil
	case int64:
		return Int64(x), nil
	case bool:
		return Bool(x), nil
	case float32:
		return Float64(float64(x)), nil
	case float64:
		return Float64(x), nil
	case string:
		return String(x), nil
	case time.Time:
		return Timestamp(x), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", syncerr.ErrUnsupported, v)
	}
}

// Any returns the Go representation of v.
func (v Value) Any() any {
	switch v.kind {
	case KindInt64:
		return v.i
	case KindBool:
		return v.b
	case KindFloat64:
		return v.f
	case KindString:
		return v.s
	case KindTimestamp:
		return v.t
	default:
		return nil
	}
}

// Equal reports whether both values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt64:
		return v.i == o.i
	case KindBool:
		return v.b == o.b
	case KindFloat64:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString:
		return v.s == o.s
	case KindTimestamp:
		return v.t.Equal(o.t)
	default:
		return true
	}
}

// Compare orders two values of the same kind. Int64 and float64 values
// compare numerically with each other.
func Compare(a, b Value) (int, error) {
	if a.kind != b.kind {
		if isNumber(a.kind) && isNumber(b.kind) {
			return cmp.Compare(a.number(), b.number()), nil
		}
		return 0, fmt.Errorf("compare %s with %s: %w", a.kind, b.kind, syncerr.ErrUnsupported)
	}
	switch a.kind {
	case KindInt64:
		return cmp.Compare(a.i, b.i), nil
	case KindBool:
		switch {
		case a.b == b.b:
			return 0, nil
		case !a.b:
			return -1, nil
		default:
			return 1, nil
		}
	case KindFloat64:
		return cmp.Compare(a.f, b.f), nil
	case KindString:
		return cmp.Compare(a.s, b.s), nil
	case KindTimestamp:
		return a.t.Compare(b.t), nil
	default:
		return 0, fmt.Errorf("compare invalid value: %w", syncerr.ErrUnsupported)
	}
}

func isNumber(k Kind) bool { return k == KindInt64 || k == KindFloat64 }

func (v Value) number() float64 {
	if v.kind == KindInt64 {
		return float64(v.i)
	}
	return v.f
}

func (v Value) String() string {
	switch v.kind {
	case KindTimestamp:
		return v.t.Format(time.RFC3339Nano)
	case KindInvalid:
		return "<invalid>"
	default:
		return fmt.Sprint(v.Any())
	}
}
