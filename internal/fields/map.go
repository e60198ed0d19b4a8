package fields

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/matheus3301/chatsync/internal/syncerr"
)

// Map is a remote document: field name to typed value.
type Map map[string]Value

// Equal reports whether both maps hold the same keys with equal values.
func (m Map) Equal(o Map) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy of m.
func (m Map) Clone() Map {
	return maps.Clone(m)
}

// Keys returns the field names in sorted order.
func (m Map) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

// ID returns the objectId field, or "" when absent.
func (m Map) ID() string {
	return m["objectId"].AsString()
}

// Plain converts the map to plain Go values, e.g. for JSON output.
func (m Map) Plain() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v.kind == KindTimestamp {
			out[k] = v.t.Format(time.RFC3339Nano)
			continue
		}
		out[k] = v.Any()
	}
	return out
}

// FromPlain builds a Map from plain Go values.
func FromPlain(in map[string]any) (Map, error) {
	out := make(Map, len(in))
	for k, raw := range in {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Wire format: every value is an object with exactly one tag, e.g.
// {"integerValue":"42"}, {"booleanValue":true}, {"doubleValue":1.5},
// {"stringValue":"hi"}, {"timestampValue":"2024-01-02T03:04:05Z"}.
type wireValue struct {
	Integer   *string  `json:"integerValue,omitempty"`
	Boolean   *bool    `json:"booleanValue,omitempty"`
	Double    *float64 `json:"doubleValue,omitempty"`
	String    *string  `json:"stringValue,omitempty"`
	Timestamp *string  `json:"timestampValue,omitempty"`
}

// MarshalJSON encodes v with its type tag.
func (v Value) MarshalJSON() ([]byte, error) {
	var w wireValue
	switch v.kind {
	case KindInt64:
		s := strconv.FormatInt(v.i, 10)
		w.Integer = &s
	case KindBool:
		b := v.b
		w.Boolean = &b
	case KindFloat64:
		f := v.f
		w.Double = &f
	case KindString:
		s := v.s
		w.String = &s
	case KindTimestamp:
		s := v.t.Format(time.RFC3339Nano)
		w.Timestamp = &s
	default:
		return nil, fmt.Errorf("marshal value: %w", syncerr.ErrUnsupported)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a tagged value. Unknown or missing tags are rejected
// with syncerr.ErrUnsupported.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("value must carry exactly one type tag, got %d: %w", len(raw), syncerr.ErrUnsupported)
	}
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	switch {
	case w.Integer != nil:
		i, err := strconv.ParseInt(*w.Integer, 10, 64)
		if err != nil {
			return fmt.Errorf("decode integerValue: %w", err)
		}
		*v = Int64(i)
	case w.Boolean != nil:
		*v = Bool(*w.Boolean)
	case w.Double != nil:
		*v = Float64(*w.Double)
	case w.String != nil:
		*v = String(*w.String)
	case w.Timestamp != nil:
		t, err := time.Parse(time.RFC3339Nano, *w.Timestamp)
		if err != nil {
			return fmt.Errorf("decode timestampValue: %w", err)
		}
		*v = Timestamp(t)
	default:
		for tag := range raw {
			return fmt.Errorf("tag %q: %w", tag, syncerr.ErrUnsupported)
		}
	}
	return nil
}
