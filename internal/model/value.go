package model

import "time"

// Value is a tagged field value. The payload type depends on Kind:
// string for KindString (time.Time when Format is date-time), int64 for
// KindInteger, float64 for KindNumber, bool for KindBoolean,
// map[string]any for KindObject and []string for KindArray.
type Value struct {
	Kind   Kind
	Format string
	v      any
}

func StringValue(s string) Value         { return Value{Kind: KindString, v: s} }
func UUIDValue(s string) Value           { return Value{Kind: KindString, Format: FormatUUID, v: s} }
func TimeValue(t time.Time) Value        { return Value{Kind: KindString, Format: FormatDateTime, v: t} }
func IntegerValue(i int64) Value         { return Value{Kind: KindInteger, v: i} }
func NumberValue(f float64) Value        { return Value{Kind: KindNumber, v: f} }
func BoolValue(b bool) Value             { return Value{Kind: KindBoolean, v: b} }
func ObjectValue(m map[string]any) Value { return Value{Kind: KindObject, v: m} }
func ArrayValue(a []string) Value        { return Value{Kind: KindArray, v: a} }
func NullValue() Value                   { return Value{Kind: KindNull} }

// IsNull reports whether the value carries nothing.
func (v Value) IsNull() bool { return v.v == nil }

// Interface returns the native payload.
func (v Value) Interface() any { return v.v }

// Str returns the payload as a string if it is one.
func (v Value) Str() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

// Time returns the payload as a time if it is one.
func (v Value) Time() (time.Time, bool) {
	t, ok := v.v.(time.Time)
	return t, ok
}

// Int returns the payload as an int64 if it is one.
func (v Value) Int() (int64, bool) {
	i, ok := v.v.(int64)
	return i, ok
}

// JSON returns the value in its JSON-ready form.
func (v Value) JSON() any {
	if t, ok := v.v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v.v
}
