package typemodel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/moisturizer/internal/idgen"
	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/schema"
	"github.com/alfredjeanlab/moisturizer/internal/store"
)

// Mode selects how Decode treats missing fields.
type Mode int

const (
	// ModeCreate assigns an id when the payload has none and enforces
	// required fields.
	ModeCreate Mode = iota
	// ModeReplace enforces required fields; the id comes from the caller.
	ModeReplace
	// ModePatch decodes only the fields present.
	ModePatch
)

// Decode validates payload against the model and returns the record.
// Nested objects are flattened first, except under declared object
// fields. Field values are checked against their specs; names the model
// does not know, wrongly shaped values and missing required fields are
// reported together in one *model.ValidationError. A null under an
// unknown name is treated as absent. last_modified is always set to
// the current time and any client value for it is ignored.
func (m *Model) Decode(payload map[string]any, mode Mode) (*model.Record, error) {
	ve := &model.ValidationError{TypeID: m.typeID}
	payload = schema.Flatten(payload, m.isObject)

	var unknown []string
	for name, raw := range payload {
		if raw != nil && !m.Has(name) {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		ve.Add(name, "unknown field")
	}

	rec := model.NewRecord()
	for _, f := range m.Fields() {
		if f.Name == model.FieldLastModified {
			rec.Set(f.Name, model.TimeValue(m.now()))
			continue
		}
		raw, present := payload[f.Name]
		if f.Name == model.FieldID {
			id, err := decodeID(raw, present, mode)
			if err != nil {
				ve.Add(f.Name, "%v", err)
				continue
			}
			if id != "" {
				rec.Set(f.Name, model.StringValue(id))
			}
			continue
		}
		if !present || raw == nil {
			if f.Spec.Required && mode != ModePatch {
				ve.Add(f.Name, "is required")
				continue
			}
			if present {
				rec.Set(f.Name, model.NullValue())
			}
			continue
		}
		v, err := Coerce(f.Spec, raw)
		if err != nil {
			ve.Add(f.Name, "%v", err)
			continue
		}
		rec.Set(f.Name, v)
	}
	if err := ve.Err(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (m *Model) isObject(name string) bool {
	spec, ok := m.Spec(name)
	return ok && spec.Kind == model.KindObject
}

func decodeID(raw any, present bool, mode Mode) (string, error) {
	if !present || raw == nil {
		if mode == ModeCreate {
			return idgen.RecordID()
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("must be a non-empty string")
	}
	return s, nil
}

// Coerce converts a decoded JSON or CBOR value to the Value variant of
// spec. It returns an error when the value does not have the field's shape.
func Coerce(spec model.FieldSpec, raw any) (model.Value, error) {
	if raw == nil {
		return model.NullValue(), nil
	}
	switch spec.Kind {
	case model.KindString:
		return coerceString(spec.Format, raw)
	case model.KindInteger:
		i, ok := asInt(raw)
		if !ok {
			return model.Value{}, fmt.Errorf("expected integer, got %s", describe(raw))
		}
		return model.IntegerValue(i), nil
	case model.KindNumber:
		f, ok := asFloat(raw)
		if !ok {
			return model.Value{}, fmt.Errorf("expected number, got %s", describe(raw))
		}
		return model.NumberValue(f), nil
	case model.KindBoolean:
		b, ok := raw.(bool)
		if !ok {
			return model.Value{}, fmt.Errorf("expected boolean, got %s", describe(raw))
		}
		return model.BoolValue(b), nil
	case model.KindObject:
		obj, ok := raw.(map[string]any)
		if !ok {
			return model.Value{}, fmt.Errorf("expected object, got %s", describe(raw))
		}
		return model.ObjectValue(obj), nil
	case model.KindArray:
		arr, ok := asStrings(raw)
		if !ok {
			return model.Value{}, fmt.Errorf("expected array of strings, got %s", describe(raw))
		}
		return model.ArrayValue(arr), nil
	case model.KindNull:
		return model.Value{}, fmt.Errorf("expected null, got %s", describe(raw))
	}
	return model.Value{}, fmt.Errorf("unsupported field type %q", spec.Kind)
}

func coerceString(format string, raw any) (model.Value, error) {
	switch format {
	case model.FormatDateTime:
		switch v := raw.(type) {
		case time.Time:
			return model.TimeValue(v.UTC()), nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return model.Value{}, fmt.Errorf("expected RFC 3339 timestamp, got %q", v)
			}
			return model.TimeValue(t.UTC()), nil
		}
	case model.FormatUUID:
		if s, ok := raw.(string); ok {
			u, err := uuid.Parse(s)
			if err != nil {
				return model.Value{}, fmt.Errorf("expected uuid, got %q", s)
			}
			return model.UUIDValue(u.String()), nil
		}
	default:
		if s, ok := raw.(string); ok {
			v := model.StringValue(s)
			v.Format = format
			return v, nil
		}
	}
	return model.Value{}, fmt.Errorf("expected string, got %s", describe(raw))
}

func asInt(raw any) (int64, bool) {
	switch v := raw.(type) {
	case json.Number:
		i, err := v.Int64()
		if err == nil {
			return i, true
		}
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return integralFloat(f)
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return uintToInt(uint64(v))
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return uintToInt(v)
	case float32:
		return integralFloat(float64(v))
	case float64:
		return integralFloat(v)
	}
	return 0, false
}

func uintToInt(u uint64) (int64, bool) {
	if u > math.MaxInt64 {
		return 0, false
	}
	return int64(u), true
}

func integralFloat(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	if i, ok := asInt(raw); ok {
		return float64(i), true
	}
	return 0, false
}

func asStrings(raw any) ([]string, bool) {
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), true
	case []any:
		out := make([]string, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func describe(raw any) string {
	switch raw.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "number"
	case map[string]any:
		return "object"
	case []any, []string:
		return "array"
	}
	return fmt.Sprintf("%T", raw)
}

// Encode returns the non-null fields of rec as JSON-ready values.
func Encode(rec *model.Record) map[string]any {
	return rec.Map()
}

// toRow converts a record to native column values. Only fields the
// record sets are included.
func (m *Model) toRow(rec *model.Record) (store.Row, error) {
	row := make(store.Row, len(rec.Names()))
	for _, name := range rec.Names() {
		spec, ok := m.Spec(name)
		if !ok {
			return nil, model.NewError(model.ErrValidationFailed, m.typeID, "unknown field %s", name)
		}
		v, _ := rec.Get(name)
		native, err := toNative(ColumnFor(spec), v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		row[name] = native
	}
	return row, nil
}

func toNative(col store.ColumnType, v model.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if col != store.ColumnText {
		return v.Interface(), nil
	}
	switch x := v.Interface().(type) {
	case string:
		return x, nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	}
	b, err := json.Marshal(v.JSON())
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// fromRow converts native column values back into a record in model order.
func (m *Model) fromRow(row store.Row) (*model.Record, error) {
	rec := model.NewRecord()
	for _, f := range m.Fields() {
		raw, ok := row[f.Name]
		if !ok {
			continue
		}
		v, err := fromNative(f.Spec, ColumnFor(f.Spec), raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		rec.Set(f.Name, v)
	}
	return rec, nil
}

func fromNative(spec model.FieldSpec, col store.ColumnType, raw any) (model.Value, error) {
	if raw == nil {
		return model.NullValue(), nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	if col == store.ColumnText && spec.Kind != model.KindString {
		s, ok := raw.(string)
		if !ok {
			return Coerce(spec, raw)
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(s)))
		dec.UseNumber()
		var decoded any
		if err := dec.Decode(&decoded); err != nil {
			return model.StringValue(s), nil
		}
		v, err := Coerce(spec, decoded)
		if err != nil {
			return model.StringValue(s), nil
		}
		return v, nil
	}
	switch col {
	case store.ColumnTimestamp:
		switch t := raw.(type) {
		case time.Time:
			return model.TimeValue(t.UTC()), nil
		case string:
			return coerceString(model.FormatDateTime, t)
		}
	case store.ColumnFloat, store.ColumnDouble:
		if f, ok := raw.(float32); ok {
			return model.NumberValue(float64(f)), nil
		}
	case store.ColumnBigInt:
		if s, ok := raw.(string); ok {
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return model.Value{}, err
			}
			return model.IntegerValue(i), nil
		}
	}
	return Coerce(spec, raw)
}
