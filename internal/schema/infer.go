// Package schema infers field specs from observed payload values.
//
// Inference is additive: it only ever proposes fields a descriptor does
// not have yet, and never re-types or validates known ones. A value whose
// kind does not match its known field surfaces later, when the record is
// decoded or written.
package schema

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/alfredjeanlab/moisturizer/internal/model"
)

// Infer returns a spec for every key of payload that d does not know yet.
// Nested objects are inferred leaf by leaf under their flattened names,
// and null values are skipped. It does not modify d. An empty result
// means nothing to migrate.
func Infer(d *model.TypeDescriptor, payload map[string]any) map[string]model.FieldSpec {
	out := make(map[string]model.FieldSpec)
	for name, value := range Flatten(payload, ObjectFields(d)) {
		if d.Properties.Has(name) {
			continue
		}
		kind, ok := KindOf(value)
		if !ok {
			continue
		}
		out[name] = model.FieldSpec{Kind: kind}
	}
	return out
}

// KindOf maps a runtime value to a primitive kind. The checks run in a
// fixed order: boolean, integer, floating point, text. Nil and composite
// values report false.
func KindOf(value any) (model.Kind, bool) {
	switch v := value.(type) {
	case bool:
		return model.KindBoolean, true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return model.KindInteger, true
	case json.Number:
		if isIntegral(v) {
			return model.KindInteger, true
		}
		return model.KindNumber, true
	case float32, float64:
		return model.KindNumber, true
	case string:
		return model.KindString, true
	}
	return "", false
}

// isIntegral reports whether a JSON number literal has no fraction or exponent.
func isIntegral(n json.Number) bool {
	s := string(n)
	if strings.ContainsAny(s, ".eE") {
		return false
	}
	_, err := n.Int64()
	return err == nil
}

// Merge returns a copy of d with fields appended in name order. Fields d
// already has are left untouched.
func Merge(d *model.TypeDescriptor, fields map[string]model.FieldSpec) *model.TypeDescriptor {
	out := d.Clone()
	for _, name := range SortedNames(fields) {
		out.Properties.Add(name, fields[name])
	}
	return out
}

// SortedNames returns the keys of fields in ascending order.
func SortedNames(fields map[string]model.FieldSpec) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
