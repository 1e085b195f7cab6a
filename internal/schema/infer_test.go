package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/moisturizer/internal/model"
)

func TestKindOf_Precedence(t *testing.T) {
	for _, tc := range []struct {
		name  string
		value any
		want  model.Kind
		ok    bool
	}{
		{"bool true", true, model.KindBoolean, true},
		{"bool false", false, model.KindBoolean, true},
		{"int", 42, model.KindInteger, true},
		{"int64", int64(-7), model.KindInteger, true},
		{"uint64 from cbor", uint64(9), model.KindInteger, true},
		{"json integer", json.Number("42"), model.KindInteger, true},
		{"json float", json.Number("42.5"), model.KindNumber, true},
		{"json exponent", json.Number("1e3"), model.KindNumber, true},
		{"json huge integer", json.Number("123456789012345678901234567890"), model.KindNumber, true},
		{"float64", 3.14, model.KindNumber, true},
		{"integral float64", float64(2), model.KindNumber, true},
		{"float32", float32(1.5), model.KindNumber, true},
		{"string", "bar", model.KindString, true},
		{"empty string", "", model.KindString, true},
		{"nil", nil, "", false},
		{"object", map[string]any{"a": 1}, "", false},
		{"array", []any{"a"}, "", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := KindOf(tc.value)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestInfer_NewFieldsOnly(t *testing.T) {
	d := model.NewTypeDescriptor("t")
	d.Properties.Add("foo", model.FieldSpec{Kind: model.KindString})

	got := Infer(d, map[string]any{
		"id":    "abc",
		"foo":   12,
		"n":     json.Number("42"),
		"extra": true,
		"gone":  nil,
		"tags":  []any{"a"},
	})

	assert.Equal(t, map[string]model.FieldSpec{
		"n":     {Kind: model.KindInteger},
		"extra": {Kind: model.KindBoolean},
	}, got)
}

func TestInfer_IsPure(t *testing.T) {
	d := model.NewTypeDescriptor("t")
	before := d.Properties.Names()

	first := Infer(d, map[string]any{"a": "x", "b": 1})
	second := Infer(d, map[string]any{"a": "x", "b": 1})

	assert.Equal(t, first, second)
	assert.Equal(t, before, d.Properties.Names(), "Infer must not mutate the descriptor")
}

func TestInfer_IdempotentAfterMerge(t *testing.T) {
	d := model.NewTypeDescriptor("t")
	payload := map[string]any{"foo": "bar", "n": json.Number("42")}

	fields := Infer(d, payload)
	require.Len(t, fields, 2)

	merged := Merge(d, fields)
	assert.Empty(t, Infer(merged, payload))
}

func TestMerge_Additive(t *testing.T) {
	d := model.NewTypeDescriptor("t")
	d.Properties.Add("foo", model.FieldSpec{Kind: model.KindString})

	payloads := []map[string]any{
		{"foo": 1, "n": json.Number("1")},
		{"foo": true, "n": "text", "x": 1.5},
		{"flag": false, "x": "again"},
	}
	for _, p := range payloads {
		d = Merge(d, Infer(d, p))
	}

	spec, ok := d.Properties.Get("foo")
	require.True(t, ok)
	assert.Equal(t, model.KindString, spec.Kind)

	spec, _ = d.Properties.Get("n")
	assert.Equal(t, model.KindInteger, spec.Kind)
	spec, _ = d.Properties.Get("x")
	assert.Equal(t, model.KindNumber, spec.Kind)
	spec, _ = d.Properties.Get("flag")
	assert.Equal(t, model.KindBoolean, spec.Kind)

	assert.Equal(t, []string{"id", "last_modified", "foo", "n", "x", "flag"}, d.Properties.Names())
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	d := model.NewTypeDescriptor("t")
	_ = Merge(d, map[string]model.FieldSpec{"a": {Kind: model.KindString}})
	assert.False(t, d.Properties.Has("a"))
}

func TestScenario_ImplicitTypeGrowth(t *testing.T) {
	d := model.NewTypeDescriptor("t")

	d = Merge(d, Infer(d, map[string]any{"foo": "bar", "n": json.Number("42")}))
	foo, _ := d.Properties.Get("foo")
	n, _ := d.Properties.Get("n")
	assert.Equal(t, model.KindString, foo.Kind)
	assert.Equal(t, model.KindInteger, n.Kind)

	added := Infer(d, map[string]any{"foo": "bar", "extra": true})
	assert.Equal(t, map[string]model.FieldSpec{"extra": {Kind: model.KindBoolean}}, added)

	d = Merge(d, added)
	foo2, _ := d.Properties.Get("foo")
	n2, _ := d.Properties.Get("n")
	assert.Equal(t, foo, foo2)
	assert.Equal(t, n, n2)
}
