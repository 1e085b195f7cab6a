package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestKind_IsValid(t *testing.T) {
	for _, k := range []Kind{KindString, KindInteger, KindNumber, KindBoolean, KindObject, KindArray, KindNull} {
		if !k.IsValid() {
			t.Errorf("Kind(%q).IsValid() = false, want true", k)
		}
	}
	for _, k := range []Kind{"", "decimal", "String"} {
		if k.IsValid() {
			t.Errorf("Kind(%q).IsValid() = true, want false", k)
		}
	}
}

func TestIsReserved(t *testing.T) {
	for _, id := range []string{TypeDescriptors, TypeUsers, TypePermissions} {
		if !IsReserved(id) {
			t.Errorf("IsReserved(%q) = false", id)
		}
	}
	if IsReserved("notes") {
		t.Error("IsReserved(notes) = true")
	}
}

func TestProperties_AppendOnly(t *testing.T) {
	var p Properties
	if !p.Add("b", FieldSpec{Kind: KindString}) || !p.Add("a", FieldSpec{Kind: KindInteger}) {
		t.Fatal("Add of new names should succeed")
	}
	if p.Add("b", FieldSpec{Kind: KindBoolean}) {
		t.Error("Add of an existing name should fail")
	}
	if spec, _ := p.Get("b"); spec.Kind != KindString {
		t.Errorf("b changed kind to %q", spec.Kind)
	}
	if got := p.Names(); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Errorf("Names() = %v, want insertion order", got)
	}
}

func TestProperties_JSONKeepsOrder(t *testing.T) {
	in := `{"z":{"type":"string"},"a":{"type":"integer"},"m":{"type":"string","format":"date-time","index":true}}`
	var p Properties
	if err := json.Unmarshal([]byte(in), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := p.Names(); !reflect.DeepEqual(got, []string{"z", "a", "m"}) {
		t.Errorf("Names() = %v", got)
	}
	out, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != in {
		t.Errorf("marshal = %s, want %s", out, in)
	}
}

func TestProperties_UnmarshalRejectsArray(t *testing.T) {
	var p Properties
	if err := json.Unmarshal([]byte(`["a"]`), &p); err == nil {
		t.Error("expected error for non-object properties")
	}
}

func TestTypeDescriptor_EnsureBuiltins(t *testing.T) {
	d := &TypeDescriptor{ID: "t", Properties: NewProperties(Field{Name: "title", Spec: FieldSpec{Kind: KindString}})}
	d.EnsureBuiltins()
	if got := d.Properties.Names(); !reflect.DeepEqual(got, []string{FieldID, FieldLastModified, "title"}) {
		t.Errorf("Names() = %v", got)
	}
	if spec, _ := d.Properties.Get(FieldID); !spec.PrimaryKey {
		t.Error("id should be the primary key")
	}
}

func TestTypeDescriptor_CloneIsIndependent(t *testing.T) {
	d := NewTypeDescriptor("t")
	c := d.Clone()
	c.Properties.Add("extra", FieldSpec{Kind: KindString})
	if d.Properties.Has("extra") {
		t.Error("Clone shares properties with the original")
	}
}

func TestRecord_MarshalSkipsNulls(t *testing.T) {
	r := NewRecord()
	r.Set(FieldID, StringValue("r1"))
	r.Set("gone", NullValue())
	r.Set("n", IntegerValue(3))
	r.Set(FieldID, StringValue("r2"))

	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"id":"r2","n":3}` {
		t.Errorf("marshal = %s", out)
	}
	if r.ID() != "r2" {
		t.Errorf("ID() = %q", r.ID())
	}
}

func TestRecord_NestsFlattenedNames(t *testing.T) {
	r := NewRecord()
	r.Set(FieldID, StringValue("r1"))
	r.Set("meta__a", IntegerValue(1))
	r.Set("foo", StringValue("bar"))
	r.Set("meta__inner__b", StringValue("x"))
	r.Set("meta__gone", NullValue())

	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":"r1","meta":{"a":1,"inner":{"b":"x"}},"foo":"bar"}`
	if string(out) != want {
		t.Errorf("marshal = %s, want %s", out, want)
	}

	m := r.Map()
	meta, ok := m["meta"].(map[string]any)
	if !ok || meta["a"] != int64(1) {
		t.Errorf("Map()[meta] = %v", m["meta"])
	}
}

func TestRecord_LeafShadowsNesting(t *testing.T) {
	r := NewRecord()
	r.Set("meta", StringValue("plain"))
	r.Set("meta__a", IntegerValue(1))
	r.Set("__x", StringValue("y"))

	out, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"meta":"plain","meta__a":1,"__x":"y"}`
	if string(out) != want {
		t.Errorf("marshal = %s, want %s", out, want)
	}
}
