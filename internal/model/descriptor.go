package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the JSON-schema primitive kind of a field.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindNull    Kind = "null"
)

// IsValid reports whether k is one of the known kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindString, KindInteger, KindNumber, KindBoolean, KindObject, KindArray, KindNull:
		return true
	}
	return false
}

// Well-known format refinements.
const (
	FormatUUID       = "uuid"
	FormatDateTime   = "date-time"
	FormatFloat      = "float"
	FormatDouble     = "double"
	FormatDescriptor = "descriptor"
)

// Built-in field names present on every type.
const (
	FieldID           = "id"
	FieldLastModified = "last_modified"
)

// Reserved, system-owned type names.
const (
	TypeDescriptors = "descriptor_model"
	TypeUsers       = "user_model"
	TypePermissions = "permission_model"
)

// IsReserved reports whether typeID names a system-owned type.
func IsReserved(typeID string) bool {
	switch typeID {
	case TypeDescriptors, TypeUsers, TypePermissions:
		return true
	}
	return false
}

// FieldSpec describes one field of a type.
type FieldSpec struct {
	Kind         Kind   `json:"type"`
	Format       string `json:"format,omitempty"`
	PrimaryKey   bool   `json:"primary_key,omitempty"`
	PartitionKey bool   `json:"partition_key,omitempty"`
	Required     bool   `json:"required,omitempty"`
	Indexed      bool   `json:"index,omitempty"`
}

// SameType reports whether two specs agree on kind and format.
func (f FieldSpec) SameType(o FieldSpec) bool {
	return f.Kind == o.Kind && f.Format == o.Format
}

// BuiltinFields returns the fields injected into every descriptor, in order.
func BuiltinFields() []Field {
	return []Field{
		{Name: FieldID, Spec: FieldSpec{Kind: KindString, PrimaryKey: true, PartitionKey: true}},
		{Name: FieldLastModified, Spec: FieldSpec{Kind: KindString, Format: FormatDateTime, Indexed: true}},
	}
}

// Field is a named FieldSpec.
type Field struct {
	Name string
	Spec FieldSpec
}

// Properties is an ordered, append-only mapping of field name to FieldSpec.
// The zero value is empty and ready to use.
type Properties struct {
	names []string
	specs map[string]FieldSpec
}

// NewProperties builds Properties from fields in order. Later duplicates are ignored.
func NewProperties(fields ...Field) Properties {
	var p Properties
	for _, f := range fields {
		p.Add(f.Name, f.Spec)
	}
	return p
}

// Add appends a field. It returns false and leaves p unchanged if the name exists.
func (p *Properties) Add(name string, spec FieldSpec) bool {
	if p.specs == nil {
		p.specs = make(map[string]FieldSpec)
	}
	if _, ok := p.specs[name]; ok {
		return false
	}
	p.names = append(p.names, name)
	p.specs[name] = spec
	return true
}

// Get returns the spec for name.
func (p Properties) Get(name string) (FieldSpec, bool) {
	spec, ok := p.specs[name]
	return spec, ok
}

// Has reports whether name is a known field.
func (p Properties) Has(name string) bool {
	_, ok := p.specs[name]
	return ok
}

// Len returns the number of fields.
func (p Properties) Len() int { return len(p.names) }

// Names returns field names in insertion order.
func (p Properties) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Fields returns the fields in insertion order.
func (p Properties) Fields() []Field {
	out := make([]Field, len(p.names))
	for i, n := range p.names {
		out[i] = Field{Name: n, Spec: p.specs[n]}
	}
	return out
}

// Clone returns an independent copy.
func (p Properties) Clone() Properties {
	return NewProperties(p.Fields()...)
}

// MarshalJSON encodes the properties as a JSON object in insertion order.
func (p Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range p.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.specs[n])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the key order of the input.
func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*p = Properties{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("properties: expected object")
	}
	out := Properties{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("properties: expected field name")
		}
		var spec FieldSpec
		if err := dec.Decode(&spec); err != nil {
			return fmt.Errorf("properties: field %q: %w", name, err)
		}
		out.Add(name, spec)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}

// TypeDescriptor is the persisted schema of one type.
type TypeDescriptor struct {
	ID           string     `json:"id"`
	Description  string     `json:"description,omitempty"`
	Properties   Properties `json:"properties"`
	LastModified time.Time  `json:"last_modified"`
}

// NewTypeDescriptor returns a descriptor holding only the built-in fields.
func NewTypeDescriptor(id string) *TypeDescriptor {
	return &TypeDescriptor{
		ID:         id,
		Properties: NewProperties(BuiltinFields()...),
	}
}

// EnsureBuiltins injects any missing built-in fields.
func (d *TypeDescriptor) EnsureBuiltins() {
	if !d.Properties.Has(FieldID) || !d.Properties.Has(FieldLastModified) {
		merged := NewProperties(BuiltinFields()...)
		for _, f := range d.Properties.Fields() {
			merged.Add(f.Name, f.Spec)
		}
		d.Properties = merged
	}
}

// Clone returns a deep copy of d.
func (d *TypeDescriptor) Clone() *TypeDescriptor {
	c := *d
	c.Properties = d.Properties.Clone()
	return &c
}
