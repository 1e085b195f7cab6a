package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Record is one instance of a described type: an ordered mapping of field
// name to Value.
type Record struct {
	names  []string
	values map[string]Value
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]Value)}
}

// Set assigns a field, keeping the position of an existing name.
func (r *Record) Set(name string, v Value) {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, ok := r.values[name]; !ok {
		r.names = append(r.names, name)
	}
	r.values[name] = v
}

// Get returns the value of a field.
func (r *Record) Get(name string) (Value, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Names returns the set field names in order.
func (r *Record) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// ID returns the record's id, or "" if unset.
func (r *Record) ID() string {
	v, _ := r.values[FieldID]
	s, _ := v.Str()
	return s
}

// LastModified returns the record's modification stamp.
func (r *Record) LastModified() time.Time {
	v, _ := r.values[FieldLastModified]
	t, _ := v.Time()
	return t
}

// NestSeparator joins the keys of a nested object into one field name.
const NestSeparator = "__"

// Map returns the non-null fields as a JSON-ready map, with flattened
// names rebuilt into nested objects.
func (r *Record) Map() map[string]any {
	return nestedMap(r.tree())
}

func nestedMap(entries []*entry) map[string]any {
	out := make(map[string]any, len(entries))
	for _, e := range entries {
		if e.children != nil {
			out[e.name] = nestedMap(e.children)
		} else {
			out[e.name] = e.value
		}
	}
	return out
}

// MarshalJSON writes non-null fields in order, nesting flattened names.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeEntries(&buf, r.tree()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeEntries(buf *bytes.Buffer, entries []*entry) error {
	buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.name)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if e.children != nil {
			if err := writeEntries(buf, e.children); err != nil {
				return err
			}
			continue
		}
		val, err := json.Marshal(e.value)
		if err != nil {
			return err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return nil
}

// entry is one key of the nested form of a record.
type entry struct {
	name     string
	value    any
	children []*entry
}

// tree groups the non-null fields by their flattened names, in field
// order. A name is left flat when a shorter prefix of it is itself a set
// field, so a leaf and an object never compete for one key.
func (r *Record) tree() []*entry {
	set := make(map[string]bool, len(r.names))
	for _, n := range r.names {
		if !r.values[n].IsNull() {
			set[n] = true
		}
	}
	var root []*entry
	for _, n := range r.names {
		if !set[n] {
			continue
		}
		value := r.values[n].JSON()
		parts := splitNested(n)
		for i := 1; i < len(parts); i++ {
			if set[strings.Join(parts[:i], NestSeparator)] {
				parts = []string{n}
				break
			}
		}
		level := &root
		for _, p := range parts[:len(parts)-1] {
			e := findEntry(*level, p)
			if e == nil {
				e = &entry{name: p, children: []*entry{}}
				*level = append(*level, e)
			}
			level = &e.children
		}
		*level = append(*level, &entry{name: parts[len(parts)-1], value: value})
	}
	return root
}

func splitNested(name string) []string {
	parts := strings.Split(name, NestSeparator)
	for _, p := range parts {
		if p == "" {
			return []string{name}
		}
	}
	return parts
}

func findEntry(entries []*entry, name string) *entry {
	for _, e := range entries {
		if e.name == name {
			return e
		}
	}
	return nil
}
