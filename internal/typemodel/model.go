// Package typemodel builds live record models from type descriptors.
//
// A Model holds an append-only field registry for one type and moves
// records between their generic form (model.Record) and the typed columns
// of the type's storage namespace.
package typemodel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/schema"
	"github.com/alfredjeanlab/moisturizer/internal/store"
)

// Model is the live model of one type. It is safe for concurrent use.
type Model struct {
	st     store.Store
	typeID string

	mu     sync.RWMutex
	names  []string
	fields map[string]model.FieldSpec

	now func() time.Time
}

// Build returns a model with one field per descriptor property. The
// built-in fields are always present, even if d predates them.
func Build(st store.Store, d *model.TypeDescriptor) *Model {
	snap := d.Clone()
	snap.EnsureBuiltins()

	m := &Model{
		st:     st,
		typeID: d.ID,
		fields: make(map[string]model.FieldSpec, snap.Properties.Len()),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
	for _, f := range snap.Properties.Fields() {
		m.names = append(m.names, f.Name)
		m.fields[f.Name] = f.Spec
	}
	return m
}

// TypeID returns the type this model stores.
func (m *Model) TypeID() string { return m.typeID }

// Fields returns the registered fields in order.
func (m *Model) Fields() []model.Field {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Field, len(m.names))
	for i, n := range m.names {
		out[i] = model.Field{Name: n, Spec: m.fields[n]}
	}
	return out
}

// Spec returns the spec of a registered field.
func (m *Model) Spec(name string) (model.FieldSpec, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spec, ok := m.fields[name]
	return spec, ok
}

// Has reports whether name is a registered field.
func (m *Model) Has(name string) bool {
	_, ok := m.Spec(name)
	return ok
}

// Columns returns the storage columns in field order.
func (m *Model) Columns() []store.Column {
	fields := m.Fields()
	cols := make([]store.Column, len(fields))
	for i, f := range fields {
		cols[i] = ColumnOf(f.Name, f.Spec)
	}
	return cols
}

// Sync creates the type's namespace and record table if they do not
// exist yet.
func (m *Model) Sync(ctx context.Context) error {
	if err := m.st.CreateNamespace(ctx, m.typeID); err != nil {
		return model.WrapError(model.ErrStorageConflict, m.typeID, err)
	}
	if err := m.st.EnsureTable(ctx, m.typeID, m.Columns()); err != nil {
		return model.WrapError(model.ErrStorageConflict, m.typeID, err)
	}
	return nil
}

// Apply extends the model with fields. Names already registered are
// skipped; for the others the column is added before the field is
// registered. Existing fields and columns are never changed.
func (m *Model) Apply(ctx context.Context, fields map[string]model.FieldSpec) error {
	for _, name := range schema.SortedNames(fields) {
		if m.Has(name) {
			continue
		}
		spec := fields[name]
		if err := m.st.AddColumn(ctx, m.typeID, ColumnOf(name, spec)); err != nil {
			return model.WrapError(model.ErrStorageConflict, m.typeID, fmt.Errorf("adding field %s: %w", name, err))
		}
		m.register(name, spec)
	}
	return nil
}

// Refresh registers the properties of d the model lacks, assuming their
// columns already exist. It reports false, leaving the model unchanged,
// when the model holds a field d does not have.
func (m *Model) Refresh(d *model.TypeDescriptor) bool {
	for _, f := range m.Fields() {
		if f.Name != model.FieldID && f.Name != model.FieldLastModified && !d.Properties.Has(f.Name) {
			return false
		}
	}
	for _, f := range d.Properties.Fields() {
		m.register(f.Name, f.Spec)
	}
	return true
}

func (m *Model) register(name string, spec model.FieldSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fields[name]; ok {
		return
	}
	m.names = append(m.names, name)
	m.fields[name] = spec
}

// Descriptor returns a descriptor holding the model's fields.
func (m *Model) Descriptor() *model.TypeDescriptor {
	d := &model.TypeDescriptor{ID: m.typeID}
	for _, f := range m.Fields() {
		d.Properties.Add(f.Name, f.Spec)
	}
	return d
}
