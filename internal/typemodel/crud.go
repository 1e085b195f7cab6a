package typemodel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/store"
)

// Query selects records by field equality. Values are the textual form
// used in URLs and are parsed according to the field's spec.
type Query struct {
	Equals map[string]string
	Limit  int
	Offset int
}

// Create decodes payload and stores it as a new record. A payload id that
// already exists overwrites the stored record.
func (m *Model) Create(ctx context.Context, payload map[string]any) (*model.Record, error) {
	rec, err := m.Decode(payload, ModeCreate)
	if err != nil {
		return nil, err
	}
	if err := m.put(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Replace stores payload as the full content of record id, creating it if
// it does not exist. Fields left out of payload are cleared.
func (m *Model) Replace(ctx context.Context, id string, payload map[string]any) (*model.Record, error) {
	withID := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		withID[k] = v
	}
	if _, ok := withID[model.FieldID]; !ok {
		withID[model.FieldID] = id
	}
	rec, err := m.Decode(withID, ModeReplace)
	if err != nil {
		return nil, err
	}
	if err := m.checkID(rec, id); err != nil {
		return nil, err
	}
	if err := m.put(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Patch sets the fields present in payload on an existing record and
// returns the updated record.
func (m *Model) Patch(ctx context.Context, id string, payload map[string]any) (*model.Record, error) {
	rec, err := m.Decode(payload, ModePatch)
	if err != nil {
		return nil, err
	}
	if err := m.checkID(rec, id); err != nil {
		return nil, err
	}
	row, err := m.toRow(rec)
	if err != nil {
		return nil, err
	}
	delete(row, model.FieldID)
	if err := m.st.UpdateRow(ctx, m.typeID, m.Columns(), id, row); err != nil {
		return nil, m.storageErr(id, "updating", err)
	}
	return m.Get(ctx, id)
}

// Get returns record id.
func (m *Model) Get(ctx context.Context, id string) (*model.Record, error) {
	row, err := m.st.GetRow(ctx, m.typeID, m.Columns(), id)
	if err != nil {
		return nil, m.storageErr(id, "reading", err)
	}
	rec, err := m.fromRow(row)
	if err != nil {
		return nil, model.WrapError(model.ErrInternal, m.typeID, err)
	}
	return rec, nil
}

// List returns the records matching q ordered by id.
func (m *Model) List(ctx context.Context, q Query) ([]*model.Record, error) {
	filter, err := m.Filter(q)
	if err != nil {
		return nil, err
	}
	rows, err := m.st.ScanRows(ctx, m.typeID, m.Columns(), filter)
	if err != nil {
		return nil, model.WrapError(model.ErrStorageConflict, m.typeID, fmt.Errorf("listing records: %w", err))
	}
	out := make([]*model.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := m.fromRow(row)
		if err != nil {
			return nil, model.WrapError(model.ErrInternal, m.typeID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes record id and returns what was stored.
func (m *Model) Delete(ctx context.Context, id string) (*model.Record, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.st.DeleteRow(ctx, m.typeID, id); err != nil {
		return nil, m.storageErr(id, "deleting", err)
	}
	return rec, nil
}

// DeleteAll removes every record matching q and returns their ids.
func (m *Model) DeleteAll(ctx context.Context, q Query) ([]string, error) {
	filter, err := m.Filter(Query{Equals: q.Equals})
	if err != nil {
		return nil, err
	}
	idCol := []store.Column{ColumnOf(model.FieldID, model.BuiltinFields()[0].Spec)}
	rows, err := m.st.ScanRows(ctx, m.typeID, idCol, filter)
	if err != nil {
		return nil, model.WrapError(model.ErrStorageConflict, m.typeID, fmt.Errorf("listing records: %w", err))
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		id, _ := row[model.FieldID].(string)
		if err := m.st.DeleteRow(ctx, m.typeID, id); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return ids, m.storageErr(id, "deleting", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Filter parses q into a storage filter. Only scalar fields can be
// filtered on.
func (m *Model) Filter(q Query) (store.Filter, error) {
	f := store.Filter{Limit: q.Limit, Offset: q.Offset}
	if len(q.Equals) == 0 {
		return f, nil
	}
	names := make([]string, 0, len(q.Equals))
	for name := range q.Equals {
		names = append(names, name)
	}
	sort.Strings(names)

	ve := &model.ValidationError{TypeID: m.typeID}
	f.Equals = make(map[string]any, len(names))
	for _, name := range names {
		spec, ok := m.Spec(name)
		if !ok {
			ve.Add(name, "unknown field")
			continue
		}
		v, err := parseText(spec, q.Equals[name])
		if err != nil {
			ve.Add(name, "%v", err)
			continue
		}
		native, err := toNative(ColumnFor(spec), v)
		if err != nil {
			ve.Add(name, "%v", err)
			continue
		}
		f.Equals[name] = native
	}
	if err := ve.Err(); err != nil {
		return store.Filter{}, err
	}
	return f, nil
}

func parseText(spec model.FieldSpec, s string) (model.Value, error) {
	switch spec.Kind {
	case model.KindString:
		return coerceString(spec.Format, s)
	case model.KindInteger:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return model.Value{}, fmt.Errorf("expected integer, got %q", s)
		}
		return model.IntegerValue(i), nil
	case model.KindNumber:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Value{}, fmt.Errorf("expected number, got %q", s)
		}
		return model.NumberValue(f), nil
	case model.KindBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return model.Value{}, fmt.Errorf("expected boolean, got %q", s)
		}
		return model.BoolValue(b), nil
	}
	return model.Value{}, fmt.Errorf("cannot filter on %s fields", spec.Kind)
}

func (m *Model) put(ctx context.Context, rec *model.Record) error {
	row, err := m.toRow(rec)
	if err != nil {
		return err
	}
	if err := m.st.PutRow(ctx, m.typeID, m.Columns(), row); err != nil {
		return model.WrapError(model.ErrStorageConflict, m.typeID, fmt.Errorf("writing record %s: %w", rec.ID(), err))
	}
	return nil
}

func (m *Model) checkID(rec *model.Record, id string) error {
	if got := rec.ID(); got != "" && got != id {
		ve := &model.ValidationError{TypeID: m.typeID}
		ve.Add(model.FieldID, "does not match %q", id)
		return ve
	}
	return nil
}

func (m *Model) storageErr(id, action string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewError(model.ErrNotFound, m.typeID, "record %s not found", id)
	}
	return model.WrapError(model.ErrStorageConflict, m.typeID, fmt.Errorf("%s record %s: %w", action, id, err))
}
