package registry

import (
	"context"

	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/schema"
	"github.com/alfredjeanlab/moisturizer/internal/typemodel"
)

// InferAndMaybeMigrate returns the live model for typeID, first creating
// the type and extending it with any fields payload introduces. The
// descriptor is saved only when inference found new fields.
//
// An unknown type is created only when a payload is given and the schema
// settings allow implicit creation; otherwise TypeNotFound is returned.
// Known fields are never checked here: a value of the wrong shape is
// rejected when the record is decoded. When the schema is strict or
// immutable, new fields are not added.
func (r *Registry) InferAndMaybeMigrate(ctx context.Context, typeID string, payload map[string]any) (*typemodel.Model, error) {
	if model.IsReserved(typeID) {
		return nil, model.NewError(model.ErrForbidden, typeID, "%s is a system type", typeID)
	}
	d, err := r.Get(ctx, typeID)
	if err != nil {
		kind, _ := model.KindOf(err)
		if kind != model.ErrTypeNotFound || payload == nil || r.opts.StrictSchema || r.opts.ImmutableSchema {
			return nil, err
		}
		if d, err = r.Create(ctx, typeID); err != nil {
			return nil, err
		}
	}

	m := r.modelFor(d)
	fields := schema.Infer(d, payload)
	if len(fields) == 0 || r.opts.StrictSchema || r.opts.ImmutableSchema {
		return m, nil
	}
	if r.opts.ReadOnly {
		return nil, model.NewError(model.ErrForbidden, typeID, "server is read-only")
	}

	ve := &model.ValidationError{TypeID: typeID}
	for _, name := range schema.SortedNames(fields) {
		if err := model.ValidateFieldName(name); err != nil {
			ve.Add(name, "%v", err)
		}
	}
	if err := ve.Err(); err != nil {
		return nil, err
	}

	if err := m.Apply(ctx, fields); err != nil {
		return nil, err
	}
	merged := schema.Merge(d, fields)
	if err := r.Save(ctx, merged); err != nil {
		return nil, err
	}
	r.publishMigrated(ctx, merged, fields)
	return r.modelFor(merged), nil
}
