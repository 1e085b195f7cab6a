// Package registry owns the type descriptors: lookup, creation, additive
// migration, deletion, and the cache of live record models built from them.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/moisturizer/internal/events"
	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/store"
	"github.com/alfredjeanlab/moisturizer/internal/typemodel"
)

// Options are the schema settings of a deployment.
type Options struct {
	// ReadOnly refuses every mutation.
	ReadOnly bool
	// ImmutableSchema refuses descriptor creation and migration.
	ImmutableSchema bool
	// StrictSchema refuses inferred migrations and implicit type creation.
	// Types can still be declared explicitly.
	StrictSchema bool
}

// Registry is the type registry. It is safe for concurrent use.
type Registry struct {
	st    store.Store
	pub   events.Publisher
	opts  Options
	cache *Cache

	hooksMu sync.RWMutex
	hooks   []func(typeID string)

	now func() time.Time
}

// New returns a registry over st. A nil publisher disables events.
func New(st store.Store, pub events.Publisher, opts Options) *Registry {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	return &Registry{
		st:    st,
		pub:   pub,
		opts:  opts,
		cache: NewCache(),
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Options returns the schema settings.
func (r *Registry) Options() Options { return r.opts }

// Store returns the underlying store.
func (r *Registry) Store() store.Store { return r.st }

// OnInvalidate registers fn to run whenever a type's cached model is dropped.
func (r *Registry) OnInvalidate(fn func(typeID string)) {
	r.hooksMu.Lock()
	r.hooks = append(r.hooks, fn)
	r.hooksMu.Unlock()
}

// Invalidate drops the cached model for typeID and runs the hooks.
func (r *Registry) Invalidate(typeID string) {
	r.cache.Invalidate(typeID)
	r.hooksMu.RLock()
	hooks := append([]func(string){}, r.hooks...)
	r.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(typeID)
	}
}

// Get returns the descriptor for id.
func (r *Registry) Get(ctx context.Context, id string) (*model.TypeDescriptor, error) {
	d, err := r.st.GetDescriptor(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewError(model.ErrTypeNotFound, id, "type %s not found", id)
	}
	if err != nil {
		return nil, model.WrapError(model.ErrInternal, id, fmt.Errorf("reading type: %w", err))
	}
	d.EnsureBuiltins()
	return d, nil
}

// List returns every descriptor ordered by id.
func (r *Registry) List(ctx context.Context) ([]*model.TypeDescriptor, error) {
	ds, err := r.st.ListDescriptors(ctx)
	if err != nil {
		return nil, model.WrapError(model.ErrInternal, "", fmt.Errorf("listing types: %w", err))
	}
	for _, d := range ds {
		d.EnsureBuiltins()
	}
	return ds, nil
}

// Create registers a type holding only the built-in fields, provisions
// its record table and persists the descriptor. A concurrent create of
// the same id is not detected; the last write wins.
func (r *Registry) Create(ctx context.Context, id string) (*model.TypeDescriptor, error) {
	if err := r.checkSchemaWritable(id, true); err != nil {
		return nil, err
	}
	if err := model.ValidateTypeID(id); err != nil {
		return nil, err
	}
	d := model.NewTypeDescriptor(id)
	if err := r.provision(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *Registry) provision(ctx context.Context, d *model.TypeDescriptor) error {
	if err := typemodel.Build(r.st, d).Sync(ctx); err != nil {
		return err
	}
	if err := r.Save(ctx, d); err != nil {
		return err
	}
	slog.Info("type created", "type", d.ID, "fields", d.Properties.Len())
	r.publish(ctx, events.TopicTypeCreated, events.TypeCreated{Type: d})
	return nil
}

// Save persists d, stamping its modification time, and invalidates the
// cached model for it.
func (r *Registry) Save(ctx context.Context, d *model.TypeDescriptor) error {
	if r.opts.ReadOnly {
		return model.NewError(model.ErrForbidden, d.ID, "server is read-only")
	}
	d.EnsureBuiltins()
	d.LastModified = r.now()
	if err := r.st.PutDescriptor(ctx, d); err != nil {
		return model.WrapError(model.ErrStorageConflict, d.ID, fmt.Errorf("saving type: %w", err))
	}
	r.Invalidate(d.ID)
	return nil
}

// Declare creates or extends a type from explicitly declared properties.
// Fields the type already has must be declared with the same type and
// format; new ones are appended. Unlike inference, declarations may use
// any kind, including objects and arrays. It reports whether the type was
// created.
func (r *Registry) Declare(ctx context.Context, id, description string, props model.Properties) (*model.TypeDescriptor, bool, error) {
	if err := r.checkSchemaWritable(id, false); err != nil {
		return nil, false, err
	}
	if err := model.ValidateTypeID(id); err != nil {
		return nil, false, err
	}
	ve := &model.ValidationError{TypeID: id}
	for _, f := range props.Fields() {
		if err := model.ValidateFieldSpec(f.Name, f.Spec); err != nil {
			ve.Add(f.Name, "%v", err)
		}
	}
	if err := ve.Err(); err != nil {
		return nil, false, err
	}

	existing, err := r.Get(ctx, id)
	if kind, _ := model.KindOf(err); err != nil && kind != model.ErrTypeNotFound {
		return nil, false, err
	}
	created := existing == nil
	if created {
		existing = model.NewTypeDescriptor(id)
	}

	added := make(map[string]model.FieldSpec)
	for _, f := range props.Fields() {
		if spec, ok := existing.Properties.Get(f.Name); ok {
			if !spec.SameType(f.Spec) {
				ve.Add(f.Name, "already declared as %s", describeSpec(spec))
			}
			continue
		}
		added[f.Name] = f.Spec
	}
	if err := ve.Err(); err != nil {
		return nil, false, err
	}
	changed := created || len(added) > 0 || (description != "" && description != existing.Description)
	if !changed {
		return existing, false, nil
	}
	if r.opts.ImmutableSchema {
		return nil, false, model.NewError(model.ErrForbidden, id, "schema is immutable")
	}

	d := existing.Clone()
	if description != "" {
		d.Description = description
	}
	for _, f := range props.Fields() {
		if spec, ok := added[f.Name]; ok {
			d.Properties.Add(f.Name, spec)
		}
	}
	if created {
		if err := r.provision(ctx, d); err != nil {
			return nil, false, err
		}
		return d, true, nil
	}

	m, err := r.Model(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if err := m.Apply(ctx, added); err != nil {
		return nil, false, err
	}
	if err := r.Save(ctx, d); err != nil {
		return nil, false, err
	}
	r.publishMigrated(ctx, d, added)
	return d, false, nil
}

func describeSpec(spec model.FieldSpec) string {
	if spec.Format != "" {
		return fmt.Sprintf("%s (%s)", spec.Kind, spec.Format)
	}
	return string(spec.Kind)
}

// Delete drops the type's records and grants and removes its descriptor.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.checkSchemaWritable(id, true); err != nil {
		return err
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return r.drop(ctx, id)
}

func (r *Registry) drop(ctx context.Context, id string) error {
	if err := r.st.DropNamespace(ctx, id); err != nil {
		return model.WrapError(model.ErrStorageConflict, id, fmt.Errorf("dropping records: %w", err))
	}
	if err := r.st.DeleteDescriptor(ctx, id); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.WrapError(model.ErrStorageConflict, id, fmt.Errorf("deleting type: %w", err))
	}
	grants, err := r.st.ListGrantsForType(ctx, id)
	if err != nil {
		return model.WrapError(model.ErrStorageConflict, id, fmt.Errorf("listing grants: %w", err))
	}
	for _, g := range grants {
		if err := r.st.DeleteGrant(ctx, g.GrantKey); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return model.WrapError(model.ErrStorageConflict, id, fmt.Errorf("deleting grant: %w", err))
		}
	}
	r.Invalidate(id)
	slog.Info("type deleted", "type", id, "grants", len(grants))
	r.publish(ctx, events.TopicTypeDeleted, events.TypeDeleted{TypeID: id})
	return nil
}

// DeleteAll deletes every type except the reserved ones and returns the
// deleted ids.
func (r *Registry) DeleteAll(ctx context.Context) ([]string, error) {
	if err := r.checkSchemaWritable("", true); err != nil {
		return nil, err
	}
	ds, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var deleted []string
	for _, d := range ds {
		if model.IsReserved(d.ID) {
			continue
		}
		if err := r.drop(ctx, d.ID); err != nil {
			return deleted, err
		}
		deleted = append(deleted, d.ID)
	}
	return deleted, nil
}

// Model returns the live model for id, building it on first use. The
// stored descriptor is read on every call so that fields added by other
// processes are picked up. Reserved types have no record model.
func (r *Registry) Model(ctx context.Context, id string) (*typemodel.Model, error) {
	if model.IsReserved(id) {
		return nil, model.NewError(model.ErrForbidden, id, "%s is a system type", id)
	}
	d, err := r.Get(ctx, id)
	if err != nil {
		if kind, _ := model.KindOf(err); kind == model.ErrTypeNotFound {
			r.cache.Invalidate(id)
		}
		return nil, err
	}
	return r.modelFor(d), nil
}

// modelFor returns the cached model of d. A cached model missing fields
// of d is caught up; one holding fields d lacks is rebuilt.
func (r *Registry) modelFor(d *model.TypeDescriptor) *typemodel.Model {
	if m, ok := r.cache.Get(d.ID); ok {
		if m.Refresh(d) {
			return m
		}
		r.cache.Invalidate(d.ID)
	}
	m := r.cache.Put(typemodel.Build(r.st, d))
	m.Refresh(d)
	return m
}

// checkSchemaWritable refuses descriptor changes the settings forbid.
func (r *Registry) checkSchemaWritable(id string, structural bool) error {
	switch {
	case r.opts.ReadOnly:
		return model.NewError(model.ErrForbidden, id, "server is read-only")
	case model.IsReserved(id):
		return model.NewError(model.ErrForbidden, id, "%s is a system type", id)
	case structural && r.opts.ImmutableSchema:
		return model.NewError(model.ErrForbidden, id, "schema is immutable")
	}
	return nil
}

func (r *Registry) publish(ctx context.Context, topic string, event any) {
	if err := r.pub.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

func (r *Registry) publishMigrated(ctx context.Context, d *model.TypeDescriptor, fields map[string]model.FieldSpec) {
	names := make([]string, 0, len(fields))
	for _, f := range d.Properties.Fields() {
		if _, ok := fields[f.Name]; ok {
			names = append(names, f.Name)
		}
	}
	slog.Info("type migrated", "type", d.ID, "new_fields", names)
	r.publish(ctx, events.TopicTypeMigrated, events.TypeMigrated{Type: d, NewFields: names})
}
