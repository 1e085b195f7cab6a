package registry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/moisturizer/internal/events"
	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/store/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func newRegistry(t *testing.T, opts Options) (*Registry, *memory.Store, *recordingPublisher) {
	t.Helper()
	st := memory.New()
	pub := &recordingPublisher{}
	r := New(st, pub, opts)
	require.NoError(t, r.Bootstrap(context.Background()))
	return r, st, pub
}

func kindOf(err error) model.ErrorKind {
	k, _ := model.KindOf(err)
	return k
}

func TestGet_TypeNotFound(t *testing.T) {
	r, _, _ := newRegistry(t, Options{})
	_, err := r.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, model.ErrTypeNotFound, kindOf(err))
	assert.Equal(t, "nope", model.TypeIDOf(err))
}

func TestCreate_BuiltinsOnly(t *testing.T) {
	r, _, pub := newRegistry(t, Options{})
	ctx := context.Background()

	d, err := r.Create(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "last_modified"}, d.Properties.Names())
	assert.False(t, d.LastModified.IsZero())

	got, err := r.Get(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, d.Properties.Names(), got.Properties.Names())
	assert.Equal(t, []string{events.TopicTypeCreated}, pub.topics)
}

func TestCreate_RejectsBadIDs(t *testing.T) {
	r, _, _ := newRegistry(t, Options{})
	ctx := context.Background()

	_, err := r.Create(ctx, "has space")
	assert.Equal(t, model.ErrValidationFailed, kindOf(err))

	_, err = r.Create(ctx, model.TypeUsers)
	assert.Equal(t, model.ErrForbidden, kindOf(err))
}

func TestBootstrap_Idempotent(t *testing.T) {
	r, _, _ := newRegistry(t, Options{})
	ctx := context.Background()
	require.NoError(t, r.Bootstrap(ctx))

	ds, err := r.List(ctx)
	require.NoError(t, err)
	ids := make([]string, len(ds))
	for i, d := range ds {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{model.TypeDescriptors, model.TypePermissions, model.TypeUsers}, ids)
}

func TestInferAndMaybeMigrate_ImplicitTypeGrowth(t *testing.T) {
	r, _, pub := newRegistry(t, Options{})
	ctx := context.Background()

	m, err := r.InferAndMaybeMigrate(ctx, "t", map[string]any{"foo": "bar", "n": json.Number("42")})
	require.NoError(t, err)
	foo, _ := m.Spec("foo")
	n, _ := m.Spec("n")
	assert.Equal(t, model.KindString, foo.Kind)
	assert.Equal(t, model.KindInteger, n.Kind)

	m, err = r.InferAndMaybeMigrate(ctx, "t", map[string]any{"foo": "bar", "extra": true})
	require.NoError(t, err)
	d, err := r.Get(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "last_modified", "foo", "n", "extra"}, d.Properties.Names())
	foo2, _ := d.Properties.Get("foo")
	assert.Equal(t, foo, foo2)

	rec, err := m.Create(ctx, map[string]any{"foo": "x", "n": json.Number("1"), "extra": false})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID())

	assert.Equal(t, []string{events.TopicTypeCreated, events.TopicTypeMigrated, events.TopicTypeMigrated}, pub.topics)
	migrated := pub.events[2].(events.TypeMigrated)
	assert.Equal(t, []string{"extra"}, migrated.NewFields)
}

func TestInferAndMaybeMigrate_NoOpDoesNotSave(t *testing.T) {
	r, _, pub := newRegistry(t, Options{})
	ctx := context.Background()

	_, err := r.InferAndMaybeMigrate(ctx, "t", map[string]any{"a": "x"})
	require.NoError(t, err)
	before := len(pub.topics)

	_, err = r.InferAndMaybeMigrate(ctx, "t", map[string]any{"a": 12})
	require.NoError(t, err)
	assert.Len(t, pub.topics, before, "known fields must not trigger a save")
}

func TestInferAndMaybeMigrate_UnknownTypeWithoutPayload(t *testing.T) {
	r, _, _ := newRegistry(t, Options{})
	_, err := r.InferAndMaybeMigrate(context.Background(), "ghost", nil)
	assert.Equal(t, model.ErrTypeNotFound, kindOf(err))
}

func TestInferAndMaybeMigrate_InvalidFieldName(t *testing.T) {
	r, _, _ := newRegistry(t, Options{})
	_, err := r.InferAndMaybeMigrate(context.Background(), "t", map[string]any{"bad-name": 1})
	assert.Equal(t, model.ErrValidationFailed, kindOf(err))
}

func TestInferAndMaybeMigrate_Settings(t *testing.T) {
	ctx := context.Background()

	t.Run("strict refuses implicit types", func(t *testing.T) {
		r, _, _ := newRegistry(t, Options{StrictSchema: true})
		_, err := r.InferAndMaybeMigrate(ctx, "t", map[string]any{"a": "x"})
		assert.Equal(t, model.ErrTypeNotFound, kindOf(err))
	})

	t.Run("strict keeps descriptor unchanged", func(t *testing.T) {
		r, _, _ := newRegistry(t, Options{StrictSchema: true})
		_, _, err := r.Declare(ctx, "t", "", model.NewProperties(model.Field{Name: "a", Spec: model.FieldSpec{Kind: model.KindString}}))
		require.NoError(t, err)

		m, err := r.InferAndMaybeMigrate(ctx, "t", map[string]any{"a": "x", "b": 1})
		require.NoError(t, err)
		assert.False(t, m.Has("b"))

		_, err = m.Create(ctx, map[string]any{"a": "x", "b": 1})
		assert.Equal(t, model.ErrValidationFailed, kindOf(err))
	})

	t.Run("immutable refuses declarations", func(t *testing.T) {
		r, _, _ := newRegistry(t, Options{ImmutableSchema: true})
		_, _, err := r.Declare(ctx, "t", "", model.Properties{})
		assert.Equal(t, model.ErrForbidden, kindOf(err))
	})

	t.Run("read only refuses creation", func(t *testing.T) {
		r, _, _ := newRegistry(t, Options{ReadOnly: true})
		_, err := r.InferAndMaybeMigrate(ctx, "t", map[string]any{"a": "x"})
		assert.Equal(t, model.ErrForbidden, kindOf(err))
	})
}

func TestDeclare_Additive(t *testing.T) {
	r, _, _ := newRegistry(t, Options{})
	ctx := context.Background()

	d, created, err := r.Declare(ctx, "doc", "documents", model.NewProperties(
		model.Field{Name: "title", Spec: model.FieldSpec{Kind: model.KindString, Required: true}},
		model.Field{Name: "tags", Spec: model.FieldSpec{Kind: model.KindArray}},
	))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "documents", d.Description)

	d, created, err = r.Declare(ctx, "doc", "", model.NewProperties(
		model.Field{Name: "title", Spec: model.FieldSpec{Kind: model.KindString}},
		model.Field{Name: "meta", Spec: model.FieldSpec{Kind: model.KindObject}},
	))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, []string{"id", "last_modified", "title", "tags", "meta"}, d.Properties.Names())

	_, _, err = r.Declare(ctx, "doc", "", model.NewProperties(
		model.Field{Name: "title", Spec: model.FieldSpec{Kind: model.KindInteger}},
	))
	assert.Equal(t, model.ErrValidationFailed, kindOf(err))

	m, err := r.Model(ctx, "doc")
	require.NoError(t, err)
	_, err = m.Create(ctx, map[string]any{"title": "t", "meta": map[string]any{"k": 1}, "tags": []any{"x"}})
	require.NoError(t, err)
}

func TestDelete(t *testing.T) {
	r, st, _ := newRegistry(t, Options{})
	ctx := context.Background()

	_, err := r.InferAndMaybeMigrate(ctx, "t", map[string]any{"a": "x"})
	require.NoError(t, err)
	require.NoError(t, st.PutGrant(ctx, &model.Grant{
		GrantKey:     model.GrantKey{ResourceID: "t", Owner: "alice"},
		Capabilities: model.Capabilities{Read: true},
	}))

	require.NoError(t, r.Delete(ctx, "t"))

	_, err = r.Get(ctx, "t")
	assert.Equal(t, model.ErrTypeNotFound, kindOf(err))
	grants, err := st.ListGrants(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, grants)

	assert.Equal(t, model.ErrForbidden, kindOf(r.Delete(ctx, model.TypeDescriptors)))
	assert.Equal(t, model.ErrTypeNotFound, kindOf(r.Delete(ctx, "t")))
}

func TestDeleteAll_SkipsReserved(t *testing.T) {
	r, _, _ := newRegistry(t, Options{})
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		_, err := r.Create(ctx, id)
		require.NoError(t, err)
	}

	deleted, err := r.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, deleted)

	ds, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, ds, 3)
}

func TestModel_CacheInvalidation(t *testing.T) {
	r, _, _ := newRegistry(t, Options{})
	ctx := context.Background()

	var invalidated []string
	r.OnInvalidate(func(id string) { invalidated = append(invalidated, id) })

	_, err := r.Create(ctx, "t")
	require.NoError(t, err)
	m1, err := r.Model(ctx, "t")
	require.NoError(t, err)
	m2, err := r.Model(ctx, "t")
	require.NoError(t, err)
	assert.Same(t, m1, m2)

	_, err = r.InferAndMaybeMigrate(ctx, "t", map[string]any{"x": 1})
	require.NoError(t, err)
	m3, err := r.Model(ctx, "t")
	require.NoError(t, err)
	assert.NotSame(t, m1, m3)
	assert.True(t, m3.Has("x"))
	assert.Contains(t, invalidated, "t")

	_, err = r.Model(ctx, model.TypeUsers)
	assert.Equal(t, model.ErrForbidden, kindOf(err))
}

func TestModel_CatchesUpWithOtherProcesses(t *testing.T) {
	ctx := context.Background()
	a, st, _ := newRegistry(t, Options{})
	b := New(st, &recordingPublisher{}, Options{})

	_, err := a.InferAndMaybeMigrate(ctx, "t", map[string]any{"foo": "x"})
	require.NoError(t, err)
	cached, err := a.Model(ctx, "t")
	require.NoError(t, err)

	_, err = b.InferAndMaybeMigrate(ctx, "t", map[string]any{"bar": "y"})
	require.NoError(t, err)

	m, err := a.InferAndMaybeMigrate(ctx, "t", map[string]any{"bar": "z"})
	require.NoError(t, err)
	assert.Same(t, cached, m)
	rec, err := m.Create(ctx, map[string]any{"bar": "z"})
	require.NoError(t, err)
	v, _ := rec.Get("bar")
	assert.Equal(t, "z", v.Interface())

	m, err = a.Model(ctx, "t")
	require.NoError(t, err)
	assert.True(t, m.Has("bar"))
}

func TestModel_RebuiltAfterRecreateElsewhere(t *testing.T) {
	ctx := context.Background()
	a, st, _ := newRegistry(t, Options{})
	b := New(st, &recordingPublisher{}, Options{})

	_, err := a.InferAndMaybeMigrate(ctx, "t", map[string]any{"old": "x"})
	require.NoError(t, err)
	require.NoError(t, b.Delete(ctx, "t"))
	_, err = b.InferAndMaybeMigrate(ctx, "t", map[string]any{"fresh": "y"})
	require.NoError(t, err)
	m, err := a.Model(ctx, "t")
	require.NoError(t, err)
	assert.True(t, m.Has("fresh"))
	assert.False(t, m.Has("old"))

	require.NoError(t, b.Delete(ctx, "t"))
	_, err = a.Model(ctx, "t")
	assert.Equal(t, model.ErrTypeNotFound, kindOf(err))
}
