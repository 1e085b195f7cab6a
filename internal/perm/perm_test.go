package perm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/store/memory"
)

var (
	admin = model.Identity{ID: "root", Admin: true}
	alice = model.Identity{ID: "alice"}
)

func grant(t *testing.T, st *memory.Store, key model.GrantKey, caps model.Capabilities) {
	t.Helper()
	require.NoError(t, st.PutGrant(context.Background(), &model.Grant{GrantKey: key, Capabilities: caps}))
}

func TestResolve_DenyByDefault(t *testing.T) {
	r := New(memory.New(), false)
	caps, err := r.Resolve(context.Background(), alice, "t", "")
	require.NoError(t, err)
	assert.True(t, caps.IsEmpty())
}

func TestResolve_AdminBypass(t *testing.T) {
	r := New(memory.New(), false)
	caps, err := r.Resolve(context.Background(), admin, "t", "rec")
	require.NoError(t, err)
	assert.Equal(t, model.FullCapabilities, caps)
}

func TestResolve_ExactKey(t *testing.T) {
	st := memory.New()
	grant(t, st, model.GrantKey{ResourceID: "t", Owner: "alice"}, model.Capabilities{Read: true})
	grant(t, st, model.GrantKey{ResourceID: "r1", TypeScope: "t", Owner: "alice"}, model.Capabilities{Write: true})
	r := New(st, false)
	ctx := context.Background()

	for _, tc := range []struct {
		name     string
		typeID   string
		recordID string
		want     model.Capabilities
	}{
		{"type level", "t", "", model.Capabilities{Read: true}},
		{"object level", "t", "r1", model.Capabilities{Write: true}},
		{"object without grant", "t", "r2", model.Capabilities{}},
		{"other type", "u", "", model.Capabilities{}},
		{"record id of another type", "u", "r1", model.Capabilities{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			caps, err := r.Resolve(ctx, alice, tc.typeID, tc.recordID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, caps)
		})
	}

	caps, err := r.Effective(ctx, alice, "t", "r1")
	require.NoError(t, err)
	assert.Equal(t, model.Capabilities{Read: true, Write: true}, caps)
}

func TestAuthorize(t *testing.T) {
	st := memory.New()
	grant(t, st, model.GrantKey{ResourceID: "readable", Owner: "alice"}, model.Capabilities{Read: true})
	grant(t, st, model.GrantKey{ResourceID: "writable", Owner: "alice"}, model.Capabilities{Write: true})
	grant(t, st, model.GrantKey{ResourceID: "creatable", Owner: "alice"}, model.Capabilities{Create: true})
	grant(t, st, model.GrantKey{ResourceID: "mine", TypeScope: "creatable", Owner: "alice"}, model.Capabilities{Write: true})
	r := New(st, false)
	ctx := context.Background()

	for _, tc := range []struct {
		op       Op
		typeID   string
		recordID string
		allowed  bool
	}{
		{OpList, "readable", "", true},
		{OpList, "writable", "", true},
		{OpList, "creatable", "", false},
		{OpList, "unknown", "", false},
		{OpCreate, "readable", "", false},
		{OpCreate, "creatable", "", true},
		{OpRead, "readable", "x", true},
		{OpUpdate, "readable", "x", false},
		{OpUpdate, "writable", "x", true},
		{OpDelete, "writable", "x", true},
		{OpUpdate, "creatable", "mine", true},
		{OpRead, "creatable", "mine", true},
		{OpDelete, "creatable", "theirs", false},
	} {
		err := r.Authorize(ctx, alice, tc.op, tc.typeID, tc.recordID)
		if tc.allowed {
			assert.NoError(t, err, "%s %s/%s", tc.op, tc.typeID, tc.recordID)
			continue
		}
		require.Error(t, err, "%s %s/%s", tc.op, tc.typeID, tc.recordID)
		kind, _ := model.KindOf(err)
		assert.Equal(t, model.ErrForbidden, kind)
		assert.Equal(t, tc.typeID, model.TypeIDOf(err))
	}
}

func TestAuthorize_ReadOnly(t *testing.T) {
	r := New(memory.New(), true)
	ctx := context.Background()

	assert.NoError(t, r.Authorize(ctx, admin, OpRead, "t", "x"))
	err := r.Authorize(ctx, admin, OpCreate, "t", "")
	kind, _ := model.KindOf(err)
	assert.Equal(t, model.ErrForbidden, kind)
}

type failingGrants struct{}

func (failingGrants) GetGrant(context.Context, model.GrantKey) (*model.Grant, error) {
	return nil, errors.New("connection refused")
}

func (failingGrants) ListGrants(context.Context, string) ([]*model.Grant, error) {
	return nil, errors.New("connection refused")
}

func TestResolve_StoreFailureIsNotRecoverable(t *testing.T) {
	r := New(failingGrants{}, false)
	_, err := r.Resolve(context.Background(), alice, "t", "")
	require.Error(t, err)
	assert.False(t, model.Recoverable(err))
}

func TestVisible(t *testing.T) {
	st := memory.New()
	grant(t, st, model.GrantKey{ResourceID: "a", Owner: "alice"}, model.Capabilities{Read: true})
	grant(t, st, model.GrantKey{ResourceID: "r", TypeScope: "b", Owner: "alice"}, model.Capabilities{Write: true})
	grant(t, st, model.GrantKey{ResourceID: "c", Owner: "alice"}, model.Capabilities{})
	grant(t, st, model.GrantKey{ResourceID: "d", Owner: "bob"}, model.Capabilities{Read: true})

	got, err := New(st, false).Visible(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, got)
}
