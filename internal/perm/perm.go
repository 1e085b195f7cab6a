// Package perm resolves capabilities from permission grants and gates
// record and type operations on them.
package perm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/moisturizer/internal/model"
)

// GrantStore is the part of the store the resolver reads.
type GrantStore interface {
	GetGrant(ctx context.Context, key model.GrantKey) (*model.Grant, error)
	ListGrants(ctx context.Context, owner string) ([]*model.Grant, error)
}

// Op is an operation subject to authorization.
type Op string

const (
	OpList   Op = "list"
	OpRead   Op = "read"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Mutates reports whether op changes stored state.
func (op Op) Mutates() bool {
	return op == OpCreate || op == OpUpdate || op == OpDelete
}

// Resolver computes capabilities. It is safe for concurrent use.
type Resolver struct {
	grants   GrantStore
	readOnly bool
}

// New returns a resolver reading grants from gs. When readOnly is set
// every mutating operation is refused, administrators included.
func New(gs GrantStore, readOnly bool) *Resolver {
	return &Resolver{grants: gs, readOnly: readOnly}
}

// Resolve returns the capabilities id holds on a type, or on one record
// of it when recordID is set. Only the grant for exactly that resource is
// consulted; without one the result is empty. Administrators always get
// every capability.
func (r *Resolver) Resolve(ctx context.Context, id model.Identity, typeID, recordID string) (model.Capabilities, error) {
	if id.Admin {
		return model.FullCapabilities, nil
	}
	key := model.GrantKey{ResourceID: typeID, Owner: id.ID}
	if recordID != "" {
		key = model.GrantKey{ResourceID: recordID, TypeScope: typeID, Owner: id.ID}
	}
	g, err := r.grants.GetGrant(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Capabilities{}, nil
	}
	if err != nil {
		return model.Capabilities{}, model.WrapError(model.ErrInternal, typeID, fmt.Errorf("reading grant: %w", err))
	}
	return g.Capabilities, nil
}

// Effective returns the union of the type-level capabilities and, when
// recordID is set, the record-level ones.
func (r *Resolver) Effective(ctx context.Context, id model.Identity, typeID, recordID string) (model.Capabilities, error) {
	caps, err := r.Resolve(ctx, id, typeID, "")
	if err != nil || recordID == "" || id.Admin {
		return caps, err
	}
	rec, err := r.Resolve(ctx, id, typeID, recordID)
	if err != nil {
		return model.Capabilities{}, err
	}
	return caps.Union(rec), nil
}

// Allows reports whether caps permit op. Listing and reading accept
// either read or write.
func Allows(caps model.Capabilities, op Op) bool {
	switch op {
	case OpList, OpRead:
		return caps.Read || caps.Write
	case OpCreate:
		return caps.Create
	case OpUpdate, OpDelete:
		return caps.Write
	}
	return false
}

// Authorize returns a Forbidden error unless id may perform op on the type
// or record. A type unknown to the caller is refused, not reported empty.
func (r *Resolver) Authorize(ctx context.Context, id model.Identity, op Op, typeID, recordID string) error {
	if r.readOnly && op.Mutates() {
		return model.NewError(model.ErrForbidden, typeID, "server is read-only")
	}
	if op == OpList || op == OpCreate {
		recordID = ""
	}
	caps, err := r.Effective(ctx, id, typeID, recordID)
	if err != nil {
		return err
	}
	if !Allows(caps, op) {
		return model.NewError(model.ErrForbidden, typeID, "%s may not %s on %s", id.ID, op, typeID)
	}
	return nil
}

// Visible returns the ids of the types id holds any grant on.
func (r *Resolver) Visible(ctx context.Context, id model.Identity) (map[string]bool, error) {
	grants, err := r.grants.ListGrants(ctx, id.ID)
	if err != nil {
		return nil, model.WrapError(model.ErrInternal, "", fmt.Errorf("listing grants: %w", err))
	}
	out := make(map[string]bool, len(grants))
	for _, g := range grants {
		if !g.Capabilities.IsEmpty() {
			out[g.TypeID()] = true
		}
	}
	return out, nil
}
