package sqlstore

import (
	"context"

	"github.com/alfredjeanlab/moisturizer/internal/model"
)

const grantColumns = `resource_id, type_scope, owner, can_read, can_write, can_create, last_modified`

func (s *Store) GetGrant(ctx context.Context, key model.GrantKey) (*model.Grant, error) {
	row := s.db.QueryRowContext(ctx, s.d.Rebind(`
		SELECT `+grantColumns+` FROM permission_grants
		WHERE resource_id = ? AND type_scope = ? AND owner = ?`),
		key.ResourceID, key.TypeScope, key.Owner)
	return s.scanGrant(row)
}

func (s *Store) ListGrants(ctx context.Context, owner string) ([]*model.Grant, error) {
	return s.listGrants(ctx, `
		SELECT `+grantColumns+` FROM permission_grants
		WHERE owner = ? ORDER BY resource_id, type_scope`, owner)
}

func (s *Store) ListGrantsForType(ctx context.Context, typeID string) ([]*model.Grant, error) {
	return s.listGrants(ctx, `
		SELECT `+grantColumns+` FROM permission_grants
		WHERE (type_scope = '' AND resource_id = ?) OR type_scope = ?
		ORDER BY owner, resource_id`, typeID, typeID)
}

func (s *Store) listGrants(ctx context.Context, query string, args ...any) ([]*model.Grant, error) {
	rows, err := s.db.QueryContext(ctx, s.d.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Grant
	for rows.Next() {
		g, err := s.scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) PutGrant(ctx context.Context, g *model.Grant) error {
	ts, err := s.bindTime(g.LastModified)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `
		INSERT INTO permission_grants (`+grantColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (resource_id, type_scope, owner) DO UPDATE SET
			can_read = excluded.can_read,
			can_write = excluded.can_write,
			can_create = excluded.can_create,
			last_modified = excluded.last_modified`,
		g.ResourceID, g.TypeScope, g.Owner, g.Read, g.Write, g.Create, ts)
	return err
}

func (s *Store) DeleteGrant(ctx context.Context, key model.GrantKey) error {
	return s.execOne(ctx, `
		DELETE FROM permission_grants
		WHERE resource_id = ? AND type_scope = ? AND owner = ?`,
		key.ResourceID, key.TypeScope, key.Owner)
}

func (s *Store) scanGrant(row scannable) (*model.Grant, error) {
	var (
		g  model.Grant
		ts = s.timeDest()
	)
	if err := row.Scan(&g.ResourceID, &g.TypeScope, &g.Owner, &g.Read, &g.Write, &g.Create, ts); err != nil {
		return nil, err
	}
	t, err := s.timeValue(ts)
	if err != nil {
		return nil, err
	}
	g.LastModified = t
	return &g, nil
}
