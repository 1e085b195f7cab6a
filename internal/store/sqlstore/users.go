package sqlstore

import (
	"context"

	"github.com/alfredjeanlab/moisturizer/internal/model"
)

const userColumns = `id, role, api_key, password_hash, last_modified`

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, s.d.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	return s.scanUser(row)
}

func (s *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) PutUser(ctx context.Context, u *model.User) error {
	args, err := s.userArgs(u)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			role = excluded.role,
			api_key = excluded.api_key,
			password_hash = excluded.password_hash,
			last_modified = excluded.last_modified`, args...)
	return err
}

func (s *Store) CreateUserIfAbsent(ctx context.Context, u *model.User) (bool, error) {
	args, err := s.userArgs(u)
	if err != nil {
		return false, err
	}
	return s.execInserted(ctx, `
		INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`, args...)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM users WHERE id = ?`, id)
}

func (s *Store) userArgs(u *model.User) ([]any, error) {
	ts, err := s.bindTime(u.LastModified)
	if err != nil {
		return nil, err
	}
	return []any{u.ID, u.Role, nullString(u.APIKey), nullString(u.PasswordHash), ts}, nil
}

func (s *Store) scanUser(row scannable) (*model.User, error) {
	var (
		u      model.User
		apiKey = nullString("")
		hash   = nullString("")
		ts     = s.timeDest()
	)
	if err := row.Scan(&u.ID, &u.Role, &apiKey, &hash, ts); err != nil {
		return nil, err
	}
	u.APIKey = apiKey.String
	u.PasswordHash = hash.String
	t, err := s.timeValue(ts)
	if err != nil {
		return nil, err
	}
	u.LastModified = t
	return &u, nil
}
