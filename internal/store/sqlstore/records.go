package sqlstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/alfredjeanlab/moisturizer/internal/store"
)

func (s *Store) CreateNamespace(ctx context.Context, ns string) error {
	for _, stmt := range s.d.CreateNamespace(ns) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create namespace %s: %w", ns, err)
		}
	}
	return nil
}

func (s *Store) DropNamespace(ctx context.Context, ns string) error {
	for _, stmt := range s.d.DropNamespace(ns) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("drop namespace %s: %w", ns, err)
		}
	}
	return nil
}

// EnsureTable creates the record table if absent and adds any columns an
// existing table lacks.
func (s *Store) EnsureTable(ctx context.Context, ns string, cols []store.Column) error {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = s.d.Quote(c.Name) + " " + s.d.ColumnDDL(c.Type)
		if c.PrimaryKey {
			defs[i] += " PRIMARY KEY"
		}
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.d.Table(ns), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", ns, err)
	}
	for _, c := range cols {
		if c.PrimaryKey {
			continue
		}
		if err := s.AddColumn(ctx, ns, c); err != nil {
			return err
		}
	}
	return nil
}

// AddColumn adds col to the record table of ns unless it already exists.
func (s *Store) AddColumn(ctx context.Context, ns string, col store.Column) error {
	has, err := s.d.HasColumn(ctx, s.db, ns, col.Name)
	if err != nil {
		return fmt.Errorf("inspect table %s: %w", ns, err)
	}
	if !has {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", s.d.Table(ns), s.d.Quote(col.Name), s.d.ColumnDDL(col.Type))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", ns, col.Name, err)
		}
	}
	if col.Indexed {
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			s.d.Quote(s.d.IndexName(ns, col.Name)), s.d.Table(ns), s.d.Quote(col.Name))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("index %s.%s: %w", ns, col.Name, err)
		}
	}
	return nil
}

func (s *Store) GetRow(ctx context.Context, ns string, cols []store.Column, id string) (store.Row, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", s.selectList(cols), s.d.Table(ns))
	row := s.db.QueryRowContext(ctx, s.d.Rebind(query), id)
	return s.scanRow(row, cols)
}

// PutRow inserts row, replacing every column of an existing row with the same id.
func (s *Store) PutRow(ctx context.Context, ns string, cols []store.Column, row store.Row) error {
	names := make([]string, len(cols))
	updates := make([]string, 0, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		v, err := s.d.Bind(c.Type, row[c.Name])
		if err != nil {
			return fmt.Errorf("column %s: %w", c.Name, err)
		}
		args[i] = v
		names[i] = s.d.Quote(c.Name)
		if !c.PrimaryKey {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", names[i], names[i]))
		}
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.d.Table(ns), strings.Join(names, ", "), placeholders(len(cols)))
	if len(updates) > 0 {
		query += " ON CONFLICT (id) DO UPDATE SET " + strings.Join(updates, ", ")
	} else {
		query += " ON CONFLICT (id) DO NOTHING"
	}
	_, err := s.exec(ctx, query, args...)
	return err
}

// UpdateRow sets the columns present in row on an existing row.
func (s *Store) UpdateRow(ctx context.Context, ns string, cols []store.Column, id string, row store.Row) error {
	var (
		sets []string
		args []any
	)
	for _, c := range cols {
		v, ok := row[c.Name]
		if !ok || c.PrimaryKey {
			continue
		}
		bound, err := s.d.Bind(c.Type, v)
		if err != nil {
			return fmt.Errorf("column %s: %w", c.Name, err)
		}
		sets = append(sets, s.d.Quote(c.Name)+" = ?")
		args = append(args, bound)
	}
	if len(sets) == 0 {
		_, err := s.GetRow(ctx, ns, cols[:1], id)
		return err
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", s.d.Table(ns), strings.Join(sets, ", "))
	return s.execOne(ctx, query, args...)
}

func (s *Store) DeleteRow(ctx context.Context, ns string, id string) error {
	return s.execOne(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.d.Table(ns)), id)
}

func (s *Store) ScanRows(ctx context.Context, ns string, cols []store.Column, filter store.Filter) ([]store.Row, error) {
	types := make(map[string]store.ColumnType, len(cols))
	for _, c := range cols {
		types[c.Name] = c.Type
	}

	keys := make([]string, 0, len(filter.Equals))
	for k := range filter.Equals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		where []string
		args  []any
	)
	for _, k := range keys {
		t, ok := types[k]
		if !ok {
			return nil, fmt.Errorf("filter on unknown column %q", k)
		}
		v := filter.Equals[k]
		if v == nil {
			where = append(where, s.d.Quote(k)+" IS NULL")
			continue
		}
		bound, err := s.d.Bind(t, v)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", k, err)
		}
		where = append(where, s.d.Quote(k)+" = ?")
		args = append(args, bound)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", s.selectList(cols), s.d.Table(ns))
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id" + s.d.LimitOffset(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, s.d.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Row
	for rows.Next() {
		r, err := s.scanRow(rows, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) selectList(cols []store.Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = s.d.Quote(c.Name)
	}
	return strings.Join(names, ", ")
}
