// Package memory provides an in-memory store.Store. It enforces the same
// table shape rules as the SQL backends: rows can only carry columns the
// record table has, with values of the column's native Go type.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/store"
)

type table struct {
	cols map[string]store.Column
	rows map[string]store.Row
}

// Store is a goroutine-safe in-memory store.
type Store struct {
	mu          sync.RWMutex
	descriptors map[string]*model.TypeDescriptor
	namespaces  map[string]*table
	users       map[string]*model.User
	grants      map[model.GrantKey]*model.Grant
	writeErr    error
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		descriptors: make(map[string]*model.TypeDescriptor),
		namespaces:  make(map[string]*table),
		users:       make(map[string]*model.User),
		grants:      make(map[model.GrantKey]*model.Grant),
	}
}

// FailRowWrites makes every subsequent row write return err. Pass nil to
// restore normal behavior.
func (s *Store) FailRowWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

func (s *Store) Close() error { return nil }

// Type descriptors

func (s *Store) GetDescriptor(_ context.Context, id string) (*model.TypeDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.descriptors[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return d.Clone(), nil
}

func (s *Store) ListDescriptors(_ context.Context) ([]*model.TypeDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.TypeDescriptor, 0, len(s.descriptors))
	for _, d := range s.descriptors {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) PutDescriptor(_ context.Context, d *model.TypeDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.descriptors[d.ID] = d.Clone()
	return nil
}

func (s *Store) CreateDescriptorIfAbsent(_ context.Context, d *model.TypeDescriptor) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.descriptors[d.ID]; ok {
		return false, nil
	}
	s.descriptors[d.ID] = d.Clone()
	return true, nil
}

func (s *Store) DeleteDescriptor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.descriptors[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.descriptors, id)
	return nil
}

// Record namespaces

func (s *Store) CreateNamespace(_ context.Context, ns string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.namespaces[ns]; !ok {
		s.namespaces[ns] = &table{rows: make(map[string]store.Row)}
	}
	return nil
}

func (s *Store) DropNamespace(_ context.Context, ns string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, ns)
	return nil
}

func (s *Store) EnsureTable(_ context.Context, ns string, cols []store.Column) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.namespaces[ns]
	if !ok {
		return fmt.Errorf("namespace %q does not exist", ns)
	}
	if t.cols == nil {
		t.cols = make(map[string]store.Column, len(cols))
	}
	for _, c := range cols {
		if _, ok := t.cols[c.Name]; !ok {
			t.cols[c.Name] = c
		}
	}
	return nil
}

func (s *Store) AddColumn(_ context.Context, ns string, col store.Column) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(ns)
	if err != nil {
		return err
	}
	if _, ok := t.cols[col.Name]; !ok {
		t.cols[col.Name] = col
	}
	return nil
}

func (s *Store) table(ns string) (*table, error) {
	t, ok := s.namespaces[ns]
	if !ok || t.cols == nil {
		return nil, fmt.Errorf("relation %q does not exist", ns)
	}
	return t, nil
}

// Rows

func (s *Store) GetRow(_ context.Context, ns string, cols []store.Column, id string) (store.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(ns)
	if err != nil {
		return nil, err
	}
	row, ok := t.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return project(row, cols), nil
}

func (s *Store) PutRow(_ context.Context, ns string, cols []store.Column, row store.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	t, err := s.table(ns)
	if err != nil {
		return err
	}
	id, ok := row["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("null value in column \"id\"")
	}
	stored := make(store.Row, len(cols))
	for _, c := range cols {
		if err := t.check(c.Name, row[c.Name]); err != nil {
			return err
		}
		stored[c.Name] = row[c.Name]
	}
	t.rows[id] = stored
	return nil
}

func (s *Store) UpdateRow(_ context.Context, ns string, cols []store.Column, id string, row store.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	t, err := s.table(ns)
	if err != nil {
		return err
	}
	existing, ok := t.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	for _, c := range cols {
		v, ok := row[c.Name]
		if !ok || c.PrimaryKey {
			continue
		}
		if err := t.check(c.Name, v); err != nil {
			return err
		}
		existing[c.Name] = v
	}
	return nil
}

func (s *Store) DeleteRow(_ context.Context, ns string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(ns)
	if err != nil {
		return err
	}
	if _, ok := t.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(t.rows, id)
	return nil
}

func (s *Store) ScanRows(_ context.Context, ns string, cols []store.Column, filter store.Filter) ([]store.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(ns)
	if err != nil {
		return nil, err
	}
	for k := range filter.Equals {
		if _, ok := t.cols[k]; !ok {
			return nil, fmt.Errorf("filter on unknown column %q", k)
		}
	}

	ids := make([]string, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []store.Row
	skipped := 0
	for _, id := range ids {
		row := t.rows[id]
		if !matches(row, filter.Equals) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, project(row, cols))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// check rejects values a typed column would not accept.
func (t *table) check(name string, v any) error {
	c, ok := t.cols[name]
	if !ok {
		return fmt.Errorf("column %q does not exist", name)
	}
	if v == nil {
		return nil
	}
	var valid bool
	switch c.Type {
	case store.ColumnText, store.ColumnUUID:
		_, valid = v.(string)
	case store.ColumnTimestamp:
		_, valid = v.(time.Time)
	case store.ColumnBigInt:
		_, valid = v.(int64)
	case store.ColumnFloat, store.ColumnDouble:
		_, valid = v.(float64)
	case store.ColumnBoolean:
		_, valid = v.(bool)
	case store.ColumnMap:
		_, valid = v.(map[string]any)
	case store.ColumnList:
		_, valid = v.([]string)
	default:
		valid = true
	}
	if !valid {
		return fmt.Errorf("invalid input for %s column %q: %T", c.Type, name, v)
	}
	return nil
}

func matches(row store.Row, equals map[string]any) bool {
	for k, want := range equals {
		got := row[k]
		if t, ok := got.(time.Time); ok {
			w, ok := want.(time.Time)
			if !ok || !t.Equal(w) {
				return false
			}
			continue
		}
		if fmt.Sprint(got) != fmt.Sprint(want) || (got == nil) != (want == nil) {
			return false
		}
	}
	return true
}

func project(row store.Row, cols []store.Column) store.Row {
	out := make(store.Row, len(cols))
	for _, c := range cols {
		out[c.Name] = row[c.Name]
	}
	return out
}

// Users

func (s *Store) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *u
	return &c, nil
}

func (s *Store) ListUsers(_ context.Context) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.User, 0, len(s.users))
	for _, u := range s.users {
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) PutUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *u
	s.users[u.ID] = &c
	return nil
}

func (s *Store) CreateUserIfAbsent(_ context.Context, u *model.User) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return false, nil
	}
	c := *u
	s.users[u.ID] = &c
	return true, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.users, id)
	return nil
}

// Permission grants

func (s *Store) GetGrant(_ context.Context, key model.GrantKey) (*model.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *g
	return &c, nil
}

func (s *Store) ListGrants(_ context.Context, owner string) ([]*model.Grant, error) {
	return s.listGrants(func(g *model.Grant) bool { return g.Owner == owner }), nil
}

func (s *Store) ListGrantsForType(_ context.Context, typeID string) ([]*model.Grant, error) {
	return s.listGrants(func(g *model.Grant) bool { return g.TypeID() == typeID }), nil
}

func (s *Store) listGrants(keep func(*model.Grant) bool) []*model.Grant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Grant
	for _, g := range s.grants {
		if keep(g) {
			c := *g
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ResourceID != out[j].ResourceID {
			return out[i].ResourceID < out[j].ResourceID
		}
		return out[i].Owner < out[j].Owner
	})
	return out
}

func (s *Store) PutGrant(_ context.Context, g *model.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *g
	s.grants[g.GrantKey] = &c
	return nil
}

func (s *Store) DeleteGrant(_ context.Context, key model.GrantKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[key]; !ok {
		return sql.ErrNoRows
	}
	delete(s.grants, key)
	return nil
}
