// Package sqlstore implements store.Store on database/sql. SQL differences
// between engines are isolated behind a Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/moisturizer/internal/store"
)

// Dialect adapts queries and values to one SQL engine.
type Dialect interface {
	// Rebind rewrites "?" placeholders into the engine's form.
	Rebind(query string) string
	// Quote quotes an identifier.
	Quote(ident string) string
	// Table returns the qualified table holding the records of ns.
	Table(ns string) string
	// IndexName returns the name of the index on column col of ns.
	IndexName(ns, col string) string
	// CreateNamespace and DropNamespace return the DDL for a namespace.
	CreateNamespace(ns string) []string
	DropNamespace(ns string) []string
	// ColumnDDL returns the column type used for t.
	ColumnDDL(t store.ColumnType) string
	// HasColumn reports whether the record table of ns has col.
	HasColumn(ctx context.Context, db Executor, ns, col string) (bool, error)
	// Bind converts a native value to a driver argument.
	Bind(t store.ColumnType, v any) (any, error)
	// ScanDest returns a destination pointer for a column of type t.
	ScanDest(t store.ColumnType) any
	// Value converts a scanned destination back to its native value.
	Value(t store.ColumnType, dest any) (any, error)
	// LimitOffset renders the paging clause.
	LimitOffset(limit, offset int) string
}

// Executor is the interface satisfied by both *sql.DB and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements store.Store over a *sql.DB.
type Store struct {
	db *sql.DB
	d  Dialect
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New wraps an open, migrated database.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, d: d}
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.d.Rebind(query), args...)
}

// execOne runs a statement that must touch exactly one row.
func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// execInserted runs a conditional insert and reports whether a row was written.
func (s *Store) execInserted(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
