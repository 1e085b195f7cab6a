// Package sqlite provides an embedded SQLite backend for development and
// single-node deployments. Each type's records live in a table named after
// the type.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/alfredjeanlab/moisturizer/internal/store"
	"github.com/alfredjeanlab/moisturizer/internal/store/sqlstore"
)

//go:embed schema.sql
var schemaSQL string

// TablePrefix is prepended to a type id to name its table.
const TablePrefix = "moist_"

// Open opens (creating if needed) the database file at path and applies
// the system schema. The path ":memory:" opens a private in-memory database.
func Open(path string) (*sqlstore.Store, error) {
	dsn := "file::memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = "file:" + path
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return sqlstore.New(db, Dialect{}), nil
}

// Dialect is the SQLite sqlstore.Dialect. Timestamps are stored as
// RFC 3339 text and maps and lists as JSON text.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

func (Dialect) Rebind(query string) string { return query }

func (Dialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d Dialect) Table(ns string) string { return d.Quote(TablePrefix + ns) }

func (Dialect) IndexName(ns, col string) string { return "idx_" + TablePrefix + ns + "_" + col }

func (Dialect) CreateNamespace(ns string) []string { return nil }

func (d Dialect) DropNamespace(ns string) []string {
	return []string{"DROP TABLE IF EXISTS " + d.Table(ns)}
}

func (Dialect) ColumnDDL(t store.ColumnType) string {
	switch t {
	case store.ColumnBigInt, store.ColumnBoolean:
		return "INTEGER"
	case store.ColumnFloat, store.ColumnDouble:
		return "REAL"
	}
	return "TEXT"
}

func (Dialect) HasColumn(ctx context.Context, db sqlstore.Executor, ns, col string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, TablePrefix+ns, col).Scan(&n)
	return n > 0, err
}

func (Dialect) Bind(t store.ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case store.ColumnTimestamp:
		ts, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("timestamp column expects time.Time, got %T", v)
		}
		return ts.UTC().Format(time.RFC3339Nano), nil
	case store.ColumnMap, store.ColumnList:
		return sqlstore.JSONText(v)
	}
	return v, nil
}

func (Dialect) ScanDest(t store.ColumnType) any {
	switch t {
	case store.ColumnTimestamp, store.ColumnMap, store.ColumnList:
		return new(sql.NullString)
	}
	return sqlstore.DefaultScanDest(t)
}

func (Dialect) Value(t store.ColumnType, dest any) (any, error) {
	switch t {
	case store.ColumnTimestamp:
		s := dest.(*sql.NullString)
		if !s.Valid {
			return nil, nil
		}
		ts, err := time.Parse(time.RFC3339Nano, s.String)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp %q: %w", s.String, err)
		}
		return ts.UTC(), nil
	case store.ColumnMap, store.ColumnList:
		s := dest.(*sql.NullString)
		if !s.Valid {
			return nil, nil
		}
		return sqlstore.DecodeJSONColumn(t, []byte(s.String))
	}
	return sqlstore.NativeValue(dest)
}

func (Dialect) LimitOffset(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return " LIMIT " + strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(offset)
	case limit > 0:
		return " LIMIT " + strconv.Itoa(limit)
	case offset > 0:
		return " LIMIT -1 OFFSET " + strconv.Itoa(offset)
	}
	return ""
}
