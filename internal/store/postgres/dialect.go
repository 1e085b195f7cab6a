package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/moisturizer/internal/store"
	"github.com/alfredjeanlab/moisturizer/internal/store/sqlstore"
)

// SchemaPrefix is prepended to a type id to name its schema.
const SchemaPrefix = "moist_"

// recordsTable is the table holding records inside a type's schema.
const recordsTable = "records"

// Dialect is the PostgreSQL sqlstore.Dialect.
type Dialect struct{}

var _ sqlstore.Dialect = Dialect{}

var columnDDL = map[store.ColumnType]string{
	store.ColumnText:      "TEXT",
	store.ColumnUUID:      "UUID",
	store.ColumnTimestamp: "TIMESTAMPTZ",
	store.ColumnBigInt:    "BIGINT",
	store.ColumnFloat:     "REAL",
	store.ColumnDouble:    "DOUBLE PRECISION",
	store.ColumnBoolean:   "BOOLEAN",
	store.ColumnMap:       "JSONB",
	store.ColumnList:      "TEXT[]",
}

func (Dialect) Rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (Dialect) Quote(ident string) string { return pq.QuoteIdentifier(ident) }

func (Dialect) Table(ns string) string {
	return pq.QuoteIdentifier(SchemaPrefix+ns) + "." + pq.QuoteIdentifier(recordsTable)
}

func (Dialect) IndexName(ns, col string) string { return "idx_" + col }

func (Dialect) CreateNamespace(ns string) []string {
	return []string{"CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(SchemaPrefix+ns)}
}

func (Dialect) DropNamespace(ns string) []string {
	return []string{"DROP SCHEMA IF EXISTS " + pq.QuoteIdentifier(SchemaPrefix+ns) + " CASCADE"}
}

func (Dialect) ColumnDDL(t store.ColumnType) string {
	if ddl, ok := columnDDL[t]; ok {
		return ddl
	}
	return "TEXT"
}

func (Dialect) HasColumn(ctx context.Context, db sqlstore.Executor, ns, col string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2 AND column_name = $3`,
		SchemaPrefix+ns, recordsTable, col).Scan(&n)
	return n > 0, err
}

func (Dialect) Bind(t store.ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case store.ColumnMap:
		return sqlstore.JSONText(v)
	case store.ColumnList:
		list, ok := v.([]string)
		if !ok {
			return nil, fmt.Errorf("list column expects []string, got %T", v)
		}
		return pq.Array(list), nil
	}
	return v, nil
}

func (Dialect) ScanDest(t store.ColumnType) any {
	switch t {
	case store.ColumnMap:
		return new([]byte)
	case store.ColumnList:
		return new(pq.StringArray)
	}
	return sqlstore.DefaultScanDest(t)
}

func (Dialect) Value(t store.ColumnType, dest any) (any, error) {
	switch d := dest.(type) {
	case *[]byte:
		return sqlstore.DecodeJSONColumn(t, *d)
	case *pq.StringArray:
		if *d == nil {
			return nil, nil
		}
		return []string(*d), nil
	}
	return sqlstore.NativeValue(dest)
}

func (Dialect) LimitOffset(limit, offset int) string {
	var out string
	if limit > 0 {
		out += " LIMIT " + strconv.Itoa(limit)
	}
	if offset > 0 {
		out += " OFFSET " + strconv.Itoa(offset)
	}
	return out
}
