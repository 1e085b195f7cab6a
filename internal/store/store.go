package store

import (
	"context"

	"github.com/alfredjeanlab/moisturizer/internal/model"
)

// ColumnType is the native storage representation of a field.
type ColumnType string

const (
	ColumnText      ColumnType = "text"
	ColumnUUID      ColumnType = "uuid"
	ColumnTimestamp ColumnType = "timestamp"
	ColumnBigInt    ColumnType = "bigint"
	ColumnFloat     ColumnType = "float"
	ColumnDouble    ColumnType = "double"
	ColumnBoolean   ColumnType = "boolean"
	ColumnMap       ColumnType = "map"
	ColumnList      ColumnType = "list"
)

// Column describes one column of a record table.
type Column struct {
	Name       string
	Type       ColumnType
	PrimaryKey bool
	Indexed    bool
}

// Row holds native column values keyed by column name. Values use the Go
// type matching the column: string (text, uuid), time.Time (timestamp),
// int64 (bigint), float64 (float, double), bool (boolean),
// map[string]any (map), []string (list). A nil value is SQL NULL.
type Row map[string]any

// Filter restricts a scan to rows whose columns equal the given values.
type Filter struct {
	Equals map[string]any
	Limit  int
	Offset int
}

// Store defines the persistence interface for descriptors, records,
// users and grants. Lookups of missing rows return sql.ErrNoRows.
type Store interface {
	// Type descriptors
	GetDescriptor(ctx context.Context, id string) (*model.TypeDescriptor, error)
	ListDescriptors(ctx context.Context) ([]*model.TypeDescriptor, error)
	PutDescriptor(ctx context.Context, d *model.TypeDescriptor) error
	CreateDescriptorIfAbsent(ctx context.Context, d *model.TypeDescriptor) (bool, error)
	DeleteDescriptor(ctx context.Context, id string) error

	// Record namespaces, one per type
	CreateNamespace(ctx context.Context, ns string) error
	DropNamespace(ctx context.Context, ns string) error
	EnsureTable(ctx context.Context, ns string, cols []Column) error
	AddColumn(ctx context.Context, ns string, col Column) error

	// Rows, keyed by the "id" column
	GetRow(ctx context.Context, ns string, cols []Column, id string) (Row, error)
	PutRow(ctx context.Context, ns string, cols []Column, row Row) error
	UpdateRow(ctx context.Context, ns string, cols []Column, id string, row Row) error
	DeleteRow(ctx context.Context, ns string, id string) error
	ScanRows(ctx context.Context, ns string, cols []Column, filter Filter) ([]Row, error)

	// Users
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	PutUser(ctx context.Context, u *model.User) error
	CreateUserIfAbsent(ctx context.Context, u *model.User) (bool, error)
	DeleteUser(ctx context.Context, id string) error

	// Permission grants
	GetGrant(ctx context.Context, key model.GrantKey) (*model.Grant, error)
	ListGrants(ctx context.Context, owner string) ([]*model.Grant, error)
	ListGrantsForType(ctx context.Context, typeID string) ([]*model.Grant, error)
	PutGrant(ctx context.Context, g *model.Grant) error
	DeleteGrant(ctx context.Context, key model.GrantKey) error

	// Lifecycle
	Close() error
}

// ColumnNames returns the names of cols in order.
func ColumnNames(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
