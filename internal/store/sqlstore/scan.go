package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfredjeanlab/moisturizer/internal/store"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// NativeValue unwraps the database/sql null types.
func NativeValue(dest any) (any, error) {
	switch v := dest.(type) {
	case *sql.NullString:
		if !v.Valid {
			return nil, nil
		}
		return v.String, nil
	case *sql.NullTime:
		if !v.Valid {
			return nil, nil
		}
		return v.Time.UTC(), nil
	case *sql.NullInt64:
		if !v.Valid {
			return nil, nil
		}
		return v.Int64, nil
	case *sql.NullFloat64:
		if !v.Valid {
			return nil, nil
		}
		return v.Float64, nil
	case *sql.NullBool:
		if !v.Valid {
			return nil, nil
		}
		return v.Bool, nil
	}
	return nil, fmt.Errorf("unsupported scan destination %T", dest)
}

// DefaultScanDest returns the null type used for scalar columns.
func DefaultScanDest(t store.ColumnType) any {
	switch t {
	case store.ColumnTimestamp:
		return new(sql.NullTime)
	case store.ColumnBigInt:
		return new(sql.NullInt64)
	case store.ColumnFloat, store.ColumnDouble:
		return new(sql.NullFloat64)
	case store.ColumnBoolean:
		return new(sql.NullBool)
	}
	return new(sql.NullString)
}

// JSONText encodes a map or list column value as JSON text.
func JSONText(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding column value: %w", err)
	}
	return string(b), nil
}

// DecodeJSONColumn parses JSON text back into a map or list value.
func DecodeJSONColumn(t store.ColumnType, raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	switch t {
	case store.ColumnList:
		var out []string
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decoding list column: %w", err)
		}
		return out, nil
	default:
		var out map[string]any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decoding map column: %w", err)
		}
		return out, nil
	}
}

// scanRow scans one row with the given columns into a store.Row.
func (s *Store) scanRow(row scannable, cols []store.Column) (store.Row, error) {
	dests := make([]any, len(cols))
	for i, c := range cols {
		dests[i] = s.d.ScanDest(c.Type)
	}
	if err := row.Scan(dests...); err != nil {
		return nil, err
	}
	out := make(store.Row, len(cols))
	for i, c := range cols {
		v, err := s.d.Value(c.Type, dests[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		out[c.Name] = v
	}
	return out, nil
}

// bindTime binds a system-table timestamp.
func (s *Store) bindTime(t time.Time) (any, error) {
	return s.d.Bind(store.ColumnTimestamp, t.UTC())
}

// timeDest and timeValue scan a system-table timestamp.
func (s *Store) timeDest() any { return s.d.ScanDest(store.ColumnTimestamp) }

func (s *Store) timeValue(dest any) (time.Time, error) {
	v, err := s.d.Value(store.ColumnTimestamp, dest)
	if err != nil || v == nil {
		return time.Time{}, err
	}
	return v.(time.Time), nil
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
