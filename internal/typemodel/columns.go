package typemodel

import (
	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/store"
)

type columnKey struct {
	kind   model.Kind
	format string
}

// columnTable maps (kind, format) to the native column used to store it.
var columnTable = map[columnKey]store.ColumnType{
	{model.KindString, ""}:                     store.ColumnText,
	{model.KindString, model.FormatUUID}:       store.ColumnUUID,
	{model.KindString, model.FormatDateTime}:   store.ColumnTimestamp,
	{model.KindInteger, ""}:                    store.ColumnBigInt,
	{model.KindNumber, ""}:                     store.ColumnDouble,
	{model.KindNumber, model.FormatFloat}:      store.ColumnFloat,
	{model.KindNumber, model.FormatDouble}:     store.ColumnDouble,
	{model.KindBoolean, ""}:                    store.ColumnBoolean,
	{model.KindObject, ""}:                     store.ColumnMap,
	{model.KindObject, model.FormatDescriptor}: store.ColumnMap,
	{model.KindArray, ""}:                      store.ColumnList,
}

// ColumnFor returns the column type for spec. Pairs missing from the
// table fall back to text.
func ColumnFor(spec model.FieldSpec) store.ColumnType {
	if t, ok := columnTable[columnKey{spec.Kind, spec.Format}]; ok {
		return t
	}
	return store.ColumnText
}

// ColumnOf builds the storage column for a named field.
func ColumnOf(name string, spec model.FieldSpec) store.Column {
	return store.Column{
		Name:       name,
		Type:       ColumnFor(spec),
		PrimaryKey: spec.PrimaryKey,
		Indexed:    spec.Indexed && !spec.PrimaryKey,
	}
}
