package storage

import (
	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/errs"
	"github.com/polarsignals/columnfort/schema"
)

// ValidateWrite enforces the write_columns constraints from spec.md §6:
// columns.len() equals schema field count, every column's length is equal,
// and each column's element type matches its schema field.
func ValidateWrite(sch *schema.Schema, columns []column.Column) error {
	if len(columns) != sch.Len() {
		return errs.Newf(errs.KindSchemaMismatch, "write_columns: got %d columns, schema has %d fields", len(columns), sch.Len())
	}
	if len(columns) == 0 {
		return nil
	}
	want := columns[0].Len()
	for i, c := range columns {
		if c.Len() != want {
			return errs.Newf(errs.KindSchemaMismatch, "write_columns: column %d has length %d, expected %d", i, c.Len(), want)
		}
		field := sch.Field(i)
		if c.Type.Tag != field.Type.Tag {
			return errs.Newf(errs.KindSchemaMismatch, "write_columns: column %d is %s, schema field %q expects %s", i, c.Type, field.Name, field.Type)
		}
	}
	return nil
}
