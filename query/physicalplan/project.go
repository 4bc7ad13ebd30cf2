package physicalplan

import (
	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/schema"
)

// Project selects a subset of columns by name, preserving the order given
// in names (spec.md §4.6).
func Project(batch Batch, names []string) (Batch, error) {
	if err := batch.validate(); err != nil {
		return Batch{}, err
	}
	fields := make([]schema.Field, len(names))
	cols := make([]column.Column, len(names))
	for i, name := range names {
		idx, err := batch.IndexOf(name)
		if err != nil {
			return Batch{}, err
		}
		fields[i] = batch.Schema.Field(idx)
		cols[i] = batch.Columns[idx]
	}
	sch, err := schema.NewSchema(fields...)
	if err != nil {
		return Batch{}, err
	}
	return Batch{Schema: sch, Columns: cols}, nil
}
