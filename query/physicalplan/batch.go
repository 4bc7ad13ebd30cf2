// Package physicalplan implements the vectorized operators: Scan, Filter,
// Project, HashJoin and Aggregate, all consuming and producing Batches of
// column.Column aligned by row index. The group-by operator is a
// hash-based group-by keyed by a maphash seed, collecting each group's
// values before building the output columns with arrow builders; it keys
// by this engine's own Batch/Column types rather than full Arrow records.
// HashJoin hashes its keys with go-metro.
package physicalplan

import (
	"fmt"

	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/errs"
	"github.com/polarsignals/columnfort/schema"
)

// Batch is a set of columns of equal length, aligned by row index
// (spec.md GLOSSARY).
type Batch struct {
	Schema  *schema.Schema
	Columns []column.Column
}

// Len returns the batch's row count, or 0 for an empty batch.
func (b Batch) Len() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return b.Columns[0].Len()
}

// IndexOf returns the index of the named column, or an error if absent.
func (b Batch) IndexOf(name string) (int, error) {
	i := b.Schema.IndexOf(name)
	if i < 0 {
		return 0, errs.Newf(errs.KindNotFound, "column %q not in batch", name)
	}
	return i, nil
}

func (b Batch) validate() error {
	if len(b.Columns) != b.Schema.Len() {
		return fmt.Errorf("physicalplan: batch has %d columns, schema has %d fields", len(b.Columns), b.Schema.Len())
	}
	if len(b.Columns) == 0 {
		return nil
	}
	n := b.Columns[0].Len()
	for i, c := range b.Columns {
		if c.Len() != n {
			return fmt.Errorf("physicalplan: batch column %d has length %d, expected %d", i, c.Len(), n)
		}
	}
	return nil
}
