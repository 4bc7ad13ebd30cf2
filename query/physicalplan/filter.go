package physicalplan

import (
	"github.com/apache/arrow/go/v12/arrow/memory"

	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/query/logicalplan"
)

func combineAnd(left, right []bool) []bool {
	out := make([]bool, len(left))
	for i := range out {
		out[i] = left[i] && right[i]
	}
	return out
}

func combineOr(left, right []bool) []bool {
	out := make([]bool, len(left))
	for i := range out {
		out[i] = left[i] || right[i]
	}
	return out
}

// Filter evaluates pred over batch to a boolean mask and retains matching
// rows from every column (spec.md §4.6). Evaluation is purely vectorized:
// the mask is produced once per predicate node and combined bitwise before
// any row is materialized.
func Filter(mem memory.Allocator, batch Batch, pred logicalplan.Predicate) (Batch, error) {
	if err := batch.validate(); err != nil {
		return Batch{}, err
	}
	mask, err := evalPredicate(batch, pred)
	if err != nil {
		return Batch{}, err
	}

	outCols := make([]column.Column, len(batch.Columns))
	for i, col := range batch.Columns {
		filtered, err := filterColumn(mem, col, mask)
		if err != nil {
			return Batch{}, err
		}
		outCols[i] = filtered
	}
	return Batch{Schema: batch.Schema, Columns: outCols}, nil
}

// filterColumn retains the elements of col at the true positions of mask,
// preserving input order (spec.md §4.6 tie-break rule: "Filter preserves
// input order").
func filterColumn(mem memory.Allocator, col column.Column, mask []bool) (column.Column, error) {
	bld, err := column.NewBuilder(mem, col.Type)
	if err != nil {
		return column.Column{}, err
	}
	for i, keep := range mask {
		if !keep {
			continue
		}
		if err := col.AppendRowFrom(i, bld); err != nil {
			return column.Column{}, err
		}
	}
	return bld.NewColumn(), nil
}
