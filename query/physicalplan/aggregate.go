package physicalplan

import (
	"fmt"
	"hash/maphash"
	"math"

	"github.com/apache/arrow/go/v12/arrow/memory"

	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/errs"
	"github.com/polarsignals/columnfort/query/logicalplan"
	"github.com/polarsignals/columnfort/schema"
)

// HashAggregate implements group-by aggregation: hash group keys into a
// map group-key → row-index list, then for each aggregate iterate the
// list computing Count/Sum/Avg/Min/Max. It is a hash-bucket-per-group
// technique (a maphash seed feeding a hash-to-group map), keyed here by
// plain field names over this engine's own Batch/column.Column types. A
// group is identified by the 64-bit hash of its key values alone; keys are
// not compared exactly, so two distinct keys whose hashes collide share a
// group.
type HashAggregate struct {
	mem      memory.Allocator
	groupBy  []string
	column   string
	fn       logicalplan.AggFunc
	resultAs string

	hashSeed    maphash.Seed
	groupOrder  []uint64
	groupRep    map[uint64]int // hash -> row index used to materialize the group-by key columns
	groupValues map[uint64][]float64
	groupCount  map[uint64]int

	batch    Batch
	groupIdx []int
}

// NewHashAggregate builds an aggregator for a single Aggregation
// description (spec.md §4.6).
func NewHashAggregate(mem memory.Allocator, agg logicalplan.Aggregation) (*HashAggregate, error) {
	if err := agg.Validate(); err != nil {
		return nil, err
	}
	return &HashAggregate{
		mem:         mem,
		groupBy:     agg.GroupBy,
		column:      agg.Column,
		fn:          agg.Func,
		resultAs:    agg.ResultName,
		hashSeed:    maphash.MakeSeed(),
		groupRep:    make(map[uint64]int),
		groupValues: make(map[uint64][]float64),
		groupCount:  make(map[uint64]int),
	}, nil
}

// Aggregate runs a full group-by over batch in one call (spec.md §4.6
// tie-break rule: "Aggregate iterates groups in insertion order").
func Aggregate(mem memory.Allocator, batch Batch, agg logicalplan.Aggregation) (Batch, error) {
	if err := batch.validate(); err != nil {
		return Batch{}, err
	}
	ha, err := NewHashAggregate(mem, agg)
	if err != nil {
		return Batch{}, err
	}
	if err := ha.Ingest(batch); err != nil {
		return Batch{}, err
	}
	return ha.Finish()
}

// Ingest folds one batch's rows into the running groups. The batch given
// to the most recent Ingest call is retained so Finish can materialize
// each group's key columns from its representative row.
func (a *HashAggregate) Ingest(batch Batch) error {
	groupIdx := make([]int, len(a.groupBy))
	for i, name := range a.groupBy {
		idx, err := batch.IndexOf(name)
		if err != nil {
			return err
		}
		groupIdx[i] = idx
	}
	valIdx, err := batch.IndexOf(a.column)
	if err != nil {
		return err
	}
	valCol := batch.Columns[valIdx]
	if a.fn != logicalplan.CountAggFunc && !valCol.Type.Orderable() {
		return errs.Newf(errs.KindUnsupportedType, "aggregate: column %q of type %s is not numeric", a.column, valCol.Type)
	}

	n := batch.Len()
	for row := 0; row < n; row++ {
		var h maphash.Hash
		h.SetSeed(a.hashSeed)
		for _, idx := range groupIdx {
			col := batch.Columns[idx]
			if col.IsNull(row) {
				h.WriteByte(0)
				continue
			}
			h.WriteByte(1)
			_, _ = h.WriteString(fmt.Sprintf("%v", col.HashKey(row)))
		}
		hash := h.Sum64()

		if _, seen := a.groupRep[hash]; !seen {
			a.groupOrder = append(a.groupOrder, hash)
			a.groupRep[hash] = row
		}
		a.groupCount[hash]++

		if a.fn == logicalplan.CountAggFunc || valCol.IsNull(row) {
			continue
		}
		v, ok := valCol.AsJSON(row).(float64)
		if !ok {
			return errs.Newf(errs.KindUnsupportedType, "aggregate: value column %q is not numeric", a.column)
		}
		a.groupValues[hash] = append(a.groupValues[hash], v)
	}

	a.batch = batch
	a.groupIdx = groupIdx
	return nil
}

// Finish materializes the group-by columns plus the aggregate column, in
// group insertion order (spec.md §4.6, §8 property 8: "Sum(empty) == 0,
// Count(empty) == 0, Avg(empty) == null, Min/Max(single x) == x").
func (a *HashAggregate) Finish() (Batch, error) {
	fields := make([]schema.Field, 0, len(a.groupBy)+1)
	for _, name := range a.groupBy {
		var typ schema.DataType
		if a.batch.Schema != nil {
			idx, err := a.batch.IndexOf(name)
			if err != nil {
				return Batch{}, err
			}
			typ = a.batch.Schema.Field(idx).Type
		}
		fields = append(fields, schema.Field{Name: name, Type: typ})
	}

	resultType := schema.Scalar(schema.TypeFloat64)
	if a.fn == logicalplan.CountAggFunc {
		resultType = schema.Scalar(schema.TypeUint64)
	}
	resultName := a.resultAs
	if resultName == "" {
		resultName = fmt.Sprintf("%s(%s)", a.fn, a.column)
	}
	fields = append(fields, schema.Field{Name: resultName, Type: resultType})

	outSchema, err := schema.NewSchema(fields...)
	if err != nil {
		return Batch{}, err
	}

	groupBuilders := make([]*column.Builder, len(a.groupBy))
	for i, f := range fields[:len(a.groupBy)] {
		b, err := column.NewBuilder(a.mem, f.Type)
		if err != nil {
			return Batch{}, err
		}
		groupBuilders[i] = b
	}
	resultBuilder, err := column.NewBuilder(a.mem, resultType)
	if err != nil {
		return Batch{}, err
	}

	for _, hash := range a.groupOrder {
		rep := a.groupRep[hash]
		for i, idx := range a.groupIdx {
			if err := a.batch.Columns[idx].AppendRowFrom(rep, groupBuilders[i]); err != nil {
				return Batch{}, err
			}
		}
		result := computeAggregate(a.fn, a.groupValues[hash], a.groupCount[hash])
		if err := appendAggregateResult(resultBuilder, a.fn, result); err != nil {
			return Batch{}, err
		}
	}

	cols := make([]column.Column, 0, len(a.groupBy)+1)
	for _, b := range groupBuilders {
		cols = append(cols, b.NewColumn())
	}
	cols = append(cols, resultBuilder.NewColumn())

	return Batch{Schema: outSchema, Columns: cols}, nil
}

func appendAggregateResult(b *column.Builder, fn logicalplan.AggFunc, result aggregateResult) error {
	if fn == logicalplan.CountAggFunc {
		return b.Append(result.count)
	}
	if result.isNull {
		b.AppendNull()
		return nil
	}
	return b.Append(result.value)
}

type aggregateResult struct {
	value  float64
	count  uint64
	isNull bool
}

// computeAggregate implements the aggregate laws of spec.md §8 property 8
// directly: Sum/Count of an empty group are 0 (not null), Avg of an empty
// group is null, and Min/Max of a single-element group equal that element.
// Aggregates are numerically promoted to Float64 to avoid overflow, per
// spec.md §4.6. rowCount is the group's total row count (including rows
// whose value was null), used only by Count.
func computeAggregate(fn logicalplan.AggFunc, values []float64, rowCount int) aggregateResult {
	switch fn {
	case logicalplan.CountAggFunc:
		return aggregateResult{count: uint64(rowCount)}
	case logicalplan.SumAggFunc:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return aggregateResult{value: sum}
	case logicalplan.AvgAggFunc:
		if len(values) == 0 {
			return aggregateResult{isNull: true}
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		return aggregateResult{value: sum / float64(len(values))}
	case logicalplan.MinAggFunc:
		if len(values) == 0 {
			return aggregateResult{isNull: true}
		}
		m := math.Inf(1)
		for _, v := range values {
			if v < m {
				m = v
			}
		}
		return aggregateResult{value: m}
	case logicalplan.MaxAggFunc:
		if len(values) == 0 {
			return aggregateResult{isNull: true}
		}
		m := math.Inf(-1)
		for _, v := range values {
			if v > m {
				m = v
			}
		}
		return aggregateResult{value: m}
	default:
		return aggregateResult{isNull: true}
	}
}
