package physicalplan

import (
	"testing"

	arrowmem "github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/query/logicalplan"
	"github.com/polarsignals/columnfort/schema"
	storagemem "github.com/polarsignals/columnfort/storage/memory"
)

func buildColumn(t *testing.T, mem arrowmem.Allocator, typ schema.DataType, vals ...any) column.Column {
	t.Helper()
	b, err := column.NewBuilder(mem, typ)
	require.NoError(t, err)
	for _, v := range vals {
		require.NoError(t, b.Append(v))
	}
	return b.NewColumn()
}

func int64Vals(vs ...int64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func stringVals(vs ...string) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

// TestScanFilterScenario is scenarios S1 and S2: a basic
// round-trip scan followed by Filter(Gt{key, 3}).
func TestScanFilterScenario(t *testing.T) {
	mem := arrowmem.NewGoAllocator()
	store := storagemem.New(storagemem.WithTargetBytes(1 << 20))

	sch, err := schema.NewSchema(
		schema.Field{Name: "key", Type: schema.Scalar(schema.TypeInt64)},
		schema.Field{Name: "val", Type: schema.Scalar(schema.TypeInt64)},
	)
	require.NoError(t, err)
	require.NoError(t, store.CreateTable(1, sch))

	keyCol := buildColumn(t, mem, schema.Scalar(schema.TypeInt64), int64Vals(0, 1, 2, 3, 4)...)
	valCol := buildColumn(t, mem, schema.Scalar(schema.TypeInt64), int64Vals(12345, 12345, 12345, 12345, 12345)...)
	require.NoError(t, store.WriteColumns(1, []column.Column{keyCol, valCol}))

	// S1
	batch, err := Scan(store, 1, []uint64{0, 1}, 0, 5)
	require.NoError(t, err)
	require.Equal(t, 5, batch.Len())
	for i := 0; i < 5; i++ {
		require.Equal(t, float64(i), batch.Columns[0].AsJSON(i))
		require.Equal(t, float64(12345), batch.Columns[1].AsJSON(i))
	}

	// S2
	filtered, err := Filter(mem, batch, logicalplan.Gt{Column: "key", Value: int64(3)})
	require.NoError(t, err)
	require.Equal(t, 1, filtered.Len())
	require.Equal(t, float64(4), filtered.Columns[0].AsJSON(0))
	require.Equal(t, float64(12345), filtered.Columns[1].AsJSON(0))
}

// TestAggregateGroupByScenario is scenario S3.
func TestAggregateGroupByScenario(t *testing.T) {
	mem := arrowmem.NewGoAllocator()
	keyCol := buildColumn(t, mem, schema.Scalar(schema.TypeInt64), int64Vals(1, 1, 2, 2, 3)...)
	valCol := buildColumn(t, mem, schema.Scalar(schema.TypeInt64), int64Vals(10, 20, 30, 40, 50)...)

	sch, err := schema.NewSchema(
		schema.Field{Name: "key", Type: schema.Scalar(schema.TypeInt64)},
		schema.Field{Name: "val", Type: schema.Scalar(schema.TypeInt64)},
	)
	require.NoError(t, err)
	batch := Batch{Schema: sch, Columns: []column.Column{keyCol, valCol}}

	out, err := Aggregate(mem, batch, logicalplan.Aggregation{
		GroupBy: []string{"key"}, Column: "val", Func: logicalplan.SumAggFunc,
	})
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())

	require.Equal(t, float64(1), out.Columns[0].AsJSON(0))
	require.Equal(t, float64(30), out.Columns[1].AsJSON(0))
	require.Equal(t, float64(2), out.Columns[0].AsJSON(1))
	require.Equal(t, float64(70), out.Columns[1].AsJSON(1))
	require.Equal(t, float64(3), out.Columns[0].AsJSON(2))
	require.Equal(t, float64(50), out.Columns[1].AsJSON(2))
}

// TestHashJoinInnerScenario is scenario S4.
func TestHashJoinInnerScenario(t *testing.T) {
	mem := arrowmem.NewGoAllocator()

	leftSch, err := schema.NewSchema(schema.Field{Name: "key", Type: schema.Scalar(schema.TypeInt64)})
	require.NoError(t, err)
	leftKey := buildColumn(t, mem, schema.Scalar(schema.TypeInt64), int64Vals(1, 2, 3)...)
	left := Batch{Schema: leftSch, Columns: []column.Column{leftKey}}

	rightSch, err := schema.NewSchema(
		schema.Field{Name: "key", Type: schema.Scalar(schema.TypeInt64)},
		schema.Field{Name: "label", Type: schema.Scalar(schema.TypeString)},
	)
	require.NoError(t, err)
	rightKey := buildColumn(t, mem, schema.Scalar(schema.TypeInt64), int64Vals(2, 3, 4)...)
	rightLabel := buildColumn(t, mem, schema.Scalar(schema.TypeString), stringVals("b", "c", "d")...)
	right := Batch{Schema: rightSch, Columns: []column.Column{rightKey, rightLabel}}

	out, err := HashJoin(mem, left, "key", right, "key", InnerJoin)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	require.Equal(t, float64(2), out.Columns[0].AsJSON(0))
	require.Equal(t, float64(3), out.Columns[0].AsJSON(1))
	require.Equal(t, "b", out.Columns[2].AsJSON(0))
	require.Equal(t, "c", out.Columns[2].AsJSON(1))
}

// TestFilterIdempotence is property 7: filter(filter(batch, p), p) == filter(batch, p).
func TestFilterIdempotence(t *testing.T) {
	mem := arrowmem.NewGoAllocator()
	sch, err := schema.NewSchema(schema.Field{Name: "key", Type: schema.Scalar(schema.TypeInt64)})
	require.NoError(t, err)
	keyCol := buildColumn(t, mem, schema.Scalar(schema.TypeInt64), int64Vals(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)...)
	batch := Batch{Schema: sch, Columns: []column.Column{keyCol}}

	pred := logicalplan.Gt{Column: "key", Value: int64(5)}
	once, err := Filter(mem, batch, pred)
	require.NoError(t, err)
	twice, err := Filter(mem, once, pred)
	require.NoError(t, err)

	require.Equal(t, once.Len(), twice.Len())
	for i := 0; i < once.Len(); i++ {
		require.Equal(t, once.Columns[0].AsJSON(i), twice.Columns[0].AsJSON(i))
	}
}

// TestAggregateLaws is property 8: Sum(empty)==0, Count(empty)==0,
// Avg(empty)==null, Min/Max(single x)==x.
func TestAggregateLaws(t *testing.T) {
	mem := arrowmem.NewGoAllocator()
	sch, err := schema.NewSchema(
		schema.Field{Name: "key", Type: schema.Scalar(schema.TypeInt64)},
		schema.Field{Name: "val", Type: schema.Scalar(schema.TypeInt64), Nullable: true},
	)
	require.NoError(t, err)

	keyCol := buildColumn(t, mem, schema.Scalar(schema.TypeInt64), int64Vals(1)...)
	valBld, err := column.NewBuilder(mem, schema.Scalar(schema.TypeInt64))
	require.NoError(t, err)
	valBld.AppendNull()
	valCol := valBld.NewColumn()
	batch := Batch{Schema: sch, Columns: []column.Column{keyCol, valCol}}

	sum, err := Aggregate(mem, batch, logicalplan.Aggregation{GroupBy: []string{"key"}, Column: "val", Func: logicalplan.SumAggFunc})
	require.NoError(t, err)
	require.Equal(t, float64(0), sum.Columns[1].AsJSON(0))

	count, err := Aggregate(mem, batch, logicalplan.Aggregation{GroupBy: []string{"key"}, Column: "val", Func: logicalplan.CountAggFunc})
	require.NoError(t, err)
	require.Equal(t, float64(1), count.Columns[1].AsJSON(0)) // 1 row in the group, even though its value is null

	avg, err := Aggregate(mem, batch, logicalplan.Aggregation{GroupBy: []string{"key"}, Column: "val", Func: logicalplan.AvgAggFunc})
	require.NoError(t, err)
	require.True(t, avg.Columns[1].IsNull(0))

	single := buildColumn(t, mem, schema.Scalar(schema.TypeInt64), int64Vals(42)...)
	singleBatch := Batch{Schema: sch, Columns: []column.Column{keyCol, single}}
	minOut, err := Aggregate(mem, singleBatch, logicalplan.Aggregation{GroupBy: []string{"key"}, Column: "val", Func: logicalplan.MinAggFunc})
	require.NoError(t, err)
	require.Equal(t, float64(42), minOut.Columns[1].AsJSON(0))
	maxOut, err := Aggregate(mem, singleBatch, logicalplan.Aggregation{GroupBy: []string{"key"}, Column: "val", Func: logicalplan.MaxAggFunc})
	require.NoError(t, err)
	require.Equal(t, float64(42), maxOut.Columns[1].AsJSON(0))
}

// TestOperatorEquivalenceSIMDVsScalar is property 6: for every predicate,
// the SIMD fast path and the scalar fallback produce identical boolean
// masks. canUseSIMD requires TypeInt32/TypeUint32/TypeDate and >= 8
// elements, so this test builds an Int32 column long enough to exercise
// both lane-grouped and scalar-remainder code paths, then forces the
// scalar-only path via a Uint8 column.
func TestOperatorEquivalenceSIMDVsScalar(t *testing.T) {
	mem := arrowmem.NewGoAllocator()
	vals := int64Vals(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	int32Vals := make([]any, len(vals))
	for i, v := range vals {
		int32Vals[i] = int32(v.(int64))
	}
	int32Col := buildColumn(t, mem, schema.Scalar(schema.TypeInt32), int32Vals...)
	uint8Col := buildColumn(t, mem, schema.Scalar(schema.TypeUint8), func() []any {
		out := make([]any, len(vals))
		for i, v := range vals {
			out[i] = uint8(v.(int64))
		}
		return out
	}()...)

	simdMask := make([]bool, int32Col.Len())
	evalNumericSIMD(int32Col, 5, cmpGt, simdMask)
	scalarMaskSameCol := make([]bool, int32Col.Len())
	evalNumericScalar(int32Col, int32Col.Len(), 5, cmpGt, scalarMaskSameCol)
	require.Equal(t, scalarMaskSameCol, simdMask)

	scalarMaskOtherType := make([]bool, uint8Col.Len())
	evalNumericScalar(uint8Col, uint8Col.Len(), 5, cmpGt, scalarMaskOtherType)
	require.Equal(t, scalarMaskSameCol, scalarMaskOtherType)
}
