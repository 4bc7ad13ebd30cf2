package memory

import (
	"testing"

	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/polarsignals/columnfort/codec"
	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/schema"
)

func buildInt64Column(t *testing.T, mem memory.Allocator, vals ...int64) column.Column {
	t.Helper()
	b, err := column.NewBuilder(mem, schema.Scalar(schema.TypeInt64))
	require.NoError(t, err)
	for _, v := range vals {
		require.NoError(t, b.Append(v))
	}
	return b.NewColumn()
}

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.NewSchema(schema.Field{Name: "n", Type: schema.Scalar(schema.TypeInt64)})
	require.NoError(t, err)
	return sch
}

func TestStoreCreateWriteReadRoundTrip(t *testing.T) {
	mem := memory.NewGoAllocator()
	store := New(WithTargetBytes(32), WithCompression(codec.CompressionLZ4))

	sch := testSchema(t)
	require.NoError(t, store.CreateTable(1, sch))

	col := buildInt64Column(t, mem, 10, 20, 30, 40, 50)
	require.NoError(t, store.WriteColumns(1, []column.Column{col}))

	rowCount, err := store.RowCount(1)
	require.NoError(t, err)
	require.Equal(t, int64(5), rowCount)

	got, err := store.ReadColumns(1, []uint64{0}, 0, 5)
	require.NoError(t, err)
	require.Equal(t, 5, got[0].Len())
	for i, want := range []float64{10, 20, 30, 40, 50} {
		require.Equal(t, want, got[0].AsJSON(i))
	}
}

func TestStoreReadRangeReturnsSlice(t *testing.T) {
	mem := memory.NewGoAllocator()
	store := New(WithTargetBytes(8)) // force multiple blocks
	require.NoError(t, store.CreateTable(1, testSchema(t)))
	col := buildInt64Column(t, mem, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	require.NoError(t, store.WriteColumns(1, []column.Column{col}))

	got, err := store.ReadColumns(1, []uint64{0}, 3, 4)
	require.NoError(t, err)
	require.Equal(t, 4, got[0].Len())
	for i, want := range []float64{4, 5, 6, 7} {
		require.Equal(t, want, got[0].AsJSON(i))
	}
}

func TestStoreMultipleWritesAppend(t *testing.T) {
	mem := memory.NewGoAllocator()
	store := New()
	require.NoError(t, store.CreateTable(1, testSchema(t)))

	require.NoError(t, store.WriteColumns(1, []column.Column{buildInt64Column(t, mem, 1, 2)}))
	require.NoError(t, store.WriteColumns(1, []column.Column{buildInt64Column(t, mem, 3, 4)}))

	rowCount, err := store.RowCount(1)
	require.NoError(t, err)
	require.Equal(t, int64(4), rowCount)

	got, err := store.ReadColumns(1, []uint64{0}, 0, 4)
	require.NoError(t, err)
	for i, want := range []float64{1, 2, 3, 4} {
		require.Equal(t, want, got[0].AsJSON(i))
	}
}

func TestStoreDeleteTableRemovesBlocksAndMetadata(t *testing.T) {
	mem := memory.NewGoAllocator()
	store := New()
	require.NoError(t, store.CreateTable(1, testSchema(t)))
	require.NoError(t, store.WriteColumns(1, []column.Column{buildInt64Column(t, mem, 1, 2, 3)}))

	require.NoError(t, store.DeleteTable(1))
	_, err := store.GetSchema(1)
	require.Error(t, err)

	require.Empty(t, store.bytes, "delete should sweep every block's bytes")
}

func TestStoreUnknownTableErrors(t *testing.T) {
	store := New()
	_, err := store.GetSchema(99)
	require.Error(t, err)
	_, err = store.RowCount(99)
	require.Error(t, err)
	_, err = store.ReadColumns(99, []uint64{0}, 0, 1)
	require.Error(t, err)
}

func TestStoreCreateTableDuplicateErrors(t *testing.T) {
	store := New()
	sch := testSchema(t)
	require.NoError(t, store.CreateTable(1, sch))
	err := store.CreateTable(1, sch)
	require.Error(t, err)
}

func TestStoreGetBlockMetadataReflectsWrites(t *testing.T) {
	mem := memory.NewGoAllocator()
	store := New(WithTargetBytes(8))
	require.NoError(t, store.CreateTable(1, testSchema(t)))
	require.NoError(t, store.WriteColumns(1, []column.Column{buildInt64Column(t, mem, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)}))

	metas, err := store.GetBlockMetadata(1, 0)
	require.NoError(t, err)
	require.NotEmpty(t, metas)
	var total int
	for _, m := range metas {
		total += m.RowCount
	}
	require.Equal(t, 10, total)
}
