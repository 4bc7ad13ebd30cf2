package block

import (
	"testing"

	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/polarsignals/columnfort/codec"
	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/schema"
)

func buildInt64(t *testing.T, mem memory.Allocator, vals ...int64) column.Column {
	t.Helper()
	b, err := column.NewBuilder(mem, schema.Scalar(schema.TypeInt64))
	require.NoError(t, err)
	for _, v := range vals {
		require.NoError(t, b.Append(v))
	}
	return b.NewColumn()
}

func TestWriterProducesGapFreeRowStarts(t *testing.T) {
	mem := memory.NewGoAllocator()
	vals := make([]int64, 0, 10000)
	for i := int64(0); i < 10000; i++ {
		vals = append(vals, i)
	}
	col := buildInt64(t, mem, vals...)

	// A tiny target forces many small blocks, exercising the row_start
	// bookkeeping (spec.md §3 invariant 1).
	w := NewWriter(mem, 64, codec.CompressionNone)
	results, err := w.WriteColumn(col, 1, 0, 0)
	require.NoError(t, err)
	require.True(t, len(results) > 1)

	expectedRowStart := int64(0)
	for i, r := range results {
		require.Equal(t, expectedRowStart, r.Metadata.RowStart, "block %d", i)
		require.Equal(t, uint64(i), r.Metadata.BlockID)
		require.True(t, r.Metadata.RowCount > 0)
		expectedRowStart += int64(r.Metadata.RowCount)
	}
	require.Equal(t, int64(10000), expectedRowStart)
}

func TestReaderRoundTripsAcrossBlocks(t *testing.T) {
	mem := memory.NewGoAllocator()
	col := buildInt64(t, mem, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9)

	w := NewWriter(mem, 16, codec.CompressionLZ4) // small target forces multiple blocks
	results, err := w.WriteColumn(col, 7, 0, 0)
	require.NoError(t, err)
	require.True(t, len(results) > 1)

	metas := make([]Metadata, len(results))
	bytesByID := map[uint64][]byte{}
	for i, r := range results {
		metas[i] = r.Metadata
		bytesByID[r.Metadata.BlockID] = r.Block.Bytes
	}

	load := func(m Metadata) ([]byte, error) { return bytesByID[m.BlockID], nil }

	reader := NewReader(mem)
	got, err := reader.ReadRange(1, 7, metas, load, schema.Scalar(schema.TypeInt64), 2, 5)
	require.NoError(t, err)
	require.Equal(t, 5, got.Len())
	for i := 0; i < 5; i++ {
		require.Equal(t, float64(i+2), got.AsJSON(i))
	}
}

func TestReaderOutOfRange(t *testing.T) {
	mem := memory.NewGoAllocator()
	col := buildInt64(t, mem, 0, 1, 2)
	w := NewWriter(mem, DefaultTargetBytes, codec.CompressionNone)
	results, err := w.WriteColumn(col, 1, 0, 0)
	require.NoError(t, err)

	metas := []Metadata{results[0].Metadata}
	load := func(m Metadata) ([]byte, error) { return results[0].Block.Bytes, nil }

	reader := NewReader(mem)
	_, err = reader.ReadRange(1, 1, metas, load, schema.Scalar(schema.TypeInt64), 0, 10)
	require.Error(t, err)
}
