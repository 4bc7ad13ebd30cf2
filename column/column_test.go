package column

import (
	"testing"

	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/polarsignals/columnfort/schema"
)

func buildInt64(t *testing.T, mem memory.Allocator, vals ...int64) Column {
	t.Helper()
	b, err := NewBuilder(mem, schema.Scalar(schema.TypeInt64))
	require.NoError(t, err)
	for _, v := range vals {
		require.NoError(t, b.Append(v))
	}
	return b.NewColumn()
}

func TestColumnSliceAndAppend(t *testing.T) {
	mem := memory.NewGoAllocator()
	c := buildInt64(t, mem, 0, 1, 2, 3, 4)
	require.Equal(t, 5, c.Len())

	s, err := c.Slice(1, 2)
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	require.Equal(t, float64(1), s.AsJSON(0))
	require.Equal(t, float64(2), s.AsJSON(1))

	other := buildInt64(t, mem, 5, 6)
	merged, err := c.Append(mem, other)
	require.NoError(t, err)
	require.Equal(t, 7, merged.Len())
	require.Equal(t, float64(6), merged.AsJSON(6))
}

func TestColumnSliceOutOfRange(t *testing.T) {
	mem := memory.NewGoAllocator()
	c := buildInt64(t, mem, 0, 1, 2)
	_, err := c.Slice(2, 5)
	require.Error(t, err)
}
