package codec

import (
	"testing"

	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/stretchr/testify/require"

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

func buildStringColumn(t *testing.T, mem memory.Allocator, vals ...string) column.Column {
	t.Helper()
	b, err := column.NewBuilder(mem, schema.Scalar(schema.TypeString))
	require.NoError(t, err)
	for _, v := range vals {
		require.NoError(t, b.Append(v))
	}
	return b.NewColumn()
}

func TestEncodeDecodeRoundTripInt64(t *testing.T) {
	mem := memory.NewGoAllocator()
	col := buildInt64Column(t, mem, 12345, 12345, 12345, 12345, 12345)

	enc, err := Encode(col, CompressionLZ4)
	require.NoError(t, err)
	require.True(t, enc.HasMinMax)
	require.Equal(t, int64(12345), enc.Min)
	require.Equal(t, int64(12345), enc.Max)

	checksum := Checksum(enc.Bytes)
	require.True(t, VerifyChecksum(enc.Bytes, checksum))

	decoded, err := Decode(mem, enc.Bytes, schema.Scalar(schema.TypeInt64))
	require.NoError(t, err)
	require.Equal(t, col.Len(), decoded.Len())
	for i := 0; i < col.Len(); i++ {
		require.Equal(t, col.AsJSON(i), decoded.AsJSON(i))
	}
}

func TestEncodeDecodeRoundTripStrings(t *testing.T) {
	mem := memory.NewGoAllocator()
	col := buildStringColumn(t, mem, "a", "bb", "ccc")

	enc, err := Encode(col, CompressionZstd)
	require.NoError(t, err)

	decoded, err := Decode(mem, enc.Bytes, schema.Scalar(schema.TypeString))
	require.NoError(t, err)
	require.Equal(t, 3, decoded.Len())
	require.Equal(t, "ccc", decoded.AsJSON(2))
}

func TestDecodeCorruptMagic(t *testing.T) {
	mem := memory.NewGoAllocator()
	col := buildInt64Column(t, mem, 1, 2, 3)
	enc, err := Encode(col, CompressionNone)
	require.NoError(t, err)

	bad := append([]byte(nil), enc.Bytes...)
	bad[0] ^= 0xFF

	_, err = Decode(mem, bad, schema.Scalar(schema.TypeInt64))
	require.Error(t, err)
}

func TestDecodeTypeMismatch(t *testing.T) {
	mem := memory.NewGoAllocator()
	col := buildInt64Column(t, mem, 1, 2, 3)
	enc, err := Encode(col, CompressionNone)
	require.NoError(t, err)

	_, err = Decode(mem, enc.Bytes, schema.Scalar(schema.TypeFloat64))
	require.Error(t, err)
}

func TestCompressionFallsBackWhenNotShrinking(t *testing.T) {
	mem := memory.NewGoAllocator()
	// A single small value won't compress well; compression should fall
	// back to none rather than bloat the payload.
	col := buildInt64Column(t, mem, 1)
	enc, err := Encode(col, CompressionLZ4)
	require.NoError(t, err)
	require.Equal(t, CompressionNone, enc.Compression)
}
