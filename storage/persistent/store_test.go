package persistent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/polarsignals/columnfort/block"
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
	dir := t.TempDir()
	mem := memory.NewGoAllocator()
	store, err := Open(dir, WithTargetBytes(32), WithCompression(codec.CompressionLZ4))
	require.NoError(t, err)

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

func TestStoreReopenRehydratesMetadata(t *testing.T) {
	dir := t.TempDir()
	mem := memory.NewGoAllocator()
	store, err := Open(dir)
	require.NoError(t, err)

	sch := testSchema(t)
	require.NoError(t, store.CreateTable(5, sch))
	col := buildInt64Column(t, mem, 1, 2, 3)
	require.NoError(t, store.WriteColumns(5, []column.Column{col}))

	reopened, err := Open(dir)
	require.NoError(t, err)
	rowCount, err := reopened.RowCount(5)
	require.NoError(t, err)
	require.Equal(t, int64(3), rowCount)

	got, err := reopened.ReadColumns(5, []uint64{0}, 0, 3)
	require.NoError(t, err)
	require.Equal(t, 3, got[0].Len())
}

// TestStoreCrashBetweenBlockLandingAndMetadataCommit reproduces scenario
// S5: write_columns(3, C1) succeeds; during write_columns(3, C2) the
// process dies after block .dat/.meta files are renamed but before
// metadata.bin is rewritten. Reopening must show only C1, and the orphan
// block files must be swept.
func TestStoreCrashBetweenBlockLandingAndMetadataCommit(t *testing.T) {
	dir := t.TempDir()
	mem := memory.NewGoAllocator()
	store, err := Open(dir, WithTargetBytes(1<<20))
	require.NoError(t, err)

	sch := testSchema(t)
	require.NoError(t, store.CreateTable(3, sch))

	c1 := buildInt64Column(t, mem, 1, 2, 3)
	require.NoError(t, store.WriteColumns(3, []column.Column{c1}))

	// Simulate the crash: manually land a second block's files exactly as
	// WriteColumns phase 1 would, then stop short of rewriting metadata.bin.
	c2 := buildInt64Column(t, mem, 4, 5)
	w := block.NewWriter(mem, 1<<20, codec.CompressionLZ4)
	results, err := w.WriteColumn(c2, 0, 1, 3)
	require.NoError(t, err)
	require.Len(t, results, 1)

	dataPath := blockDataPath(dir, 3, 0, results[0].Metadata.BlockID)
	require.NoError(t, writeFileAtomic(dataPath, results[0].Block.Bytes, filePerm))
	metaBytes, err := SerializeBlockMetadata(results[0].Metadata)
	require.NoError(t, err)
	metaPath := blockMetaPath(dir, 3, 0, results[0].Metadata.BlockID)
	require.NoError(t, writeFileAtomic(metaPath, metaBytes, filePerm))
	// metadata.bin is deliberately left untouched here — that's the crash.

	require.FileExists(t, dataPath)

	reopened, err := Open(dir)
	require.NoError(t, err)

	rowCount, err := reopened.RowCount(3)
	require.NoError(t, err)
	require.Equal(t, int64(3), rowCount, "only C1 should be visible")

	got, err := reopened.ReadColumns(3, []uint64{0}, 0, 3)
	require.NoError(t, err)
	for i, want := range []float64{1, 2, 3} {
		require.Equal(t, want, got[0].AsJSON(i))
	}

	require.NoFileExists(t, dataPath, "startup sweep should remove the orphan block file")
	require.NoFileExists(t, metaPath, "startup sweep should remove the orphan meta sidecar")
}

func TestStoreStartupSweepsOrphanTmpFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.CreateTable(9, testSchema(t)))

	orphan := filepath.Join(tableDir(dir, 9), "col_0_block_0.dat.tmp")
	require.NoError(t, os.WriteFile(orphan, []byte("stale"), filePerm))

	_, err = Open(dir)
	require.NoError(t, err)
	require.NoFileExists(t, orphan)
}

func TestStoreUnknownTableErrors(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)
	_, err = store.GetSchema(99)
	require.Error(t, err)
}

func TestStoreCreateTableDuplicateErrors(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)
	sch := testSchema(t)
	require.NoError(t, store.CreateTable(1, sch))
	err = store.CreateTable(1, sch)
	require.Error(t, err)
}
