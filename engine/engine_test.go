package engine_test

import (
	"testing"

	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/engine"
	"github.com/polarsignals/columnfort/schema"
)

func buildInt64(t *testing.T, vals ...int64) column.Column {
	t.Helper()
	mem := memory.NewGoAllocator()
	b, err := column.NewBuilder(mem, schema.Scalar(schema.TypeInt64))
	require.NoError(t, err)
	for _, v := range vals {
		require.NoError(t, b.Append(v))
	}
	return b.NewColumn()
}

func TestDBInMemoryRoundTrip(t *testing.T) {
	cfg := engine.NewConfig()
	db, err := engine.Open("db-1", cfg)
	require.NoError(t, err)

	sch, err := schema.NewSchema(
		schema.Field{Name: "key", Type: schema.Scalar(schema.TypeInt64)},
	)
	require.NoError(t, err)
	require.NoError(t, db.CreateTable(1, sch))
	require.NoError(t, db.WriteColumns(1, []column.Column{buildInt64(t, 1, 2, 3)}))

	n, err := db.RowCount(1)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	cols, err := db.ReadColumns(1, []uint64{0}, 0, 3)
	require.NoError(t, err)
	require.Equal(t, float64(1), cols[0].AsJSON(0))
}

func TestDBPersistentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := engine.NewConfig(engine.WithDataDir(dir))
	db, err := engine.Open("db-1", cfg)
	require.NoError(t, err)

	sch, err := schema.NewSchema(
		schema.Field{Name: "key", Type: schema.Scalar(schema.TypeInt64)},
	)
	require.NoError(t, err)
	require.NoError(t, db.CreateTable(1, sch))
	require.NoError(t, db.WriteColumns(1, []column.Column{buildInt64(t, 10, 20)}))

	reopened, err := engine.Open("db-1", cfg)
	require.NoError(t, err)
	n, err := reopened.RowCount(1)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}
