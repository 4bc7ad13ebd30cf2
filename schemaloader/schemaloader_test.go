package schemaloader_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/polarsignals/columnfort/schema"
	"github.com/polarsignals/columnfort/schemaloader"
	"github.com/polarsignals/columnfort/storage/memory"
)

const doc = `
[[table]]
id = 1
name = "metrics"

  [[table.field]]
  name = "key"
  type = "int64"
  nullable = false

  [[table.field]]
  name = "val"
  type = "int64"
  nullable = false

  [[table.seed]]
  key = 0
  val = 12345

  [[table.seed]]
  key = 1
  val = 67890
`

func TestLoadCreatesTableAndSeedsRows(t *testing.T) {
	store := memory.New()
	require.NoError(t, schemaloader.Load(strings.NewReader(doc), store))

	sch, err := store.GetSchema(schema.TableID(1))
	require.NoError(t, err)
	require.Equal(t, 2, sch.Len())

	n, err := store.RowCount(schema.TableID(1))
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	cols, err := store.ReadColumns(schema.TableID(1), []uint64{0, 1}, 0, 2)
	require.NoError(t, err)
	require.Equal(t, float64(0), cols[0].AsJSON(0))
	require.Equal(t, float64(1), cols[0].AsJSON(1))
	require.Equal(t, float64(12345), cols[1].AsJSON(0))
	require.Equal(t, float64(67890), cols[1].AsJSON(1))
}

func TestLoadRejectsUnknownFieldType(t *testing.T) {
	bad := `
[[table]]
id = 1
name = "bad"

  [[table.field]]
  name = "x"
  type = "not-a-type"
`
	store := memory.New()
	err := schemaloader.Load(strings.NewReader(bad), store)
	require.Error(t, err)

	_, err = store.GetSchema(schema.TableID(1))
	require.Error(t, err)
}
