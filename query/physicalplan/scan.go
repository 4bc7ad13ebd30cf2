package physicalplan

import (
	"github.com/polarsignals/columnfort/schema"
	"github.com/polarsignals/columnfort/storage"
)

// Scan reads a Batch from store (spec.md §4.6: "given (table, column_ids,
// row_start, row_count), returns the batch from the column store").
func Scan(store storage.ColumnStore, table schema.TableID, columnIDs []uint64, rowStart, rowCount int64) (Batch, error) {
	full, err := store.GetSchema(table)
	if err != nil {
		return Batch{}, err
	}
	cols, err := store.ReadColumns(table, columnIDs, rowStart, rowCount)
	if err != nil {
		return Batch{}, err
	}

	fields := make([]schema.Field, len(columnIDs))
	for i, cid := range columnIDs {
		fields[i] = full.Field(int(cid))
	}
	sch, err := schema.NewSchema(fields...)
	if err != nil {
		return Batch{}, err
	}
	return Batch{Schema: sch, Columns: cols}, nil
}
