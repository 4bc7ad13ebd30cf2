// Package storage defines the ColumnStore contract (spec.md §4.4/§6) shared
// by the persistent and in-memory implementations.
package storage

import (
	"github.com/polarsignals/columnfort/block"
	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/schema"
)

// ColumnStore is the capability set exposed to operators and the
// auto-scaling layer (spec.md §4.9 design note: "Express as a polymorphic
// abstraction over the ColumnStore capability set"). Both the persistent
// and in-memory stores implement it so callers depend only on the
// contract, never on a concrete storage engine.
type ColumnStore interface {
	// CreateTable registers a new table with the given schema. Returns an
	// errs.KindAlreadyExists error if the table id is already in use.
	CreateTable(id schema.TableID, sch *schema.Schema) error

	// WriteColumns appends one or more blocks per column (all landed
	// together as one commit) to the table. len(columns) must equal the schema's field
	// count, all columns must have equal length, and each column's
	// element type must match its schema field.
	WriteColumns(id schema.TableID, columns []column.Column) error

	// ReadColumns materializes the requested columns (by schema field
	// index) over [rowStart, rowStart+rowCount), returned in the order
	// requested, each of length rowCount. A range that extends past the
	// column's populated rows fails with an errs.KindOutOfRange error.
	ReadColumns(id schema.TableID, columnIDs []uint64, rowStart, rowCount int64) ([]column.Column, error)

	// GetSchema returns the table's schema.
	GetSchema(id schema.TableID) (*schema.Schema, error)

	// GetBlockMetadata returns the ordered block index for one column.
	GetBlockMetadata(id schema.TableID, columnID uint64) ([]block.Metadata, error)

	// DeleteTable removes a table and all of its data.
	DeleteTable(id schema.TableID) error

	// RowCount returns the table's current row count (max over columns of
	// the sum of their blocks' row counts), or an error if the table does
	// not exist.
	RowCount(id schema.TableID) (int64, error)
}

// TableMetadata is the in-memory index for one table: its schema plus the
// append-only per-column block list (spec.md §3 TableMetadata).
type TableMetadata struct {
	Schema   *schema.Schema
	Blocks   map[uint64][]block.Metadata // column id -> ordered blocks
	RowCount int64
}

// NextBlockIDFor returns the next monotonic block id for a column,
// continuing the existing sequence.
func (m *TableMetadata) NextBlockIDFor(columnID uint64) uint64 {
	blocks := m.Blocks[columnID]
	if len(blocks) == 0 {
		return 0
	}
	return blocks[len(blocks)-1].BlockID + 1
}

// NextRowStartFor returns the row_start a new block for columnID should
// use, continuing the existing cumulative sequence (spec.md §3 invariant 1).
func (m *TableMetadata) NextRowStartFor(columnID uint64) int64 {
	blocks := m.Blocks[columnID]
	if len(blocks) == 0 {
		return 0
	}
	last := blocks[len(blocks)-1]
	return last.RowEnd()
}

// RecomputeRowCount refreshes RowCount as max over columns of the sum of
// each column's block row counts (spec.md §3 TableMetadata.row_count), per
// SPEC_FULL.md's memoized-cache note: called once at the end of
// WriteColumns and once at load time, not on every read.
func (m *TableMetadata) RecomputeRowCount() {
	var max int64
	for _, blocks := range m.Blocks {
		var sum int64
		for _, b := range blocks {
			sum += int64(b.RowCount)
		}
		if sum > max {
			max = sum
		}
	}
	m.RowCount = max
}
