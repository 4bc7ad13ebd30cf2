// Package block defines the on-disk/on-wire Block and BlockMetadata types
// (spec.md §3) and the column writer/reader that produce and consume them
// (spec.md §4.2, §4.3).
package block

import (
	"github.com/polarsignals/columnfort/codec"
	"github.com/polarsignals/columnfort/schema"
)

// Block is the on-disk/on-wire unit described in spec.md §3: a
// self-describing, possibly compressed byte range for one column.
type Block struct {
	ColumnID         uint64
	RowCount         int
	DataType         schema.DataType
	Compression      codec.Compression
	UncompressedSize int
	CompressedSize   int
	Bytes            []byte
}

// Metadata is the durable index entry for one Block (spec.md §3
// BlockMetadata). RowStart is cumulative within the column.
type Metadata struct {
	BlockID          uint64
	RowStart         int64
	RowCount         int
	DataType         schema.DataType
	Compression      codec.Compression
	UncompressedSize int
	CompressedSize   int
	MinValue         any
	MaxValue         any
	HasMinMax        bool
	Checksum         uint64
}

// RowEnd returns the exclusive end of this block's absolute row range.
func (m Metadata) RowEnd() int64 { return m.RowStart + int64(m.RowCount) }
