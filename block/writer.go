package block

import (
	"fmt"

	"github.com/apache/arrow/go/v12/arrow/memory"

	"github.com/polarsignals/columnfort/codec"
	"github.com/polarsignals/columnfort/column"
)

// DefaultTargetBytes is the default target uncompressed block size (spec.md
// §4.2, §6: block_target_bytes, default 65536).
const DefaultTargetBytes = 65536

// Result pairs a Block with the Metadata describing it.
type Result struct {
	Block    Block
	Metadata Metadata
}

// Writer partitions a Column into target-sized Blocks (spec.md §4.2).
type Writer struct {
	Mem         memory.Allocator
	TargetBytes int
	Compression codec.Compression
}

// NewWriter builds a Writer with the given defaults; a zero TargetBytes is
// replaced with DefaultTargetBytes.
func NewWriter(mem memory.Allocator, targetBytes int, compression codec.Compression) *Writer {
	if targetBytes <= 0 {
		targetBytes = DefaultTargetBytes
	}
	return &Writer{Mem: mem, TargetBytes: targetBytes, Compression: compression}
}

// WriteColumn partitions col into one or more blocks, assigning block ids
// starting at startBlockID (monotonic, inclusive) and row_start values
// starting at startRowStart (spec.md §3 invariant 1: gap-free, monotonic,
// starting at 0 for a fresh column).
func (w *Writer) WriteColumn(col column.Column, columnID uint64, startBlockID uint64, startRowStart int64) ([]Result, error) {
	n := col.Len()
	if n == 0 {
		return nil, nil
	}

	elementsPerBlock := w.elementsPerBlock(col)

	var results []Result
	blockID := startBlockID
	rowStart := startRowStart
	for offset := 0; offset < n; {
		count := elementsPerBlock
		if offset+count > n {
			count = n - offset
		}
		if count <= 0 {
			count = 1
		}

		slice, err := col.Slice(offset, count)
		if err != nil {
			return nil, fmt.Errorf("block writer: slice column %d: %w", columnID, err)
		}

		enc, err := codec.Encode(slice, w.Compression)
		if err != nil {
			return nil, fmt.Errorf("block writer: encode column %d: %w", columnID, err)
		}

		blk := Block{
			ColumnID:         columnID,
			RowCount:         count,
			DataType:         col.Type,
			Compression:      enc.Compression,
			UncompressedSize: enc.UncompressedSize,
			CompressedSize:   enc.CompressedSize,
			Bytes:            enc.Bytes,
		}
		meta := Metadata{
			BlockID:          blockID,
			RowStart:         rowStart,
			RowCount:         count,
			DataType:         col.Type,
			Compression:      enc.Compression,
			UncompressedSize: enc.UncompressedSize,
			CompressedSize:   enc.CompressedSize,
			MinValue:         enc.Min,
			MaxValue:         enc.Max,
			HasMinMax:        enc.HasMinMax,
			Checksum:         codec.Checksum(enc.Bytes),
		}

		results = append(results, Result{Block: blk, Metadata: meta})

		blockID++
		rowStart += int64(count)
		offset += count
	}

	return results, nil
}

// elementsPerBlock computes how many elements of col's type fit in
// TargetBytes uncompressed. WriteColumn computes it once per column and
// uses it for every block. For variable-width types (string/binary/json)
// the count is the number of leading elements of col that fit within
// TargetBytes, so later blocks whose elements are wider or narrower than
// the leading ones are not re-packed and may land above or below the
// target.
func (w *Writer) elementsPerBlock(col column.Column) int {
	if width, ok := col.Type.FixedWidth(); ok && width > 0 {
		n := w.TargetBytes / width
		if n < 1 {
			n = 1
		}
		return n
	}
	// Variable-width: count how many leading elements fit in TargetBytes.
	return estimateVariableWidthCount(col, w.TargetBytes)
}

// estimateVariableWidthCount walks the column from its first element,
// accumulating encoded byte cost (4-byte length prefix + payload) until the
// running total would exceed targetBytes, and returns how many elements fit
// (at least one).
func estimateVariableWidthCount(col column.Column, targetBytes int) int {
	n := col.Len()
	total := 0
	for i := 0; i < n; i++ {
		var itemSize int
		if col.IsNull(i) {
			itemSize = 4
		} else {
			switch v := col.AsJSON(i).(type) {
			case string:
				itemSize = 4 + len(v)
			case []byte:
				itemSize = 4 + len(v)
			default:
				itemSize = 4
			}
		}
		if total+itemSize > targetBytes && i > 0 {
			return i
		}
		total += itemSize
	}
	if n == 0 {
		return 1
	}
	return n
}
