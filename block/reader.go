package block

import (
	"github.com/apache/arrow/go/v12/arrow/memory"

	"github.com/polarsignals/columnfort/codec"
	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/errs"
	"github.com/polarsignals/columnfort/schema"
)

// BytesLoader fetches the raw encoded bytes for one block, given its
// Metadata. The persistent store implements this by reading the block's
// .dat file; the in-memory store implements it from a map.
type BytesLoader func(meta Metadata) ([]byte, error)

// BlockCache is the narrow interface a Reader needs to short-circuit a
// block's decode (cache.BlockCache satisfies this without block needing
// to import the cache package). Get/Put are keyed by the block's logical
// position, not its bytes, so a Reader can consult the cache before ever
// calling BytesLoader.
type BlockCache interface {
	Get(tableID schema.TableID, columnID, blockID uint64) (column.Column, bool)
	Put(tableID schema.TableID, columnID, blockID uint64, col column.Column)
}

// Reader materializes a Column over an absolute row range from an ordered
// list of block Metadata (spec.md §4.3). blocks must be ordered by
// RowStart and satisfy the gap-free invariant (spec.md §3 invariant 1).
type Reader struct {
	Mem   memory.Allocator
	Cache BlockCache // optional; nil disables caching
}

// NewReader builds a Reader using mem for array allocation, with no
// block cache.
func NewReader(mem memory.Allocator) *Reader {
	return &Reader{Mem: mem}
}

// NewCachedReader builds a Reader that consults cache before decoding a
// block, and populates it after a miss.
func NewCachedReader(mem memory.Allocator, cache BlockCache) *Reader {
	return &Reader{Mem: mem, Cache: cache}
}

// ReadRange selects the blocks whose range intersects
// [rowStart, rowStart+rowCount), decodes each, concatenates them, and
// slices to the exact requested bounds. tableID and columnID identify the
// blocks only for cache keying; they play no role when r.Cache is nil.
func (r *Reader) ReadRange(tableID schema.TableID, columnID uint64, blocks []Metadata, load BytesLoader, colType schema.DataType, rowStart, rowCount int64) (column.Column, error) {
	if rowCount == 0 {
		bld, err := column.NewBuilder(r.Mem, colType)
		if err != nil {
			return column.Column{}, err
		}
		return bld.NewColumn(), nil
	}

	populated := int64(0)
	if len(blocks) > 0 {
		populated = blocks[len(blocks)-1].RowEnd()
	}
	if rowStart < 0 || rowStart+rowCount > populated {
		return column.Column{}, errs.Newf(errs.KindOutOfRange, "requested range [%d,%d) exceeds populated range [0,%d)", rowStart, rowStart+rowCount, populated)
	}

	var result column.Column
	haveResult := false
	rowEnd := rowStart + rowCount

	for _, meta := range blocks {
		if meta.RowEnd() <= rowStart || meta.RowStart >= rowEnd {
			continue // no intersection with requested range
		}

		decoded, cached := r.cacheGet(tableID, columnID, meta.BlockID)
		if !cached {
			raw, err := load(meta)
			if err != nil {
				return column.Column{}, errs.Wrap(errs.KindStorageIO, "load block bytes", err)
			}
			if !codec.VerifyChecksum(raw, meta.Checksum) {
				return column.Column{}, errs.Newf(errs.KindCorruption, "checksum mismatch for block %d", meta.BlockID)
			}

			decoded, err = codec.Decode(r.Mem, raw, colType)
			if err != nil {
				return column.Column{}, err
			}
			r.cachePut(tableID, columnID, meta.BlockID, decoded)
		}

		// Clip to the intersection with the requested range, in absolute
		// row coordinates translated to this block's local offsets.
		localStart := int64(0)
		if rowStart > meta.RowStart {
			localStart = rowStart - meta.RowStart
		}
		localEnd := int64(meta.RowCount)
		if rowEnd < meta.RowEnd() {
			localEnd = rowEnd - meta.RowStart
		}

		clipped, err := decoded.Slice(int(localStart), int(localEnd-localStart))
		if err != nil {
			return column.Column{}, err
		}

		if !haveResult {
			result = clipped
			haveResult = true
			continue
		}
		merged, err := result.Append(r.Mem, clipped)
		if err != nil {
			return column.Column{}, err
		}
		result = merged
	}

	if !haveResult {
		bld, err := column.NewBuilder(r.Mem, colType)
		if err != nil {
			return column.Column{}, err
		}
		return bld.NewColumn(), nil
	}

	return result, nil
}

func (r *Reader) cacheGet(tableID schema.TableID, columnID, blockID uint64) (column.Column, bool) {
	if r.Cache == nil {
		return column.Column{}, false
	}
	return r.Cache.Get(tableID, columnID, blockID)
}

func (r *Reader) cachePut(tableID schema.TableID, columnID, blockID uint64, col column.Column) {
	if r.Cache == nil {
		return
	}
	r.Cache.Put(tableID, columnID, blockID, col)
}
