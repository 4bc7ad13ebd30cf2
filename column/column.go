// Package column implements the runtime Column container: a tag
// identifying the element type plus a contiguous sequence of that type's
// values. It is a thin, typed wrapper around Apache Arrow arrays, which
// gives the vectorized operators in query/physicalplan contiguous,
// SIMD-friendly buffers for free.
package column

import (
	"fmt"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"

	"github.com/polarsignals/columnfort/schema"
)

// Column is a strongly-typed, contiguous sequence of values for one field.
// It is immutable: Slice, Append and Clone all return new Columns and never
// mutate the receiver, so Columns may be shared freely across readers.
type Column struct {
	Type schema.DataType
	arr  arrow.Array
}

// New wraps an already-built arrow.Array as a Column of the given logical
// type. Used by builders and by the block codec's decode path.
func New(t schema.DataType, arr arrow.Array) Column {
	return Column{Type: t, arr: arr}
}

// Arrow exposes the underlying arrow.Array for callers (the block codec,
// the physical plan operators) that need direct buffer access.
func (c Column) Arrow() arrow.Array { return c.arr }

// Len returns the number of elements in the column.
func (c Column) Len() int {
	if c.arr == nil {
		return 0
	}
	return c.arr.Len()
}

// Slice returns the sub-range [start, start+count) as a new Column. It is a
// zero-copy view over the same underlying arrow buffer.
func (c Column) Slice(start, count int) (Column, error) {
	if start < 0 || count < 0 || start+count > c.Len() {
		return Column{}, fmt.Errorf("column: slice [%d,%d) out of range for length %d", start, start+count, c.Len())
	}
	return Column{Type: c.Type, arr: array.NewSlice(c.arr, int64(start), int64(start+count))}, nil
}

// Append concatenates other onto c, producing a new Column of the same
// type. Both columns must share the same element type.
func (c Column) Append(mem memory.Allocator, other Column) (Column, error) {
	if c.Type.Tag != other.Type.Tag {
		return Column{}, fmt.Errorf("column: append type mismatch: %s vs %s", c.Type, other.Type)
	}
	if c.arr == nil {
		return other.Clone(), nil
	}
	if other.arr == nil {
		return c.Clone(), nil
	}
	merged, err := array.Concatenate([]arrow.Array{c.arr, other.arr}, mem)
	if err != nil {
		return Column{}, fmt.Errorf("column: append: %w", err)
	}
	return Column{Type: c.Type, arr: merged}, nil
}

// Clone returns a Column that references the same underlying buffers (arrow
// arrays are immutable once built, so sharing is safe) but bumps the arrow
// reference count so the two Columns have independent lifetimes.
func (c Column) Clone() Column {
	if c.arr == nil {
		return c
	}
	c.arr.Retain()
	return Column{Type: c.Type, arr: c.arr}
}

// Release drops this Column's reference to its underlying arrow buffers.
func (c Column) Release() {
	if c.arr != nil {
		c.arr.Release()
	}
}

// IsNull reports whether the element at i is null, as recorded in the
// underlying array's null bitmap; a column with no underlying array
// reports true. The column's declared type is not consulted, so a
// non-nullable column that had a null appended also reports true.
func (c Column) IsNull(i int) bool {
	if c.arr == nil {
		return true
	}
	return c.arr.IsNull(i)
}

// physicalTag strips Nullable wrappers down to the scalar tag that
// determines c.arr's concrete Arrow type. A Nullable(T) column's
// underlying array is exactly T's array — nullability lives entirely in
// the array's own null bitmap, which IsNull already reads generically.
func physicalTag(t schema.DataType) schema.Type {
	for t.Tag == schema.TypeNullable && t.Elem != nil {
		t = *t.Elem
	}
	return t.Tag
}

// AppendRowFrom copies the element at i into dst, preserving c's native Go
// representation (unlike AsJSON, which widens numerics to float64 for
// display/assertion purposes). Used by operators that must reproduce exact
// values — Filter, Project, HashJoin and Aggregate's group-by columns.
func (c Column) AppendRowFrom(i int, dst *Builder) error {
	if c.IsNull(i) {
		dst.AppendNull()
		return nil
	}
	switch physicalTag(c.Type) {
	case schema.TypeInt8:
		return dst.Append(c.arr.(*array.Int8).Value(i))
	case schema.TypeInt16:
		return dst.Append(c.arr.(*array.Int16).Value(i))
	case schema.TypeInt32:
		return dst.Append(c.arr.(*array.Int32).Value(i))
	case schema.TypeInt64:
		return dst.Append(c.arr.(*array.Int64).Value(i))
	case schema.TypeUint8:
		return dst.Append(c.arr.(*array.Uint8).Value(i))
	case schema.TypeUint16:
		return dst.Append(c.arr.(*array.Uint16).Value(i))
	case schema.TypeUint32:
		return dst.Append(c.arr.(*array.Uint32).Value(i))
	case schema.TypeUint64:
		return dst.Append(c.arr.(*array.Uint64).Value(i))
	case schema.TypeFloat32:
		return dst.Append(c.arr.(*array.Float32).Value(i))
	case schema.TypeFloat64:
		return dst.Append(c.arr.(*array.Float64).Value(i))
	case schema.TypeBoolean:
		return dst.Append(c.arr.(*array.Boolean).Value(i))
	case schema.TypeString:
		return dst.Append(c.arr.(*array.String).Value(i))
	case schema.TypeBinary, schema.TypeJSON:
		return dst.Append(c.arr.(*array.Binary).Value(i))
	case schema.TypeTimestamp:
		return dst.Append(c.arr.(*array.Int64).Value(i))
	case schema.TypeDate:
		return dst.Append(c.arr.(*array.Int32).Value(i))
	default:
		return fmt.Errorf("column: AppendRowFrom: unsupported type %s", c.Type)
	}
}

// HashKey returns a value suitable for use as a Go map key representing the
// element at i (nil for null), used by HashJoin and Aggregate's group-by
// hashing and exact-match verification.
func (c Column) HashKey(i int) any {
	if c.IsNull(i) {
		return nil
	}
	switch physicalTag(c.Type) {
	case schema.TypeInt8:
		return c.arr.(*array.Int8).Value(i)
	case schema.TypeInt16:
		return c.arr.(*array.Int16).Value(i)
	case schema.TypeInt32, schema.TypeDate:
		return c.arr.(*array.Int32).Value(i)
	case schema.TypeInt64, schema.TypeTimestamp:
		return c.arr.(*array.Int64).Value(i)
	case schema.TypeUint8:
		return c.arr.(*array.Uint8).Value(i)
	case schema.TypeUint16:
		return c.arr.(*array.Uint16).Value(i)
	case schema.TypeUint32:
		return c.arr.(*array.Uint32).Value(i)
	case schema.TypeUint64:
		return c.arr.(*array.Uint64).Value(i)
	case schema.TypeFloat32:
		return c.arr.(*array.Float32).Value(i)
	case schema.TypeFloat64:
		return c.arr.(*array.Float64).Value(i)
	case schema.TypeBoolean:
		return c.arr.(*array.Boolean).Value(i)
	case schema.TypeString:
		return c.arr.(*array.String).Value(i)
	case schema.TypeBinary, schema.TypeJSON:
		return string(c.arr.(*array.Binary).Value(i))
	default:
		return nil
	}
}

// AsJSON returns the value at i as a JSON-compatible scalar (nil, bool,
// float64, string, or []byte), per spec.md §3: "Every value passed through
// query operators is representable as a JSON-compatible scalar."
func (c Column) AsJSON(i int) any {
	if c.IsNull(i) {
		return nil
	}
	switch physicalTag(c.Type) {
	case schema.TypeInt8:
		return float64(c.arr.(*array.Int8).Value(i))
	case schema.TypeInt16:
		return float64(c.arr.(*array.Int16).Value(i))
	case schema.TypeInt32:
		return float64(c.arr.(*array.Int32).Value(i))
	case schema.TypeInt64:
		return float64(c.arr.(*array.Int64).Value(i))
	case schema.TypeUint8:
		return float64(c.arr.(*array.Uint8).Value(i))
	case schema.TypeUint16:
		return float64(c.arr.(*array.Uint16).Value(i))
	case schema.TypeUint32:
		return float64(c.arr.(*array.Uint32).Value(i))
	case schema.TypeUint64:
		return float64(c.arr.(*array.Uint64).Value(i))
	case schema.TypeFloat32:
		return float64(c.arr.(*array.Float32).Value(i))
	case schema.TypeFloat64:
		return c.arr.(*array.Float64).Value(i)
	case schema.TypeBoolean:
		return c.arr.(*array.Boolean).Value(i)
	case schema.TypeString:
		return c.arr.(*array.String).Value(i)
	case schema.TypeBinary:
		return c.arr.(*array.Binary).Value(i)
	case schema.TypeTimestamp:
		return float64(c.arr.(*array.Int64).Value(i))
	case schema.TypeDate:
		return float64(c.arr.(*array.Int32).Value(i))
	case schema.TypeJSON:
		return string(c.arr.(*array.Binary).Value(i))
	default:
		return nil
	}
}
