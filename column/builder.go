package column

import (
	"fmt"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"

	"github.com/polarsignals/columnfort/schema"
)

// Builder accumulates values and produces an immutable Column. One Builder
// is used per column per write; it is not safe for concurrent use.
type Builder struct {
	typ schema.DataType
	b   array.Builder
}

// NewBuilder allocates a Builder for the given logical type using mem.
func NewBuilder(mem memory.Allocator, t schema.DataType) (*Builder, error) {
	var b array.Builder
	switch t.Tag {
	case schema.TypeInt8:
		b = array.NewInt8Builder(mem)
	case schema.TypeInt16:
		b = array.NewInt16Builder(mem)
	case schema.TypeInt32, schema.TypeDate:
		b = array.NewInt32Builder(mem)
	case schema.TypeInt64, schema.TypeTimestamp:
		b = array.NewInt64Builder(mem)
	case schema.TypeUint8:
		b = array.NewUint8Builder(mem)
	case schema.TypeUint16:
		b = array.NewUint16Builder(mem)
	case schema.TypeUint32:
		b = array.NewUint32Builder(mem)
	case schema.TypeUint64:
		b = array.NewUint64Builder(mem)
	case schema.TypeFloat32:
		b = array.NewFloat32Builder(mem)
	case schema.TypeFloat64:
		b = array.NewFloat64Builder(mem)
	case schema.TypeBoolean:
		b = array.NewBooleanBuilder(mem)
	case schema.TypeString:
		b = array.NewStringBuilder(mem)
	case schema.TypeBinary, schema.TypeJSON:
		b = array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
	case schema.TypeNullable:
		// Nullable(T) reuses T's own Arrow builder: every Arrow builder
		// already supports AppendNull regardless of the logical type, so
		// the only thing Nullable adds is the tag Column.Type carries.
		if t.Elem == nil {
			return nil, fmt.Errorf("column: Nullable type missing element type")
		}
		inner, err := NewBuilder(mem, *t.Elem)
		if err != nil {
			return nil, err
		}
		return &Builder{typ: t, b: inner.b}, nil
	default:
		return nil, fmt.Errorf("column: unsupported builder type %s", t)
	}
	return &Builder{typ: t, b: b}, nil
}

// AppendNull appends a null element.
func (bld *Builder) AppendNull() { bld.b.AppendNull() }

// Append appends one value. v's Go type must match the builder's logical
// type (int8 for TypeInt8, int64 for TypeInt64/TypeTimestamp, int32 for
// TypeInt32/TypeDate, string for TypeString, []byte for TypeBinary/TypeJSON,
// and so on).
func (bld *Builder) Append(v any) error {
	if v == nil {
		bld.AppendNull()
		return nil
	}
	switch t := bld.b.(type) {
	case *array.Int8Builder:
		x, ok := v.(int8)
		if !ok {
			return fmt.Errorf("column: expected int8, got %T", v)
		}
		t.Append(x)
	case *array.Int16Builder:
		x, ok := v.(int16)
		if !ok {
			return fmt.Errorf("column: expected int16, got %T", v)
		}
		t.Append(x)
	case *array.Int32Builder:
		x, ok := v.(int32)
		if !ok {
			return fmt.Errorf("column: expected int32, got %T", v)
		}
		t.Append(x)
	case *array.Int64Builder:
		x, ok := v.(int64)
		if !ok {
			return fmt.Errorf("column: expected int64, got %T", v)
		}
		t.Append(x)
	case *array.Uint8Builder:
		x, ok := v.(uint8)
		if !ok {
			return fmt.Errorf("column: expected uint8, got %T", v)
		}
		t.Append(x)
	case *array.Uint16Builder:
		x, ok := v.(uint16)
		if !ok {
			return fmt.Errorf("column: expected uint16, got %T", v)
		}
		t.Append(x)
	case *array.Uint32Builder:
		x, ok := v.(uint32)
		if !ok {
			return fmt.Errorf("column: expected uint32, got %T", v)
		}
		t.Append(x)
	case *array.Uint64Builder:
		x, ok := v.(uint64)
		if !ok {
			return fmt.Errorf("column: expected uint64, got %T", v)
		}
		t.Append(x)
	case *array.Float32Builder:
		x, ok := v.(float32)
		if !ok {
			return fmt.Errorf("column: expected float32, got %T", v)
		}
		t.Append(x)
	case *array.Float64Builder:
		x, ok := v.(float64)
		if !ok {
			return fmt.Errorf("column: expected float64, got %T", v)
		}
		t.Append(x)
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return fmt.Errorf("column: expected bool, got %T", v)
		}
		t.Append(x)
	case *array.StringBuilder:
		x, ok := v.(string)
		if !ok {
			return fmt.Errorf("column: expected string, got %T", v)
		}
		t.Append(x)
	case *array.BinaryBuilder:
		x, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("column: expected []byte, got %T", v)
		}
		t.Append(x)
	default:
		return fmt.Errorf("column: unhandled builder type %T", bld.b)
	}
	return nil
}

// NewColumn finishes the builder and returns the resulting Column. The
// builder must not be reused afterwards.
func (bld *Builder) NewColumn() Column {
	arr := bld.b.NewArray()
	return Column{Type: bld.typ, arr: arr}
}
