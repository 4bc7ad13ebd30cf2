// Package schema holds the logical type system and table/column identity
// used throughout the engine: logical types, fields, schemas and table ids.
package schema

import "fmt"

// Type is a logical data type tag. Every Column and every Field carries
// exactly one of these; nested types (Nullable, Array, Map) wrap an inner
// Type.
type Type int

const (
	TypeInvalid Type = iota
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeBoolean
	TypeString
	TypeBinary
	TypeTimestamp // epoch seconds, stored as int64
	TypeDate      // days since epoch, stored as int32
	TypeJSON      // opaque bytes, UTF-8 JSON text
	TypeNullable
	TypeArray
	TypeMap
)

func (t Type) String() string {
	switch t {
	case TypeInt8:
		return "Int8"
	case TypeInt16:
		return "Int16"
	case TypeInt32:
		return "Int32"
	case TypeInt64:
		return "Int64"
	case TypeUint8:
		return "Uint8"
	case TypeUint16:
		return "Uint16"
	case TypeUint32:
		return "Uint32"
	case TypeUint64:
		return "Uint64"
	case TypeFloat32:
		return "Float32"
	case TypeFloat64:
		return "Float64"
	case TypeBoolean:
		return "Boolean"
	case TypeString:
		return "String"
	case TypeBinary:
		return "Binary"
	case TypeTimestamp:
		return "Timestamp"
	case TypeDate:
		return "Date"
	case TypeJSON:
		return "Json"
	case TypeNullable:
		return "Nullable"
	case TypeArray:
		return "Array"
	case TypeMap:
		return "Map"
	default:
		return "Invalid"
	}
}

// DataType is the full, possibly-nested type descriptor for a Field.
// Scalar types only set Tag; Nullable/Array set Elem; Map sets Key/Elem.
type DataType struct {
	Tag  Type
	Elem *DataType // element type for Nullable(T) and Array(T)
	Key  *DataType // key type for Map(K,V); Elem is the value type
}

func Scalar(t Type) DataType { return DataType{Tag: t} }

func Nullable(inner DataType) DataType {
	return DataType{Tag: TypeNullable, Elem: &inner}
}

func ArrayOf(inner DataType) DataType {
	return DataType{Tag: TypeArray, Elem: &inner}
}

func MapOf(key, value DataType) DataType {
	return DataType{Tag: TypeMap, Key: &key, Elem: &value}
}

func (d DataType) String() string {
	switch d.Tag {
	case TypeNullable:
		return fmt.Sprintf("Nullable(%s)", d.Elem)
	case TypeArray:
		return fmt.Sprintf("Array(%s)", d.Elem)
	case TypeMap:
		return fmt.Sprintf("Map(%s,%s)", d.Key, d.Elem)
	default:
		return d.Tag.String()
	}
}

// FixedWidth returns the element byte width for fixed-width scalar types and
// false for variable-width or nested types. Nullable(T) defers to T: its
// array layout is T's, nullability being carried entirely in the bitmap.
func (d DataType) FixedWidth() (int, bool) {
	for d.Tag == TypeNullable && d.Elem != nil {
		d = *d.Elem
	}
	switch d.Tag {
	case TypeInt8, TypeUint8, TypeBoolean:
		return 1, true
	case TypeInt16, TypeUint16:
		return 2, true
	case TypeInt32, TypeUint32, TypeFloat32, TypeDate:
		return 4, true
	case TypeInt64, TypeUint64, TypeFloat64, TypeTimestamp:
		return 8, true
	default:
		return 0, false
	}
}

// Orderable reports whether a column of this type supports Min/Max and the
// Gt/Lt comparisons used by query predicates. Nullable(T) defers to T; a
// predicate still treats a null element as neither greater nor less than
// anything, handled by the predicate evaluator's own null check.
func (d DataType) Orderable() bool {
	for d.Tag == TypeNullable && d.Elem != nil {
		d = *d.Elem
	}
	switch d.Tag {
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64,
		TypeUint8, TypeUint16, TypeUint32, TypeUint64,
		TypeFloat32, TypeFloat64, TypeTimestamp, TypeDate, TypeString:
		return true
	default:
		return false
	}
}
