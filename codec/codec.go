// Package codec implements the block codec (spec.md §4.1): serializing one
// column's value range into a self-describing, optionally compressed byte
// block, and reversing the operation.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/cespare/xxhash/v2"

	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/errs"
	"github.com/polarsignals/columnfort/schema"
)

const (
	magic         uint32 = 0x43464231 // "CFB1"
	currentVersion byte  = 1
	headerSize           = 16
)

// Encoded is the result of Encode: the wire bytes plus sizing and summary
// metadata a ColumnWriter stamps into a BlockMetadata.
type Encoded struct {
	Bytes            []byte
	UncompressedSize int
	CompressedSize   int
	Compression      Compression
	Min, Max         any
	HasMinMax        bool
}

// Encode serializes col using the requested compression, computing a
// min/max summary for orderable types as it goes (spec.md §4.1).
func Encode(col column.Column, compression Compression) (Encoded, error) {
	n := col.Len()
	payload, min, max, hasMinMax, err := encodePayload(col)
	if err != nil {
		return Encoded{}, err
	}
	uncompressedSize := len(payload)

	compressed, usedCompression, err := compress(compression, payload)
	if err != nil {
		return Encoded{}, err
	}

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], magic)
	header[4] = currentVersion
	header[5] = byte(col.Type.Tag)
	header[6] = byte(usedCompression)
	header[7] = 0 // reserved
	binary.LittleEndian.PutUint32(header[8:12], uint32(n))
	binary.LittleEndian.PutUint32(header[12:16], uint32(uncompressedSize))

	out := make([]byte, 0, headerSize+len(compressed))
	out = append(out, header...)
	out = append(out, compressed...)

	return Encoded{
		Bytes:            out,
		UncompressedSize: uncompressedSize,
		CompressedSize:   len(compressed),
		Compression:      usedCompression,
		Min:              min,
		Max:              max,
		HasMinMax:        hasMinMax,
	}, nil
}

// Checksum computes the 64-bit checksum stored in BlockMetadata, covering
// the compressed payload (spec.md §4.1).
func Checksum(encodedBytes []byte) uint64 {
	return xxhash.Sum64(encodedBytes)
}

// VerifyChecksum reports whether encodedBytes matches the expected checksum.
func VerifyChecksum(encodedBytes []byte, want uint64) bool {
	return Checksum(encodedBytes) == want
}

// Decode reverses Encode, verifying the header and reconstructing a typed
// Column. expectedType guards against reading a block written for a
// different logical type (spec.md §3 invariant 4).
func Decode(mem memory.Allocator, data []byte, expectedType schema.DataType) (column.Column, error) {
	if len(data) < headerSize {
		return column.Column{}, errs.New(errs.KindCorruption, "block shorter than header")
	}
	gotMagic := binary.LittleEndian.Uint32(data[0:4])
	if gotMagic != magic {
		return column.Column{}, errs.New(errs.KindCorruption, "bad magic")
	}
	version := data[4]
	if version > currentVersion {
		return column.Column{}, errs.Newf(errs.KindUnsupportedVersion, "block version %d newer than supported %d", version, currentVersion)
	}
	typeTag := schema.Type(data[5])
	if typeTag != expectedType.Tag {
		return column.Column{}, errs.Newf(errs.KindCorruption, "block type %s does not match expected %s", typeTag, expectedType.Tag)
	}
	compressionTag := Compression(data[6])
	rowCount := int(binary.LittleEndian.Uint32(data[8:12]))
	uncompressedSize := int(binary.LittleEndian.Uint32(data[12:16]))

	payload, err := decompress(compressionTag, data[headerSize:], uncompressedSize)
	if err != nil {
		return column.Column{}, errs.Wrap(errs.KindCorruption, "decompress block", err)
	}
	if len(payload) != uncompressedSize {
		return column.Column{}, errs.Newf(errs.KindCorruption, "decompressed size %d does not match header %d", len(payload), uncompressedSize)
	}

	return decodePayload(mem, expectedType, rowCount, payload)
}

// physicalType strips Nullable wrappers down to the concrete scalar type
// that actually determines a block's byte layout. Nullable(T) stores
// exactly T's Arrow array underneath — the null bitmap already written by
// encodePayload is what makes it nullable, so layout dispatch only ever
// needs to know T.
func physicalType(t schema.DataType) schema.DataType {
	for t.Tag == schema.TypeNullable && t.Elem != nil {
		t = *t.Elem
	}
	return t
}

// nullBitmapSize returns the number of bytes needed for a 1-bit-per-element
// null bitmap over n elements.
func nullBitmapSize(n int) int { return (n + 7) / 8 }

func bitmapSet(bitmap []byte, i int, v bool) {
	if v {
		bitmap[i/8] |= 1 << uint(i%8)
	}
}

func bitmapGet(bitmap []byte, i int) bool {
	return bitmap[i/8]&(1<<uint(i%8)) != 0
}

// encodePayload writes the null bitmap followed by element data, and
// computes min/max for orderable scalar types over non-null values.
func encodePayload(col column.Column) (payload []byte, min, max any, hasMinMax bool, err error) {
	n := col.Len()
	bitmapLen := nullBitmapSize(n)
	nullBitmap := make([]byte, bitmapLen)
	for i := 0; i < n; i++ {
		bitmapSet(nullBitmap, i, col.IsNull(i))
	}

	var data []byte
	switch physicalType(col.Type).Tag {
	case schema.TypeInt8:
		arr := col.Arrow().(*array.Int8)
		data = make([]byte, n)
		for i, v := range arr.Int8Values() {
			data[i] = byte(v)
			hasMinMax, min, max = trackMinMaxInt(hasMinMax, min, max, int64(v), col.IsNull(i))
		}
	case schema.TypeUint8:
		arr := col.Arrow().(*array.Uint8)
		data = append([]byte(nil), arr.Uint8Values()...)
		for i, v := range arr.Uint8Values() {
			hasMinMax, min, max = trackMinMaxUint(hasMinMax, min, max, uint64(v), col.IsNull(i))
		}
	case schema.TypeBoolean:
		arr := col.Arrow().(*array.Boolean)
		data = make([]byte, n)
		for i := 0; i < n; i++ {
			if arr.Value(i) {
				data[i] = 1
			}
		}
	case schema.TypeInt16:
		arr := col.Arrow().(*array.Int16)
		data = make([]byte, n*2)
		for i, v := range arr.Int16Values() {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
			hasMinMax, min, max = trackMinMaxInt(hasMinMax, min, max, int64(v), col.IsNull(i))
		}
	case schema.TypeUint16:
		arr := col.Arrow().(*array.Uint16)
		data = make([]byte, n*2)
		for i, v := range arr.Uint16Values() {
			binary.LittleEndian.PutUint16(data[i*2:], v)
			hasMinMax, min, max = trackMinMaxUint(hasMinMax, min, max, uint64(v), col.IsNull(i))
		}
	case schema.TypeInt32, schema.TypeDate:
		arr := col.Arrow().(*array.Int32)
		data = make([]byte, n*4)
		for i, v := range arr.Int32Values() {
			binary.LittleEndian.PutUint32(data[i*4:], uint32(v))
			hasMinMax, min, max = trackMinMaxInt(hasMinMax, min, max, int64(v), col.IsNull(i))
		}
	case schema.TypeUint32:
		arr := col.Arrow().(*array.Uint32)
		data = make([]byte, n*4)
		for i, v := range arr.Uint32Values() {
			binary.LittleEndian.PutUint32(data[i*4:], v)
			hasMinMax, min, max = trackMinMaxUint(hasMinMax, min, max, uint64(v), col.IsNull(i))
		}
	case schema.TypeFloat32:
		arr := col.Arrow().(*array.Float32)
		data = make([]byte, n*4)
		for i, v := range arr.Float32Values() {
			binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
			hasMinMax, min, max = trackMinMaxFloat(hasMinMax, min, max, float64(v), col.IsNull(i))
		}
	case schema.TypeInt64, schema.TypeTimestamp:
		arr := col.Arrow().(*array.Int64)
		data = make([]byte, n*8)
		for i, v := range arr.Int64Values() {
			binary.LittleEndian.PutUint64(data[i*8:], uint64(v))
			hasMinMax, min, max = trackMinMaxInt(hasMinMax, min, max, v, col.IsNull(i))
		}
	case schema.TypeUint64:
		arr := col.Arrow().(*array.Uint64)
		data = make([]byte, n*8)
		for i, v := range arr.Uint64Values() {
			binary.LittleEndian.PutUint64(data[i*8:], v)
			hasMinMax, min, max = trackMinMaxUint(hasMinMax, min, max, v, col.IsNull(i))
		}
	case schema.TypeFloat64:
		arr := col.Arrow().(*array.Float64)
		data = make([]byte, n*8)
		for i, v := range arr.Float64Values() {
			binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(v))
			hasMinMax, min, max = trackMinMaxFloat(hasMinMax, min, max, v, col.IsNull(i))
		}
	case schema.TypeString:
		arr := col.Arrow().(*array.String)
		data = encodeVariableWidthStrings(arr, n)
		for i := 0; i < n; i++ {
			if col.IsNull(i) {
				continue
			}
			v := arr.Value(i)
			if !hasMinMax {
				min, max, hasMinMax = v, v, true
				continue
			}
			if v < min.(string) {
				min = v
			}
			if v > max.(string) {
				max = v
			}
		}
	case schema.TypeBinary, schema.TypeJSON:
		arr := col.Arrow().(*array.Binary)
		data = encodeVariableWidthBinary(arr, n)
	default:
		return nil, nil, nil, false, errs.Newf(errs.KindUnsupportedType, "encode: unsupported type %s", col.Type)
	}

	payload = make([]byte, 0, bitmapLen+len(data))
	payload = append(payload, nullBitmap...)
	payload = append(payload, data...)
	return payload, min, max, hasMinMax, nil
}

func encodeVariableWidthStrings(arr *array.String, n int) []byte {
	var buf []byte
	lenBuf := make([]byte, 4)
	for i := 0; i < n; i++ {
		if arr.IsNull(i) {
			binary.LittleEndian.PutUint32(lenBuf, 0)
			buf = append(buf, lenBuf...)
			continue
		}
		v := arr.Value(i)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(v)))
		buf = append(buf, lenBuf...)
		buf = append(buf, v...)
	}
	return buf
}

func encodeVariableWidthBinary(arr *array.Binary, n int) []byte {
	var buf []byte
	lenBuf := make([]byte, 4)
	for i := 0; i < n; i++ {
		if arr.IsNull(i) {
			binary.LittleEndian.PutUint32(lenBuf, 0)
			buf = append(buf, lenBuf...)
			continue
		}
		v := arr.Value(i)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(v)))
		buf = append(buf, lenBuf...)
		buf = append(buf, v...)
	}
	return buf
}

func trackMinMaxInt(has bool, min, max any, v int64, isNull bool) (bool, any, any) {
	if isNull {
		return has, min, max
	}
	if !has {
		return true, v, v
	}
	if v < min.(int64) {
		min = v
	}
	if v > max.(int64) {
		max = v
	}
	return true, min, max
}

func trackMinMaxUint(has bool, min, max any, v uint64, isNull bool) (bool, any, any) {
	if isNull {
		return has, min, max
	}
	if !has {
		return true, v, v
	}
	if v < min.(uint64) {
		min = v
	}
	if v > max.(uint64) {
		max = v
	}
	return true, min, max
}

func trackMinMaxFloat(has bool, min, max any, v float64, isNull bool) (bool, any, any) {
	if isNull {
		return has, min, max
	}
	if !has {
		return true, v, v
	}
	if v < min.(float64) {
		min = v
	}
	if v > max.(float64) {
		max = v
	}
	return true, min, max
}

func decodePayload(mem memory.Allocator, t schema.DataType, n int, payload []byte) (column.Column, error) {
	bitmapLen := nullBitmapSize(n)
	if len(payload) < bitmapLen {
		return column.Column{}, errs.New(errs.KindCorruption, "payload shorter than null bitmap")
	}
	bitmap := payload[:bitmapLen]
	data := payload[bitmapLen:]

	bld, err := column.NewBuilder(mem, t)
	if err != nil {
		return column.Column{}, err
	}

	pt := physicalType(t)
	fixed, isFixed := pt.FixedWidth()
	switch {
	case isFixed && pt.Tag != schema.TypeBoolean:
		if len(data) != n*fixed {
			return column.Column{}, errs.Newf(errs.KindCorruption, "fixed-width payload size %d does not match row_count*sizeof(element) %d", len(data), n*fixed)
		}
		for i := 0; i < n; i++ {
			if bitmapGet(bitmap, i) {
				bld.AppendNull()
				continue
			}
			if err := appendFixed(bld, pt, data[i*fixed:(i+1)*fixed]); err != nil {
				return column.Column{}, err
			}
		}
	case pt.Tag == schema.TypeBoolean:
		if len(data) != n {
			return column.Column{}, errs.Newf(errs.KindCorruption, "boolean payload size %d does not match row_count %d", len(data), n)
		}
		for i := 0; i < n; i++ {
			if bitmapGet(bitmap, i) {
				bld.AppendNull()
				continue
			}
			if err := bld.Append(data[i] != 0); err != nil {
				return column.Column{}, err
			}
		}
	case pt.Tag == schema.TypeString || pt.Tag == schema.TypeBinary || pt.Tag == schema.TypeJSON:
		off := 0
		for i := 0; i < n; i++ {
			if off+4 > len(data) {
				return column.Column{}, errs.New(errs.KindCorruption, "truncated variable-width length prefix")
			}
			l := int(binary.LittleEndian.Uint32(data[off : off+4]))
			off += 4
			if bitmapGet(bitmap, i) {
				bld.AppendNull()
				off += l
				continue
			}
			if off+l > len(data) {
				return column.Column{}, errs.New(errs.KindCorruption, "truncated variable-width value")
			}
			v := data[off : off+l]
			off += l
			if pt.Tag == schema.TypeString {
				if err := bld.Append(string(v)); err != nil {
					return column.Column{}, err
				}
			} else {
				cp := append([]byte(nil), v...)
				if err := bld.Append(cp); err != nil {
					return column.Column{}, err
				}
			}
		}
	default:
		return column.Column{}, errs.Newf(errs.KindUnsupportedType, "decode: unsupported type %s", t)
	}

	return bld.NewColumn(), nil
}

func appendFixed(bld *column.Builder, t schema.DataType, b []byte) error {
	switch t.Tag {
	case schema.TypeInt8:
		return bld.Append(int8(b[0]))
	case schema.TypeUint8:
		return bld.Append(b[0])
	case schema.TypeInt16:
		return bld.Append(int16(binary.LittleEndian.Uint16(b)))
	case schema.TypeUint16:
		return bld.Append(binary.LittleEndian.Uint16(b))
	case schema.TypeInt32, schema.TypeDate:
		return bld.Append(int32(binary.LittleEndian.Uint32(b)))
	case schema.TypeUint32:
		return bld.Append(binary.LittleEndian.Uint32(b))
	case schema.TypeFloat32:
		return bld.Append(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case schema.TypeInt64, schema.TypeTimestamp:
		return bld.Append(int64(binary.LittleEndian.Uint64(b)))
	case schema.TypeUint64:
		return bld.Append(binary.LittleEndian.Uint64(b))
	case schema.TypeFloat64:
		return bld.Append(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	default:
		return fmt.Errorf("codec: unhandled fixed-width type %s", t)
	}
}
