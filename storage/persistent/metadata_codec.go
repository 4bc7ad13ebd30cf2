package persistent

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/polarsignals/columnfort/block"
	"github.com/polarsignals/columnfort/codec"
	"github.com/polarsignals/columnfort/errs"
	"github.com/polarsignals/columnfort/schema"
	"github.com/polarsignals/columnfort/storage"
)

// Metadata serialization (spec.md §6): "a self-describing binary format
// with a magic, a version byte, and length-prefixed fields. Readers that
// encounter an unknown version log-and-skip the affected table."
const (
	metaMagic         uint32 = 0x43465430 // "CFT0"
	metaCurrentVersion byte  = 1
)

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeInt64(buf *bytes.Buffer, v int64) { writeUint64(buf, uint64(v)) }

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

// SerializeTableMetadata encodes a TableMetadata into the on-disk format
// written to metadata.bin.
func SerializeTableMetadata(tm *storage.TableMetadata) ([]byte, error) {
	var buf bytes.Buffer
	writeUint32(&buf, metaMagic)
	buf.WriteByte(metaCurrentVersion)

	// Schema.
	writeUint32(&buf, uint32(tm.Schema.Len()))
	for _, f := range tm.Schema.Fields {
		writeLenPrefixed(&buf, []byte(f.Name))
		buf.WriteByte(byte(f.Type.Tag))
		if f.Nullable {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		if f.Default != nil {
			dj, err := json.Marshal(f.Default)
			if err != nil {
				return nil, fmt.Errorf("metadata: marshal default for field %q: %w", f.Name, err)
			}
			writeLenPrefixed(&buf, dj)
		} else {
			writeLenPrefixed(&buf, nil)
		}
	}

	// Column block index.
	writeUint32(&buf, uint32(len(tm.Blocks)))
	for columnID, blocks := range tm.Blocks {
		writeUint64(&buf, columnID)
		writeUint32(&buf, uint32(len(blocks)))
		for _, m := range blocks {
			if err := writeBlockMetadata(&buf, m); err != nil {
				return nil, err
			}
		}
	}

	writeInt64(&buf, tm.RowCount)

	return buf.Bytes(), nil
}

func writeBlockMetadata(buf *bytes.Buffer, m block.Metadata) error {
	writeUint64(buf, m.BlockID)
	writeInt64(buf, m.RowStart)
	writeUint32(buf, uint32(m.RowCount))
	buf.WriteByte(byte(m.DataType.Tag))
	buf.WriteByte(byte(m.Compression))
	writeUint32(buf, uint32(m.UncompressedSize))
	writeUint32(buf, uint32(m.CompressedSize))
	if m.HasMinMax {
		buf.WriteByte(1)
		if err := writeMinMax(buf, m.DataType, m.MinValue); err != nil {
			return err
		}
		if err := writeMinMax(buf, m.DataType, m.MaxValue); err != nil {
			return err
		}
	} else {
		buf.WriteByte(0)
	}
	writeUint64(buf, m.Checksum)
	return nil
}

// SerializeBlockMetadata encodes a single block's Metadata for its .meta
// sidecar file (spec.md §4.4 on-disk layout).
func SerializeBlockMetadata(m block.Metadata) ([]byte, error) {
	var buf bytes.Buffer
	writeUint32(&buf, metaMagic)
	buf.WriteByte(metaCurrentVersion)
	if err := writeBlockMetadata(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeBlockMetadata reverses SerializeBlockMetadata.
func DeserializeBlockMetadata(data []byte) (block.Metadata, error) {
	r := &reader{data: data}
	magic, err := r.uint32()
	if err != nil || magic != metaMagic {
		return block.Metadata{}, errs.New(errs.KindCorruption, "block metadata: bad magic")
	}
	version, err := r.byte()
	if err != nil {
		return block.Metadata{}, errs.New(errs.KindCorruption, "block metadata: truncated version")
	}
	if version > metaCurrentVersion {
		return block.Metadata{}, errs.Newf(errs.KindUnsupportedVersion, "block metadata version %d newer than supported %d", version, metaCurrentVersion)
	}
	return r.blockMetadata()
}

func writeMinMax(buf *bytes.Buffer, t schema.DataType, v any) error {
	switch x := v.(type) {
	case int64:
		writeInt64(buf, x)
	case uint64:
		writeUint64(buf, x)
	case float64:
		writeUint64(buf, uint64FromFloat(x))
	case string:
		writeLenPrefixed(buf, []byte(x))
	default:
		return fmt.Errorf("metadata: unsupported min/max value type %T for %s", v, t)
	}
	return nil
}

func uint64FromFloat(f float64) uint64 {
	return math.Float64bits(f)
}

func floatFromBits(v uint64) float64 {
	return math.Float64frombits(v)
}

// DeserializeTableMetadata reverses SerializeTableMetadata. An unknown
// (too new) version yields errs.KindUnsupportedVersion so the caller can
// log-and-skip the table per spec.md §4.4 startup protocol.
func DeserializeTableMetadata(data []byte) (*storage.TableMetadata, error) {
	r := &reader{data: data}

	magic, err := r.uint32()
	if err != nil || magic != metaMagic {
		return nil, errs.New(errs.KindCorruption, "metadata: bad magic")
	}
	version, err := r.byte()
	if err != nil {
		return nil, errs.New(errs.KindCorruption, "metadata: truncated version")
	}
	if version > metaCurrentVersion {
		return nil, errs.Newf(errs.KindUnsupportedVersion, "metadata version %d newer than supported %d", version, metaCurrentVersion)
	}

	fieldCount, err := r.uint32()
	if err != nil {
		return nil, errs.New(errs.KindCorruption, "metadata: truncated schema field count")
	}
	fields := make([]schema.Field, 0, fieldCount)
	for i := uint32(0); i < fieldCount; i++ {
		name, err := r.lenPrefixed()
		if err != nil {
			return nil, errs.New(errs.KindCorruption, "metadata: truncated field name")
		}
		typeTag, err := r.byte()
		if err != nil {
			return nil, errs.New(errs.KindCorruption, "metadata: truncated field type")
		}
		nullableByte, err := r.byte()
		if err != nil {
			return nil, errs.New(errs.KindCorruption, "metadata: truncated field nullable flag")
		}
		defaultBytes, err := r.lenPrefixed()
		if err != nil {
			return nil, errs.New(errs.KindCorruption, "metadata: truncated field default")
		}
		var def any
		if len(defaultBytes) > 0 {
			if err := json.Unmarshal(defaultBytes, &def); err != nil {
				return nil, errs.Wrap(errs.KindCorruption, "metadata: unmarshal field default", err)
			}
		}
		fields = append(fields, schema.Field{
			Name:     string(name),
			Type:     schema.Scalar(schema.Type(typeTag)),
			Nullable: nullableByte != 0,
			Default:  def,
		})
	}
	sch, err := schema.NewSchema(fields...)
	if err != nil {
		return nil, errs.Wrap(errs.KindCorruption, "metadata: rebuild schema", err)
	}

	columnCount, err := r.uint32()
	if err != nil {
		return nil, errs.New(errs.KindCorruption, "metadata: truncated column count")
	}
	blocks := make(map[uint64][]block.Metadata, columnCount)
	for i := uint32(0); i < columnCount; i++ {
		columnID, err := r.uint64()
		if err != nil {
			return nil, errs.New(errs.KindCorruption, "metadata: truncated column id")
		}
		blockCount, err := r.uint32()
		if err != nil {
			return nil, errs.New(errs.KindCorruption, "metadata: truncated block count")
		}
		metas := make([]block.Metadata, 0, blockCount)
		for j := uint32(0); j < blockCount; j++ {
			m, err := r.blockMetadata()
			if err != nil {
				return nil, err
			}
			metas = append(metas, m)
		}
		blocks[columnID] = metas
	}

	rowCount, err := r.int64()
	if err != nil {
		return nil, errs.New(errs.KindCorruption, "metadata: truncated row count")
	}

	return &storage.TableMetadata{Schema: sch, Blocks: blocks, RowCount: rowCount}, nil
}

func (r *reader) blockMetadata() (block.Metadata, error) {
	blockID, err := r.uint64()
	if err != nil {
		return block.Metadata{}, errs.New(errs.KindCorruption, "metadata: truncated block id")
	}
	rowStart, err := r.int64()
	if err != nil {
		return block.Metadata{}, errs.New(errs.KindCorruption, "metadata: truncated row start")
	}
	rowCount, err := r.uint32()
	if err != nil {
		return block.Metadata{}, errs.New(errs.KindCorruption, "metadata: truncated row count")
	}
	typeTag, err := r.byte()
	if err != nil {
		return block.Metadata{}, errs.New(errs.KindCorruption, "metadata: truncated block type")
	}
	compressionTag, err := r.byte()
	if err != nil {
		return block.Metadata{}, errs.New(errs.KindCorruption, "metadata: truncated compression tag")
	}
	uncompressedSize, err := r.uint32()
	if err != nil {
		return block.Metadata{}, errs.New(errs.KindCorruption, "metadata: truncated uncompressed size")
	}
	compressedSize, err := r.uint32()
	if err != nil {
		return block.Metadata{}, errs.New(errs.KindCorruption, "metadata: truncated compressed size")
	}
	dt := schema.Scalar(schema.Type(typeTag))
	hasMinMaxByte, err := r.byte()
	if err != nil {
		return block.Metadata{}, errs.New(errs.KindCorruption, "metadata: truncated has-min-max flag")
	}
	var minV, maxV any
	hasMinMax := hasMinMaxByte != 0
	if hasMinMax {
		minV, err = r.minMax(dt)
		if err != nil {
			return block.Metadata{}, err
		}
		maxV, err = r.minMax(dt)
		if err != nil {
			return block.Metadata{}, err
		}
	}
	checksum, err := r.uint64()
	if err != nil {
		return block.Metadata{}, errs.New(errs.KindCorruption, "metadata: truncated checksum")
	}
	return block.Metadata{
		BlockID:          blockID,
		RowStart:         rowStart,
		RowCount:         int(rowCount),
		DataType:         dt,
		Compression:      codec.Compression(compressionTag),
		UncompressedSize: int(uncompressedSize),
		CompressedSize:   int(compressedSize),
		MinValue:         minV,
		MaxValue:         maxV,
		HasMinMax:        hasMinMax,
		Checksum:         checksum,
	}, nil
}

func (r *reader) minMax(t schema.DataType) (any, error) {
	switch t.Tag {
	case schema.TypeInt8, schema.TypeInt16, schema.TypeInt32, schema.TypeInt64,
		schema.TypeTimestamp, schema.TypeDate:
		v, err := r.int64()
		if err != nil {
			return nil, errs.New(errs.KindCorruption, "metadata: truncated min/max int64")
		}
		return v, nil
	case schema.TypeUint8, schema.TypeUint16, schema.TypeUint32, schema.TypeUint64:
		v, err := r.uint64()
		if err != nil {
			return nil, errs.New(errs.KindCorruption, "metadata: truncated min/max uint64")
		}
		return v, nil
	case schema.TypeFloat32, schema.TypeFloat64:
		v, err := r.uint64()
		if err != nil {
			return nil, errs.New(errs.KindCorruption, "metadata: truncated min/max float64")
		}
		return floatFromBits(v), nil
	case schema.TypeString:
		v, err := r.lenPrefixed()
		if err != nil {
			return nil, errs.New(errs.KindCorruption, "metadata: truncated min/max string")
		}
		return string(v), nil
	default:
		return nil, errs.Newf(errs.KindUnsupportedType, "metadata: no min/max encoding for %s", t)
	}
}

// reader is a small cursor over a byte slice used while decoding metadata.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) byte() (byte, error) {
	if r.pos+1 > len(r.data) {
		return 0, fmt.Errorf("reader: eof")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) uint32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("reader: eof")
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) uint64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, fmt.Errorf("reader: eof")
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) int64() (int64, error) {
	v, err := r.uint64()
	return int64(v), err
}

func (r *reader) lenPrefixed() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.data) {
		return nil, fmt.Errorf("reader: eof")
	}
	b := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}
