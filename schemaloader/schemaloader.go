// Package schemaloader parses a declarative TOML document describing one
// or more tables — field list plus optional seed rows — and primes a
// freshly opened storage.ColumnStore with them. Grounded on
// Pieczasz-smf's internal/parser/toml package (table/column/constraint
// parsing from TOML), generalized here from "migration schema" to "table
// schema + seed data" (SPEC_FULL.md §4.12).
package schemaloader

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"

	"github.com/apache/arrow/go/v12/arrow/memory"

	"github.com/polarsignals/columnfort/column"
	"github.com/polarsignals/columnfort/errs"
	"github.com/polarsignals/columnfort/schema"
	"github.com/polarsignals/columnfort/storage"
)

// document is the raw shape of the TOML file.
type document struct {
	Table []tableDoc `toml:"table"`
}

type tableDoc struct {
	ID    uint64      `toml:"id"`
	Name  string      `toml:"name"`
	Field []fieldDoc  `toml:"field"`
	Seed  []seedRow   `toml:"seed"`
}

type fieldDoc struct {
	Name     string `toml:"name"`
	Type     string `toml:"type"`
	Nullable bool   `toml:"nullable"`
}

// seedRow is one seed record, keyed by field name, decoded loosely since
// TOML has no notion of this document's per-field logical types.
type seedRow map[string]any

// Load parses r as a schema/seed TOML document and creates every
// described table in store. A table is created with its full seed data
// in one pass: if any part of the document is malformed, or seed values
// don't match their declared field type, no partial table is left behind
// (SPEC_FULL.md §4.12: "it never partially creates a table").
func Load(r io.Reader, store storage.ColumnStore) error {
	var doc document
	if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return errs.Wrap(errs.KindSchemaMismatch, "schemaloader: parse toml", err)
	}

	for _, td := range doc.Table {
		sch, err := buildSchema(td)
		if err != nil {
			return errs.Wrap(errs.KindSchemaMismatch, fmt.Sprintf("schemaloader: table %q", td.Name), err)
		}
		id := schema.TableID(td.ID)
		if err := store.CreateTable(id, sch); err != nil {
			return err
		}
		if len(td.Seed) == 0 {
			continue
		}
		cols, err := buildSeedColumns(sch, td.Seed)
		if err != nil {
			// Leave no partial table: undo the create.
			_ = store.DeleteTable(id)
			return errs.Wrap(errs.KindSchemaMismatch, fmt.Sprintf("schemaloader: table %q seed", td.Name), err)
		}
		if err := store.WriteColumns(id, cols); err != nil {
			_ = store.DeleteTable(id)
			return err
		}
	}
	return nil
}

func buildSchema(td tableDoc) (*schema.Schema, error) {
	fields := make([]schema.Field, 0, len(td.Field))
	for _, fd := range td.Field {
		t, err := parseType(fd.Type)
		if err != nil {
			return nil, err
		}
		fields = append(fields, schema.Field{Name: fd.Name, Type: t, Nullable: fd.Nullable})
	}
	return schema.NewSchema(fields...)
}

func parseType(name string) (schema.DataType, error) {
	switch name {
	case "int8":
		return schema.Scalar(schema.TypeInt8), nil
	case "int16":
		return schema.Scalar(schema.TypeInt16), nil
	case "int32":
		return schema.Scalar(schema.TypeInt32), nil
	case "int64":
		return schema.Scalar(schema.TypeInt64), nil
	case "uint8":
		return schema.Scalar(schema.TypeUint8), nil
	case "uint16":
		return schema.Scalar(schema.TypeUint16), nil
	case "uint32":
		return schema.Scalar(schema.TypeUint32), nil
	case "uint64":
		return schema.Scalar(schema.TypeUint64), nil
	case "float32":
		return schema.Scalar(schema.TypeFloat32), nil
	case "float64":
		return schema.Scalar(schema.TypeFloat64), nil
	case "boolean", "bool":
		return schema.Scalar(schema.TypeBoolean), nil
	case "string":
		return schema.Scalar(schema.TypeString), nil
	case "binary":
		return schema.Scalar(schema.TypeBinary), nil
	case "timestamp":
		return schema.Scalar(schema.TypeTimestamp), nil
	case "date":
		return schema.Scalar(schema.TypeDate), nil
	case "json":
		return schema.Scalar(schema.TypeJSON), nil
	default:
		return schema.DataType{}, fmt.Errorf("schemaloader: unknown field type %q", name)
	}
}

// buildSeedColumns materializes one column.Column per schema field from
// the seed rows, in field order, converting each TOML-decoded value to
// the Go type the column Builder expects for that field's logical type.
func buildSeedColumns(sch *schema.Schema, rows []seedRow) ([]column.Column, error) {
	mem := memory.NewGoAllocator()
	builders := make([]*column.Builder, sch.Len())
	for i, f := range sch.Fields {
		b, err := column.NewBuilder(mem, f.Type)
		if err != nil {
			return nil, err
		}
		builders[i] = b
	}

	for _, row := range rows {
		for i, f := range sch.Fields {
			raw, present := row[f.Name]
			if !present || raw == nil {
				builders[i].AppendNull()
				continue
			}
			v, err := coerce(f.Type, raw)
			if err != nil {
				return nil, fmt.Errorf("schemaloader: field %q: %w", f.Name, err)
			}
			if err := builders[i].Append(v); err != nil {
				return nil, fmt.Errorf("schemaloader: field %q: %w", f.Name, err)
			}
		}
	}

	cols := make([]column.Column, len(builders))
	for i, b := range builders {
		cols[i] = b.NewColumn()
	}
	return cols, nil
}

// coerce converts a TOML-decoded value (int64, float64, bool, string) to
// the concrete Go type column.Builder.Append expects for t.
func coerce(t schema.DataType, raw any) (any, error) {
	switch t.Tag {
	case schema.TypeInt8:
		n, ok := toInt64(raw)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %T", raw)
		}
		return int8(n), nil
	case schema.TypeInt16:
		n, ok := toInt64(raw)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %T", raw)
		}
		return int16(n), nil
	case schema.TypeInt32, schema.TypeDate:
		n, ok := toInt64(raw)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %T", raw)
		}
		return int32(n), nil
	case schema.TypeInt64, schema.TypeTimestamp:
		n, ok := toInt64(raw)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %T", raw)
		}
		return n, nil
	case schema.TypeUint8:
		n, ok := toInt64(raw)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %T", raw)
		}
		return uint8(n), nil
	case schema.TypeUint16:
		n, ok := toInt64(raw)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %T", raw)
		}
		return uint16(n), nil
	case schema.TypeUint32:
		n, ok := toInt64(raw)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %T", raw)
		}
		return uint32(n), nil
	case schema.TypeUint64:
		n, ok := toInt64(raw)
		if !ok {
			return nil, fmt.Errorf("expected integer, got %T", raw)
		}
		return uint64(n), nil
	case schema.TypeFloat32:
		f, ok := toFloat64(raw)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", raw)
		}
		return float32(f), nil
	case schema.TypeFloat64:
		f, ok := toFloat64(raw)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", raw)
		}
		return f, nil
	case schema.TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", raw)
		}
		return b, nil
	case schema.TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return s, nil
	case schema.TypeBinary, schema.TypeJSON:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return []byte(s), nil
	default:
		return nil, fmt.Errorf("unsupported seed field type %s", t)
	}
}

func toInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func toFloat64(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
