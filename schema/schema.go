package schema

import "fmt"

// Field describes one column of a Schema.
type Field struct {
	Name     string
	Type     DataType
	Nullable bool
	Default  any // optional default value, nil if unset
}

// Schema is an ordered sequence of Fields. Field names are unique within a
// Schema.
type Schema struct {
	Fields []Field

	byName map[string]int
}

// NewSchema builds a Schema from fields, validating name non-emptiness and
// uniqueness (spec.md §3: "name (non-empty, unique within schema)").
func NewSchema(fields ...Field) (*Schema, error) {
	byName := make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema: field %d has empty name", i)
		}
		if _, exists := byName[f.Name]; exists {
			return nil, fmt.Errorf("schema: duplicate field name %q", f.Name)
		}
		byName[f.Name] = i
	}
	return &Schema{Fields: fields, byName: byName}, nil
}

// IndexOf returns the field index for name, or -1 if not present.
func (s *Schema) IndexOf(name string) int {
	if s == nil {
		return -1
	}
	if i, ok := s.byName[name]; ok {
		return i
	}
	return -1
}

// Field returns the field at index, for convenience.
func (s *Schema) Field(i int) Field { return s.Fields[i] }

// Len returns the number of fields in the schema.
func (s *Schema) Len() int { return len(s.Fields) }

// Clone returns a deep-enough copy safe to mutate independently of s.
func (s *Schema) Clone() *Schema {
	fields := make([]Field, len(s.Fields))
	copy(fields, s.Fields)
	byName := make(map[string]int, len(s.byName))
	for k, v := range s.byName {
		byName[k] = v
	}
	return &Schema{Fields: fields, byName: byName}
}

// WithAdditionalFields returns a new Schema with extra fields appended.
// Schema evolution at the core layer is additive-only (spec.md §3 invariant 4).
func (s *Schema) WithAdditionalFields(fields ...Field) (*Schema, error) {
	all := make([]Field, 0, len(s.Fields)+len(fields))
	all = append(all, s.Fields...)
	all = append(all, fields...)
	return NewSchema(all...)
}

// TableID uniquely identifies a table within a store.
type TableID uint64
