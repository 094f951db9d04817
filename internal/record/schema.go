package record

import (
	"fmt"
	"time"
)

// FieldType identifies the semantic type of a field.
type FieldType string

const (
	TypeText    FieldType = "text"
	TypeInt     FieldType = "int"
	TypeDecimal FieldType = "decimal"
	TypeBool    FieldType = "bool"
	TypeBytes   FieldType = "bytes"
	TypeTime    FieldType = "time"
)

// ValidFieldTypes defines the allowed field types.
var ValidFieldTypes = map[FieldType]bool{
	TypeText:    true,
	TypeInt:     true,
	TypeDecimal: true,
	TypeBool:    true,
	TypeBytes:   true,
	TypeTime:    true,
}

// FieldDef describes one field of a record.
// Label is presentation metadata only; nothing in the synchronization
// path reads it.
type FieldDef struct {
	Name    string
	Type    FieldType
	Label   string
	Default Value
}

// zero returns the initial value for a field: its declared default if
// present, otherwise the zero value of its type.
func (f FieldDef) zero() Value {
	if f.Default != nil {
		return f.Default
	}
	switch f.Type {
	case TypeText:
		return Text("")
	case TypeInt:
		return Int(0)
	case TypeDecimal:
		return Decimal("0")
	case TypeBool:
		return Bool(false)
	case TypeBytes:
		return Bytes(nil)
	case TypeTime:
		return Time(time.Time{})
	default:
		return Null{}
	}
}

// checkType reports whether v is assignable to the field.
// Null is assignable to every field type.
func (f FieldDef) checkType(v Value) error {
	if _, ok := v.(Null); ok || v == nil {
		return nil
	}
	ok := false
	switch f.Type {
	case TypeText:
		_, ok = v.(Text)
	case TypeInt:
		_, ok = v.(Int)
	case TypeDecimal:
		_, ok = v.(Decimal)
	case TypeBool:
		_, ok = v.(Bool)
	case TypeBytes:
		_, ok = v.(Bytes)
	case TypeTime:
		_, ok = v.(Time)
	}
	if !ok {
		return fmt.Errorf("field %q: value %T does not match type %s", f.Name, v, f.Type)
	}
	return nil
}

// Schema is an ordered set of field definitions for one record shape.
// Field order is fixed at construction and drives column order in
// generated SQL, so it must be deterministic.
type Schema struct {
	fields []FieldDef
	index  map[string]int
}

// NewSchema creates a schema from field definitions.
// Field names must be unique and types must be valid.
func NewSchema(fields ...FieldDef) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("schema requires at least one field")
	}
	s := &Schema{
		fields: make([]FieldDef, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field %d: empty name", i)
		}
		if !ValidFieldTypes[f.Type] {
			return nil, fmt.Errorf("field %q: invalid type %q", f.Name, f.Type)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}
		if f.Default != nil {
			if err := f.checkType(f.Default); err != nil {
				return nil, fmt.Errorf("default for %w", err)
			}
		}
		s.fields[i] = f
		s.index[f.Name] = i
	}
	return s, nil
}

// MustSchema is NewSchema that panics on error. For fixed schemas in
// tests and examples.
func MustSchema(fields ...FieldDef) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

// Fields returns the field definitions in declaration order.
// The returned slice must not be modified.
func (s *Schema) Fields() []FieldDef {
	return s.fields
}

// FieldNames returns the field names in declaration order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Field returns the definition for name.
func (s *Schema) Field(name string) (FieldDef, bool) {
	i, ok := s.index[name]
	if !ok {
		return FieldDef{}, false
	}
	return s.fields[i], true
}

// Has reports whether the schema contains every named field.
func (s *Schema) Has(names ...string) bool {
	for _, n := range names {
		if _, ok := s.index[n]; !ok {
			return false
		}
	}
	return true
}

// NewRow creates a row with every field at its initial value.
func (s *Schema) NewRow() *Row {
	values := make([]Value, len(s.fields))
	for i, f := range s.fields {
		values[i] = f.zero()
	}
	return &Row{schema: s, values: values}
}
