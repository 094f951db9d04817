package record

import (
	"fmt"
	"strings"
)

// Row is one record snapshot: an ordered mapping of the schema's fields
// to values. Rows from the same schema share the schema pointer, which
// is how shape compatibility is checked.
type Row struct {
	schema *Schema
	values []Value
}

// Schema returns the schema this row belongs to.
func (r *Row) Schema() *Schema {
	return r.schema
}

// Get returns the value of the named field.
func (r *Row) Get(name string) (Value, error) {
	i, ok := r.schema.index[name]
	if !ok {
		return nil, fmt.Errorf("unknown field %q", name)
	}
	return r.values[i], nil
}

// MustGet is Get that panics on an unknown field. For fields the caller
// has already validated against the schema.
func (r *Row) MustGet(name string) Value {
	v, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Set assigns the named field. The value must match the field's type;
// Null is accepted for any field.
func (r *Row) Set(name string, v Value) error {
	i, ok := r.schema.index[name]
	if !ok {
		return fmt.Errorf("unknown field %q", name)
	}
	if v == nil {
		v = Null{}
	}
	if err := r.schema.fields[i].checkType(v); err != nil {
		return err
	}
	r.values[i] = v
	return nil
}

// Clone returns a deep copy of the row.
func (r *Row) Clone() *Row {
	values := make([]Value, len(r.values))
	for i, v := range r.values {
		if b, ok := v.(Bytes); ok {
			values[i] = NewBytes(b)
			continue
		}
		values[i] = v
	}
	return &Row{schema: r.schema, values: values}
}

// DiffFields returns the names of fields whose values differ between r
// and other, in schema order, excluding any field present in skip.
// Both rows must share the same schema.
func (r *Row) DiffFields(other *Row, skip map[string]bool) []string {
	var out []string
	for i, f := range r.schema.fields {
		if skip[f.Name] {
			continue
		}
		if !Equal(r.values[i], other.values[i]) {
			out = append(out, f.Name)
		}
	}
	return out
}

// EqualRow reports whether r and other hold identical values for every
// field not in skip.
func (r *Row) EqualRow(other *Row, skip map[string]bool) bool {
	return len(r.DiffFields(other, skip)) == 0
}

// KeyValue is the extracted primary-key value of a row, used for row
// identity inside a container and for locating the storage row.
type KeyValue struct {
	Fields []string
	Values []Value
}

// Key extracts the values of the named key fields.
func (r *Row) Key(fields []string) (KeyValue, error) {
	kv := KeyValue{Fields: fields, Values: make([]Value, len(fields))}
	for i, name := range fields {
		v, err := r.Get(name)
		if err != nil {
			return KeyValue{}, err
		}
		kv.Values[i] = v
	}
	return kv, nil
}

// IsZero reports whether every key component is at its type's zero
// value. A zero key on a tracked row means the row has not been given
// an identity yet.
func (kv KeyValue) IsZero() bool {
	for _, v := range kv.Values {
		if !IsZero(v) {
			return false
		}
	}
	return true
}

// String returns a stable textual form of the key, used as the map key
// for before-image lookup. Components are separated by a unit separator
// so composite keys cannot collide.
func (kv KeyValue) String() string {
	parts := make([]string, len(kv.Values))
	for i, v := range kv.Values {
		parts[i] = String(v)
	}
	return strings.Join(parts, "\x1f")
}
