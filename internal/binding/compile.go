package binding

import (
	"fmt"

	"github.com/roach88/syncset/internal/dataset"
	"github.com/roach88/syncset/internal/record"
	"github.com/roach88/syncset/internal/track"
)

// Table is one compiled container shape: its schema and its binding.
type Table struct {
	Name    string
	Schema  *record.Schema
	Binding *Binding
}

// Model is a compiled definition, ready to stamp out datasets.
// One model is built per definition and shared; each caller gets its
// own dataset (and therefore its own containers) from NewDataset.
type Model struct {
	Name      string
	Tables    []Table
	Relations []RelationDef
	index     map[string]int
}

// Compile turns a validated definition into a model: record schemas,
// bindings, and relation metadata, with every cross-reference checked.
func Compile(def *Definition) (*Model, error) {
	m := &Model{
		Name:      def.Name,
		Relations: def.Relations,
		index:     make(map[string]int, len(def.Tables)),
	}
	for _, td := range def.Tables {
		if _, dup := m.index[td.Name]; dup {
			return nil, fmt.Errorf("definition %q: duplicate table %q", def.Name, td.Name)
		}
		schema, err := compileSchema(td)
		if err != nil {
			return nil, fmt.Errorf("definition %q: %w", def.Name, err)
		}
		b := &Binding{
			Table:   td.Table,
			Key:     td.Key,
			Skip:    td.Skip,
			Version: td.Version,
		}
		if err := b.Validate(schema); err != nil {
			return nil, fmt.Errorf("definition %q: %w", def.Name, err)
		}
		m.index[td.Name] = len(m.Tables)
		m.Tables = append(m.Tables, Table{Name: td.Name, Schema: schema, Binding: b})
	}
	// Relations are fully checked by dataset.Relate; building a dataset
	// here surfaces bad relations at compile time instead of first use.
	if _, err := m.NewDataset(); err != nil {
		return nil, fmt.Errorf("definition %q: %w", def.Name, err)
	}
	return m, nil
}

// Table returns the compiled table by container name.
func (m *Model) Table(name string) (Table, bool) {
	i, ok := m.index[name]
	if !ok {
		return Table{}, false
	}
	return m.Tables[i], true
}

// Bindings returns the bindings keyed by container name.
func (m *Model) Bindings() map[string]*Binding {
	out := make(map[string]*Binding, len(m.Tables))
	for _, t := range m.Tables {
		out[t.Name] = t.Binding
	}
	return out
}

// NewDataset builds a fresh dataset with one empty container per table
// and the declared relations applied.
func (m *Model) NewDataset() (*dataset.Dataset, error) {
	ds := dataset.New(m.Name)
	for _, t := range m.Tables {
		c, err := track.New(t.Schema, t.Binding.Key, track.WithSkipList(t.Binding.Skip...))
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", t.Name, err)
		}
		if err := ds.Add(t.Name, c); err != nil {
			return nil, err
		}
	}
	for _, rel := range m.Relations {
		if err := ds.Relate(rel.Parent, rel.Child, rel.ParentKey, rel.ChildKey); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// compileSchema builds a record schema from a table definition.
func compileSchema(td TableDef) (*record.Schema, error) {
	fields := make([]record.FieldDef, len(td.Fields))
	for i, fs := range td.Fields {
		ft := record.FieldType(fs.Type)
		def, err := defaultValue(ft, fs.Default)
		if err != nil {
			return nil, fmt.Errorf("table %q field %q: %w", td.Name, fs.Name, err)
		}
		fields[i] = record.FieldDef{
			Name:    fs.Name,
			Type:    ft,
			Label:   fs.Label,
			Default: def,
		}
	}
	schema, err := record.NewSchema(fields...)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", td.Name, err)
	}
	return schema, nil
}

// defaultValue converts a YAML default literal to a typed value.
func defaultValue(ft record.FieldType, raw any) (record.Value, error) {
	if raw == nil {
		return nil, nil
	}
	switch ft {
	case record.TypeText:
		if s, ok := raw.(string); ok {
			return record.NewText(s), nil
		}
	case record.TypeInt:
		switch n := raw.(type) {
		case int:
			return record.Int(n), nil
		case int64:
			return record.Int(n), nil
		}
	case record.TypeDecimal:
		switch n := raw.(type) {
		case string:
			return record.NewDecimal(n)
		case int:
			return record.NewDecimal(fmt.Sprintf("%d", n))
		}
	case record.TypeBool:
		if b, ok := raw.(bool); ok {
			return record.Bool(b), nil
		}
	case record.TypeBytes, record.TypeTime:
		return nil, fmt.Errorf("defaults are not supported for %s fields", ft)
	}
	return nil, fmt.Errorf("default %v (%T) does not match field type %s", raw, raw, ft)
}
