// Package binding associates a change-tracked container with a physical
// storage table: the table identifier, the primary-key fields, the
// fields excluded from dirty comparison, and an optional version column
// for optimistic locking. It also builds the SQL statements the store
// adapter executes, so every statement shape lives in one place.
package binding

import (
	"fmt"
	"strings"

	"github.com/roach88/syncset/internal/record"
)

// Binding maps a container to a storage table.
type Binding struct {
	// Table is the physical table identifier.
	Table string

	// Key names the primary-key fields, a subset of the schema.
	Key []string

	// Skip names fields excluded from dirty comparison. Skip-listed
	// fields still go out on insert.
	Skip []string

	// Version optionally names an integer field used for optimistic
	// locking: updates match it in the WHERE clause and increment it.
	Version string
}

// Validate checks the binding against the schema it will serve:
// key fields must exist, skip fields must exist, and the version field
// (if any) must be an integer field that is neither a key field nor
// skip-listed.
func (b *Binding) Validate(schema *record.Schema) error {
	if b.Table == "" {
		return fmt.Errorf("binding has no table")
	}
	if len(b.Key) == 0 {
		return fmt.Errorf("binding for table %q has no key fields", b.Table)
	}
	for _, k := range b.Key {
		if _, ok := schema.Field(k); !ok {
			return fmt.Errorf("table %q: key field %q not in schema", b.Table, k)
		}
	}
	for _, s := range b.Skip {
		if _, ok := schema.Field(s); !ok {
			return fmt.Errorf("table %q: skip-list field %q not in schema", b.Table, s)
		}
	}
	if b.Version != "" {
		f, ok := schema.Field(b.Version)
		if !ok {
			return fmt.Errorf("table %q: version field %q not in schema", b.Table, b.Version)
		}
		if f.Type != record.TypeInt {
			return fmt.Errorf("table %q: version field %q must be %s, is %s", b.Table, b.Version, record.TypeInt, f.Type)
		}
		for _, k := range b.Key {
			if k == b.Version {
				return fmt.Errorf("table %q: version field %q cannot be a key field", b.Table, b.Version)
			}
		}
	}
	return nil
}

// SkipSet returns the skip list as a set.
func (b *Binding) SkipSet() map[string]bool {
	set := make(map[string]bool, len(b.Skip))
	for _, s := range b.Skip {
		set[s] = true
	}
	return set
}

// SelectSQL builds the SELECT for this table with the given WHERE
// fragment. Every select orders by the primary key so result order is
// deterministic across runs and store versions.
func (b *Binding) SelectSQL(schema *record.Schema, whereSQL string) string {
	order := make([]string, len(b.Key))
	for i, k := range b.Key {
		order[i] = k + " ASC"
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		strings.Join(schema.FieldNames(), ", "),
		b.Table,
		whereSQL,
		strings.Join(order, ", "))
}

// InsertSQL builds the INSERT carrying every field of the schema,
// skip-listed fields included.
func (b *Binding) InsertSQL(schema *record.Schema) string {
	names := schema.FieldNames()
	placeholders := strings.Repeat("?, ", len(names)-1) + "?"
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.Table, strings.Join(names, ", "), placeholders)
}

// UpdateSQL builds an UPDATE restricted to the given set fields, keyed
// by primary key. With a version field bound, the version is matched in
// the WHERE clause and incremented in the SET clause, so a concurrent
// writer makes the update affect zero rows instead of clobbering.
func (b *Binding) UpdateSQL(setFields []string) string {
	sets := make([]string, 0, len(setFields)+1)
	for _, f := range setFields {
		sets = append(sets, f+" = ?")
	}
	if b.Version != "" {
		sets = append(sets, b.Version+" = "+b.Version+" + 1")
	}
	wheres := make([]string, 0, len(b.Key)+1)
	for _, k := range b.Key {
		wheres = append(wheres, k+" = ?")
	}
	if b.Version != "" {
		wheres = append(wheres, b.Version+" = ?")
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		b.Table, strings.Join(sets, ", "), strings.Join(wheres, " AND "))
}

// DeleteSQL builds the DELETE keyed by primary key.
func (b *Binding) DeleteSQL() string {
	wheres := make([]string, len(b.Key))
	for i, k := range b.Key {
		wheres[i] = k + " = ?"
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s", b.Table, strings.Join(wheres, " AND "))
}

// DDL builds the CREATE TABLE statement for this binding. Used by the
// CLI schema command and by tests to create tables.
func (b *Binding) DDL(schema *record.Schema) string {
	cols := make([]string, 0, schema.Len()+1)
	for _, f := range schema.Fields() {
		cols = append(cols, fmt.Sprintf("    %s %s", f.Name, columnType(f.Type)))
	}
	cols = append(cols, fmt.Sprintf("    PRIMARY KEY (%s)", strings.Join(b.Key, ", ")))
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n);", b.Table, strings.Join(cols, ",\n"))
}

// columnType maps a field type to its storage column type.
func columnType(ft record.FieldType) string {
	switch ft {
	case record.TypeText:
		return "TEXT"
	case record.TypeInt:
		return "INTEGER"
	case record.TypeDecimal:
		return "NUMERIC"
	case record.TypeBool:
		return "INTEGER"
	case record.TypeBytes:
		return "BLOB"
	case record.TypeTime:
		return "TEXT"
	default:
		return "TEXT"
	}
}
