package binding

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncset/internal/record"
)

func TestLoadFile_ValidDefinition(t *testing.T) {
	def, err := LoadFile(filepath.Join("testdata", "orders.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "orders", def.Name)
	require.Len(t, def.Tables, 2)
	assert.Equal(t, "order_header", def.Tables[0].Table)
	assert.Equal(t, "revision", def.Tables[0].Version)
	require.Len(t, def.Relations, 1)
	assert.Equal(t, "header", def.Relations[0].Parent)
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join("testdata", "nope.yaml"))
	var de *DefinitionError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.File, "nope.yaml")
}

func TestParse_RejectsUnknownFieldType(t *testing.T) {
	_, err := Parse([]byte(`
name: bad
tables:
  - name: t
    table: t
    key: [id]
    fields:
      - {name: id, type: float}
`))
	var de *DefinitionError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Message, "invalid definition")
}

func TestParse_RejectsMissingKey(t *testing.T) {
	_, err := Parse([]byte(`
name: bad
tables:
  - name: t
    table: t
    fields:
      - {name: id, type: text}
`))
	assert.Error(t, err)
}

func TestParse_RejectsEmptyTables(t *testing.T) {
	_, err := Parse([]byte("name: bad\ntables: []\n"))
	assert.Error(t, err)
}

func TestCompile_BuildsModelAndDataset(t *testing.T) {
	def, err := LoadFile(filepath.Join("testdata", "orders.yaml"))
	require.NoError(t, err)

	m, err := Compile(def)
	require.NoError(t, err)

	header, ok := m.Table("header")
	require.True(t, ok)
	assert.Equal(t, "order_header", header.Binding.Table)

	f, ok := header.Schema.Field("total")
	require.True(t, ok)
	assert.Equal(t, record.MustDecimal("0"), f.Default)

	ds, err := m.NewDataset()
	require.NoError(t, err)
	assert.Equal(t, "orders", ds.Name())

	// Relations order parents before children for insert.
	order := ds.InsertOrder()
	require.Len(t, order, 2)
	assert.Equal(t, "header", order[0].Name)

	// Each dataset gets its own containers.
	ds2, err := m.NewDataset()
	require.NoError(t, err)
	c1, _ := ds.Container("header")
	c2, _ := ds2.Container("header")
	assert.NotSame(t, c1, c2)
}

func TestCompile_RejectsSkipFieldNotInSchema(t *testing.T) {
	def, err := Parse([]byte(`
name: bad
tables:
  - name: t
    table: t
    key: [id]
    skip: [ghost]
    fields:
      - {name: id, type: text}
`))
	require.NoError(t, err)
	_, err = Compile(def)
	assert.ErrorContains(t, err, "skip-list field")
}

func TestCompile_RejectsNonIntVersion(t *testing.T) {
	def, err := Parse([]byte(`
name: bad
tables:
  - name: t
    table: t
    key: [id]
    version: id
    fields:
      - {name: id, type: text}
`))
	require.NoError(t, err)
	_, err = Compile(def)
	assert.ErrorContains(t, err, "must be int")
}

func TestCompile_RejectsBadRelation(t *testing.T) {
	def, err := Parse([]byte(`
name: bad
tables:
  - name: a
    table: a
    key: [id]
    fields:
      - {name: id, type: text}
relations:
  - {parent: a, child: ghost, parentKey: [id], childKey: [id]}
`))
	require.NoError(t, err)
	_, err = Compile(def)
	assert.ErrorContains(t, err, "unknown child")
}

func TestCompile_RejectsBadDefault(t *testing.T) {
	def, err := Parse([]byte(`
name: bad
tables:
  - name: t
    table: t
    key: [id]
    fields:
      - {name: id, type: text}
      - {name: count, type: int, default: true}
`))
	require.NoError(t, err)
	_, err = Compile(def)
	assert.ErrorContains(t, err, "does not match field type")
}

func TestLoadDir(t *testing.T) {
	defs, err := LoadDir("testdata")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "orders", defs[0].Name)

	_, err = LoadDir(t.TempDir())
	assert.ErrorContains(t, err, "no definition files")
}
