package binding

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Definition is the declarative form of a dataset: its containers,
// their table bindings, and the relations between them. Definitions are
// written in YAML and validated against the embedded CUE schema before
// anything is built from them.
type Definition struct {
	Name      string        `yaml:"name"`
	Tables    []TableDef    `yaml:"tables"`
	Relations []RelationDef `yaml:"relations"`
}

// TableDef declares one container and its binding.
type TableDef struct {
	Name    string      `yaml:"name"`
	Table   string      `yaml:"table"`
	Fields  []FieldSpec `yaml:"fields"`
	Key     []string    `yaml:"key"`
	Skip    []string    `yaml:"skip"`
	Version string      `yaml:"version"`
}

// FieldSpec declares one field.
type FieldSpec struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Label   string `yaml:"label"`
	Default any    `yaml:"default"`
}

// RelationDef declares a parent/child relation between two tables.
type RelationDef struct {
	Parent    string   `yaml:"parent"`
	Child     string   `yaml:"child"`
	ParentKey []string `yaml:"parentKey"`
	ChildKey  []string `yaml:"childKey"`
}

// DefinitionError reports a problem with a definition file.
type DefinitionError struct {
	File    string
	Message string
}

func (e *DefinitionError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

// LoadFile reads, validates, and decodes one definition file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DefinitionError{File: path, Message: err.Error()}
	}
	def, err := Parse(data)
	if err != nil {
		if de, ok := err.(*DefinitionError); ok {
			de.File = path
			return nil, de
		}
		return nil, &DefinitionError{File: path, Message: err.Error()}
	}
	return def, nil
}

// LoadDir loads every .yaml/.yml definition in a directory, sorted by
// file name for deterministic ordering.
func LoadDir(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &DefinitionError{File: dir, Message: err.Error()}
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, &DefinitionError{File: dir, Message: "no definition files found"}
	}
	sort.Strings(paths)

	defs := make([]*Definition, 0, len(paths))
	for _, p := range paths {
		def, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Parse validates raw YAML against the CUE schema and decodes it.
func Parse(data []byte) (*Definition, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &DefinitionError{Message: fmt.Sprintf("decode yaml: %v", err)}
	}
	if err := validateCUE(raw); err != nil {
		return nil, err
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &DefinitionError{Message: fmt.Sprintf("decode definition: %v", err)}
	}
	return &def, nil
}

// validateCUE unifies the decoded document with #Definition from the
// embedded schema. CUE reports type mismatches, missing required
// fields, and out-of-vocabulary field types with positions.
func validateCUE(raw any) error {
	ctx := cuecontext.New()

	schemaVal := ctx.CompileString(schemaCUE)
	if err := schemaVal.Err(); err != nil {
		return &DefinitionError{Message: fmt.Sprintf("internal schema error: %v", err)}
	}
	defSchema := schemaVal.LookupPath(cue.ParsePath("#Definition"))
	if !defSchema.Exists() {
		return &DefinitionError{Message: "internal schema error: #Definition not found"}
	}

	dataVal := ctx.Encode(raw)
	if err := dataVal.Err(); err != nil {
		return &DefinitionError{Message: fmt.Sprintf("encode definition: %v", err)}
	}

	unified := defSchema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &DefinitionError{Message: fmt.Sprintf("invalid definition: %v", err)}
	}
	return nil
}
