// Package predicate defines a typed predicate expression tree and its
// translation to parameterized SQL. Queries are never built from caller
// strings; every value travels as a bind parameter.
package predicate

import (
	"fmt"
	"strings"

	"github.com/roach88/syncset/internal/record"
)

// Op is a comparison operator.
type Op string

const (
	OpEq   Op = "="
	OpNe   Op = "<>"
	OpLt   Op = "<"
	OpLe   Op = "<="
	OpGt   Op = ">"
	OpGe   Op = ">="
	OpLike Op = "LIKE"
)

// validOps defines the allowed comparison operators.
var validOps = map[Op]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLe: true,
	OpGt: true, OpGe: true, OpLike: true,
}

// Pred is a sealed interface over predicate nodes.
// Only Cmp and Conj implement it.
type Pred interface {
	pred() // sealed
}

// Cmp compares a field against a value.
type Cmp struct {
	Field string
	Op    Op
	Value record.Value
}

func (Cmp) pred() {}

// Conj is the conjunction (AND) of its sub-predicates.
// An empty conjunction is vacuously true.
type Conj struct {
	Preds []Pred
}

func (Conj) pred() {}

// Eq builds field = value.
func Eq(field string, v record.Value) Pred { return Cmp{Field: field, Op: OpEq, Value: v} }

// Ne builds field <> value.
func Ne(field string, v record.Value) Pred { return Cmp{Field: field, Op: OpNe, Value: v} }

// Lt builds field < value.
func Lt(field string, v record.Value) Pred { return Cmp{Field: field, Op: OpLt, Value: v} }

// Le builds field <= value.
func Le(field string, v record.Value) Pred { return Cmp{Field: field, Op: OpLe, Value: v} }

// Gt builds field > value.
func Gt(field string, v record.Value) Pred { return Cmp{Field: field, Op: OpGt, Value: v} }

// Ge builds field >= value.
func Ge(field string, v record.Value) Pred { return Cmp{Field: field, Op: OpGe, Value: v} }

// Like builds field LIKE value.
func Like(field string, v record.Value) Pred { return Cmp{Field: field, Op: OpLike, Value: v} }

// And combines predicates into a conjunction.
func And(preds ...Pred) Pred { return Conj{Preds: preds} }

// KeyEquals builds the conjunction of equality comparisons locating one
// row by its key value.
func KeyEquals(kv record.KeyValue) Pred {
	preds := make([]Pred, len(kv.Fields))
	for i, f := range kv.Fields {
		preds[i] = Eq(f, kv.Values[i])
	}
	return Conj{Preds: preds}
}

// Fields returns the distinct field names referenced by p, in first-use
// order. Used to validate a predicate against a schema before it ever
// reaches the store.
func Fields(p Pred) []string {
	var out []string
	seen := make(map[string]bool)
	collectFields(p, seen, &out)
	return out
}

func collectFields(p Pred, seen map[string]bool, out *[]string) {
	switch node := p.(type) {
	case Cmp:
		if !seen[node.Field] {
			seen[node.Field] = true
			*out = append(*out, node.Field)
		}
	case Conj:
		for _, sub := range node.Preds {
			collectFields(sub, seen, out)
		}
	}
}

// Validate checks that every referenced field exists in the schema and
// every operator is valid. A nil predicate is valid (matches all rows).
func Validate(p Pred, schema *record.Schema) error {
	if p == nil {
		return nil
	}
	switch node := p.(type) {
	case Cmp:
		if !validOps[node.Op] {
			return fmt.Errorf("invalid operator %q", node.Op)
		}
		if _, ok := schema.Field(node.Field); !ok {
			return fmt.Errorf("predicate references unknown field %q", node.Field)
		}
		if node.Value == nil {
			return fmt.Errorf("predicate on field %q has no value", node.Field)
		}
		return nil
	case Conj:
		for _, sub := range node.Preds {
			if err := Validate(sub, schema); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// Compile translates p into a SQL WHERE fragment and its parameters.
// A nil or empty predicate compiles to a vacuously true clause so the
// caller never has to special-case "no filter".
func Compile(p Pred) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil
	}
	switch node := p.(type) {
	case Cmp:
		return compileCmp(node)
	case Conj:
		return compileConj(node)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileCmp(node Cmp) (string, []any, error) {
	if !validOps[node.Op] {
		return "", nil, fmt.Errorf("invalid operator %q", node.Op)
	}
	param, err := record.ToParam(node.Value)
	if err != nil {
		return "", nil, fmt.Errorf("field %q: %w", node.Field, err)
	}
	// NULL never matches a comparison operator; make equality against
	// an absent value mean "IS NULL" so fetch-by-key works for nullable
	// key components.
	if param == nil {
		switch node.Op {
		case OpEq:
			return node.Field + " IS NULL", nil, nil
		case OpNe:
			return node.Field + " IS NOT NULL", nil, nil
		default:
			return "", nil, fmt.Errorf("field %q: operator %s cannot compare against null", node.Field, node.Op)
		}
	}
	return fmt.Sprintf("%s %s ?", node.Field, node.Op), []any{param}, nil
}

func compileConj(node Conj) (string, []any, error) {
	if len(node.Preds) == 0 {
		return "1 = 1", nil, nil
	}
	var parts []string
	var params []any
	for _, sub := range node.Preds {
		sql, subParams, err := Compile(sub)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, subParams...)
	}
	return strings.Join(parts, " AND "), params, nil
}
