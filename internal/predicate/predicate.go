// Package predicate holds the filter expressions accepted by the table
// resolver. A filter is a tree of Clause, And and Or nodes; the loose
// list-of-triples forms callers pass in are normalized once, at the
// boundary, by FromTuples, FromDNF and ParseJSON.
package predicate

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ErrInvalidFilter is returned for filters that cannot be normalized.
var ErrInvalidFilter = errors.New("invalid filter")

// Op is a comparison operator
type Op string

const (
	OpEq    Op = "=="
	OpNeq   Op = "!="
	OpLt    Op = "<"
	OpLte   Op = "<="
	OpGt    Op = ">"
	OpGte   Op = ">="
	OpIn    Op = "in"
	OpNotIn Op = "not in"
)

// ParseOp converts an operator token into an Op
func ParseOp(token string) (Op, error) {
	switch strings.ToLower(strings.Join(strings.Fields(token), " ")) {
	case "==", "=":
		return OpEq, nil
	case "!=", "<>":
		return OpNeq, nil
	case "<":
		return OpLt, nil
	case "<=":
		return OpLte, nil
	case ">":
		return OpGt, nil
	case ">=":
		return OpGte, nil
	case "in":
		return OpIn, nil
	case "not in":
		return OpNotIn, nil
	}
	return "", fmt.Errorf("%w: unsupported operator %q", ErrInvalidFilter, token)
}

// Predicate is one of Clause, And or Or.
type Predicate interface {
	fmt.Stringer
	isPredicate()
}

// Clause compares a single column against a literal.
type Clause struct {
	Column string
	Op     Op
	// Value is a scalar, or a []interface{} for OpIn and OpNotIn.
	Value interface{}
}

// And holds when every child holds.
type And []Predicate

// Or holds when at least one child holds.
type Or []Predicate

func (Clause) isPredicate() {}
func (And) isPredicate()    {}
func (Or) isPredicate()     {}

func (c Clause) String() string {
	return fmt.Sprintf("%s %s %v", c.Column, c.Op, c.Value)
}

func (a And) String() string { return join([]Predicate(a), " AND ") }
func (o Or) String() string  { return join([]Predicate(o), " OR ") }

func join(children []Predicate, sep string) string {
	parts := make([]string, len(children))
	for i, child := range children {
		parts[i] = child.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// NewClause validates and builds a clause. Set operators require a list
// literal; the other operators require a scalar.
func NewClause(column, op string, value interface{}) (Clause, error) {
	if column == "" {
		return Clause{}, fmt.Errorf("%w: empty column name", ErrInvalidFilter)
	}
	parsed, err := ParseOp(op)
	if err != nil {
		return Clause{}, err
	}

	if parsed == OpIn || parsed == OpNotIn {
		values, ok := asSlice(value)
		if !ok {
			return Clause{}, fmt.Errorf("%w: operator %q on %s needs a list, got %T", ErrInvalidFilter, parsed, column, value)
		}
		return Clause{Column: column, Op: parsed, Value: values}, nil
	}

	if _, ok := asSlice(value); ok {
		return Clause{}, fmt.Errorf("%w: operator %q on %s needs a scalar", ErrInvalidFilter, parsed, column)
	}
	return Clause{Column: column, Op: parsed, Value: value}, nil
}

// Columns returns the sorted, de-duplicated column names referenced by p.
func Columns(p Predicate) []string {
	seen := make(map[string]struct{})
	walk(p, func(c Clause) { seen[c.Column] = struct{}{} })

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func walk(p Predicate, fn func(Clause)) {
	switch node := p.(type) {
	case Clause:
		fn(node)
	case And:
		for _, child := range node {
			walk(child, fn)
		}
	case Or:
		for _, child := range node {
			walk(child, fn)
		}
	}
}

// asSlice turns any slice or array except strings and byte slices into
// []interface{}.
func asSlice(v interface{}) ([]interface{}, bool) {
	switch typed := v.(type) {
	case nil, string, []byte:
		return nil, false
	case []interface{}:
		return typed, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
