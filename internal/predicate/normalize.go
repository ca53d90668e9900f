package predicate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Tuple is a (column, operator, value) triple.
type Tuple struct {
	Column string      `json:"column"`
	Op     string      `json:"op"`
	Value  interface{} `json:"value"`
}

// FromDNF builds a predicate from OR-of-AND groups. A single group
// becomes an And; several become an Or of Ands. No groups means no filter.
func FromDNF(groups [][]Tuple) (Predicate, error) {
	if len(groups) == 0 {
		return nil, nil
	}

	ors := make(Or, 0, len(groups))
	for i, group := range groups {
		if len(group) == 0 {
			return nil, fmt.Errorf("%w: group %d is empty", ErrInvalidFilter, i)
		}
		and := make(And, 0, len(group))
		for _, t := range group {
			clause, err := NewClause(t.Column, t.Op, t.Value)
			if err != nil {
				return nil, err
			}
			and = append(and, clause)
		}
		ors = append(ors, and)
	}

	if len(ors) == 1 {
		return ors[0], nil
	}
	return ors, nil
}

// FromTuples normalizes the loose list form: a flat list of triples is an
// implicit AND, a list of such lists is an implicit OR of ANDs. A nil or
// empty list means no filter.
func FromTuples(raw interface{}) (Predicate, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := asSlice(raw)
	if !ok {
		return nil, fmt.Errorf("%w: expected a list, got %T", ErrInvalidFilter, raw)
	}
	if len(items) == 0 {
		return nil, nil
	}

	if isTriple(items[0]) {
		group, err := toGroup(items)
		if err != nil {
			return nil, err
		}
		return FromDNF([][]Tuple{group})
	}

	groups := make([][]Tuple, 0, len(items))
	for i, item := range items {
		inner, ok := asSlice(item)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %T, expected a list of triples", ErrInvalidFilter, i, item)
		}
		group, err := toGroup(inner)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return FromDNF(groups)
}

// ParseJSON decodes a filter such as [["count", ">", 30]] or
// [[["col1", "==", 1]], [["col1", "==", 2]]]. Numbers keep their exact
// textual form.
func ParseJSON(data []byte) (Predicate, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return FromTuples(raw)
}

func isTriple(v interface{}) bool {
	items, ok := asSlice(v)
	if !ok || len(items) != 3 {
		return false
	}
	_, colOK := items[0].(string)
	_, opOK := items[1].(string)
	return colOK && opOK
}

func toGroup(items []interface{}) ([]Tuple, error) {
	group := make([]Tuple, 0, len(items))
	for i, item := range items {
		if !isTriple(item) {
			return nil, fmt.Errorf("%w: element %d is not a (column, op, value) triple", ErrInvalidFilter, i)
		}
		triple, _ := asSlice(item)
		group = append(group, Tuple{
			Column: triple[0].(string),
			Op:     triple[1].(string),
			Value:  triple[2],
		})
	}
	return group, nil
}
