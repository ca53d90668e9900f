package predicate

import (
	"bytes"
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"time"
)

// Truth is a three-valued logic result.
type Truth int8

const (
	False Truth = iota
	Unknown
	True
)

// Lookup resolves a column for evaluation. known=false means the value
// cannot be determined at this stage (for example a data column during
// partition pruning).
type Lookup func(column string) (value interface{}, known bool)

// Eval evaluates p with three-valued logic. A nil predicate is True.
func Eval(p Predicate, lookup Lookup) Truth {
	switch node := p.(type) {
	case nil:
		return True
	case Clause:
		value, known := lookup(node.Column)
		if !known {
			return Unknown
		}
		if evalClause(node, value) {
			return True
		}
		return False
	case And:
		result := True
		for _, child := range node {
			switch Eval(child, lookup) {
			case False:
				return False
			case Unknown:
				result = Unknown
			}
		}
		return result
	case Or:
		result := False
		for _, child := range node {
			switch Eval(child, lookup) {
			case True:
				return True
			case Unknown:
				result = Unknown
			}
		}
		return result
	}
	return Unknown
}

// Matches reports whether a fully materialized row satisfies p. Columns
// absent from the row are null.
func Matches(p Predicate, row map[string]interface{}) bool {
	return Eval(p, func(column string) (interface{}, bool) {
		return row[column], true
	}) == True
}

// MayMatch reports whether a file with the given partition values can
// hold matching rows. Clauses on columns outside partitionValues never
// exclude the file.
func MayMatch(p Predicate, partitionValues map[string]interface{}) bool {
	return Eval(p, func(column string) (interface{}, bool) {
		v, ok := partitionValues[column]
		return v, ok
	}) != False
}

// Null values satisfy no clause.
func evalClause(c Clause, value interface{}) bool {
	if value == nil {
		return false
	}

	switch c.Op {
	case OpIn, OpNotIn:
		values, _ := c.Value.([]interface{})
		found := false
		for _, candidate := range values {
			if cmp, ok := Compare(value, candidate); ok && cmp == 0 {
				found = true
				break
			}
		}
		return found == (c.Op == OpIn)
	}

	cmp, ok := Compare(value, c.Value)
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return cmp == 0
	case OpNeq:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	}
	return false
}

// Compare orders two values of compatible kinds. ok is false when the
// values cannot be compared (different kinds, nulls, NaN).
func Compare(a, b interface{}) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if isExact(a) || isExact(b) {
		ar, aok := toRat(a)
		br, bok := toRat(b)
		if !aok || !bok {
			return 0, false
		}
		return ar.Cmp(br), true
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return compareString(as, bs), true
		}
	}

	if ai, aok := toInt(a); aok {
		if bi, bok := toInt(b); bok {
			return compareInt(ai, bi), true
		}
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			if math.IsNaN(af) || math.IsNaN(bf) {
				return 0, false
			}
			return compareFloat(af, bf), true
		}
	}

	switch av := a.(type) {
	case string:
		switch bv := b.(type) {
		case string:
			return compareString(av, bv), true
		case []byte:
			return compareString(av, string(bv)), true
		case time.Time:
			if at, ok := parseTime(av); ok {
				return compareTime(at, bv), true
			}
		}
	case []byte:
		switch bv := b.(type) {
		case []byte:
			return bytes.Compare(av, bv), true
		case string:
			return compareString(string(av), bv), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return compareBool(av, bv), true
		}
		if bs, ok := b.(string); ok {
			if parsed, err := strconv.ParseBool(bs); err == nil {
				return compareBool(av, parsed), true
			}
		}
	case time.Time:
		switch bv := b.(type) {
		case time.Time:
			return compareTime(av, bv), true
		case string:
			if bt, ok := parseTime(bv); ok {
				return compareTime(av, bt), true
			}
		}
	}
	return 0, false
}

// toInt accepts integer kinds and integral numeric strings.
func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case *big.Float:
		f, _ := n.Float64()
		return f, true
	case string:
		// numeric literals sent as text, e.g. partition values from a query string
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

// rational is implemented by exact decimal values
type rational interface {
	Rat() *big.Rat
}

func isExact(v interface{}) bool {
	switch v.(type) {
	case rational, *big.Rat:
		return true
	}
	return false
}

// toRat converts numbers and numeric text without rounding. Floats are
// taken at their binary value.
func toRat(v interface{}) (*big.Rat, bool) {
	switch n := v.(type) {
	case rational:
		return n.Rat(), true
	case *big.Rat:
		return n, true
	case json.Number:
		return new(big.Rat).SetString(string(n))
	case string:
		return new(big.Rat).SetString(n)
	case float32:
		r := new(big.Rat).SetFloat64(float64(n))
		return r, r != nil
	case float64:
		r := new(big.Rat).SetFloat64(n)
		return r, r != nil
	case *big.Float:
		if n.IsInf() {
			return nil, false
		}
		r, _ := n.Rat(nil)
		return r, true
	}
	if i, ok := toInt(v); ok {
		return new(big.Rat).SetInt64(i), true
	}
	return nil, false
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
