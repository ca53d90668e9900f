package predicate

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"deltaframe/internal/parquetio"
)

func TestFromTuplesFlatIsAnd(t *testing.T) {
	p, err := FromTuples([]interface{}{
		[]interface{}{"count", ">", 30},
		[]interface{}{"id", "!=", 4},
	})
	require.NoError(t, err)

	and, ok := p.(And)
	require.True(t, ok, "got %T", p)
	require.Len(t, and, 2)
	require.Equal(t, Clause{Column: "count", Op: OpGt, Value: 30}, and[0])
}

func TestFromTuplesNestedIsOrOfAnds(t *testing.T) {
	p, err := FromTuples([]interface{}{
		[]interface{}{[]interface{}{"col1", "==", 1}},
		[]interface{}{[]interface{}{"col1", "==", 2}},
	})
	require.NoError(t, err)

	or, ok := p.(Or)
	require.True(t, ok, "got %T", p)
	require.Len(t, or, 2)
	require.Equal(t, []string{"col1"}, Columns(p))
}

func TestFromTuplesEmpty(t *testing.T) {
	p, err := FromTuples(nil)
	require.NoError(t, err)
	require.Nil(t, p)

	p, err = FromTuples([]interface{}{})
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestFromTuplesRejectsMalformed(t *testing.T) {
	cases := []interface{}{
		"count > 30",
		[]interface{}{[]interface{}{"count", ">"}},
		[]interface{}{[]interface{}{"count", "~", 1}},
		[]interface{}{[]interface{}{"count", "in", 1}},
		[]interface{}{[]interface{}{"count", "==", []int{1, 2}}},
		[]interface{}{[]interface{}{}},
	}
	for _, raw := range cases {
		_, err := FromTuples(raw)
		require.ErrorIs(t, err, ErrInvalidFilter, "input %v", raw)
	}
}

func TestParseJSON(t *testing.T) {
	p, err := ParseJSON([]byte(`[["count", ">", 30], ["name", "in", ["a", "b"]]]`))
	require.NoError(t, err)

	row := map[string]interface{}{"count": int64(31), "name": "b"}
	require.True(t, Matches(p, row))

	row["count"] = int64(30)
	require.False(t, Matches(p, row))

	p, err = ParseJSON([]byte(`  `))
	require.NoError(t, err)
	require.Nil(t, p)

	_, err = ParseJSON([]byte(`[["count", ">"`))
	require.ErrorIs(t, err, ErrInvalidFilter)
}

func TestParseOpAliases(t *testing.T) {
	for token, want := range map[string]Op{
		"=": OpEq, "==": OpEq, "<>": OpNeq, "IN": OpIn, "not  in": OpNotIn, ">=": OpGte,
	} {
		got, err := ParseOp(token)
		require.NoError(t, err)
		require.Equal(t, want, got, token)
	}
}

func TestMatchesNullNeverSatisfies(t *testing.T) {
	for _, op := range []string{"==", "!=", "<", ">", "not in"} {
		value := interface{}(1)
		if op == "not in" {
			value = []interface{}{1}
		}
		c, err := NewClause("x", op, value)
		require.NoError(t, err)
		require.False(t, Matches(c, map[string]interface{}{"x": nil}), op)
		require.False(t, Matches(c, map[string]interface{}{}), op)
	}
}

func TestMayMatchThreeValued(t *testing.T) {
	p, err := FromDNF([][]Tuple{
		{{Column: "col1", Op: "==", Value: 1}, {Column: "value", Op: ">", Value: 10}},
		{{Column: "col1", Op: "==", Value: 2}},
	})
	require.NoError(t, err)

	require.True(t, MayMatch(p, map[string]interface{}{"col1": int64(1)}))
	require.True(t, MayMatch(p, map[string]interface{}{"col1": int64(2)}))
	require.False(t, MayMatch(p, map[string]interface{}{"col1": int64(3)}))
	require.False(t, MayMatch(p, map[string]interface{}{"col1": nil}))
	// nothing known about the file: keep it
	require.True(t, MayMatch(p, map[string]interface{}{}))
	require.True(t, MayMatch(nil, nil))
}

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b interface{}
		want int
		ok   bool
	}{
		{int64(3), 3, 0, true},
		{int32(2), json.Number("10"), -1, true},
		{2.5, int64(2), 1, true},
		{"10", "9", -1, true},
		{"10", 9, 1, true},
		{true, false, 1, true},
		{"a", 1, 0, false},
		{nil, 1, 0, false},
	}
	for _, tc := range cases {
		got, ok := Compare(tc.a, tc.b)
		require.Equal(t, tc.ok, ok, "%v vs %v", tc.a, tc.b)
		if ok {
			require.Equal(t, tc.want, got, "%v vs %v", tc.a, tc.b)
		}
	}
}

func TestCompareDecimals(t *testing.T) {
	big1, _ := new(big.Int).SetString("12345678901234567890", 10)
	big2 := new(big.Int).Add(big1, big.NewInt(1))
	a := parquetio.NewDecimal(big1, 2) // 123456789012345678.90
	b := parquetio.NewDecimal(big2, 2) // 123456789012345678.91

	cmp, ok := Compare(a, b)
	require.True(t, ok)
	require.Equal(t, -1, cmp)

	// literals from a JSON filter compare without going through float64
	cmp, ok = Compare(a, json.Number("123456789012345678.9"))
	require.True(t, ok)
	require.Equal(t, 0, cmp)
	cmp, ok = Compare(b, json.Number("123456789012345678.9"))
	require.True(t, ok)
	require.Equal(t, 1, cmp)

	cmp, ok = Compare(parquetio.NewDecimal(big.NewInt(1250), 2), 12.5)
	require.True(t, ok)
	require.Equal(t, 0, cmp)
	cmp, ok = Compare(int64(13), parquetio.NewDecimal(big.NewInt(1250), 2))
	require.True(t, ok)
	require.Equal(t, 1, cmp)

	_, ok = Compare(a, "not a number")
	require.False(t, ok)

	filter, err := ParseJSON([]byte(`[["price", ">=", 123456789012345678.91]]`))
	require.NoError(t, err)
	require.False(t, Matches(filter, map[string]interface{}{"price": a}))
	require.True(t, Matches(filter, map[string]interface{}{"price": b}))
}
