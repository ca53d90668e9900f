package parquetio

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		text  string
		scale int
		want  string
	}{
		{"12.5", 2, "12.50"},
		{"-0.07", 2, "-0.07"},
		{"42", 0, "42"},
		{"12345678901234567890.123456789012345678", 18, "12345678901234567890.123456789012345678"},
	}
	for _, tc := range cases {
		d, err := ParseDecimal(tc.text, tc.scale)
		require.NoError(t, err, tc.text)
		require.Equal(t, tc.want, d.String())
		require.Equal(t, tc.scale, d.Scale())
	}

	_, err := ParseDecimal("1.234", 2)
	require.Error(t, err)
	_, err = ParseDecimal("abc", 2)
	require.Error(t, err)
}

func TestDecimalKeepsPrecision(t *testing.T) {
	unscaled, ok := new(big.Int).SetString("12345678901234567890123456789012345678", 10)
	require.True(t, ok)
	d := NewDecimal(unscaled, 10)
	require.Equal(t, "1234567890123456789012345678.9012345678", d.String())

	out, err := json.Marshal(map[string]interface{}{"v": d})
	require.NoError(t, err)
	require.Equal(t, `{"v":1234567890123456789012345678.9012345678}`, string(out))

	expected, _ := new(big.Rat).SetString("1234567890123456789012345678.9012345678")
	require.Zero(t, expected.Cmp(d.Rat()))

	// the decoded value survives a large fixed length byte array
	fixed := coerce(unscaled.FillBytes(make([]byte, 16)), "decimal(38,10)", 0)
	require.Equal(t, d.String(), fixed.(Decimal).String())
}

func TestDecimalType(t *testing.T) {
	p, s, ok := DecimalType("decimal(38, 18)")
	require.True(t, ok)
	require.Equal(t, 38, p)
	require.Equal(t, 18, s)

	_, _, ok = DecimalType("double")
	require.False(t, ok)
	_, _, ok = DecimalType("decimal(10)")
	require.False(t, ok)
}

func TestDecimalSmallValues(t *testing.T) {
	require.Equal(t, "0.05", NewDecimal(big.NewInt(5), 2).String())
	require.Equal(t, "-0.005", NewDecimal(big.NewInt(-5), 3).String())
	require.Equal(t, "0.00", NewDecimal(nil, 2).String())
	require.InDelta(t, 0.05, NewDecimal(big.NewInt(5), 2).Float64(), 1e-12)
}
