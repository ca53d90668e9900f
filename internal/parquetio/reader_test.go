package parquetio

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID          int64   `parquet:"id"`
	Count       int32   `parquet:"count"`
	Temperature float64 `parquet:"temperature"`
	Name        *string `parquet:"name,optional"`
	Flag        bool    `parquet:"flag"`
}

func writeSamples(t *testing.T, rows []sample) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[sample](&buf)
	_, err := w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func strPtr(s string) *string { return &s }

func TestDecodeProjectsAndFillsMissingColumns(t *testing.T) {
	data := writeSamples(t, []sample{
		{ID: 1, Count: 10, Temperature: 20.5, Name: strPtr("a"), Flag: true},
		{ID: 2, Count: 40, Temperature: -3, Name: nil},
	})

	rows, err := NewReader(1).Decode(context.Background(), data, []Column{
		{Name: "name", Type: "string"},
		{Name: "count", Type: "integer"},
		{Name: "newColumn", Type: "string"},
		{Name: "id", Type: "long"},
		{Name: "flag", Type: "boolean"},
	})
	require.NoError(t, err)
	require.Equal(t, [][]interface{}{
		{"a", int32(10), nil, int64(1), true},
		{nil, int32(40), nil, int64(2), false},
	}, rows)

	n, err := NumRows(data)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := NewReader(0).Decode(context.Background(), []byte("not parquet"), nil)
	require.Error(t, err)
}

func TestDecodeHonoursCancellation(t *testing.T) {
	data := writeSamples(t, []sample{{ID: 1}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewReader(0).Decode(ctx, data, []Column{{Name: "id", Type: "long"}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestParsePartitionValue(t *testing.T) {
	cases := []struct {
		raw   *string
		typ   string
		value interface{}
	}{
		{strPtr("1"), "integer", int32(1)},
		{strPtr("-7"), "long", int64(-7)},
		{strPtr("2.5"), "double", 2.5},
		{strPtr("true"), "boolean", true},
		{strPtr("x"), "string", "x"},
		{strPtr("2021-03-04"), "date", time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)},
		{strPtr("2021-03-04 05:06:07"), "timestamp", time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)},
		{strPtr(""), "integer", nil},
		{nil, "string", nil},
	}
	for _, tc := range cases {
		got, err := ParsePartitionValue(tc.raw, tc.typ)
		require.NoError(t, err, tc.typ)
		require.Equal(t, tc.value, got, tc.typ)
	}

	_, err := ParsePartitionValue(strPtr("abc"), "integer")
	require.Error(t, err)
}

func TestCoerceDecimalAndDates(t *testing.T) {
	require.Equal(t, "12.34", coerce(int64(1234), "decimal(10,2)", 0).(Decimal).String())
	require.Equal(t, "-1.00", coerce([]byte{0xff, 0x9c}, "decimal(4,2)", 0).(Decimal).String())
	require.Equal(t, time.Date(1970, 1, 2, 0, 0, 0, 0, time.UTC), coerce(int64(1), "date", 0))
	require.Equal(t, time.Unix(1, 0).UTC(), coerce(int64(1_000_000), "timestamp", time.Microsecond))
	require.Equal(t, time.Unix(0, 0).UTC(), int96Time([3]uint32{0, 0, julianUnixEpoch}))
}
