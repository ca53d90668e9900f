// Package parquetio decodes Delta data files into rows.
package parquetio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
)

const defaultBatchSize = 1024

// Column is a column to decode and its Delta type
type Column struct {
	Name string
	Type string
}

// Reader decodes Parquet files
type Reader struct {
	batchSize int
}

// NewReader creates a reader reading batchSize rows at a time
func NewReader(batchSize int) *Reader {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Reader{batchSize: batchSize}
}

type target struct {
	leaves []int // leaf column indexes; more than one for nested columns
	nested bool
	unit   time.Duration
}

// Decode returns every row of the file projected onto columns. Columns
// the file does not contain decode as null.
func (r *Reader) Decode(ctx context.Context, data []byte, columns []Column) ([][]interface{}, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	targets := resolveTargets(file.Schema(), columns)
	numLeaves := len(file.Schema().Columns())
	out := make([][]interface{}, 0, file.NumRows())

	buf := make([]parquet.Row, r.batchSize)
	byLeaf := make([][]parquet.Value, numLeaves)

	for _, rg := range file.RowGroups() {
		rows := rg.Rows()
		for {
			if err := ctx.Err(); err != nil {
				rows.Close()
				return nil, err
			}
			n, readErr := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				for i := range byLeaf {
					byLeaf[i] = byLeaf[i][:0]
				}
				for _, v := range row {
					if c := v.Column(); c >= 0 && c < numLeaves {
						byLeaf[c] = append(byLeaf[c], v)
					}
				}
				out = append(out, decodeRow(byLeaf, targets, columns))
			}
			if errors.Is(readErr, io.EOF) {
				break
			}
			if readErr != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to read rows: %w", readErr)
			}
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("failed to close row reader: %w", err)
		}
	}

	return out, nil
}

// NumRows returns the row count recorded in the file footer
func NumRows(data []byte) (int64, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to open parquet file: %w", err)
	}
	return file.NumRows(), nil
}

func resolveTargets(schema *parquet.Schema, columns []Column) []target {
	paths := schema.Columns()
	targets := make([]target, len(columns))

	for i, col := range columns {
		if leaf, ok := schema.Lookup(col.Name); ok {
			targets[i] = target{
				leaves: []int{leaf.ColumnIndex},
				unit:   timestampUnit(leaf.Node),
			}
			continue
		}
		for idx, path := range paths {
			if len(path) > 1 && path[0] == col.Name {
				targets[i].leaves = append(targets[i].leaves, idx)
				targets[i].nested = true
			}
		}
	}
	return targets
}

func timestampUnit(node parquet.Node) time.Duration {
	lt := node.Type().LogicalType()
	if lt == nil || lt.Timestamp == nil {
		return time.Microsecond
	}
	return unitOf(lt.Timestamp.Unit)
}

func unitOf(unit format.TimeUnit) time.Duration {
	switch {
	case unit.Millis != nil:
		return time.Millisecond
	case unit.Nanos != nil:
		return time.Nanosecond
	}
	return time.Microsecond
}

func decodeRow(byLeaf [][]parquet.Value, targets []target, columns []Column) []interface{} {
	row := make([]interface{}, len(columns))
	for i, t := range targets {
		if len(t.leaves) == 0 {
			continue
		}
		if !t.nested {
			values := byLeaf[t.leaves[0]]
			if len(values) == 1 {
				row[i] = decodeValue(values[0], columns[i].Type, t.unit)
				continue
			}
			// repeated leaf
			row[i] = decodeList(values, "", t.unit)
			continue
		}
		var nested []interface{}
		for _, leaf := range t.leaves {
			nested = append(nested, decodeList(byLeaf[leaf], "", t.unit)...)
		}
		row[i] = nested
	}
	return row
}

func decodeList(values []parquet.Value, deltaType string, unit time.Duration) []interface{} {
	list := make([]interface{}, 0, len(values))
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		list = append(list, decodeValue(v, deltaType, unit))
	}
	return list
}

func decodeValue(v parquet.Value, deltaType string, unit time.Duration) interface{} {
	if v.IsNull() {
		return nil
	}

	var raw interface{}
	switch v.Kind() {
	case parquet.Boolean:
		raw = v.Boolean()
	case parquet.Int32:
		raw = int64(v.Int32())
	case parquet.Int64:
		raw = v.Int64()
	case parquet.Int96:
		return int96Time([3]uint32(v.Int96()))
	case parquet.Float:
		raw = float64(v.Float())
	case parquet.Double:
		raw = v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		raw = append([]byte(nil), v.ByteArray()...)
	default:
		return nil
	}
	return coerce(raw, deltaType, unit)
}
