package dataframe

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/decimal128"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"deltaframe/internal/parquetio"
)

// ArrowType maps a Delta primitive type to an Arrow type. Nested types are
// carried as their JSON text.
func ArrowType(deltaType string) arrow.DataType {
	if precision, scale, ok := parquetio.DecimalType(deltaType); ok && precision > 0 && precision <= 38 {
		return &arrow.Decimal128Type{Precision: int32(precision), Scale: int32(scale)}
	}
	switch {
	case deltaType == "byte":
		return arrow.PrimitiveTypes.Int8
	case deltaType == "short":
		return arrow.PrimitiveTypes.Int16
	case deltaType == "integer":
		return arrow.PrimitiveTypes.Int32
	case deltaType == "long":
		return arrow.PrimitiveTypes.Int64
	case deltaType == "float":
		return arrow.PrimitiveTypes.Float32
	case deltaType == "double", strings.HasPrefix(deltaType, "decimal"):
		return arrow.PrimitiveTypes.Float64
	case deltaType == "boolean":
		return arrow.FixedWidthTypes.Boolean
	case deltaType == "binary":
		return arrow.BinaryTypes.Binary
	case deltaType == "date":
		return arrow.FixedWidthTypes.Date32
	case deltaType == "timestamp", deltaType == "timestamp_ntz":
		return arrow.FixedWidthTypes.Timestamp_us
	}
	return arrow.BinaryTypes.String
}

// ArrowSchema builds the Arrow schema for fields
func ArrowSchema(fields []Field) *arrow.Schema {
	arrowFields := make([]arrow.Field, len(fields))
	for i, f := range fields {
		arrowFields[i] = arrow.Field{Name: f.Name, Type: ArrowType(f.Type), Nullable: true}
	}
	return arrow.NewSchema(arrowFields, nil)
}

// ToArrow converts the table into a single record. The caller releases it.
func (t *Table) ToArrow(mem memory.Allocator) (arrow.Record, error) {
	b := array.NewRecordBuilder(mem, ArrowSchema(t.Fields))
	defer b.Release()

	for col, field := range t.Fields {
		fb := b.Field(col)
		for _, row := range t.Rows {
			if err := appendValue(fb, row[col]); err != nil {
				return nil, fmt.Errorf("column %s: %w", field.Name, err)
			}
		}
	}
	return b.NewRecord(), nil
}

// ToArrow computes the frame and converts it into a single record
func (f *Frame) ToArrow(ctx context.Context, mem memory.Allocator) (arrow.Record, error) {
	table, err := f.Compute(ctx)
	if err != nil {
		return nil, err
	}
	return table.ToArrow(mem)
}

// WriteIPC writes rec as an Arrow IPC stream
func WriteIPC(w io.Writer, rec arrow.Record) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write arrow record: %w", err)
	}
	return writer.Close()
}

func appendValue(b array.Builder, v interface{}) error {
	if v == nil {
		b.AppendNull()
		return nil
	}

	switch builder := b.(type) {
	case *array.Int8Builder:
		i, ok := asInt64(v)
		if !ok || i < math.MinInt8 || i > math.MaxInt8 {
			return mismatch(v, "byte")
		}
		builder.Append(int8(i))
	case *array.Int16Builder:
		i, ok := asInt64(v)
		if !ok || i < math.MinInt16 || i > math.MaxInt16 {
			return mismatch(v, "short")
		}
		builder.Append(int16(i))
	case *array.Int32Builder:
		i, ok := asInt64(v)
		if !ok || i < math.MinInt32 || i > math.MaxInt32 {
			return mismatch(v, "integer")
		}
		builder.Append(int32(i))
	case *array.Int64Builder:
		i, ok := asInt64(v)
		if !ok {
			return mismatch(v, "long")
		}
		builder.Append(i)
	case *array.Float32Builder:
		x, ok := asFloat64(v)
		if !ok {
			return mismatch(v, "float")
		}
		builder.Append(float32(x))
	case *array.Float64Builder:
		x, ok := asFloat64(v)
		if !ok {
			return mismatch(v, "double")
		}
		builder.Append(x)
	case *array.Decimal128Builder:
		num, err := decimalNum(v, builder.Type().(*arrow.Decimal128Type))
		if err != nil {
			return err
		}
		builder.Append(num)
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return mismatch(v, "boolean")
		}
		builder.Append(x)
	case *array.BinaryBuilder:
		switch x := v.(type) {
		case []byte:
			builder.Append(x)
		case string:
			builder.AppendString(x)
		default:
			return mismatch(v, "binary")
		}
	case *array.Date32Builder:
		x, ok := v.(time.Time)
		if !ok {
			return mismatch(v, "date")
		}
		builder.Append(arrow.Date32FromTime(x))
	case *array.TimestampBuilder:
		x, ok := v.(time.Time)
		if !ok {
			return mismatch(v, "timestamp")
		}
		builder.Append(arrow.Timestamp(x.UnixMicro()))
	case *array.StringBuilder:
		if s, ok := v.(string); ok {
			builder.Append(s)
		} else {
			builder.Append(fmt.Sprint(v))
		}
	default:
		return fmt.Errorf("unsupported arrow builder %T", b)
	}
	return nil
}

// decimalNum rescales v to the column type
func decimalNum(v interface{}, dt *arrow.Decimal128Type) (decimal128.Num, error) {
	switch x := v.(type) {
	case parquetio.Decimal:
		unscaled := x.Unscaled()
		if int(dt.Scale) != x.Scale() {
			d, err := parquetio.ParseDecimal(x.String(), int(dt.Scale))
			if err != nil {
				return decimal128.Num{}, mismatch(v, dt.String())
			}
			unscaled = d.Unscaled()
		}
		num := decimal128.FromBigInt(unscaled)
		if !num.FitsInPrecision(dt.Precision) {
			return decimal128.Num{}, mismatch(v, dt.String())
		}
		return num, nil
	}
	if f, ok := asFloat64(v); ok {
		num, err := decimal128.FromFloat64(f, dt.Precision, dt.Scale)
		if err != nil {
			return decimal128.Num{}, mismatch(v, dt.String())
		}
		return num, nil
	}
	return decimal128.Num{}, mismatch(v, dt.String())
}

func mismatch(v interface{}, want string) error {
	return fmt.Errorf("cannot store %T value %v as %s", v, v, want)
}

func asInt64(v interface{}) (int64, bool) {
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
	}
	return 0, false
}

func asFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}
