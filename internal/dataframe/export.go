package dataframe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"deltaframe/internal/parquetio"
)

const exportParallelism = 4

// WriteParquet computes the frame and writes it to a local Parquet file
func (f *Frame) WriteParquet(ctx context.Context, path string) error {
	table, err := f.Compute(ctx)
	if err != nil {
		return err
	}
	return table.WriteParquet(path)
}

// WriteParquet writes the table to a local Snappy-compressed Parquet file.
// Every column is written as optional.
func (t *Table) WriteParquet(path string) error {
	schema, err := exportSchema(t.Fields)
	if err != nil {
		return err
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer fw.Close()

	pw, err := writer.NewJSONWriter(schema, fw, exportParallelism)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, row := range t.Rows {
		record := make(map[string]interface{}, len(t.Fields))
		for j, field := range t.Fields {
			record[field.Name] = exportValue(field.Type, row[j])
		}
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to encode row %d: %w", i, err)
		}
		if err := pw.Write(string(line)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return nil
}

type jsonSchemaNode struct {
	Tag    string           `json:"Tag"`
	Fields []jsonSchemaNode `json:"Fields,omitempty"`
}

func exportSchema(fields []Field) (string, error) {
	root := jsonSchemaNode{Tag: "name=parquet_go_root, repetitiontype=REQUIRED"}
	for _, f := range fields {
		if strings.ContainsAny(f.Name, ", =") {
			return "", fmt.Errorf("column name %q cannot be exported", f.Name)
		}
		root.Fields = append(root.Fields, jsonSchemaNode{
			Tag: fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", f.Name, exportType(f.Type)),
		})
	}
	out, err := json.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("failed to encode parquet schema: %w", err)
	}
	return string(out), nil
}

// maxExportDecimalPrecision bounds decimals written with the DECIMAL
// logical type. The writer scales decimals through float64, so wider ones
// are written as their exact text.
const maxExportDecimalPrecision = 15

func exportType(deltaType string) string {
	if precision, scale, ok := parquetio.DecimalType(deltaType); ok {
		if precision > 0 && precision <= maxExportDecimalPrecision {
			return fmt.Sprintf("type=INT64, convertedtype=DECIMAL, precision=%d, scale=%d", precision, scale)
		}
		return "type=BYTE_ARRAY, convertedtype=UTF8"
	}
	switch {
	case deltaType == "byte", deltaType == "short", deltaType == "integer":
		return "type=INT32"
	case deltaType == "long":
		return "type=INT64"
	case deltaType == "float":
		return "type=FLOAT"
	case deltaType == "double":
		return "type=DOUBLE"
	case deltaType == "boolean":
		return "type=BOOLEAN"
	case deltaType == "binary":
		return "type=BYTE_ARRAY"
	case deltaType == "date":
		return "type=INT32, convertedtype=DATE"
	case deltaType == "timestamp", deltaType == "timestamp_ntz":
		return "type=INT64, convertedtype=TIMESTAMP_MICROS"
	}
	return "type=BYTE_ARRAY, convertedtype=UTF8"
}

func exportValue(deltaType string, v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		if deltaType == "date" {
			return x.Unix() / 86400
		}
		return x.UnixMicro()
	case parquetio.Decimal:
		if precision, _, _ := parquetio.DecimalType(deltaType); precision > 0 && precision <= maxExportDecimalPrecision {
			return json.Number(x.String())
		}
		return x.String()
	case []byte:
		return string(x)
	case string, bool, int8, int16, int32, int64, int, float32, float64:
		return x
	}
	return fmt.Sprint(v)
}
