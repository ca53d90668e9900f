// Package deltatest writes small Delta tables to temporary directories
// for tests of packages built on top of the resolver.
package deltatest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"

	"deltaframe/internal/delta"
)

// Column is a top-level primitive column of a table schema
type Column struct {
	Name string
	Type string
}

// Table is a Delta table under a test temporary directory
type Table struct {
	t    testing.TB
	Root string
	next int64
}

// New creates an empty table directory with a _delta_log
func New(t testing.TB) *Table {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "_delta_log"), 0o755))
	return &Table{t: t, Root: root}
}

// Commit writes the actions as the next commit and returns its version
func (tb *Table) Commit(actions ...delta.Action) int64 {
	tb.t.Helper()
	var sb strings.Builder
	for _, action := range actions {
		line, err := json.Marshal(action)
		require.NoError(tb.t, err)
		sb.Write(line)
		sb.WriteByte('\n')
	}

	version := tb.next
	path := filepath.Join(tb.Root, "_delta_log", delta.CommitFileName(version))
	require.NoError(tb.t, os.WriteFile(path, []byte(sb.String()), 0o644))
	tb.next++
	return version
}

// WriteRows writes rows to a Parquet data file at rel and returns the add
// action for it
func WriteRows[T any](tb *Table, rel string, rows []T) delta.Action {
	tb.t.Helper()
	full := filepath.Join(tb.Root, filepath.FromSlash(rel))
	require.NoError(tb.t, os.MkdirAll(filepath.Dir(full), 0o755))

	f, err := os.Create(full)
	require.NoError(tb.t, err)
	w := parquet.NewGenericWriter[T](f)
	_, err = w.Write(rows)
	require.NoError(tb.t, err)
	require.NoError(tb.t, w.Close())
	require.NoError(tb.t, f.Close())

	info, err := os.Stat(full)
	require.NoError(tb.t, err)

	return delta.Action{Add: &delta.AddFile{
		Path:             rel,
		PartitionValues:  map[string]*string{},
		Size:             info.Size(),
		ModificationTime: info.ModTime().UnixMilli(),
		DataChange:       true,
		Stats:            fmt.Sprintf(`{"numRecords":%d}`, len(rows)),
	}}
}

// Protocol returns a reader version 1 protocol action
func Protocol() delta.Action {
	return delta.Action{Protocol: &delta.Protocol{MinReaderVersion: 1, MinWriterVersion: 2}}
}

// MetaData returns a Parquet metaData action with the given schema
func MetaData(partitionColumns []string, columns ...Column) delta.Action {
	fields := make([]map[string]interface{}, 0, len(columns))
	for _, c := range columns {
		fields = append(fields, map[string]interface{}{
			"name":     c.Name,
			"type":     c.Type,
			"nullable": true,
			"metadata": map[string]interface{}{},
		})
	}
	schema, _ := json.Marshal(map[string]interface{}{"type": "struct", "fields": fields})

	if partitionColumns == nil {
		partitionColumns = []string{}
	}
	return delta.Action{MetaData: &delta.MetaData{
		ID:               "0b7d3c52-8f0e-4a36-b1a6-3c2d9e4f5a61",
		Format:           delta.Format{Provider: "parquet"},
		SchemaString:     string(schema),
		PartitionColumns: partitionColumns,
	}}
}

// CommitInfo returns a commitInfo action for operation at ts
func CommitInfo(operation string, ts time.Time) delta.Action {
	return delta.Action{CommitInfo: &delta.CommitInfo{Timestamp: ts.UnixMilli(), Operation: operation}}
}
