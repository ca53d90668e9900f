package delta

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"deltaframe/internal/predicate"
)

const nullPartitionPath = "col1=__HIVE_DEFAULT_PARTITION__/part-00000.snappy.parquet"

func TestParseCheckpointWriterLayout(t *testing.T) {
	b := newTableBuilder(t)

	meta := metaData([]string{"col1"}, partitionedColumns...)
	meta.MetaData.Configuration = map[string]string{"delta.appendOnly": "true"}
	proto := Action{Protocol: &Protocol{
		MinReaderVersion: 3,
		MinWriterVersion: 7,
		ReaderFeatures:   []string{"timestampNtz"},
		WriterFeatures:   []string{"timestampNtz", "appendOnly"},
	}}
	add := Action{Add: &AddFile{
		Path:             nullPartitionPath,
		PartitionValues:  map[string]*string{"col1": nil},
		Size:             512,
		ModificationTime: 1_600_000_000_000,
		DataChange:       true,
		Stats:            `{"numRecords":4}`,
	}}

	rows := []writerCheckpointRow{{Txn: &writerTxn{AppID: strPtr("ingest"), Version: 7}}}
	for _, action := range []Action{proto, meta, add} {
		rows = append(rows, toWriterCheckpointRow(action))
	}
	b.writeCheckpointRows(CheckpointFileName(1), rows)

	data, err := os.ReadFile(b.logPath(CheckpointFileName(1)))
	require.NoError(t, err)
	actions, err := ParseCheckpoint(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, actions, 3)

	require.NotNil(t, actions[0].Protocol)
	require.Equal(t, []string{"timestampNtz"}, actions[0].Protocol.ReaderFeatures)
	require.Equal(t, []string{"timestampNtz", "appendOnly"}, actions[0].Protocol.WriterFeatures)

	require.NotNil(t, actions[1].MetaData)
	require.Equal(t, []string{"col1"}, actions[1].MetaData.PartitionColumns)
	require.Equal(t, "parquet", actions[1].MetaData.Format.Provider)
	require.Equal(t, map[string]string{"delta.appendOnly": "true"}, actions[1].MetaData.Configuration)

	require.NotNil(t, actions[2].Add)
	require.Equal(t, nullPartitionPath, actions[2].Add.Path)
	require.EqualValues(t, 512, actions[2].Add.Size)
	require.Equal(t, `{"numRecords":4}`, actions[2].Add.Stats)
	value, ok := actions[2].Add.PartitionValues["col1"]
	require.True(t, ok)
	require.Nil(t, value)
}

func TestResolvePartitionedCheckpoint(t *testing.T) {
	b := newTableBuilder(t)
	meta := metaData([]string{"col1"}, partitionedColumns...)

	adds := writePartitions(b)
	nullAdd := writeData(b, nullPartitionPath, []partitionedRow{
		{Col2: 1, Col3: "null-1"},
		{Col2: 2, Col3: "null-2"},
		{Col2: 3, Col3: "null-3"},
		{Col2: 4, Col3: "null-4"},
	}, map[string]*string{"col1": nil})

	first := []interface{}{protocol(), meta}
	for _, add := range adds {
		first = append(first, add)
	}
	b.commit(0, first...)
	b.commit(1, nullAdd)

	rows := []writerCheckpointRow{{Txn: &writerTxn{AppID: strPtr("ingest"), Version: 3}}}
	for _, action := range append([]Action{protocol(), meta, nullAdd}, adds...) {
		rows = append(rows, toWriterCheckpointRow(action))
	}
	b.writeCheckpointRows(CheckpointFileName(1), rows)

	r := newTestResolver()
	ctx := context.Background()
	filter, err := predicate.FromTuples([]interface{}{[]interface{}{"col1", "==", 1}})
	require.NoError(t, err)

	files, err := r.ResolveFiles(ctx, b.root, Options{Checkpoint: int64Ptr(1), Filter: filter})
	require.NoError(t, err)
	require.EqualValues(t, 1, files.Checkpoint)
	require.EqualValues(t, 1, files.Version)
	require.Equal(t, []string{"col1"}, files.PartitionColumns)
	require.Len(t, files.Files, 1)
	require.Equal(t, "col1=1/part-00000.snappy.parquet", files.Files[0].Path)

	frame, err := r.Resolve(ctx, b.root, Options{Checkpoint: int64Ptr(1), Filter: filter})
	require.NoError(t, err)
	table, err := frame.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, 21, table.NumRows())
	col1, ok := table.Column("col1")
	require.True(t, ok)
	for _, v := range col1 {
		require.Equal(t, int32(1), v)
	}

	// without an explicit checkpoint the newest one is used as well
	frame, err = r.Resolve(ctx, b.root, Options{})
	require.NoError(t, err)
	table, err = frame.Compute(ctx)
	require.NoError(t, err)
	require.Equal(t, 20+21+18+4, table.NumRows())
	col1, ok = table.Column("col1")
	require.True(t, ok)
	nulls := 0
	for _, v := range col1 {
		if v == nil {
			nulls++
		}
	}
	require.Equal(t, 4, nulls)
}

func TestResolveCheckpointReaderFeatures(t *testing.T) {
	b := newTableBuilder(t)
	add := writeData(b, "part-0.parquet", []counterRow{{Version: 0}}, nil)
	b.checkpoint(CheckpointFileName(0),
		Action{Protocol: &Protocol{MinReaderVersion: 3, MinWriterVersion: 7, ReaderFeatures: []string{"deletionVectors"}}},
		metaData(nil, column{"version", "long"}, column{"seq", "long"}),
		add,
	)

	_, err := newTestResolver().ResolveFiles(context.Background(), b.root, Options{Checkpoint: int64Ptr(0)})
	require.ErrorIs(t, err, ErrUnsupportedProtocol)
}
