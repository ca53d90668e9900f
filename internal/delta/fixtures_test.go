package delta

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"

	"deltaframe/internal/storage"
)

// tableBuilder writes a Delta table into a temporary directory
type tableBuilder struct {
	t    *testing.T
	root string
}

func newTableBuilder(t *testing.T) *tableBuilder {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, logDirName), 0o755))
	return &tableBuilder{t: t, root: root}
}

func (b *tableBuilder) logPath(name string) string {
	return filepath.Join(b.root, logDirName, name)
}

// commit writes version as one JSON line per action
func (b *tableBuilder) commit(version int64, actions ...interface{}) {
	b.t.Helper()
	var sb strings.Builder
	for _, action := range actions {
		line, err := json.Marshal(action)
		require.NoError(b.t, err)
		sb.Write(line)
		sb.WriteByte('\n')
	}
	require.NoError(b.t, os.WriteFile(b.logPath(CommitFileName(version)), []byte(sb.String()), 0o644))
}

func (b *tableBuilder) removeCommit(version int64) {
	b.t.Helper()
	require.NoError(b.t, os.Remove(b.logPath(CommitFileName(version))))
}

// checkpoint writes a checkpoint file holding actions
func (b *tableBuilder) checkpoint(name string, actions ...Action) {
	b.t.Helper()
	rows := make([]writerCheckpointRow, 0, len(actions))
	for _, action := range actions {
		rows = append(rows, toWriterCheckpointRow(action))
	}
	b.writeCheckpointRows(name, rows)
}

func (b *tableBuilder) writeCheckpointRows(name string, rows []writerCheckpointRow) {
	b.t.Helper()
	f, err := os.Create(b.logPath(name))
	require.NoError(b.t, err)
	defer f.Close()

	w := parquet.NewGenericWriter[writerCheckpointRow](f)
	_, err = w.Write(rows)
	require.NoError(b.t, err)
	require.NoError(b.t, w.Close())
}

func (b *tableBuilder) lastCheckpoint(version int64) {
	b.t.Helper()
	data, err := json.Marshal(LastCheckpoint{Version: version})
	require.NoError(b.t, err)
	require.NoError(b.t, os.WriteFile(b.logPath(lastCheckpointName), data, 0o644))
}

// writerCheckpointRow is the checkpoint layout Spark and delta-rs write:
// optional action groups, optional LIST and MAP columns, and the txn and
// tags columns the reader does not use.
type writerCheckpointRow struct {
	Txn      *writerTxn      `parquet:"txn,optional"`
	Add      *writerAdd      `parquet:"add,optional"`
	Remove   *writerRemove   `parquet:"remove,optional"`
	MetaData *writerMetaData `parquet:"metaData,optional"`
	Protocol *writerProtocol `parquet:"protocol,optional"`
}

type writerTxn struct {
	AppID       *string `parquet:"appId,optional"`
	Version     int64   `parquet:"version"`
	LastUpdated *int64  `parquet:"lastUpdated,optional"`
}

type writerAdd struct {
	Path             *string            `parquet:"path,optional"`
	PartitionValues  map[string]*string `parquet:"partitionValues,optional"`
	Size             int64              `parquet:"size"`
	ModificationTime int64              `parquet:"modificationTime"`
	DataChange       bool               `parquet:"dataChange"`
	Stats            *string            `parquet:"stats,optional"`
	Tags             map[string]*string `parquet:"tags,optional"`
}

type writerRemove struct {
	Path                 *string            `parquet:"path,optional"`
	DeletionTimestamp    *int64             `parquet:"deletionTimestamp,optional"`
	DataChange           bool               `parquet:"dataChange"`
	ExtendedFileMetadata *bool              `parquet:"extendedFileMetadata,optional"`
	PartitionValues      map[string]*string `parquet:"partitionValues,optional"`
	Size                 *int64             `parquet:"size,optional"`
	Tags                 map[string]*string `parquet:"tags,optional"`
}

type writerFormat struct {
	Provider *string           `parquet:"provider,optional"`
	Options  map[string]*string `parquet:"options,optional"`
}

type writerMetaData struct {
	ID               *string            `parquet:"id,optional"`
	Name             *string            `parquet:"name,optional"`
	Description      *string            `parquet:"description,optional"`
	Format           *writerFormat      `parquet:"format,optional"`
	SchemaString     *string            `parquet:"schemaString,optional"`
	PartitionColumns []string           `parquet:"partitionColumns,optional,list"`
	Configuration    map[string]*string `parquet:"configuration,optional"`
	CreatedTime      *int64             `parquet:"createdTime,optional"`
}

type writerProtocol struct {
	MinReaderVersion int32    `parquet:"minReaderVersion"`
	MinWriterVersion int32    `parquet:"minWriterVersion"`
	ReaderFeatures   []string `parquet:"readerFeatures,optional,list"`
	WriterFeatures   []string `parquet:"writerFeatures,optional,list"`
}

func toWriterCheckpointRow(action Action) writerCheckpointRow {
	var row writerCheckpointRow
	switch {
	case action.Add != nil:
		row.Add = &writerAdd{
			Path:             strPtr(action.Add.Path),
			PartitionValues:  action.Add.PartitionValues,
			Size:             action.Add.Size,
			ModificationTime: action.Add.ModificationTime,
			DataChange:       action.Add.DataChange,
			Tags:             map[string]*string{"INSERTION_TIME": strPtr("1600000000000000")},
		}
		if action.Add.Stats != "" {
			row.Add.Stats = strPtr(action.Add.Stats)
		}
	case action.Remove != nil:
		row.Remove = &writerRemove{
			Path:              strPtr(action.Remove.Path),
			DeletionTimestamp: action.Remove.DeletionTimestamp,
			DataChange:        action.Remove.DataChange,
		}
	case action.MetaData != nil:
		configuration := make(map[string]*string, len(action.MetaData.Configuration))
		for k, v := range action.MetaData.Configuration {
			configuration[k] = strPtr(v)
		}
		row.MetaData = &writerMetaData{
			ID:               strPtr(action.MetaData.ID),
			Format:           &writerFormat{Provider: strPtr(action.MetaData.Format.Provider), Options: map[string]*string{}},
			SchemaString:     strPtr(action.MetaData.SchemaString),
			PartitionColumns: action.MetaData.PartitionColumns,
			Configuration:    configuration,
			CreatedTime:      action.MetaData.CreatedTime,
		}
	case action.Protocol != nil:
		row.Protocol = &writerProtocol{
			MinReaderVersion: int32(action.Protocol.MinReaderVersion),
			MinWriterVersion: int32(action.Protocol.MinWriterVersion),
			ReaderFeatures:   action.Protocol.ReaderFeatures,
			WriterFeatures:   action.Protocol.WriterFeatures,
		}
	}
	return row
}

// writeData writes rows as a parquet data file below the table root and
// returns the add action for it
func writeData[T any](b *tableBuilder, rel string, rows []T, partitionValues map[string]*string) Action {
	b.t.Helper()
	full := filepath.Join(b.root, filepath.FromSlash(rel))
	require.NoError(b.t, os.MkdirAll(filepath.Dir(full), 0o755))

	f, err := os.Create(full)
	require.NoError(b.t, err)
	w := parquet.NewGenericWriter[T](f)
	_, err = w.Write(rows)
	require.NoError(b.t, err)
	require.NoError(b.t, w.Close())
	require.NoError(b.t, f.Close())

	info, err := os.Stat(full)
	require.NoError(b.t, err)

	if partitionValues == nil {
		partitionValues = map[string]*string{}
	}
	return Action{Add: &AddFile{
		Path:             rel,
		PartitionValues:  partitionValues,
		Size:             info.Size(),
		ModificationTime: info.ModTime().UnixMilli(),
		DataChange:       true,
		Stats:            fmt.Sprintf(`{"numRecords":%d}`, len(rows)),
	}}
}

type column struct {
	name string
	typ  string
}

func schemaString(columns ...column) string {
	fields := make([]map[string]interface{}, 0, len(columns))
	for _, c := range columns {
		fields = append(fields, map[string]interface{}{
			"name":     c.name,
			"type":     c.typ,
			"nullable": true,
			"metadata": map[string]interface{}{},
		})
	}
	data, _ := json.Marshal(map[string]interface{}{"type": "struct", "fields": fields})
	return string(data)
}

func metaData(partitionColumns []string, columns ...column) Action {
	if partitionColumns == nil {
		partitionColumns = []string{}
	}
	return Action{MetaData: &MetaData{
		ID:               "6a9f5b5e-1c37-4d53-9c43-3a4f1b2c8d10",
		Format:           Format{Provider: "parquet"},
		SchemaString:     schemaString(columns...),
		PartitionColumns: partitionColumns,
		Configuration:    map[string]string{},
	}}
}

func protocol() Action {
	return Action{Protocol: &Protocol{MinReaderVersion: 1, MinWriterVersion: 2}}
}

func commitInfo(op string, timestampMillis int64) Action {
	return Action{CommitInfo: &CommitInfo{Timestamp: timestampMillis, Operation: op}}
}

func remove(path string) Action {
	return Action{Remove: &RemoveFile{Path: path, DataChange: true}}
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

// simple table: version 0 has 100 rows and three columns, version 1 adds
// newColumn and another 100 rows

type simpleRowV0 struct {
	ID          int64   `parquet:"id"`
	Count       int64   `parquet:"count"`
	Temperature float64 `parquet:"temperature"`
}

type simpleRowV1 struct {
	ID          int64   `parquet:"id"`
	Count       int64   `parquet:"count"`
	Temperature float64 `parquet:"temperature"`
	NewColumn   string  `parquet:"newColumn"`
}

var simpleColumns = []column{{"id", "long"}, {"count", "long"}, {"temperature", "double"}}

func buildSimpleTable(t *testing.T) *tableBuilder {
	b := newTableBuilder(t)

	v0 := make([]simpleRowV0, 100)
	for i := range v0 {
		v0[i] = simpleRowV0{ID: int64(i), Count: int64(i * 2), Temperature: float64(i) / 2}
	}
	b.commit(0,
		commitInfo("WRITE", 1_600_000_000_000),
		protocol(),
		metaData(nil, simpleColumns...),
		writeData(b, "part-00000-v0.snappy.parquet", v0, nil),
	)

	v1 := make([]simpleRowV1, 100)
	for i := range v1 {
		v1[i] = simpleRowV1{ID: int64(100 + i), Count: int64(i), Temperature: 1.5, NewColumn: fmt.Sprintf("n%d", i)}
	}
	b.commit(1,
		commitInfo("WRITE", 1_600_000_060_000),
		metaData(nil, append(simpleColumns, column{"newColumn", "string"})...),
		writeData(b, "part-00000-v1.snappy.parquet", v1, nil),
	)
	return b
}

// partitioned table: col1 is the partition column, partitions 0, 1 and 2
// hold 20, 21 and 18 rows

type partitionedRow struct {
	Col2 int64   `parquet:"col2"`
	Col3 string  `parquet:"col3"`
	Col4 float64 `parquet:"col4"`
}

var partitionedColumns = []column{{"col1", "integer"}, {"col2", "long"}, {"col3", "string"}, {"col4", "double"}}

func buildPartitionedTable(t *testing.T) *tableBuilder {
	b := newTableBuilder(t)

	actions := []interface{}{
		protocol(),
		metaData([]string{"col1"}, partitionedColumns...),
	}
	for _, add := range writePartitions(b) {
		actions = append(actions, add)
	}
	b.commit(0, actions...)
	return b
}

// writePartitions writes the data files of partitions 0, 1 and 2 and
// returns their add actions
func writePartitions(b *tableBuilder) []Action {
	var adds []Action
	for part, n := range []int{20, 21, 18} {
		rows := make([]partitionedRow, n)
		for i := range rows {
			rows[i] = partitionedRow{Col2: int64(i), Col3: fmt.Sprintf("p%d-%d", part, i), Col4: float64(i) * 0.5}
		}
		value := fmt.Sprintf("%d", part)
		rel := fmt.Sprintf("col1=%d/part-00000.snappy.parquet", part)
		adds = append(adds, writeData(b, rel, rows, map[string]*string{"col1": &value}))
	}
	return adds
}

// checkpointed table: every commit adds one file of five rows; checkpoints
// exist at versions 10 and 20 and commits run up to 22

type counterRow struct {
	Version int64 `parquet:"version"`
	Seq     int64 `parquet:"seq"`
}

func buildCheckpointTable(t *testing.T) *tableBuilder {
	b := newTableBuilder(t)
	meta := metaData(nil, column{"version", "long"}, column{"seq", "long"})

	var adds []Action
	for v := int64(0); v <= 22; v++ {
		rows := make([]counterRow, 5)
		for i := range rows {
			rows[i] = counterRow{Version: v, Seq: int64(i)}
		}
		add := writeData(b, fmt.Sprintf("part-%05d.snappy.parquet", v), rows, nil)
		adds = append(adds, add)

		actions := []interface{}{commitInfo("WRITE", 1_600_000_000_000+v*1000), add}
		if v == 0 {
			actions = append(actions, protocol(), meta)
		}
		b.commit(v, actions...)

		if v == 10 || v == 20 {
			b.checkpoint(CheckpointFileName(v), append([]Action{protocol(), meta}, adds...)...)
		}
	}
	b.lastCheckpoint(20)
	return b
}

func newTestResolver(opts ...ResolverOption) *Resolver {
	return NewResolver(storage.NewRegistry(), append([]ResolverOption{WithConcurrency(4)}, opts...)...)
}
