package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/require"

	"deltaframe/internal/delta/deltatest"
)

type eventRow struct {
	ID   int64  `parquet:"id"`
	Name string `parquet:"name"`
}

func writeEventsTable(t *testing.T) string {
	table := deltatest.New(t)
	table.Commit(
		deltatest.Protocol(),
		deltatest.MetaData(nil,
			deltatest.Column{Name: "id", Type: "long"},
			deltatest.Column{Name: "name", Type: "string"}),
		deltatest.WriteRows(table, "part-0.parquet", []eventRow{{1, "a"}, {2, "b"}, {3, "c"}}),
	)
	table.Commit(deltatest.WriteRows(table, "part-1.parquet", []eventRow{{4, "d"}}))
	return table.Root
}

func TestReadWritesParquet(t *testing.T) {
	t.Chdir(t.TempDir())
	root := writeEventsTable(t)
	out := filepath.Join(t.TempDir(), "events.parquet")

	err := App().Run(context.Background(), []string{"deltaframe", "read", "--version", "0", "--out", out, root})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.EqualValues(t, 3, file.NumRows())
}

func TestFilesAndHistoryCommands(t *testing.T) {
	t.Chdir(t.TempDir())
	root := writeEventsTable(t)

	require.NoError(t, App().Run(context.Background(), []string{"deltaframe", "files", "--filter", `[["id", ">", 1]]`, root}))
	require.NoError(t, App().Run(context.Background(), []string{"deltaframe", "history", "--limit", "1", root}))
}

func TestCommandErrors(t *testing.T) {
	t.Chdir(t.TempDir())
	root := writeEventsTable(t)

	err := App().Run(context.Background(), []string{"deltaframe", "files"})
	require.ErrorContains(t, err, "missing table location")

	err = App().Run(context.Background(), []string{"deltaframe", "read", "--version", "latest", root})
	require.ErrorContains(t, err, "invalid --version")

	err = App().Run(context.Background(), []string{"deltaframe", "read", "--version", "9", root})
	require.Error(t, err)
}

func TestOptionalInt(t *testing.T) {
	v, err := optionalInt("")
	require.NoError(t, err)
	require.Nil(t, v)

	v, err = optionalInt("12")
	require.NoError(t, err)
	require.EqualValues(t, 12, *v)

	_, err = optionalInt("twelve")
	require.Error(t, err)
}
