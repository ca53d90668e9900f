package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	cases := map[string]Location{
		"s3://bucket/warehouse/table/":             {Scheme: "s3", Bucket: "bucket", Root: "warehouse/table"},
		"s3a://bucket/t":                           {Scheme: "s3", Bucket: "bucket", Root: "t"},
		"minio://lake/t":                           {Scheme: "minio", Bucket: "lake", Root: "t"},
		"az://container/a/b":                       {Scheme: "az", Bucket: "container", Root: "a/b"},
		"abfss://data@acct.dfs.core.windows.net/x": {Scheme: "az", Bucket: "data", Root: "x"},
		"hdfs://namenode:8020/user/t":              {Scheme: "hdfs", Bucket: "namenode:8020", Root: "user/t"},
		"file:///tmp/table/":                       {Scheme: "file", Root: "/tmp/table"},
	}
	for raw, want := range cases {
		got, err := ParseLocation(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}

	_, err := ParseLocation("s3:///no-bucket")
	require.Error(t, err)
	_, err = ParseLocation("  ")
	require.Error(t, err)
}

func TestParseLocationRelativePathIsAbsolute(t *testing.T) {
	loc, err := ParseLocation("some/table")
	require.NoError(t, err)
	require.Equal(t, "file", loc.Scheme)
	require.True(t, filepath.IsAbs(filepath.FromSlash(loc.Root)))
}

func TestRegistryUnsupportedScheme(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Open(context.Background(), "gs://bucket/table")
	require.ErrorIs(t, err, ErrUnsupportedScheme)
	require.Equal(t, []string{"file"}, r.Supported())
}

func TestRegistryReusesStores(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Register("mem", func(context.Context, string) (ObjectStore, error) {
		calls++
		return NewLocalStore(), nil
	})

	ctx := context.Background()
	_, root, err := r.Open(ctx, "mem://b/one")
	require.NoError(t, err)
	require.Equal(t, "one", root)
	_, _, err = r.Open(ctx, "mem://b/two")
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	configured := NewRegistryFromConfig(Config{})
	require.Equal(t, []string{"az", "cos", "file", "hdfs", "minio", "oss", "s3"}, configured.Supported())
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "_delta_log"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "_delta_log", "00000000000000000001.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "_delta_log", "00000000000000000000.json"), []byte("{}"), 0o644))

	ctx := context.Background()
	store, root, err := NewRegistry().Open(ctx, dir)
	require.NoError(t, err)

	objects, err := store.List(ctx, Join(root, "_delta_log"))
	require.NoError(t, err)
	require.Len(t, objects, 2)
	require.Equal(t, "00000000000000000000.json", filepath.Base(objects[0].Key))
	require.EqualValues(t, 2, objects[1].Size)

	missing, err := store.List(ctx, Join(root, "nothing-here"))
	require.NoError(t, err)
	require.Empty(t, missing)

	data, err := store.Read(ctx, objects[0].Key)
	require.NoError(t, err)
	require.Equal(t, "{}", string(data))

	_, err = store.Read(ctx, Join(root, "_delta_log", "_last_checkpoint"))
	require.ErrorIs(t, err, ErrObjectNotFound)

	ok, err := store.Exists(ctx, objects[1].Key)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.Exists(ctx, Join(root, "missing"))
	require.NoError(t, err)
	require.False(t, ok)
}
