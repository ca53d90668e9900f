package delta

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deltaframe/internal/storage"
)

func TestListLogClassifiesFiles(t *testing.T) {
	b := buildCheckpointTable(t)
	// stray files are not part of the log
	require.NoError(t, os.WriteFile(b.logPath("00000000000000000023.json.tmp"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(b.logPath("00000000000000000030.checkpoint.0000000001.0000000002.parquet"), []byte("x"), 0o644))

	listing, err := listLog(context.Background(), storage.NewLocalStore(), b.root)
	require.NoError(t, err)
	require.Len(t, listing.commits, 23)
	require.Equal(t, []int64{10, 20}, listing.checkpointVersions())
	require.True(t, listing.hasLastCheckpoint)
	require.EqualValues(t, 22, listing.latest())
	require.EqualValues(t, 22, listing.contiguousEnd(0))
}

func TestContiguousEndStopsAtGap(t *testing.T) {
	b := buildCheckpointTable(t)
	b.removeCommit(15)

	listing, err := listLog(context.Background(), storage.NewLocalStore(), b.root)
	require.NoError(t, err)
	require.EqualValues(t, 14, listing.contiguousEnd(10))
	require.EqualValues(t, 22, listing.contiguousEnd(20))

	_, err = buildSegment(context.Background(), storage.NewLocalStore(), listing, int64Ptr(16), int64Ptr(10))
	require.True(t, IsRange(err))
}

func TestParseCheckpointRejectsGarbage(t *testing.T) {
	_, err := ParseCheckpoint(context.Background(), []byte("PAR1 not really"))
	require.ErrorIs(t, err, ErrCorruptLog)
}

func TestParseCommitRejectsBrokenLines(t *testing.T) {
	_, err := ParseCommit([]byte("{\"add\":{\"path\":\"a\"}}\n{broken"))
	require.ErrorIs(t, err, ErrCorruptLog)

	actions, err := ParseCommit([]byte("{\"remove\":{\"path\":\"a\",\"dataChange\":true}}\n\n"))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, "a", actions[0].Remove.Path)
}

func TestParseSchema(t *testing.T) {
	schema, err := ParseSchema(`{"type":"struct","fields":[
		{"name":"id","type":"long","nullable":false,"metadata":{}},
		{"name":"tags","type":{"type":"array","elementType":"string","containsNull":true},"nullable":true,"metadata":{}},
		{"name":"price","type":"decimal(10,2)","nullable":true,"metadata":{}}]}`)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "tags", "price"}, schema.Names())

	tags, ok := schema.Field("tags")
	require.True(t, ok)
	require.Equal(t, "array", tags.Type)

	_, err = ParseSchema(`{"type":"array"}`)
	require.ErrorIs(t, err, ErrCorruptLog)
}

func TestSnapshotCacheExpiry(t *testing.T) {
	cache := NewSnapshotCache(time.Millisecond)
	cache.Set("s3://bucket/table", int64Ptr(3), nil, &Snapshot{Version: 3})

	time.Sleep(5 * time.Millisecond)
	_, ok := cache.Get("s3://bucket/table", int64Ptr(3), nil)
	require.False(t, ok)
	require.Equal(t, 1, cache.Stats().ExpiredEntries)

	cache.cleanupExpired()
	require.Equal(t, 0, cache.Stats().TotalEntries)

	cache.Set("s3://bucket/table", nil, nil, &Snapshot{})
	require.Equal(t, 0, cache.Stats().TotalEntries)
	cache.Stop()
	cache.Stop()
}
