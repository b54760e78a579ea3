package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredb/coredb/internal/bufmgr"
	"github.com/coredb/coredb/internal/catalog"
	"github.com/coredb/coredb/internal/wal"
	"github.com/coredb/coredb/internal/walcodec"
	"github.com/coredb/coredb/pkg/types"
)

func newTestCatalog(t *testing.T) *catalog.SQLiteCatalog {
	t.Helper()
	dir := t.TempDir()
	c, err := catalog.NewSQLiteCatalog(filepath.Join(dir, "catalog.db"), filepath.Join(dir, "snapshots"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCatalog_Apply_CreateDatabaseAndTable(t *testing.T) {
	c := newTestCatalog(t)

	require.NoError(t, c.Apply(&walcodec.CreateDatabaseCmd{DatabaseName: "analytics"}))
	require.NoError(t, c.Apply(&walcodec.CreateTableCmd{
		DatabaseName: "analytics",
		TableName:    "events",
		Schema: types.TableSchema{
			Version: 1,
			Columns: []types.ColumnDef{{Name: "body", Type: "TEXT"}},
		},
	}))
}

func TestCatalog_Apply_ImportThenCompact(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Apply(&walcodec.CreateDatabaseCmd{DatabaseName: "db"}))
	require.NoError(t, c.Apply(&walcodec.CreateTableCmd{DatabaseName: "db", TableName: "events"}))

	seg1 := types.SegmentInfo{SegmentID: 1, DatabaseName: "db", TableName: "events", Status: types.SegmentStatusSealed, RowCount: 100}
	seg2 := types.SegmentInfo{SegmentID: 2, DatabaseName: "db", TableName: "events", Status: types.SegmentStatusSealed, RowCount: 50}
	require.NoError(t, c.Apply(&walcodec.ImportCmd{DatabaseName: "db", TableName: "events", Segment: seg1}))
	require.NoError(t, c.Apply(&walcodec.ImportCmd{DatabaseName: "db", TableName: "events", Segment: seg2}))

	merged := types.SegmentInfo{
		SegmentID: 3, DatabaseName: "db", TableName: "events",
		Status: types.SegmentStatusSealed, RowCount: 150,
		SourceSegmentIDs: []uint64{1, 2},
	}
	require.NoError(t, c.Apply(&walcodec.CompactCmd{DatabaseName: "db", TableName: "events", Result: merged}))
}

func TestCatalog_WriteSnapshotThenLoadSnapshot_RoundTrip(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Apply(&walcodec.CreateDatabaseCmd{DatabaseName: "db"}))

	path, err := c.WriteSnapshot(walcodec.CheckpointFull, 42)
	require.NoError(t, err)
	assert.FileExists(t, path)

	require.NoError(t, c.Apply(&walcodec.CreateDatabaseCmd{DatabaseName: "another"}))
	require.NoError(t, c.LoadSnapshot(path))

	v, err := c.MetaUint64("last_ckp_ts")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)
}

func TestCatalog_SeedFromReplay(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.SeedFromReplay(&wal.ReplayResult{
		NextTxnID:         10,
		SystemMaxCommitTS: 9,
		LastCheckpointTS:  8,
	}))

	v, err := c.MetaUint64("next_txn_id")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), v)
}

func TestCatalog_Apply_UnknownCommandIsFatal(t *testing.T) {
	c := newTestCatalog(t)
	err := c.Apply(unknownCommand{})
	assert.Error(t, err)
}

type unknownCommand struct{}

func (unknownCommand) Type() walcodec.CommandType   { return 0 }
func (unknownCommand) EncodedSize() int             { return 0 }
func (unknownCommand) Encode(buf []byte) (int, error) { return 0, nil }

func TestCatalog_Apply_CreateIndex_BuildsFullTextDictionary(t *testing.T) {
	c := newTestCatalog(t)
	dir := t.TempDir()

	require.NoError(t, c.Apply(&walcodec.CreateDatabaseCmd{DatabaseName: "db"}))
	require.NoError(t, c.Apply(&walcodec.CreateTableCmd{DatabaseName: "db", TableName: "events"}))

	colPath := filepath.Join(dir, "seg1-body.col")
	require.NoError(t, os.WriteFile(colPath, []byte("hello world\nfoo bar\nhello again"), 0644))

	seg := types.SegmentInfo{
		SegmentID: 1, DatabaseName: "db", TableName: "events",
		Status: types.SegmentStatusSealed, RowCount: 3,
		Columns: []types.ColumnEntryInfo{{ColumnID: 1, ColumnName: "body", FilePath: colPath}},
	}
	require.NoError(t, c.Apply(&walcodec.ImportCmd{DatabaseName: "db", TableName: "events", Segment: seg}))

	indexDir := filepath.Join(dir, "ftindex")
	c.SetIndexBuilder(bufmgr.NewManager(1<<20), indexDir)

	require.NoError(t, c.Apply(&walcodec.CreateIndexCmd{
		DatabaseName: "db",
		TableName:    "events",
		Index:        types.IndexDef{Name: "body_fts", Column: "body", Kind: types.IndexKindFullText},
	}))

	entries, err := os.ReadDir(indexDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "db_events_body_fts_seg1.dict", entries[0].Name())
}

func TestCatalog_Apply_CreateIndex_WithoutIndexBuilderIsMetadataOnly(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.Apply(&walcodec.CreateDatabaseCmd{DatabaseName: "db"}))
	require.NoError(t, c.Apply(&walcodec.CreateTableCmd{DatabaseName: "db", TableName: "events"}))

	require.NoError(t, c.Apply(&walcodec.CreateIndexCmd{
		DatabaseName: "db",
		TableName:    "events",
		Index:        types.IndexDef{Name: "body_fts", Column: "body", Kind: types.IndexKindFullText},
	}))
}
