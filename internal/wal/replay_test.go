package wal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredb/coredb/internal/wal"
	"github.com/coredb/coredb/internal/walcodec"
)

type recordingLoader struct{ loaded string }

func (r *recordingLoader) LoadSnapshot(path string) error {
	r.loaded = path
	return nil
}

type recordingHandler struct{ applied []walcodec.Command }

func (h *recordingHandler) Apply(cmd walcodec.Command) error {
	h.applied = append(h.applied, cmd)
	return nil
}

func writeEntries(t *testing.T, path string, entries ...*walcodec.Entry) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	defer f.Close()
	for _, e := range entries {
		_, err := e.Encode(f)
		require.NoError(t, err)
	}
}

func TestReplay_NoFiles(t *testing.T) {
	dir := t.TempDir()
	registry := wal.NewRegistry(dir)
	loader := &recordingLoader{}
	handler := &recordingHandler{}

	result, err := wal.Replay(registry, loader, handler)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.NextTxnID)
	assert.Empty(t, handler.applied)
}

func TestReplay_NoCheckpoint_ReplaysEverything(t *testing.T) {
	dir := t.TempDir()
	registry := wal.NewRegistry(dir)

	writeEntries(t, registry.CurrentPath(),
		&walcodec.Entry{TxnID: 1, CommitTS: 1, Commands: []walcodec.Command{&walcodec.CreateDatabaseCmd{DatabaseName: "db"}}},
		&walcodec.Entry{TxnID: 2, CommitTS: 2, Commands: []walcodec.Command{&walcodec.CreateTableCmd{DatabaseName: "db", TableName: "events"}}},
	)

	loader := &recordingLoader{}
	handler := &recordingHandler{}
	result, err := wal.Replay(registry, loader, handler)
	require.NoError(t, err)

	require.Len(t, handler.applied, 2)
	assert.Equal(t, walcodec.CmdCreateDatabase, handler.applied[0].Type())
	assert.Equal(t, walcodec.CmdCreateTable, handler.applied[1].Type())
	assert.Equal(t, uint64(3), result.NextTxnID)
	assert.Equal(t, uint64(2), result.SystemMaxCommitTS)
	assert.Empty(t, loader.loaded)
}

func TestReplay_StopsAtCheckpoint_SkipsCapturedEntries(t *testing.T) {
	dir := t.TempDir()
	registry := wal.NewRegistry(dir)

	writeEntries(t, registry.CurrentPath(),
		&walcodec.Entry{TxnID: 1, CommitTS: 1, Commands: []walcodec.Command{&walcodec.CreateDatabaseCmd{DatabaseName: "db"}}},
		&walcodec.Entry{TxnID: 2, CommitTS: 2, Commands: []walcodec.Command{
			&walcodec.CheckpointCmd{Kind: walcodec.CheckpointFull, MaxCommitTS: 2, CatalogPath: "/tmp/ckp-2.db"},
		}},
		&walcodec.Entry{TxnID: 3, CommitTS: 3, Commands: []walcodec.Command{&walcodec.CreateTableCmd{DatabaseName: "db", TableName: "events"}}},
	)

	loader := &recordingLoader{}
	handler := &recordingHandler{}
	result, err := wal.Replay(registry, loader, handler)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/ckp-2.db", loader.loaded)
	require.Len(t, handler.applied, 1, "only the post-checkpoint CreateTable should replay")
	assert.Equal(t, walcodec.CmdCreateTable, handler.applied[0].Type())
	assert.Equal(t, uint64(2), result.LastCheckpointTS)
	assert.Equal(t, uint64(2), result.LastFullCheckpointTS)
	assert.Equal(t, uint64(4), result.NextTxnID)
}

func TestReplay_TornTailFrame_Tolerated(t *testing.T) {
	dir := t.TempDir()
	registry := wal.NewRegistry(dir)

	writeEntries(t, registry.CurrentPath(),
		&walcodec.Entry{TxnID: 1, CommitTS: 1, Commands: []walcodec.Command{&walcodec.CreateDatabaseCmd{DatabaseName: "db"}}},
	)
	f, err := os.OpenFile(registry.CurrentPath(), os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x05, 0x00, 0x00, 0x00, 0xDE, 0xAD}) // truncated frame header
	require.NoError(t, err)
	require.NoError(t, f.Close())

	loader := &recordingLoader{}
	handler := &recordingHandler{}
	result, err := wal.Replay(registry, loader, handler)
	require.NoError(t, err)
	require.Len(t, handler.applied, 1)
	assert.Equal(t, uint64(2), result.NextTxnID)
}

func TestReplay_CorruptNonTailFile_IsFatal(t *testing.T) {
	dir := t.TempDir()
	registry := wal.NewRegistry(dir)

	rotatedPath := filepath.Join(dir, wal.WalFilename(1))
	writeEntries(t, rotatedPath,
		&walcodec.Entry{TxnID: 1, CommitTS: 1, Commands: []walcodec.Command{&walcodec.CreateDatabaseCmd{DatabaseName: "db"}}},
	)
	f, err := os.OpenFile(rotatedPath, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x05, 0x00, 0x00, 0x00, 0xDE, 0xAD})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	writeEntries(t, registry.CurrentPath(),
		&walcodec.Entry{TxnID: 2, CommitTS: 2, Commands: []walcodec.Command{&walcodec.CreateDatabaseCmd{DatabaseName: "db2"}}},
	)

	loader := &recordingLoader{}
	handler := &recordingHandler{}
	_, err = wal.Replay(registry, loader, handler)
	assert.Error(t, err)
}
