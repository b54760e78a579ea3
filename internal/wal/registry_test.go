package wal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredb/coredb/internal/wal"
)

func TestRegistry_List_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	r := wal.NewRegistry(dir)

	rotated, hasCurrent, err := r.List()
	require.NoError(t, err)
	assert.False(t, hasCurrent)
	assert.Empty(t, rotated)
}

func TestRegistry_List_SortsRotatedByCommitTS(t *testing.T) {
	dir := t.TempDir()
	for _, ts := range []uint64{300, 100, 200} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, wal.WalFilename(ts)), []byte("x"), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, wal.CurrentWalFilename), []byte("y"), 0644))

	r := wal.NewRegistry(dir)
	rotated, hasCurrent, err := r.List()
	require.NoError(t, err)
	assert.True(t, hasCurrent)
	require.Len(t, rotated, 3)
	assert.Equal(t, uint64(100), rotated[0].MaxCommitTS)
	assert.Equal(t, uint64(200), rotated[1].MaxCommitTS)
	assert.Equal(t, uint64(300), rotated[2].MaxCommitTS)
}

func TestRegistry_Rotate(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, wal.CurrentWalFilename)
	require.NoError(t, os.WriteFile(current, []byte("frame"), 0644))

	r := wal.NewRegistry(dir)
	require.NoError(t, r.Rotate(555))

	_, err := os.Stat(current)
	assert.True(t, os.IsNotExist(err))

	rotated, hasCurrent, err := r.List()
	require.NoError(t, err)
	assert.False(t, hasCurrent)
	require.Len(t, rotated, 1)
	assert.Equal(t, uint64(555), rotated[0].MaxCommitTS)
}

func TestRecycleWalFile_MissingIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	f := wal.RotatedFile{Path: filepath.Join(dir, "wal.log.999"), MaxCommitTS: 999}
	assert.NoError(t, wal.RecycleWalFile(f))
}
