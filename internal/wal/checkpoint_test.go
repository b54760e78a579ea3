package wal_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredb/coredb/internal/wal"
	"github.com/coredb/coredb/internal/walcodec"
)

type syncProcessor struct{}

func (syncProcessor) Submit(task func()) { task() }

type fakeSnapshotter struct {
	mu    sync.Mutex
	calls []walcodec.CheckpointKind
	path  string
	err   error
}

func (f *fakeSnapshotter) WriteSnapshot(kind walcodec.CheckpointKind, maxCommitTS uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind)
	if f.err != nil {
		return "", f.err
	}
	return f.path, nil
}

type fakeCommitTS struct{ v atomic.Uint64 }

func (f *fakeCommitTS) CurrentMaxCommitTS() uint64 { return f.v.Load() }

func (f *fakeCommitTS) AssignCommitTS() uint64 { return f.v.Add(1) }

type fakeArchiver struct {
	mu            sync.Mutex
	archivedWAL   []string
	archivedSnaps []string
}

func (a *fakeArchiver) ArchiveWALFile(_ context.Context, localPath, filename string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archivedWAL = append(a.archivedWAL, filename)
	return nil
}

func (a *fakeArchiver) ArchiveCatalogSnapshot(_ context.Context, localPath, filename string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archivedSnaps = append(a.archivedSnaps, filename)
	return nil
}

func TestCoordinator_TrySubmit_WritesCheckpointEntry(t *testing.T) {
	w := newTestWriter(t, wal.OnlyWrite)
	go w.Run()
	defer w.Stop()

	snap := &fakeSnapshotter{path: "/tmp/catalog-1.db"}
	commitTS := &fakeCommitTS{}
	commitTS.v.Store(50)

	c := wal.NewCoordinator(syncProcessor{}, snap, commitTS, w, wal.NewRegistry(t.TempDir()))
	c.TrySubmit(walcodec.CheckpointFull)

	// The checkpoint entry mints its own commit_ts (51), one past the
	// pre-checkpoint max (50) recorded in the CheckpointCmd payload.
	assert.Equal(t, uint64(51), c.LastCheckpointTS())
	assert.Equal(t, uint64(51), c.LastFullCheckpointTS())
	require.Len(t, snap.calls, 1)
	assert.Equal(t, walcodec.CheckpointFull, snap.calls[0])
}

func TestCoordinator_TrySubmit_SkipsWhenNothingNew(t *testing.T) {
	w := newTestWriter(t, wal.OnlyWrite)
	go w.Run()
	defer w.Stop()

	snap := &fakeSnapshotter{path: "/tmp/catalog-1.db"}
	commitTS := &fakeCommitTS{}
	commitTS.v.Store(10)

	c := wal.NewCoordinator(syncProcessor{}, snap, commitTS, w, wal.NewRegistry(t.TempDir()))
	c.TrySubmit(walcodec.CheckpointFull)
	c.TrySubmit(walcodec.CheckpointDelta) // no new commits since

	assert.Len(t, snap.calls, 1)
}

func TestCoordinator_SeedFromReplay(t *testing.T) {
	w := newTestWriter(t, wal.OnlyWrite)
	go w.Run()
	defer w.Stop()

	snap := &fakeSnapshotter{path: "/tmp/catalog-2.db"}
	commitTS := &fakeCommitTS{}
	commitTS.v.Store(200)

	c := wal.NewCoordinator(syncProcessor{}, snap, commitTS, w, wal.NewRegistry(t.TempDir()))
	c.SeedFromReplay(100, 100)
	assert.Equal(t, uint64(100), c.LastCheckpointTS())

	c.TrySubmit(walcodec.CheckpointDelta)
	assert.Equal(t, uint64(201), c.LastCheckpointTS())
	assert.Equal(t, uint64(100), c.LastFullCheckpointTS(), "delta checkpoint must not advance the full watermark")
}

func TestCoordinator_FullCheckpoint_ArchivesSnapshotAndRecycledFiles(t *testing.T) {
	w := newTestWriter(t, wal.OnlyWrite)
	go w.Run()
	defer w.Stop()

	dir := t.TempDir()
	registry := wal.NewRegistry(dir)
	rotatedPath := filepath.Join(dir, wal.WalFilename(30))
	require.NoError(t, os.WriteFile(rotatedPath, []byte("sealed"), 0644))

	snapPath := filepath.Join(dir, "catalog-full-50.snap")
	require.NoError(t, os.WriteFile(snapPath, []byte("snapshot"), 0644))
	snap := &fakeSnapshotter{path: snapPath}
	commitTS := &fakeCommitTS{}
	commitTS.v.Store(50)

	c := wal.NewCoordinator(syncProcessor{}, snap, commitTS, w, registry)
	arc := &fakeArchiver{}
	c.SetArchiver(arc)

	c.TrySubmit(walcodec.CheckpointFull)

	assert.Equal(t, []string{"catalog-full-50.snap"}, arc.archivedSnaps)
	assert.Equal(t, []string{filepath.Base(rotatedPath)}, arc.archivedWAL)

	_, err := os.Stat(rotatedPath)
	assert.True(t, os.IsNotExist(err), "recycled file must still be removed locally after archiving")
}
