package wal

import (
	"context"
	"log"
	"path/filepath"
	"sync/atomic"

	"github.com/coredb/coredb/internal/errors"
	"github.com/coredb/coredb/internal/observability"
	"github.com/coredb/coredb/internal/walcodec"
)

// CatalogSnapshotter is the narrow collaborator the checkpoint
// coordinator uses to persist a catalog snapshot without depending on
// internal/catalog's full API.
type CatalogSnapshotter interface {
	// WriteSnapshot persists a full or delta catalog snapshot capturing
	// state up to and including maxCommitTS, returning the path recorded
	// in the resulting Checkpoint command.
	WriteSnapshot(kind walcodec.CheckpointKind, maxCommitTS uint64) (path string, err error)
}

// CommitTSSource reports the highest commit timestamp the engine has
// assigned so far, used to decide whether a checkpoint has new work, and
// mints fresh ones for the checkpoint's own WAL entry.
type CommitTSSource interface {
	CurrentMaxCommitTS() uint64
	AssignCommitTS() uint64
}

// TaskProcessor runs a checkpoint attempt off the calling goroutine.
type TaskProcessor interface {
	Submit(task func())
}

// Archiver best-effort-copies a sealed local file to off-box object
// storage. Nil is a valid Coordinator field: archival is optional, and
// its absence never blocks local recycling.
type Archiver interface {
	ArchiveWALFile(ctx context.Context, localPath, filename string) error
	ArchiveCatalogSnapshot(ctx context.Context, localPath, filename string) error
}

// noopTxnHandle satisfies TxnHandle for the synthetic Checkpoint entry,
// which has no caller waiting on CommitBottom.
type noopTxnHandle struct{}

func (noopTxnHandle) CommitBottom(uint64) {}

// Coordinator runs single-flight checkpoints: at most one attempt is ever
// in progress, later triggers while one is running are silently skipped.
type Coordinator struct {
	processor  TaskProcessor
	catalog    CatalogSnapshotter
	commitTS   CommitTSSource
	writer     *Writer
	registry   *Registry
	archiver   Archiver
	stats      *observability.EngineStats
	inProgress atomic.Bool

	lastCkpTS     atomic.Uint64
	lastFullCkpTS atomic.Uint64
}

// NewCoordinator constructs a Coordinator wired to its collaborators.
func NewCoordinator(processor TaskProcessor, catalog CatalogSnapshotter, commitTS CommitTSSource, writer *Writer, registry *Registry) *Coordinator {
	return &Coordinator{
		processor: processor,
		catalog:   catalog,
		commitTS:  commitTS,
		writer:    writer,
		registry:  registry,
	}
}

// SetArchiver enables best-effort off-box archival of rotated WAL files
// and catalog snapshots as they're recycled. Passing nil disables it.
func (c *Coordinator) SetArchiver(a Archiver) {
	c.archiver = a
}

// SetWriter binds the writer a completed checkpoint appends its
// Checkpoint command through. Constructing the Writer requires a
// CheckpointTrigger and constructing the Coordinator's checkpoint entry
// append requires a *Writer, so callers wire this after both exist.
func (c *Coordinator) SetWriter(w *Writer) {
	c.writer = w
}

// SetStats attaches an observability sink recording checkpoint attempts
// by kind. Passing nil disables it.
func (c *Coordinator) SetStats(s *observability.EngineStats) {
	c.stats = s
}

// SeedFromReplay lets recovery restore the coordinator's last-known
// checkpoint timestamps before the writer accepts new traffic.
func (c *Coordinator) SeedFromReplay(lastCkpTS, lastFullCkpTS uint64) {
	c.lastCkpTS.Store(lastCkpTS)
	c.lastFullCkpTS.Store(lastFullCkpTS)
}

// TrySubmit attempts to start a checkpoint of the given kind. If one is
// already in flight, the request is dropped — the next writer-side
// trigger will try again once the current attempt completes.
func (c *Coordinator) TrySubmit(kind walcodec.CheckpointKind) {
	if !c.inProgress.CompareAndSwap(false, true) {
		return
	}
	// Captured on the caller's goroutine (the writer, for the delta
	// trigger) rather than inside the submitted task, so it reflects the
	// WAL size at the moment the checkpoint was requested, not whatever
	// size the writer has grown to by the time the task actually runs.
	walSizeSnapshot := c.writer.CurrentSize()
	c.processor.Submit(func() {
		defer c.inProgress.Store(false)
		if err := c.checkpointInner(kind, walSizeSnapshot); err != nil {
			if errors.IsFatal(err) {
				errors.Abort(err)
				return
			}
			log.Printf("wal: checkpoint(%s) skipped: %v", kind, err)
		}
	})
}

// checkpointInner performs one checkpoint attempt. Skip conditions
// (nothing new to capture) return a Recoverable error the caller logs
// and discards; a timestamp regression is Fatal and aborts the process,
// since it means the WAL and catalog have diverged. full and delta
// checkpoints are compared against their own watermark: a full
// checkpoint only skips when it would repeat the last full checkpoint,
// even if a delta has since advanced past that same commit timestamp.
func (c *Coordinator) checkpointInner(kind walcodec.CheckpointKind, walSizeSnapshot int64) error {
	maxCommitTS := c.commitTS.CurrentMaxCommitTS()

	var last uint64
	if kind == walcodec.CheckpointFull {
		last = c.lastFullCkpTS.Load()
	} else {
		last = c.lastCkpTS.Load()
	}

	if maxCommitTS < last {
		return errors.NewFatal(errors.CategoryCheckpoint, errors.CodeTimestampRegressed,
			"observed max commit timestamp is behind the last completed checkpoint")
	}
	if maxCommitTS == last {
		return errors.New(errors.CategoryCheckpoint, errors.CodeCheckpointInFlight,
			"no commits since the last checkpoint")
	}

	path, err := c.catalog.WriteSnapshot(kind, maxCommitTS)
	if err != nil {
		return errors.Wrap(errors.CategoryCheckpoint, errors.CodeIOFailure, "write catalog snapshot", err)
	}
	if c.archiver != nil {
		if err := c.archiver.ArchiveCatalogSnapshot(context.Background(), path, filepath.Base(path)); err != nil {
			log.Printf("wal: archive catalog snapshot %s: %v (kept locally)", path, err)
		}
	}

	// The checkpoint entry gets its own freshly minted commit_ts, kept
	// strictly greater than every entry it summarizes; maxCommitTS is
	// carried only as the CheckpointCmd payload's watermark. Minting
	// advances the shared commit_ts counter, so the watermark recorded
	// for the *next* skip check must be the entry's own commit_ts, not
	// the pre-mint maxCommitTS — otherwise a checkpoint's own entry looks
	// like unseen work to the very next checkpoint attempt.
	ckpCommitTS := c.commitTS.AssignCommitTS()
	entry := &walcodec.Entry{
		CommitTS: ckpCommitTS,
		Commands: []walcodec.Command{&walcodec.CheckpointCmd{
			Kind:        kind,
			MaxCommitTS: maxCommitTS,
			CatalogPath: path,
		}},
	}
	c.writer.PutEntry(entry, noopTxnHandle{})
	if c.stats != nil {
		c.stats.Record("checkpoints_completed", string(kind))
	}

	c.lastCkpTS.Store(ckpCommitTS)
	if kind == walcodec.CheckpointFull {
		c.lastFullCkpTS.Store(ckpCommitTS)
		c.recycleUpTo(maxCommitTS)
	}
	c.writer.NotifyCheckpointComplete(walSizeSnapshot)

	log.Printf("wal: checkpoint(%s) complete at commit_ts=%d, catalog=%s", kind, maxCommitTS, path)
	return nil
}

// recycleUpTo removes rotated WAL files fully covered by a completed full
// checkpoint. Deletion is only permitted for files whose MaxCommitTS is
// at or below the checkpoint's max_commit_ts.
func (c *Coordinator) recycleUpTo(maxCommitTS uint64) {
	rotated, _, err := c.registry.List()
	if err != nil {
		log.Printf("wal: recycle: list failed: %v", err)
		return
	}
	for _, f := range rotated {
		if f.MaxCommitTS > maxCommitTS {
			continue
		}
		if c.archiver != nil {
			if err := c.archiver.ArchiveWALFile(context.Background(), f.Path, filepath.Base(f.Path)); err != nil {
				log.Printf("wal: archive %s: %v (recycling locally anyway)", f.Path, err)
			}
		}
		if err := RecycleWalFile(f); err != nil {
			log.Printf("wal: recycle %s: %v", f.Path, err)
		}
	}
}

// LastCheckpointTS returns the commit_ts of the most recent checkpoint's
// own WAL entry (one past the max_commit_ts it captured), or the value
// given to SeedFromReplay if no checkpoint has run since.
func (c *Coordinator) LastCheckpointTS() uint64 { return c.lastCkpTS.Load() }

// LastFullCheckpointTS returns the commit_ts of the most recent full
// checkpoint's own WAL entry, or the value given to SeedFromReplay if no
// full checkpoint has run since.
func (c *Coordinator) LastFullCheckpointTS() uint64 { return c.lastFullCkpTS.Load() }
