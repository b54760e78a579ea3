package wal

import (
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coredb/coredb/internal/errors"
	"github.com/coredb/coredb/internal/observability"
	"github.com/coredb/coredb/internal/walcodec"
)

// FlushOption controls how aggressively the writer syncs each batch to
// stable storage.
type FlushOption int

const (
	// FlushAtOnce calls Sync after every batch. Strongest durability,
	// highest latency per batch.
	FlushAtOnce FlushOption = iota
	// OnlyWrite never calls Sync; the OS page cache alone backs
	// durability until the next checkpoint. Genuinely skips fsync.
	OnlyWrite
	// FlushPerSecond calls Sync at most once per second, checked against
	// the wall clock on the arrival path rather than a dedicated timer
	// goroutine — an idle writer costs nothing.
	FlushPerSecond
)

// TxnHandle is the narrow collaborator interface the writer calls back
// into once an entry's bytes are durable (or written, per FlushOption).
type TxnHandle interface {
	CommitBottom(commitTS uint64)
}

// CheckpointTrigger lets the writer ask the checkpoint coordinator to
// attempt a single-flight checkpoint without depending on its full API.
type CheckpointTrigger interface {
	TrySubmit(kind walcodec.CheckpointKind)
}

type pendingEntry struct {
	entry *walcodec.Entry
	txn   TxnHandle
}

// WriterConfig configures a Writer's behavior.
type WriterConfig struct {
	Registry                        *Registry
	FlushOption                     FlushOption
	WalSizeThreshold                int64
	DeltaCheckpointIntervalWALBytes int64
	Checkpoint                      CheckpointTrigger
	// Stats is optional; when set, the writer records entries-written and
	// bytes-fsynced counters on it.
	Stats *observability.EngineStats
}

// Writer is the single-goroutine group-commit WAL writer. Callers enqueue
// entries with PutEntry from any number of goroutines; one internal
// goroutine drains the queue, encodes, appends, flushes, and calls back
// into each entry's TxnHandle in enqueue order.
type Writer struct {
	registry    *Registry
	flushOption FlushOption

	walSizeThreshold                int64
	deltaCheckpointIntervalWALBytes int64
	checkpoint                      CheckpointTrigger
	stats                           *observability.EngineStats

	file *os.File
	// fileSize is written only from the writer goroutine but read from
	// the checkpoint coordinator's goroutine via CurrentSize, hence
	// atomic rather than plain.
	fileSize atomic.Int64
	// lastCkpWalSize is the WAL size as of the last successful checkpoint
	// attempt, measured against the current file: rotate subtracts the
	// sealed file's size from it, so fileSize - lastCkpWalSize stays the
	// byte count written since that checkpoint and is compared against
	// deltaCheckpointIntervalWALBytes after each batch.
	// Written from the checkpoint coordinator's goroutine, read from the
	// writer's, hence atomic rather than plain.
	lastCkpWalSize atomic.Int64
	lastSyncAt     time.Time
	// fileSizeAtLastSync lets maybeSync report only the bytes newly
	// covered by each fsync to observability, not the whole file size.
	fileSizeAtLastSync int64

	// reqCh is sized generously rather than truly unbounded — PutEntry
	// blocks only if the writer falls catastrophically behind, which in
	// practice means the process is already failing.
	reqCh  chan *pendingEntry
	doneCh chan struct{}
	once   sync.Once
}

// NewWriter opens (creating if necessary) the registry's current WAL file
// for appending and returns a Writer positioned at its current size.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	path := cfg.Registry.CurrentPath()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.WrapFatal(errors.CategoryWAL, errors.CodeIOFailure, "open WAL file", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.WrapFatal(errors.CategoryWAL, errors.CodeIOFailure, "stat WAL file", err)
	}

	w := &Writer{
		registry:                        cfg.Registry,
		flushOption:                     cfg.FlushOption,
		walSizeThreshold:                cfg.WalSizeThreshold,
		deltaCheckpointIntervalWALBytes: cfg.DeltaCheckpointIntervalWALBytes,
		checkpoint:                      cfg.Checkpoint,
		stats:                           cfg.Stats,
		file:                            f,
		reqCh:                           make(chan *pendingEntry, 4096),
		doneCh:                          make(chan struct{}),
	}
	w.fileSize.Store(info.Size())
	return w, nil
}

// PutEntry enqueues entry for the writer goroutine and returns
// immediately; txn.CommitBottom is invoked once the batch containing
// entry has been appended (and, per FlushOption, synced).
func (w *Writer) PutEntry(entry *walcodec.Entry, txn TxnHandle) {
	w.reqCh <- &pendingEntry{entry: entry, txn: txn}
}

// Stop drains any entries already enqueued, flushes them, and closes the
// underlying file. It is idempotent.
func (w *Writer) Stop() {
	w.once.Do(func() {
		w.reqCh <- nil
	})
	<-w.doneCh
}

// Run drains the queue until a nil sentinel arrives. It must run on its
// own goroutine; callers use Stop to request shutdown.
func (w *Writer) Run() {
	defer close(w.doneCh)
	defer w.file.Close()

	var batch []*pendingEntry
	for {
		p, ok := <-w.reqCh
		if !ok || p == nil {
			w.drainNonBlocking(&batch)
			if len(batch) > 0 {
				w.flushBatch(batch)
			}
			return
		}
		batch = append(batch, p)
		stop := w.drainNonBlocking(&batch)
		w.flushBatch(batch)
		batch = batch[:0]
		if stop {
			return
		}
	}
}

// drainNonBlocking appends every entry already queued to batch and
// reports whether it consumed the nil stop sentinel.
func (w *Writer) drainNonBlocking(batch *[]*pendingEntry) bool {
	for {
		select {
		case p := <-w.reqCh:
			if p == nil {
				return true
			}
			*batch = append(*batch, p)
		default:
			return false
		}
	}
}

// flushBatch encodes and appends every entry in batch, applies the
// configured flush policy, rotates and triggers a checkpoint if needed,
// then calls each entry's CommitBottom in order. Any I/O or size-mismatch
// failure aborts the process — the writer cannot make a partial-durability
// promise to its callers.
func (w *Writer) flushBatch(batch []*pendingEntry) {
	for _, p := range batch {
		want := p.entry.SizeInBytes()
		n, err := p.entry.Encode(w.file)
		if err != nil {
			errors.Abort(err)
			return
		}
		if n != want {
			errors.Abort(errors.NewFatal(errors.CategoryWAL, errors.CodeSizeMismatch,
				"WAL entry encoded size did not match bytes written"))
			return
		}
		w.fileSize.Add(int64(n))
		if w.stats != nil {
			w.stats.Record("wal_entries_written", commandLabel(p.entry))
		}
	}

	if err := w.maybeSync(); err != nil {
		errors.Abort(err)
		return
	}

	if w.fileSize.Load() > w.walSizeThreshold {
		if err := w.rotate(batch[len(batch)-1].entry.CommitTS); err != nil {
			errors.Abort(err)
			return
		}
	}

	if w.checkpoint != nil && w.fileSize.Load()-w.lastCkpWalSize.Load() > w.deltaCheckpointIntervalWALBytes {
		w.checkpoint.TrySubmit(walcodec.CheckpointDelta)
	}

	for _, p := range batch {
		p.txn.CommitBottom(p.entry.CommitTS)
	}
}

func (w *Writer) maybeSync() error {
	switch w.flushOption {
	case OnlyWrite:
		return nil
	case FlushPerSecond:
		if time.Since(w.lastSyncAt) < time.Second {
			return nil
		}
	case FlushAtOnce:
		// always sync
	}
	if err := w.file.Sync(); err != nil {
		return errors.WrapFatal(errors.CategoryWAL, errors.CodeIOFailure, "sync WAL file", err)
	}
	if w.stats != nil {
		w.stats.AddBytes("wal_bytes_fsynced", w.fileSize.Load()-w.fileSizeAtLastSync)
	}
	w.fileSizeAtLastSync = w.fileSize.Load()
	w.lastSyncAt = time.Now()
	return nil
}

// commandLabel returns the first command's type name in entry, used as
// the wal_entries_written label breakdown; multi-command entries are
// rare enough in practice that the first command's type is a fair label.
func commandLabel(entry *walcodec.Entry) string {
	if len(entry.Commands) == 0 {
		return "unknown"
	}
	switch entry.Commands[0].Type() {
	case walcodec.CmdCreateDatabase:
		return "create_database"
	case walcodec.CmdDropDatabase:
		return "drop_database"
	case walcodec.CmdCreateTable:
		return "create_table"
	case walcodec.CmdDropTable:
		return "drop_table"
	case walcodec.CmdCreateIndex:
		return "create_index"
	case walcodec.CmdDropIndex:
		return "drop_index"
	case walcodec.CmdAppend:
		return "append"
	case walcodec.CmdDelete:
		return "delete"
	case walcodec.CmdImport:
		return "import"
	case walcodec.CmdCompact:
		return "compact"
	case walcodec.CmdCheckpoint:
		return "checkpoint"
	case walcodec.CmdAlterInfo:
		return "alter_info"
	default:
		return "unknown"
	}
}

func (w *Writer) rotate(maxCommitTS uint64) error {
	if err := w.file.Close(); err != nil {
		return errors.WrapFatal(errors.CategoryWAL, errors.CodeIOFailure, "close WAL file before rotation", err)
	}
	if err := w.registry.Rotate(maxCommitTS); err != nil {
		return err
	}
	f, err := os.OpenFile(w.registry.CurrentPath(), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return errors.WrapFatal(errors.CategoryWAL, errors.CodeIOFailure, "open new WAL file after rotation", err)
	}
	w.file = f
	w.lastCkpWalSize.Add(-w.fileSize.Load())
	w.fileSize.Store(0)
	log.Printf("wal: rotated file, sealed at commit_ts=%d", maxCommitTS)
	return nil
}

// CurrentSize returns the current WAL file's byte size. Safe to call from
// any goroutine; the checkpoint coordinator reads it to snapshot the WAL
// size a checkpoint attempt starts from.
func (w *Writer) CurrentSize() int64 {
	return w.fileSize.Load()
}

// NotifyCheckpointComplete lets the checkpoint coordinator report the WAL
// size as of a successful checkpoint, so the next delta-checkpoint trigger
// is measured from there.
func (w *Writer) NotifyCheckpointComplete(walSizeAtCheckpoint int64) {
	w.lastCkpWalSize.Store(walSizeAtCheckpoint)
}
