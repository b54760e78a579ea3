package wal

import (
	"bytes"
	"io"
	"log"
	"os"

	"github.com/coredb/coredb/internal/errors"
	"github.com/coredb/coredb/internal/walcodec"
)

// ReplayHandler applies one replayed command's effect to the catalog. It
// must be idempotent: replay may re-apply a command whose effect already
// landed in a catalog snapshot loaded moments earlier only when that
// snapshot predates the command, never otherwise (Phase 2 below already
// excludes anything the checkpoint captured).
type ReplayHandler interface {
	Apply(cmd walcodec.Command) error
}

// CatalogLoader restores catalog state from the snapshot path recorded in
// the newest reachable Checkpoint command, before replay resumes forward.
type CatalogLoader interface {
	LoadSnapshot(path string) error
}

// ReplayResult seeds the engine's live state once recovery completes.
type ReplayResult struct {
	NextTxnID           uint64
	SystemMaxCommitTS   uint64
	LastCheckpointTS    uint64
	LastFullCheckpointTS uint64
}

// Replay recovers a WAL directory: it finds the newest reachable
// Checkpoint command by scanning files newest-to-oldest, restores the
// catalog from the snapshot it names, then replays every command
// committed after that checkpoint against handler in chronological order.
//
// A torn (truncated or checksum-failing) frame is tolerated only at the
// very tail of the newest file on disk — an interrupted final write.
// Anywhere else it is corruption and Replay returns a Fatal error.
func Replay(registry *Registry, loader CatalogLoader, handler ReplayHandler) (*ReplayResult, error) {
	rotated, hasCurrent, err := registry.List()
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(rotated)+1)
	for _, f := range rotated {
		paths = append(paths, f.Path)
	}
	if hasCurrent {
		paths = append(paths, registry.CurrentPath())
	}
	if len(paths) == 0 {
		return &ReplayResult{NextTxnID: 1}, nil
	}

	newestPath := paths[len(paths)-1]

	var (
		pending      []*walcodec.Entry // accumulated newest-first while scanning backward
		checkpoint   *walcodec.CheckpointCmd
		checkpointAt bool
		maxTxnID     uint64
		maxCommitTS  uint64
	)

scan:
	for i := len(paths) - 1; i >= 0; i-- {
		entries, err := decodeFile(paths[i], paths[i] == newestPath)
		if err != nil {
			return nil, err
		}
		for j := len(entries) - 1; j >= 0; j-- {
			e := entries[j]
			if e.TxnID > maxTxnID {
				maxTxnID = e.TxnID
			}
			if e.CommitTS > maxCommitTS {
				maxCommitTS = e.CommitTS
			}
			if ck := findCheckpoint(e); ck != nil {
				checkpoint = ck
				checkpointAt = true
				break scan
			}
			pending = append(pending, e)
		}
	}

	if checkpointAt {
		if err := loader.LoadSnapshot(checkpoint.CatalogPath); err != nil {
			return nil, errors.WrapFatal(errors.CategoryCatalog, errors.CodeCatalogFileMissing,
				"load catalog snapshot referenced by newest checkpoint", err)
		}
	}

	// pending is newest-first; reverse to chronological order.
	for i, j := 0, len(pending)-1; i < j; i, j = i+1, j-1 {
		pending[i], pending[j] = pending[j], pending[i]
	}

	checkpointMaxCommitTS := uint64(0)
	if checkpointAt {
		checkpointMaxCommitTS = checkpoint.MaxCommitTS
	}

	for _, e := range pending {
		// An entry whose commit_ts equals the checkpoint's max_commit_ts
		// was already captured by that checkpoint; replaying it again
		// would double-apply its effect.
		if checkpointAt && e.CommitTS <= checkpointMaxCommitTS {
			continue
		}
		for _, cmd := range e.Commands {
			if cmd.Type() == walcodec.CmdCheckpoint {
				continue
			}
			if err := handler.Apply(cmd); err != nil {
				return nil, errors.WrapFatal(errors.CategoryCatalog, errors.CodeUnexpected,
					"replay command", err)
			}
		}
	}

	result := &ReplayResult{
		NextTxnID:         maxTxnID + 1,
		SystemMaxCommitTS: maxCommitTS,
		LastCheckpointTS:  checkpointMaxCommitTS,
	}
	if checkpointAt && checkpoint.Kind == walcodec.CheckpointFull {
		result.LastFullCheckpointTS = checkpointMaxCommitTS
	}

	log.Printf("wal: replay complete, next_txn_id=%d system_max_commit_ts=%d",
		result.NextTxnID, result.SystemMaxCommitTS)
	return result, nil
}

func findCheckpoint(e *walcodec.Entry) *walcodec.CheckpointCmd {
	for _, cmd := range e.Commands {
		if ck, ok := cmd.(*walcodec.CheckpointCmd); ok {
			return ck
		}
	}
	return nil
}

// decodeFile reads every frame in path in forward order. If isNewest is
// true, a torn trailing frame is treated as an interrupted final write
// and silently dropped; otherwise it is Fatal corruption.
func decodeFile(path string, isNewest bool) ([]*walcodec.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(errors.CategoryWAL, errors.CodeIOFailure, "read WAL file for replay", err)
	}

	r := bytes.NewReader(data)
	var entries []*walcodec.Entry
	for {
		e, _, err := walcodec.Decode(r)
		if err == nil {
			entries = append(entries, e)
			continue
		}
		if err == io.EOF {
			break
		}
		if err == walcodec.ErrTornFrame && isNewest {
			log.Printf("wal: tolerating torn frame at tail of %s", path)
			break
		}
		return nil, errors.WrapFatal(errors.CategoryWAL, errors.CodeChecksumMismatch,
			"corrupt WAL frame outside the tail of the newest file: "+path, err)
	}
	return entries, nil
}
