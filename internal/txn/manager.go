// Package txn provides the minimal transaction identity and commit
// timestamp collaborator the WAL writer and checkpoint coordinator need:
// monotonically increasing transaction ids and commit timestamps, and a
// handle a caller can block on until its entry is durable.
package txn

import "sync/atomic"

// Manager hands out transaction ids and commit timestamps and tracks the
// highest commit timestamp assigned so far, satisfying wal.CommitTSSource.
type Manager struct {
	nextTxnID    atomic.Uint64
	nextCommitTS atomic.Uint64
}

// NewManager returns a Manager that continues numbering from
// startTxnID/startCommitTS, as recovered by wal.Replay.
func NewManager(startTxnID, startCommitTS uint64) *Manager {
	m := &Manager{}
	m.nextTxnID.Store(startTxnID)
	m.nextCommitTS.Store(startCommitTS)
	return m
}

// Begin allocates a new transaction id and returns a Handle a caller can
// pass to Writer.PutEntry and then Wait on for its commit timestamp.
func (m *Manager) Begin() *Handle {
	return &Handle{
		TxnID: m.nextTxnID.Add(1) - 1,
		done:  make(chan uint64, 1),
	}
}

// AssignCommitTS hands out the next commit timestamp. Callers must call
// this while still holding whatever ordering guarantee the caller needs
// (the WAL writer itself is single-threaded per file, but commit
// timestamp assignment happens before an entry reaches the writer).
func (m *Manager) AssignCommitTS() uint64 {
	return m.nextCommitTS.Add(1)
}

// CurrentMaxCommitTS reports the highest commit timestamp assigned so
// far. It satisfies wal.CommitTSSource.
func (m *Manager) CurrentMaxCommitTS() uint64 {
	ts := m.nextCommitTS.Load()
	if ts == 0 {
		return 0
	}
	return ts
}

// Handle represents one in-flight transaction. It satisfies
// wal.TxnHandle: the writer calls CommitBottom once the transaction's
// entry has been appended (and, per FlushOption, synced).
type Handle struct {
	TxnID uint64
	done  chan uint64
}

// CommitBottom signals a waiting caller that commitTS is now durable.
func (h *Handle) CommitBottom(commitTS uint64) {
	h.done <- commitTS
}

// Wait blocks until CommitBottom has been called and returns the commit
// timestamp the writer assigned durability to.
func (h *Handle) Wait() uint64 {
	return <-h.done
}
