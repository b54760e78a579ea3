// Package bufmgr provides the buffer manager collaborator WAL replay and
// the full-text index reader use to resolve a segment's column entries
// to bytes without re-deriving layout: an opaque handle cache over
// column data files, evicted LRU-style under a byte budget. Grounded on
// the teacher's NVMeCache tiered-cache design, generalized from
// caching remote partition objects to caching a segment's column files.
package bufmgr

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coredb/coredb/internal/errors"
	"github.com/coredb/coredb/pkg/types"
)

// Handle is an opaque reference to a cached column's bytes. Callers must
// not retain the returned slice past the corresponding Unpin: cache
// pressure can free it once no handle holds it pinned.
type Handle struct {
	key   columnKey
	entry *columnEntry
}

// Bytes returns the column's bytes for reading. Valid only between Pin
// and Unpin.
func (h Handle) Bytes() []byte { return h.entry.data }

type columnKey struct {
	segmentID uint64
	columnID  uint64
}

type columnEntry struct {
	data        []byte
	lastAccess  atomic.Int64
	accessCount atomic.Int64
	pinCount    atomic.Int32
}

// Metrics tracks buffer manager cache effectiveness, mirroring the
// teacher's cache.Metrics shape.
type Metrics struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	Evictions atomic.Int64
	Entries   atomic.Int64
	SizeBytes atomic.Int64
}

// Manager caches decoded column entries by (segmentID, columnID),
// reconstructing them on miss from a SegmentInfo's ColumnEntryInfo file
// path and evicting least-recently-used unpinned entries once the
// cache exceeds maxBytes.
type Manager struct {
	maxBytes int64
	metrics  Metrics
	index    sync.Map // columnKey -> *columnEntry
}

// NewManager returns a Manager bounded at maxBytes of resident column data.
func NewManager(maxBytes int64) *Manager {
	return &Manager{maxBytes: maxBytes}
}

// Pin resolves segID's columnID to its bytes, loading colInfo.FilePath
// from disk on a cache miss, and marks the entry pinned so a concurrent
// eviction pass cannot free it out from under the caller. Every Pin
// must be matched by an Unpin.
func (m *Manager) Pin(seg types.SegmentInfo, colInfo types.ColumnEntryInfo) (Handle, error) {
	key := columnKey{segmentID: seg.SegmentID, columnID: colInfo.ColumnID}

	if v, ok := m.index.Load(key); ok {
		entry := v.(*columnEntry)
		m.touch(entry)
		entry.pinCount.Add(1)
		m.metrics.Hits.Add(1)
		return Handle{key: key, entry: entry}, nil
	}

	m.metrics.Misses.Add(1)
	data, err := os.ReadFile(colInfo.FilePath)
	if err != nil {
		return Handle{}, errors.Wrap(errors.CategoryStorage, errors.CodeDownloadFailed,
			fmt.Sprintf("load column %d of segment %d", colInfo.ColumnID, seg.SegmentID), err)
	}

	entry := &columnEntry{data: data}
	entry.pinCount.Store(1)
	m.touch(entry)

	if actual, loaded := m.index.LoadOrStore(key, entry); loaded {
		// Another goroutine won the race to populate this key; use its entry.
		entry = actual.(*columnEntry)
		m.touch(entry)
		entry.pinCount.Add(1)
	} else {
		m.metrics.Entries.Add(1)
		m.metrics.SizeBytes.Add(int64(len(data)))
		m.maybeEvict()
	}

	return Handle{key: key, entry: entry}, nil
}

// Unpin releases a Handle obtained from Pin, making its entry eligible
// for eviction once no other Pin holds it.
func (m *Manager) Unpin(h Handle) {
	h.entry.pinCount.Add(-1)
}

func (m *Manager) touch(e *columnEntry) {
	e.lastAccess.Store(time.Now().UnixNano())
	e.accessCount.Add(1)
}

// maybeEvict drops least-recently-used unpinned entries until the cache
// is back under budget, matching the teacher's performEviction pass.
func (m *Manager) maybeEvict() {
	if m.metrics.SizeBytes.Load() <= m.maxBytes {
		return
	}

	type candidate struct {
		key   columnKey
		entry *columnEntry
	}
	var candidates []candidate
	m.index.Range(func(k, v interface{}) bool {
		entry := v.(*columnEntry)
		if entry.pinCount.Load() == 0 {
			candidates = append(candidates, candidate{key: k.(columnKey), entry: entry})
		}
		return true
	})

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].entry.lastAccess.Load() < candidates[j].entry.lastAccess.Load()
	})

	for _, c := range candidates {
		if m.metrics.SizeBytes.Load() <= m.maxBytes {
			return
		}
		if _, ok := m.index.LoadAndDelete(c.key); ok {
			m.metrics.SizeBytes.Add(-int64(len(c.entry.data)))
			m.metrics.Entries.Add(-1)
			m.metrics.Evictions.Add(1)
		}
	}
}

// Snapshot returns a point-in-time copy of the cache's metrics.
func (m *Manager) Snapshot() (hits, misses, evictions, entries, sizeBytes int64) {
	return m.metrics.Hits.Load(), m.metrics.Misses.Load(), m.metrics.Evictions.Load(),
		m.metrics.Entries.Load(), m.metrics.SizeBytes.Load()
}
