package ftindex

import (
	"math"
	"sync"

	"github.com/coredb/coredb/internal/errors"
	"github.com/coredb/coredb/internal/observability"
)

// IndexMeta describes one full-text index as of a lookup, enough for
// TableIndexReaderCache to decide whether it can reuse an already-open
// ColumnIndexReader or must open a fresh one.
type IndexMeta struct {
	ColumnID   uint64
	ColumnName string
	Analyzer   string
	Flag       OptionFlag
	IndexDir   string
	// SegmentUpdateTS is the highest commit timestamp at which this
	// column's full-text index was last mutated (a new segment sealed,
	// an in-memory tail appended to).
	SegmentUpdateTS uint64
	Segments        map[uint64]SegmentIndexEntry
}

// TableIndexSource is the narrow catalog collaborator the cache queries
// for a table's current full-text indexes as of (txnID, beginTS).
type TableIndexSource interface {
	FullTextIndexMetas(txnID, beginTS uint64) ([]IndexMeta, error)
}

// IndexReaderSet is what GetIndexReader hands back: a resolved set of
// per-column readers plus the analyzer each indexed column uses.
type IndexReaderSet struct {
	ColumnReaders   map[uint64]*ColumnIndexReader
	Column2Analyzer map[string]string
}

// TableIndexReaderCache keeps a table's full-text ColumnIndexReaders warm
// across transactions using the interval invariant
// cache_ts <= first_known_update_ts <= last_known_update_ts: a lookup
// whose begin_ts falls in [cache_ts, first_known_update_ts) can reuse the
// cached set outright; a lookup whose begin_ts has caught up to every
// known update (begin_ts >= last_known_update_ts) gets to refresh it.
type TableIndexReaderCache struct {
	mu sync.Mutex

	cacheTS            uint64
	firstKnownUpdateTS uint64
	lastKnownUpdateTS  uint64

	cacheColumnTS      map[uint64]uint64
	cacheColumnReaders map[uint64]*ColumnIndexReader
	column2Analyzer    map[string]string

	stats *observability.EngineStats
}

// SetStats attaches an observability sink recording fast-path hits
// versus rebuilds. Passing nil disables it.
func (c *TableIndexReaderCache) SetStats(s *observability.EngineStats) {
	c.stats = s
}

// NewTableIndexReaderCache returns an empty cache with
// first_known_update_ts at its maximum sentinel, so the very first
// UpdateKnownUpdateTs call always widens it.
func NewTableIndexReaderCache() *TableIndexReaderCache {
	return &TableIndexReaderCache{
		firstKnownUpdateTS: math.MaxUint64,
		cacheColumnTS:      map[uint64]uint64{},
		cacheColumnReaders: map[uint64]*ColumnIndexReader{},
		column2Analyzer:    map[string]string{},
	}
}

// UpdateKnownUpdateTs records that some segment's full-text index moved
// to ts, asserting monotonicity against that segment's own previously
// known update timestamp (segmentUpdateTS), and widens the cache's
// pending-update interval. It returns the new value the caller should
// store back as that segment's update timestamp.
func (c *TableIndexReaderCache) UpdateKnownUpdateTs(ts, segmentUpdateTS uint64) (uint64, error) {
	if ts < segmentUpdateTS {
		return segmentUpdateTS, errors.NewFatal(errors.CategoryIndex, errors.CodeNonMonotonicTS,
			"full-text index update timestamp went backwards")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ts < c.firstKnownUpdateTS {
		c.firstKnownUpdateTS = ts
	}
	if ts > c.lastKnownUpdateTS {
		c.lastKnownUpdateTS = ts
	}
	return ts, nil
}

// GetIndexReader resolves the full-text readers a transaction started at
// beginTS should see. The fast path returns the cached set by reference
// when beginTS falls inside [cache_ts, first_known_update_ts); otherwise
// it rebuilds per current index metadata, reusing a column's cached
// reader whenever that column's build timestamp is unchanged, and only
// promotes the rebuilt result into the cache once beginTS has caught up
// to every known update.
func (c *TableIndexReaderCache) GetIndexReader(txnID, beginTS uint64, table TableIndexSource) (*IndexReaderSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if beginTS >= c.cacheTS && beginTS < c.firstKnownUpdateTS {
		if c.stats != nil {
			c.stats.Record("index_reader_cache", "hit")
		}
		return &IndexReaderSet{
			ColumnReaders:   c.cacheColumnReaders,
			Column2Analyzer: c.column2Analyzer,
		}, nil
	}
	if c.stats != nil {
		c.stats.Record("index_reader_cache", "miss")
	}

	metas, err := table.FullTextIndexMetas(txnID, beginTS)
	if err != nil {
		return nil, errors.Wrap(errors.CategoryIndex, errors.CodeIndexNotFound, "load full-text index metadata", err)
	}

	rebuiltColumnTS := make(map[uint64]uint64, len(metas))
	rebuiltReaders := make(map[uint64]*ColumnIndexReader, len(metas))
	rebuiltAnalyzers := make(map[string]string, len(metas))

	for _, m := range metas {
		if existing, ok := rebuiltColumnTS[m.ColumnID]; ok && existing >= m.SegmentUpdateTS {
			continue
		}
		rebuiltColumnTS[m.ColumnID] = m.SegmentUpdateTS
		rebuiltAnalyzers[m.ColumnName] = m.Analyzer

		if prevTS, ok := c.cacheColumnTS[m.ColumnID]; ok && prevTS == m.SegmentUpdateTS {
			rebuiltReaders[m.ColumnID] = c.cacheColumnReaders[m.ColumnID]
			continue
		}
		reader := &ColumnIndexReader{}
		reader.Open(m.Flag, m.IndexDir, m.Segments)
		rebuiltReaders[m.ColumnID] = reader
	}

	if beginTS >= c.lastKnownUpdateTS {
		c.cacheTS = c.lastKnownUpdateTS
		c.firstKnownUpdateTS = math.MaxUint64
		c.lastKnownUpdateTS = 0
		c.cacheColumnTS = rebuiltColumnTS
		c.cacheColumnReaders = rebuiltReaders
		c.column2Analyzer = rebuiltAnalyzers
	}

	return &IndexReaderSet{ColumnReaders: rebuiltReaders, Column2Analyzer: rebuiltAnalyzers}, nil
}
