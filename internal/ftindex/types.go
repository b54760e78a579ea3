// Package ftindex implements the full-text inverted index reader: a
// ColumnIndexReader that resolves a term to postings across a table's
// on-disk and in-memory segments, and a TableIndexReaderCache that keeps
// per-column readers warm across transactions using an MVCC interval.
package ftindex

import "github.com/coredb/coredb/pkg/types"

// OptionFlag carries index-implementation option bits (position lists,
// term frequency, block-max scores, ...), opaque to the catalog and
// passed through unchanged from a CreateIndex command's IndexDef.
type OptionFlag uint32

const (
	OptionHasPositions OptionFlag = 1 << iota
	OptionHasTermFreq
	OptionHasBlockMax
)

// Has reports whether flag bit b is set.
func (f OptionFlag) Has(b OptionFlag) bool { return f&b != 0 }

// SegmentPosting is one segment reader's postings for a single term,
// carrying enough to seek and score without touching the segment reader
// again.
type SegmentPosting struct {
	BaseRowID types.RowID
	DocFreq   uint32
	// DocIDs and Freqs are parallel, doc-local (0-based within the
	// segment) row offsets and their term frequency in that document.
	DocIDs []uint32
	Freqs  []uint32
	// BlockMaxScores holds, per fixed-size block of DocIDs, the maximum
	// BM25 contribution any document in that block can achieve — used by
	// BlockMaxTermDocIterator to skip whole blocks during top-k scoring.
	BlockMaxScores []float32
}

// SegmentIndexEntry is the catalog-side view of one segment's full-text
// index state for a column: the disk sub-segments plus at most one
// in-memory tail, and the running column-length totals BM25's average
// document length needs.
type SegmentIndexEntry interface {
	// FullTextIndexSnapshot returns, in on-disk order, the base names and
	// base row ids of this segment's disk sub-segments, plus an optional
	// in-memory tail indexer (nil if the tail is empty).
	FullTextIndexSnapshot() (baseNames []string, baseRowIDs []types.RowID, tail *MemoryIndexer)
	// FulltextColumnLenInfo returns this segment's contribution to the
	// column's average length: the sum of tokenized lengths and the
	// number of documents contributing to that sum.
	FulltextColumnLenInfo() (lenSum uint64, docCount uint32)
}

// MemoryIndexer is the in-memory tail of a column's full-text index —
// rows appended since the last disk flush of this segment's index.
type MemoryIndexer struct {
	BaseName  string
	BaseRowID types.RowID
	DocCount  uint32
	postings  map[string]SegmentPosting
}

// NewMemoryIndexer returns an empty in-memory tail indexer rooted at
// baseRowID.
func NewMemoryIndexer(baseName string, baseRowID types.RowID) *MemoryIndexer {
	return &MemoryIndexer{BaseName: baseName, BaseRowID: baseRowID, postings: make(map[string]SegmentPosting)}
}

// Put records docID's occurrences of term for later lookup. Callers
// building a tail indexer during Append replay call this once per
// distinct term in a newly appended document.
func (m *MemoryIndexer) Put(term string, docID uint32, freq uint32) {
	p := m.postings[term]
	p.DocIDs = append(p.DocIDs, docID)
	p.Freqs = append(p.Freqs, freq)
	p.DocFreq = uint32(len(p.DocIDs))
	m.postings[term] = p
	if docID+1 > uint32(m.DocCount) {
		m.DocCount = docID + 1
	}
}

func (m *MemoryIndexer) getPosting(term string) (SegmentPosting, bool) {
	p, ok := m.postings[term]
	if !ok {
		return SegmentPosting{}, false
	}
	p.BaseRowID = m.BaseRowID
	return p, true
}
