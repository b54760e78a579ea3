package ftindex

import "github.com/coredb/coredb/pkg/types"

// PostingIterator walks the merged postings for one term across every
// segment reader that had a match, in ascending global row id order.
type PostingIterator struct {
	flag     OptionFlag
	postings []SegmentPosting
	segIdx   int
	docIdx   int
}

// newPostingIterator builds an iterator over segPostings, which callers
// must already have ordered by ascending BaseRowID (ColumnIndexReader
// guarantees this since it walks segment_readers_ in ascending order).
func newPostingIterator(flag OptionFlag, segPostings []SegmentPosting) *PostingIterator {
	return &PostingIterator{flag: flag, postings: segPostings}
}

// Next advances to the next matching document and returns its global row
// id and term frequency. ok is false once every segment is exhausted.
func (it *PostingIterator) Next() (rowID types.RowID, freq uint32, ok bool) {
	for it.segIdx < len(it.postings) {
		p := it.postings[it.segIdx]
		if it.docIdx >= len(p.DocIDs) {
			it.segIdx++
			it.docIdx = 0
			continue
		}
		rowID = p.BaseRowID + types.RowID(p.DocIDs[it.docIdx])
		freq = p.Freqs[it.docIdx]
		it.docIdx++
		return rowID, freq, true
	}
	return 0, 0, false
}

// DocFreq returns the total document frequency of the term across every
// matched segment, used as BM25's idf term.
func (it *PostingIterator) DocFreq() uint32 {
	var total uint32
	for _, p := range it.postings {
		total += p.DocFreq
	}
	return total
}

// Reset rewinds the iterator to its first document.
func (it *PostingIterator) Reset() {
	it.segIdx = 0
	it.docIdx = 0
}
