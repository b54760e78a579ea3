package ftindex

import "github.com/coredb/coredb/pkg/types"

// blockSize is the fixed number of documents each block-max score in a
// SegmentPosting.BlockMaxScores covers.
const blockSize = 128

// BlockMaxTermDocIterator wraps a PostingIterator with a per-term BM25
// weight and exposes each block's maximum achievable score, letting a
// top-k scorer skip an entire block once it can prove no document inside
// it could enter the current result heap.
type BlockMaxTermDocIterator struct {
	inner  *PostingIterator
	weight float32
}

func newBlockMaxTermDocIterator(flag OptionFlag, segPostings []SegmentPosting) *BlockMaxTermDocIterator {
	return &BlockMaxTermDocIterator{
		inner:  newPostingIterator(flag, segPostings),
		weight: 1,
	}
}

// MultiplyWeight scales every score this iterator reports by w, letting a
// query combine per-term weights (e.g. field boosts) without rescoring.
func (it *BlockMaxTermDocIterator) MultiplyWeight(w float32) {
	it.weight *= w
}

// Next advances to the next matching document.
func (it *BlockMaxTermDocIterator) Next() (rowID types.RowID, freq uint32, ok bool) {
	return it.inner.Next()
}

// DocFreq returns the term's total document frequency.
func (it *BlockMaxTermDocIterator) DocFreq() uint32 {
	return it.inner.DocFreq()
}

// BlockMaxScore returns the highest weighted score any document in the
// current segment's current block could achieve, or 0 if the current
// segment carries no block-max scores (flag OptionHasBlockMax unset).
func (it *BlockMaxTermDocIterator) BlockMaxScore() float32 {
	if it.inner.segIdx >= len(it.inner.postings) {
		return 0
	}
	p := it.inner.postings[it.inner.segIdx]
	blockIdx := it.inner.docIdx / blockSize
	if blockIdx >= len(p.BlockMaxScores) {
		return 0
	}
	return p.BlockMaxScores[blockIdx] * it.weight
}

// SkipBlock advances past every remaining document in the current
// segment's current block without scoring them.
func (it *BlockMaxTermDocIterator) SkipBlock() {
	if it.inner.segIdx >= len(it.inner.postings) {
		return
	}
	p := it.inner.postings[it.inner.segIdx]
	nextBlockStart := ((it.inner.docIdx / blockSize) + 1) * blockSize
	if nextBlockStart >= len(p.DocIDs) {
		it.inner.segIdx++
		it.inner.docIdx = 0
		return
	}
	it.inner.docIdx = nextBlockStart
}

// Reset rewinds the iterator to its first document.
func (it *BlockMaxTermDocIterator) Reset() {
	it.inner.Reset()
}
