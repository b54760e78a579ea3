package ftindex

import (
	"sort"

	"github.com/coredb/coredb/internal/errors"
	"github.com/coredb/coredb/pkg/types"
)

// ColumnIndexReader resolves a term to postings across every disk and
// in-memory segment reader for one full-text-indexed column, mirroring
// the original ColumnIndexReader::Open/Lookup/LookupBlockMax/
// GetAvgColumnLength.
type ColumnIndexReader struct {
	flag           OptionFlag
	indexDir       string
	segmentReaders []segmentReader
	baseRowIDs     []types.RowID // parallel to segmentReaders, plus a trailing sentinel

	lenSum   uint64
	lenCount uint32
}

// Open builds, per segment in ascending segment id order, disk
// sub-segment readers plus at most one in-memory tail reader (included
// only when its doc count is nonzero), and appends a trailing
// types.InvalidRowID sentinel after the last real base row id.
func (r *ColumnIndexReader) Open(flag OptionFlag, indexDir string, bySegment map[uint64]SegmentIndexEntry) {
	r.flag = flag
	r.indexDir = indexDir

	segIDs := make([]uint64, 0, len(bySegment))
	for id := range bySegment {
		segIDs = append(segIDs, id)
	}
	sort.Slice(segIDs, func(i, j int) bool { return segIDs[i] < segIDs[j] })

	for _, segID := range segIDs {
		entry := bySegment[segID]
		baseNames, baseRowIDs, tail := entry.FullTextIndexSnapshot()
		for i, name := range baseNames {
			reader := newDiskSegmentReader(indexDir, name, baseRowIDs[i], flag)
			r.segmentReaders = append(r.segmentReaders, reader)
			r.baseRowIDs = append(r.baseRowIDs, baseRowIDs[i])
		}
		if tail != nil && tail.DocCount != 0 {
			r.segmentReaders = append(r.segmentReaders, newInMemSegmentReader(tail))
			r.baseRowIDs = append(r.baseRowIDs, tail.BaseRowID)
		}

		sum, cnt := entry.FulltextColumnLenInfo()
		r.lenSum += sum
		r.lenCount += cnt
	}

	r.baseRowIDs = append(r.baseRowIDs, types.InvalidRowID)
}

// Lookup walks segment readers in order, collecting present
// SegmentPostings, returning nil (absence) if none matched.
func (r *ColumnIndexReader) Lookup(term string) *PostingIterator {
	var matched []SegmentPosting
	for _, sr := range r.segmentReaders {
		if p, ok := sr.getSegmentPosting(term); ok {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	return newPostingIterator(r.flag, matched)
}

// LookupBlockMax is Lookup for BM25 top-k scoring: the same merged
// postings, wrapped in a BlockMaxTermDocIterator with weight applied.
func (r *ColumnIndexReader) LookupBlockMax(term string, weight float32) *BlockMaxTermDocIterator {
	var matched []SegmentPosting
	for _, sr := range r.segmentReaders {
		if p, ok := sr.getSegmentPosting(term); ok {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	it := newBlockMaxTermDocIterator(r.flag, matched)
	it.MultiplyWeight(weight)
	return it
}

// AvgColumnLength returns the average tokenized length of documents in
// this column across every segment. A zero document count is Fatal: it
// means this reader was opened against a column with no full-text data
// at all, which the caller should never have asked to score against.
func (r *ColumnIndexReader) AvgColumnLength() (float64, error) {
	if r.lenCount == 0 {
		return 0, errors.NewFatal(errors.CategoryIndex, errors.CodeDivideByZero,
			"full-text column has zero indexed documents")
	}
	return float64(r.lenSum) / float64(r.lenCount), nil
}
