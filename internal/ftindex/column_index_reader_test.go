package ftindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coredb/coredb/pkg/types"
)

type fakeSegmentEntry struct {
	baseNames  []string
	baseRowIDs []types.RowID
	tail       *MemoryIndexer
	lenSum     uint64
	docCount   uint32
}

func (e fakeSegmentEntry) FullTextIndexSnapshot() ([]string, []types.RowID, *MemoryIndexer) {
	return e.baseNames, e.baseRowIDs, e.tail
}

func (e fakeSegmentEntry) FulltextColumnLenInfo() (uint64, uint32) {
	return e.lenSum, e.docCount
}

func TestColumnIndexReader_Open_OrdersSegmentsAscending(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteDictionary(dir, "seg1-0", map[string]SegmentPosting{
		"cat": {DocFreq: 1, DocIDs: []uint32{0}, Freqs: []uint32{1}},
	}))
	require.NoError(t, WriteDictionary(dir, "seg2-0", map[string]SegmentPosting{
		"cat": {DocFreq: 1, DocIDs: []uint32{0}, Freqs: []uint32{1}},
	}))

	bySegment := map[uint64]SegmentIndexEntry{
		2: fakeSegmentEntry{baseNames: []string{"seg2-0"}, baseRowIDs: []types.RowID{100}, lenSum: 40, docCount: 4},
		1: fakeSegmentEntry{baseNames: []string{"seg1-0"}, baseRowIDs: []types.RowID{0}, lenSum: 10, docCount: 2},
	}

	var r ColumnIndexReader
	r.Open(OptionHasTermFreq, dir, bySegment)

	require.Len(t, r.segmentReaders, 2)
	assert.Equal(t, []types.RowID{0, 100, types.InvalidRowID}, r.baseRowIDs)

	it := r.Lookup("cat")
	require.NotNil(t, it)
	rowID, _, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, types.RowID(0), rowID)
	rowID, _, ok = it.Next()
	require.True(t, ok)
	assert.Equal(t, types.RowID(100), rowID)
}

func TestColumnIndexReader_Open_IncludesNonEmptyTail(t *testing.T) {
	dir := t.TempDir()
	tail := NewMemoryIndexer("tail-0", types.RowID(200))
	tail.Put("dog", 0, 1)

	bySegment := map[uint64]SegmentIndexEntry{
		1: fakeSegmentEntry{tail: tail, lenSum: 5, docCount: 1},
	}

	var r ColumnIndexReader
	r.Open(OptionHasTermFreq, dir, bySegment)

	require.Len(t, r.segmentReaders, 1)
	it := r.Lookup("dog")
	require.NotNil(t, it)
	rowID, _, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, types.RowID(200), rowID)
}

func TestColumnIndexReader_Open_SkipsEmptyTail(t *testing.T) {
	dir := t.TempDir()
	tail := NewMemoryIndexer("tail-0", types.RowID(200))

	bySegment := map[uint64]SegmentIndexEntry{
		1: fakeSegmentEntry{tail: tail},
	}

	var r ColumnIndexReader
	r.Open(OptionHasTermFreq, dir, bySegment)
	assert.Empty(t, r.segmentReaders)
}

func TestColumnIndexReader_Lookup_NoMatchReturnsNil(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteDictionary(dir, "seg1-0", map[string]SegmentPosting{}))
	bySegment := map[uint64]SegmentIndexEntry{
		1: fakeSegmentEntry{baseNames: []string{"seg1-0"}, baseRowIDs: []types.RowID{0}},
	}
	var r ColumnIndexReader
	r.Open(OptionHasTermFreq, dir, bySegment)
	assert.Nil(t, r.Lookup("missing"))
}

func TestColumnIndexReader_LookupBlockMax_AppliesWeight(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteDictionary(dir, "seg1-0", map[string]SegmentPosting{
		"cat": {DocFreq: 1, DocIDs: []uint32{0}, Freqs: []uint32{1}, BlockMaxScores: []float32{4}},
	}))
	bySegment := map[uint64]SegmentIndexEntry{
		1: fakeSegmentEntry{baseNames: []string{"seg1-0"}, baseRowIDs: []types.RowID{0}},
	}
	var r ColumnIndexReader
	r.Open(OptionHasBlockMax, dir, bySegment)

	it := r.LookupBlockMax("cat", 0.5)
	require.NotNil(t, it)
	assert.InDelta(t, 2.0, it.BlockMaxScore(), 0.0001)
}

func TestColumnIndexReader_AvgColumnLength(t *testing.T) {
	dir := t.TempDir()
	bySegment := map[uint64]SegmentIndexEntry{
		1: fakeSegmentEntry{lenSum: 20, docCount: 4},
		2: fakeSegmentEntry{lenSum: 10, docCount: 2},
	}
	var r ColumnIndexReader
	r.Open(OptionHasTermFreq, dir, bySegment)

	avg, err := r.AvgColumnLength()
	require.NoError(t, err)
	assert.InDelta(t, 5.0, avg, 0.0001)
}

func TestColumnIndexReader_AvgColumnLength_ZeroDocsIsFatal(t *testing.T) {
	var r ColumnIndexReader
	r.Open(OptionHasTermFreq, t.TempDir(), map[uint64]SegmentIndexEntry{})

	_, err := r.AvgColumnLength()
	require.Error(t, err)
}
