package ftindex

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/coredb/coredb/internal/bloom"
	"github.com/coredb/coredb/internal/errors"
	"github.com/coredb/coredb/pkg/types"
)

// segmentReader resolves a term to a SegmentPosting within one disk or
// in-memory sub-segment, mirroring the original's DiskIndexSegmentReader
// / InMemIndexSegmentReader split.
type segmentReader interface {
	getSegmentPosting(term string) (SegmentPosting, bool)
}

// diskSegmentReader reads postings from a sealed dictionary file on
// disk, guarded by a bloom filter over the file's term set so a lookup
// for an absent term never opens the file.
type diskSegmentReader struct {
	baseRowID types.RowID
	dictPath  string
	filter    *bloom.BloomFilter
	flag      OptionFlag

	loaded   bool
	postings map[string]SegmentPosting
}

func newDiskSegmentReader(indexDir, baseName string, baseRowID types.RowID, flag OptionFlag) *diskSegmentReader {
	return &diskSegmentReader{
		baseRowID: baseRowID,
		dictPath:  filepath.Join(indexDir, baseName+".dict"),
		flag:      flag,
	}
}

// onDiskDictionary is the JSON encoding a segment's term dictionary is
// written in — a plain map is sufficient at this scale; the bloom filter
// in front of it is what keeps a Lookup miss cheap.
type onDiskDictionary struct {
	Filter   []byte                    `json:"filter"`
	Postings map[string]SegmentPosting `json:"postings"`
}

func (r *diskSegmentReader) load() error {
	if r.loaded {
		return nil
	}
	data, err := os.ReadFile(r.dictPath)
	if err != nil {
		if os.IsNotExist(err) {
			r.postings = map[string]SegmentPosting{}
			r.filter = bloom.New(64, 1)
			r.loaded = true
			return nil
		}
		return errors.WrapFatal(errors.CategoryIndex, errors.CodeIOFailure, "read term dictionary file", err)
	}

	var d onDiskDictionary
	if err := json.Unmarshal(data, &d); err != nil {
		return errors.WrapFatal(errors.CategoryIndex, errors.CodeCatalogParseError, "parse term dictionary file", err)
	}
	filter, err := bloom.Deserialize(d.Filter)
	if err != nil {
		return errors.WrapFatal(errors.CategoryIndex, errors.CodeCatalogParseError, "deserialize dictionary bloom filter", err)
	}

	r.filter = filter
	r.postings = d.Postings
	r.loaded = true
	return nil
}

func (r *diskSegmentReader) getSegmentPosting(term string) (SegmentPosting, bool) {
	if err := r.load(); err != nil {
		return SegmentPosting{}, false
	}
	if !r.filter.Contains([]byte(term)) {
		return SegmentPosting{}, false
	}
	p, ok := r.postings[term]
	if !ok {
		return SegmentPosting{}, false
	}
	p.BaseRowID = r.baseRowID
	return p, true
}

// inMemSegmentReader wraps a MemoryIndexer as a segmentReader.
type inMemSegmentReader struct {
	indexer *MemoryIndexer
}

func newInMemSegmentReader(indexer *MemoryIndexer) *inMemSegmentReader {
	return &inMemSegmentReader{indexer: indexer}
}

func (r *inMemSegmentReader) getSegmentPosting(term string) (SegmentPosting, bool) {
	return r.indexer.getPosting(term)
}

// WriteDictionary persists postings as a bloom-filter-fronted on-disk
// dictionary, the format newDiskSegmentReader expects to load. Used by
// the component that flushes a sealed segment's in-memory index to disk.
func WriteDictionary(indexDir, baseName string, postings map[string]SegmentPosting) error {
	filter := bloom.NewWithEstimates(len(postings), 0.01)
	for term := range postings {
		filter.Add([]byte(term))
	}
	filterBytes, err := filter.Serialize()
	if err != nil {
		return errors.WrapFatal(errors.CategoryIndex, errors.CodeUnexpected, "serialize dictionary bloom filter", err)
	}

	data, err := json.Marshal(onDiskDictionary{Filter: filterBytes, Postings: postings})
	if err != nil {
		return errors.WrapFatal(errors.CategoryIndex, errors.CodeUnexpected, "marshal term dictionary", err)
	}
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return errors.WrapFatal(errors.CategoryIndex, errors.CodeIOFailure, "create index directory", err)
	}
	path := filepath.Join(indexDir, baseName+".dict")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.WrapFatal(errors.CategoryIndex, errors.CodeIOFailure, "write term dictionary", err)
	}
	return nil
}
