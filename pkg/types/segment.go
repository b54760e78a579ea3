package types

// RowID identifies a row within a table's global row-id space. Segments are
// assigned a contiguous range of row ids at creation; row ids are otherwise
// opaque, monotonically increasing offsets.
type RowID uint64

// InvalidRowID is the sentinel appended after the last real base row id in
// a ColumnIndexReader's segment list, terminating segment-order iteration.
const InvalidRowID RowID = ^RowID(0)

// SegmentStatus describes the lifecycle stage of a segment.
type SegmentStatus string

const (
	// SegmentStatusUnsealed is a segment still accepting appends.
	SegmentStatusUnsealed SegmentStatus = "unsealed"
	// SegmentStatusSealed is an immutable, fully persisted segment.
	SegmentStatusSealed SegmentStatus = "sealed"
	// SegmentStatusDeprecated is a sealed segment superseded by compaction.
	SegmentStatusDeprecated SegmentStatus = "deprecated"
)

// BlockInfo describes one fixed-size row group within a segment.
type BlockInfo struct {
	BlockID  uint32 `json:"block_id"`
	RowCount int64  `json:"row_count"`
}

// ColumnEntryInfo describes the on-disk layout of one column within a
// segment, enough for a replay handler to reconstruct a buffer-manager
// column entry without re-reading source data.
type ColumnEntryInfo struct {
	ColumnID   uint64 `json:"column_id"`
	ColumnName string `json:"column_name"`
	FilePath   string `json:"file_path"`
}

// SegmentInfo carries the minimum catalog/data state needed to reconstruct
// a segment during WAL replay of an Import or Compact command. It is
// deliberately self-contained: replay must not need to re-derive layout
// from anything other than this struct plus the buffer manager handle.
type SegmentInfo struct {
	SegmentID   uint64            `json:"segment_id"`
	TableName   string            `json:"table_name"`
	DatabaseName string           `json:"database_name"`
	Status      SegmentStatus     `json:"status"`
	BaseRowID   RowID             `json:"base_row_id"`
	RowCount    int64             `json:"row_count"`
	Blocks      []BlockInfo       `json:"blocks"`
	Columns     []ColumnEntryInfo `json:"columns"`
	// SourceSegmentIDs lists the sealed segments a Compact command merged
	// to produce this one; empty for a plain Import.
	SourceSegmentIDs []uint64 `json:"source_segment_ids,omitempty"`
}
