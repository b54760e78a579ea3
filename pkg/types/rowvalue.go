// Package types provides the shared wire and domain types used across the
// WAL, catalog, and full-text index packages.
package types

// Row is a single logical row carried by an Append command payload, keyed
// by column name so it can be applied against any table schema during
// replay without a separate column-position mapping.
type Row struct {
	// Values maps column name to its scalar value. Supported value kinds
	// are string, int64, float64, bool, []byte and nil.
	Values map[string]interface{} `json:"values"`
}

// RowRange identifies a contiguous span of row ids, used by Delete
// commands to mark rows within a segment as removed.
type RowRange struct {
	SegmentID uint64 `json:"segment_id"`
	StartRow  RowID  `json:"start_row"`
	EndRow    RowID  `json:"end_row"`
}
