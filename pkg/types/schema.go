package types

// TableSchema defines the column layout of a table as recorded in the
// catalog and carried by CreateTable / AlterInfo WAL commands.
type TableSchema struct {
	// Version tracks schema evolution for backward compatibility.
	Version int `json:"version"`

	// Columns defines the columns in the table, in catalog order.
	Columns []ColumnDef `json:"columns"`
}

// ColumnDef defines a single column in a table schema.
type ColumnDef struct {
	// Name is the column name.
	Name string `json:"name"`

	// Type is the logical column type: TEXT, INTEGER, BLOB, REAL, VARCHAR.
	Type string `json:"type"`

	// Nullable indicates whether the column can contain NULL values.
	Nullable bool `json:"nullable"`

	// PrimaryKey indicates whether this column is part of the primary key.
	PrimaryKey bool `json:"primary_key"`
}

// IndexKind distinguishes the index types a CreateIndex command can build.
type IndexKind string

const (
	// IndexKindFullText builds an inverted index over a text column.
	IndexKindFullText IndexKind = "fulltext"
	// IndexKindSecondary builds a plain value -> row id index.
	IndexKindSecondary IndexKind = "secondary"
)

// IndexDef defines an index on a table.
type IndexDef struct {
	// Name is the index name, unique within its table.
	Name string `json:"name"`

	// Column is the indexed column.
	Column string `json:"column"`

	// Kind selects the index implementation.
	Kind IndexKind `json:"kind"`

	// Analyzer names the text analyzer used to tokenize a full-text column.
	// Empty for non full-text indexes.
	Analyzer string `json:"analyzer,omitempty"`

	// OptionFlag carries index-implementation option bits (position lists,
	// tf, block-max scores, ...), opaque to the catalog.
	OptionFlag uint32 `json:"option_flag,omitempty"`
}
