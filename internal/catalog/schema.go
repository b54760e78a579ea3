package catalog

// SQL schema for the catalog database. The catalog tracks databases,
// tables, indexes and segments as they are mutated by replayed or live
// WAL commands. Mirrors the manifest catalog's single-table-per-concern
// shape, generalized from a partition-only model to the full DDL surface
// spec.md's commands require.

const createDatabasesTableSQL = `
CREATE TABLE IF NOT EXISTS databases (
    database_name TEXT PRIMARY KEY,
    created_at_commit_ts INTEGER NOT NULL
)`

const createTablesTableSQL = `
CREATE TABLE IF NOT EXISTS tables (
    database_name TEXT NOT NULL,
    table_name TEXT NOT NULL,
    schema_json TEXT NOT NULL,
    created_at_commit_ts INTEGER NOT NULL,
    PRIMARY KEY (database_name, table_name)
)`

const createIndexesTableSQL = `
CREATE TABLE IF NOT EXISTS indexes (
    database_name TEXT NOT NULL,
    table_name TEXT NOT NULL,
    index_name TEXT NOT NULL,
    column_name TEXT NOT NULL,
    kind TEXT NOT NULL,
    analyzer TEXT,
    option_flag INTEGER NOT NULL DEFAULT 0,
    created_at_commit_ts INTEGER NOT NULL,
    PRIMARY KEY (database_name, table_name, index_name)
)`

const createSegmentsTableSQL = `
CREATE TABLE IF NOT EXISTS segments (
    database_name TEXT NOT NULL,
    table_name TEXT NOT NULL,
    segment_id INTEGER NOT NULL,
    status TEXT NOT NULL,
    base_row_id INTEGER NOT NULL,
    row_count INTEGER NOT NULL,
    blocks_json TEXT NOT NULL,
    columns_json TEXT NOT NULL,
    source_segment_ids_json TEXT,
    created_at_commit_ts INTEGER NOT NULL,
    PRIMARY KEY (database_name, table_name, segment_id)
)`

const createMetaTableSQL = `
CREATE TABLE IF NOT EXISTS catalog_meta (
    key TEXT PRIMARY KEY,
    value INTEGER NOT NULL
)`

const createInfoTableSQL = `
CREATE TABLE IF NOT EXISTS table_info (
    database_name TEXT NOT NULL,
    table_name TEXT NOT NULL,
    info_key TEXT NOT NULL,
    info_value TEXT NOT NULL,
    PRIMARY KEY (database_name, table_name, info_key)
)`

func allSchemaSQL() []string {
	return []string{
		createDatabasesTableSQL,
		createTablesTableSQL,
		createIndexesTableSQL,
		createSegmentsTableSQL,
		createMetaTableSQL,
		createInfoTableSQL,
	}
}

const (
	metaKeyNextTxnID    = "next_txn_id"
	metaKeyMaxCommitTS  = "system_max_commit_ts"
	metaKeyLastCkpTS    = "last_ckp_ts"
	metaKeyLastFullCkp  = "last_full_ckp_ts"
)
