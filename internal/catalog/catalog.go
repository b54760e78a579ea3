// Package catalog persists database/table/index/segment metadata in a
// SQLite database, replays WAL commands against it, and produces the
// compressed snapshot files a Checkpoint command's CatalogPath names.
// It generalizes the manifest catalog's single-writer/pooled-reader
// SQLite pattern from a partition-only schema to full DDL.
package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"

	"github.com/coredb/coredb/internal/bufmgr"
	"github.com/coredb/coredb/internal/errors"
	"github.com/coredb/coredb/internal/ftindex"
	"github.com/coredb/coredb/internal/wal"
	"github.com/coredb/coredb/internal/walcodec"
	"github.com/coredb/coredb/pkg/types"
)

// Catalog is the collaborator the WAL writer, checkpoint coordinator and
// replay dispatch against. A *SQLiteCatalog satisfies wal.ReplayHandler,
// wal.CatalogLoader and wal.CatalogSnapshotter simultaneously.
type Catalog interface {
	Apply(cmd walcodec.Command) error
	WriteSnapshot(kind walcodec.CheckpointKind, maxCommitTS uint64) (string, error)
	LoadSnapshot(path string) error
	SeedFromReplay(result *wal.ReplayResult) error
	Close() error
}

// SQLiteCatalog implements Catalog. Like the manifest catalog it keeps a
// single write connection (SQLite allows only one writer) and a pooled
// read connection for concurrent lookups, both in WAL journal mode.
type SQLiteCatalog struct {
	db     *sql.DB
	readDB *sql.DB
	dbPath string
	snapDir string
	mu     sync.Mutex

	// bufmgr and indexDir are optional: nil/empty until SetIndexBuilder is
	// called, which is when CreateIndex replay starts actually building a
	// full-text term dictionary rather than only recording metadata.
	bufmgr   *bufmgr.Manager
	indexDir string
}

// SetIndexBuilder wires the buffer manager and full-text index directory
// CreateIndex replay uses to re-execute an index build against
// already-replayed row data. Passing a nil manager leaves Apply's
// CreateIndex handler recording index metadata only.
func (c *SQLiteCatalog) SetIndexBuilder(bm *bufmgr.Manager, indexDir string) {
	c.bufmgr = bm
	c.indexDir = indexDir
}

// NewSQLiteCatalog opens (creating if necessary) the catalog database at
// dbPath and ensures snapDir exists for checkpoint snapshot files.
func NewSQLiteCatalog(dbPath, snapDir string) (*SQLiteCatalog, error) {
	if err := os.MkdirAll(snapDir, 0755); err != nil {
		return nil, errors.WrapFatal(errors.CategoryCatalog, errors.CodeIOFailure, "create snapshot directory", err)
	}

	c := &SQLiteCatalog{dbPath: dbPath, snapDir: snapDir}
	if err := c.open(); err != nil {
		return nil, err
	}
	if err := c.ensureSchema(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCatalog) open() error {
	db, err := sql.Open("sqlite3", c.dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return errors.WrapFatal(errors.CategoryCatalog, errors.CodeIOFailure, "open catalog database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	readDB, err := sql.Open("sqlite3", c.dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return errors.WrapFatal(errors.CategoryCatalog, errors.CodeIOFailure, "open catalog read database", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)

	c.db = db
	c.readDB = readDB
	return nil
}

func (c *SQLiteCatalog) ensureSchema() error {
	for _, stmt := range allSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return errors.WrapFatal(errors.CategoryCatalog, errors.CodeCatalogParseError, "apply catalog schema", err)
		}
	}
	return nil
}

// Close closes both database connections.
func (c *SQLiteCatalog) Close() error {
	var firstErr error
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil {
			firstErr = err
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Apply dispatches one replayed (or live) command to its handler,
// idempotently: Import/Compact synthesize deterministic segment rows
// from the command payload alone, and CreateIndex re-executes the index
// build against already-replayed row data (when SetIndexBuilder has
// wired a buffer manager) rather than depending on a persisted index
// file.
func (c *SQLiteCatalog) Apply(cmd walcodec.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch v := cmd.(type) {
	case *walcodec.CreateDatabaseCmd:
		_, err := c.db.Exec(`INSERT OR IGNORE INTO databases (database_name, created_at_commit_ts) VALUES (?, 0)`,
			v.DatabaseName)
		return wrapExec(err, "apply CreateDatabase")

	case *walcodec.DropDatabaseCmd:
		_, err := c.db.Exec(`DELETE FROM databases WHERE database_name = ?`, v.DatabaseName)
		return wrapExec(err, "apply DropDatabase")

	case *walcodec.CreateTableCmd:
		schemaJSON, err := json.Marshal(v.Schema)
		if err != nil {
			return errors.WrapFatal(errors.CategoryCatalog, errors.CodeCatalogParseError, "marshal table schema", err)
		}
		_, err = c.db.Exec(`INSERT OR REPLACE INTO tables (database_name, table_name, schema_json, created_at_commit_ts) VALUES (?, ?, ?, 0)`,
			v.DatabaseName, v.TableName, string(schemaJSON))
		return wrapExec(err, "apply CreateTable")

	case *walcodec.DropTableCmd:
		_, err := c.db.Exec(`DELETE FROM tables WHERE database_name = ? AND table_name = ?`, v.DatabaseName, v.TableName)
		if err == nil {
			_, err = c.db.Exec(`DELETE FROM segments WHERE database_name = ? AND table_name = ?`, v.DatabaseName, v.TableName)
		}
		return wrapExec(err, "apply DropTable")

	case *walcodec.CreateIndexCmd:
		_, err := c.db.Exec(`INSERT OR REPLACE INTO indexes (database_name, table_name, index_name, column_name, kind, analyzer, option_flag, created_at_commit_ts) VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
			v.DatabaseName, v.TableName, v.Index.Name, v.Index.Column, string(v.Index.Kind), v.Index.Analyzer, v.Index.OptionFlag)
		if err != nil {
			return wrapExec(err, "apply CreateIndex")
		}
		if v.Index.Kind == types.IndexKindFullText {
			return c.buildFullTextIndex(v)
		}
		return nil

	case *walcodec.DropIndexCmd:
		_, err := c.db.Exec(`DELETE FROM indexes WHERE database_name = ? AND table_name = ? AND index_name = ?`,
			v.DatabaseName, v.TableName, v.IndexName)
		return wrapExec(err, "apply DropIndex")

	case *walcodec.AppendCmd:
		// Append grows an existing (unsealed) segment's row count; the row
		// bytes themselves live in the buffer manager, not the catalog.
		_, err := c.db.Exec(`UPDATE segments SET row_count = row_count + ? WHERE database_name = ? AND table_name = ? AND segment_id = ?`,
			len(v.Rows), v.DatabaseName, v.TableName, v.SegmentID)
		return wrapExec(err, "apply Append")

	case *walcodec.DeleteCmd:
		// Deletes are recorded against the buffer manager's visibility
		// bitmap, not the catalog's segment row; nothing to mutate here.
		return nil

	case *walcodec.ImportCmd:
		return c.upsertSegment(v.DatabaseName, v.TableName, v.Segment)

	case *walcodec.CompactCmd:
		if err := c.upsertSegment(v.DatabaseName, v.TableName, v.Result); err != nil {
			return err
		}
		for _, srcID := range v.Result.SourceSegmentIDs {
			_, err := c.db.Exec(`UPDATE segments SET status = ? WHERE database_name = ? AND table_name = ? AND segment_id = ?`,
				string(types.SegmentStatusDeprecated), v.DatabaseName, v.TableName, srcID)
			if err != nil {
				return wrapExec(err, "mark compacted source segment deprecated")
			}
		}
		return nil

	case *walcodec.CheckpointCmd:
		return nil // replay skips Checkpoint commands themselves

	case *walcodec.AlterInfoCmd:
		for k, val := range v.Info {
			_, err := c.db.Exec(`INSERT OR REPLACE INTO table_info (database_name, table_name, info_key, info_value) VALUES (?, ?, ?, ?)`,
				v.DatabaseName, v.TableName, k, val)
			if err != nil {
				return wrapExec(err, "apply AlterInfo")
			}
		}
		return nil

	default:
		return errors.NewFatal(errors.CategoryCatalog, errors.CodeUnknownCommand,
			fmt.Sprintf("no replay handler for command type %T", cmd))
	}
}

func (c *SQLiteCatalog) upsertSegment(database, table string, seg types.SegmentInfo) error {
	blocksJSON, err := json.Marshal(seg.Blocks)
	if err != nil {
		return errors.WrapFatal(errors.CategoryCatalog, errors.CodeCatalogParseError, "marshal segment blocks", err)
	}
	columnsJSON, err := json.Marshal(seg.Columns)
	if err != nil {
		return errors.WrapFatal(errors.CategoryCatalog, errors.CodeCatalogParseError, "marshal segment columns", err)
	}
	sourcesJSON, err := json.Marshal(seg.SourceSegmentIDs)
	if err != nil {
		return errors.WrapFatal(errors.CategoryCatalog, errors.CodeCatalogParseError, "marshal source segment ids", err)
	}

	_, err = c.db.Exec(`INSERT OR REPLACE INTO segments
		(database_name, table_name, segment_id, status, base_row_id, row_count, blocks_json, columns_json, source_segment_ids_json, created_at_commit_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		database, table, seg.SegmentID, string(seg.Status), uint64(seg.BaseRowID), seg.RowCount, string(blocksJSON), string(columnsJSON), string(sourcesJSON))
	return wrapExec(err, "upsert segment")
}

// buildFullTextIndex re-executes cmd's index build against every already
// sealed segment's row data: it pins the indexed column's bytes through
// the buffer manager, tokenizes them, and writes a term dictionary
// internal/ftindex.ColumnIndexReader can load. A no-op when no buffer
// manager has been wired via SetIndexBuilder, and per-segment failures
// (missing column, unreadable file) are skipped rather than aborting the
// whole replay; a skipped segment gets no dictionary from this build, and
// Append replay does not build one later.
func (c *SQLiteCatalog) buildFullTextIndex(cmd *walcodec.CreateIndexCmd) error {
	if c.bufmgr == nil || c.indexDir == "" {
		return nil
	}

	rows, err := c.readDB.Query(`SELECT segment_id, columns_json FROM segments
		WHERE database_name = ? AND table_name = ? AND status = ?`,
		cmd.DatabaseName, cmd.TableName, string(types.SegmentStatusSealed))
	if err != nil {
		return wrapExec(err, "list sealed segments for index build")
	}
	defer rows.Close()

	type segRow struct {
		segmentID   uint64
		columnsJSON string
	}
	var segs []segRow
	for rows.Next() {
		var s segRow
		if err := rows.Scan(&s.segmentID, &s.columnsJSON); err != nil {
			return wrapExec(err, "scan segment row for index build")
		}
		segs = append(segs, s)
	}
	if err := rows.Err(); err != nil {
		return wrapExec(err, "iterate segments for index build")
	}

	for _, s := range segs {
		var columns []types.ColumnEntryInfo
		if err := json.Unmarshal([]byte(s.columnsJSON), &columns); err != nil {
			return errors.WrapFatal(errors.CategoryCatalog, errors.CodeCatalogParseError, "parse segment columns for index build", err)
		}
		colInfo, ok := findColumn(columns, cmd.Index.Column)
		if !ok {
			continue // segment predates this column; nothing to index yet
		}

		seg := types.SegmentInfo{SegmentID: s.segmentID, DatabaseName: cmd.DatabaseName, TableName: cmd.TableName}
		handle, err := c.bufmgr.Pin(seg, colInfo)
		if err != nil {
			log.Printf("catalog: skip full-text index build for segment %d: %v", s.segmentID, err)
			continue
		}
		postings := tokenizeColumnToPostings(handle.Bytes())
		c.bufmgr.Unpin(handle)

		baseName := fmt.Sprintf("%s_%s_%s_seg%d", cmd.DatabaseName, cmd.TableName, cmd.Index.Name, s.segmentID)
		if err := ftindex.WriteDictionary(c.indexDir, baseName, postings); err != nil {
			return err
		}
	}
	return nil
}

func findColumn(columns []types.ColumnEntryInfo, name string) (types.ColumnEntryInfo, bool) {
	for _, col := range columns {
		if col.ColumnName == name {
			return col, true
		}
	}
	return types.ColumnEntryInfo{}, false
}

// tokenizeColumnToPostings treats colBytes as newline-delimited row
// values (one document per line, matching the segment's row order) and
// builds a term -> SegmentPosting map: lower-cased, split on runs of
// non-letter/non-digit runes. A real analyzer pipeline (stemming, stop
// words, per-language rules) is out of scope; this is the minimum
// tokenizer that lets a lookup round-trip through WriteDictionary.
func tokenizeColumnToPostings(colBytes []byte) map[string]ftindex.SegmentPosting {
	postings := make(map[string]ftindex.SegmentPosting)
	lines := strings.Split(string(colBytes), "\n")
	for docID, line := range lines {
		terms := strings.FieldsFunc(strings.ToLower(line), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		freqs := make(map[string]uint32, len(terms))
		for _, term := range terms {
			freqs[term]++
		}
		for term, freq := range freqs {
			p := postings[term]
			p.DocIDs = append(p.DocIDs, uint32(docID))
			p.Freqs = append(p.Freqs, freq)
			p.DocFreq = uint32(len(p.DocIDs))
			postings[term] = p
		}
	}
	return postings
}

func wrapExec(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(errors.CategoryCatalog, errors.CodeUnexpected, op, err)
}

// WriteSnapshot flushes SQLite's own WAL into the main database file,
// snappy-compresses it, and writes it under snapDir. It satisfies
// wal.CatalogSnapshotter. A "delta" snapshot in this implementation
// captures the same fully-mutated catalog file as a "full" one — Apply
// already keeps the live database current, so the distinction that
// matters is which kind of checkpoint permits WAL file recycling, not
// what bytes get written.
func (c *SQLiteCatalog) WriteSnapshot(kind walcodec.CheckpointKind, maxCommitTS uint64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec(`INSERT OR REPLACE INTO catalog_meta (key, value) VALUES (?, ?)`, metaKeyMaxCommitTS, maxCommitTS); err != nil {
		return "", wrapExec(err, "record max commit ts")
	}
	if _, err := c.db.Exec(`INSERT OR REPLACE INTO catalog_meta (key, value) VALUES (?, ?)`, metaKeyLastCkpTS, maxCommitTS); err != nil {
		return "", wrapExec(err, "record checkpoint ts")
	}
	if kind == walcodec.CheckpointFull {
		if _, err := c.db.Exec(`INSERT OR REPLACE INTO catalog_meta (key, value) VALUES (?, ?)`, metaKeyLastFullCkp, maxCommitTS); err != nil {
			return "", wrapExec(err, "record full checkpoint ts")
		}
	}
	if _, err := c.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return "", errors.Wrap(errors.CategoryCatalog, errors.CodeIOFailure, "checkpoint sqlite WAL into main file", err)
	}

	raw, err := os.ReadFile(c.dbPath)
	if err != nil {
		return "", errors.WrapFatal(errors.CategoryCatalog, errors.CodeIOFailure, "read catalog database file", err)
	}
	compressed := snappy.Encode(nil, raw)

	name := fmt.Sprintf("catalog-%s-%s.snap", kind, strconv.FormatUint(maxCommitTS, 10))
	path := filepath.Join(c.snapDir, name)
	if err := os.WriteFile(path, compressed, 0644); err != nil {
		return "", errors.WrapFatal(errors.CategoryCatalog, errors.CodeIOFailure, "write catalog snapshot", err)
	}
	return path, nil
}

// LoadSnapshot decompresses and restores the catalog database file from
// path, replacing whatever is currently on disk. It satisfies
// wal.CatalogLoader and is only called once, before replay resumes.
func (c *SQLiteCatalog) LoadSnapshot(path string) error {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapFatal(errors.CategoryCatalog, errors.CodeCatalogFileMissing, "read catalog snapshot", err)
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return errors.WrapFatal(errors.CategoryCatalog, errors.CodeCatalogParseError, "decompress catalog snapshot", err)
	}

	if err := c.Close(); err != nil {
		return errors.WrapFatal(errors.CategoryCatalog, errors.CodeIOFailure, "close catalog before restore", err)
	}
	if err := os.WriteFile(c.dbPath, raw, 0644); err != nil {
		return errors.WrapFatal(errors.CategoryCatalog, errors.CodeIOFailure, "write restored catalog database", err)
	}
	if err := c.open(); err != nil {
		return err
	}
	return c.ensureSchema()
}

// SeedFromReplay persists the counters wal.Replay computed so a restart
// after this one continues numbering correctly even without a fresh
// checkpoint in between.
func (c *SQLiteCatalog) SeedFromReplay(result *wal.ReplayResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pairs := map[string]uint64{
		metaKeyNextTxnID:   result.NextTxnID,
		metaKeyMaxCommitTS: result.SystemMaxCommitTS,
		metaKeyLastCkpTS:   result.LastCheckpointTS,
		metaKeyLastFullCkp: result.LastFullCheckpointTS,
	}
	for k, v := range pairs {
		if _, err := c.db.Exec(`INSERT OR REPLACE INTO catalog_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return wrapExec(err, "seed catalog meta from replay")
		}
	}
	return nil
}

// MetaUint64 reads one catalog_meta counter, returning 0 if unset.
func (c *SQLiteCatalog) MetaUint64(key string) (uint64, error) {
	var v uint64
	err := c.readDB.QueryRow(`SELECT value FROM catalog_meta WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, wrapExec(err, "read catalog meta")
	}
	return v, nil
}
