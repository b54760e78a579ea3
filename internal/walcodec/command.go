package walcodec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/coredb/coredb/internal/errors"
	"github.com/coredb/coredb/pkg/types"
)

// ErrUnknownCommand is returned by DecodeCommand when a frame carries a
// type tag this build of the engine doesn't recognize.
var ErrUnknownCommand = errors.NewFatal(errors.CategoryWAL, errors.CodeUnknownCommand,
	"WAL frame carries an unrecognized command type tag")

// CommandType tags the concrete kind of a Command inside a WAL entry.
type CommandType uint8

const (
	CmdCreateDatabase CommandType = iota + 1
	CmdDropDatabase
	CmdCreateTable
	CmdDropTable
	CmdCreateIndex
	CmdDropIndex
	CmdAppend
	CmdDelete
	CmdImport
	CmdCompact
	CmdCheckpoint
	CmdAlterInfo
)

// Command is a tagged variant carrying the minimum catalog/data state a
// replay handler needs to reconstruct a command's effect. Each concrete
// command type encodes its fields as JSON — the outer WAL frame already
// carries a size prefix and a CRC32 checksum over the raw bytes, so
// command payloads need only be self-describing, not hand-rolled binary.
type Command interface {
	Type() CommandType
	EncodedSize() int
	Encode(buf []byte) (int, error)
}

func encodeJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func writeLenPrefixed(buf []byte, payload []byte) int {
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	return 4 + len(payload)
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, ErrTornFrame
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, ErrTornFrame
	}
	return payload, nil
}

// --- CreateDatabase ---

type CreateDatabaseCmd struct {
	DatabaseName string `json:"database_name"`
}

func (c *CreateDatabaseCmd) Type() CommandType { return CmdCreateDatabase }
func (c *CreateDatabaseCmd) EncodedSize() int  { b, _ := encodeJSON(c); return 4 + len(b) }
func (c *CreateDatabaseCmd) Encode(buf []byte) (int, error) {
	b, err := encodeJSON(c)
	if err != nil {
		return 0, err
	}
	return writeLenPrefixed(buf, b), nil
}

// --- DropDatabase ---

type DropDatabaseCmd struct {
	DatabaseName string `json:"database_name"`
}

func (c *DropDatabaseCmd) Type() CommandType { return CmdDropDatabase }
func (c *DropDatabaseCmd) EncodedSize() int  { b, _ := encodeJSON(c); return 4 + len(b) }
func (c *DropDatabaseCmd) Encode(buf []byte) (int, error) {
	b, err := encodeJSON(c)
	if err != nil {
		return 0, err
	}
	return writeLenPrefixed(buf, b), nil
}

// --- CreateTable ---

type CreateTableCmd struct {
	DatabaseName string           `json:"database_name"`
	TableName    string           `json:"table_name"`
	Schema       types.TableSchema `json:"schema"`
}

func (c *CreateTableCmd) Type() CommandType { return CmdCreateTable }
func (c *CreateTableCmd) EncodedSize() int  { b, _ := encodeJSON(c); return 4 + len(b) }
func (c *CreateTableCmd) Encode(buf []byte) (int, error) {
	b, err := encodeJSON(c)
	if err != nil {
		return 0, err
	}
	return writeLenPrefixed(buf, b), nil
}

// --- DropTable ---

type DropTableCmd struct {
	DatabaseName string `json:"database_name"`
	TableName    string `json:"table_name"`
}

func (c *DropTableCmd) Type() CommandType { return CmdDropTable }
func (c *DropTableCmd) EncodedSize() int  { b, _ := encodeJSON(c); return 4 + len(b) }
func (c *DropTableCmd) Encode(buf []byte) (int, error) {
	b, err := encodeJSON(c)
	if err != nil {
		return 0, err
	}
	return writeLenPrefixed(buf, b), nil
}

// --- CreateIndex ---

type CreateIndexCmd struct {
	DatabaseName string        `json:"database_name"`
	TableName    string        `json:"table_name"`
	Index        types.IndexDef `json:"index"`
}

func (c *CreateIndexCmd) Type() CommandType { return CmdCreateIndex }
func (c *CreateIndexCmd) EncodedSize() int  { b, _ := encodeJSON(c); return 4 + len(b) }
func (c *CreateIndexCmd) Encode(buf []byte) (int, error) {
	b, err := encodeJSON(c)
	if err != nil {
		return 0, err
	}
	return writeLenPrefixed(buf, b), nil
}

// --- DropIndex ---

type DropIndexCmd struct {
	DatabaseName string `json:"database_name"`
	TableName    string `json:"table_name"`
	IndexName    string `json:"index_name"`
}

func (c *DropIndexCmd) Type() CommandType { return CmdDropIndex }
func (c *DropIndexCmd) EncodedSize() int  { b, _ := encodeJSON(c); return 4 + len(b) }
func (c *DropIndexCmd) Encode(buf []byte) (int, error) {
	b, err := encodeJSON(c)
	if err != nil {
		return 0, err
	}
	return writeLenPrefixed(buf, b), nil
}

// --- Append ---

type AppendCmd struct {
	DatabaseName string      `json:"database_name"`
	TableName    string      `json:"table_name"`
	SegmentID    uint64      `json:"segment_id"`
	Rows         []types.Row `json:"rows"`
}

func (c *AppendCmd) Type() CommandType { return CmdAppend }
func (c *AppendCmd) EncodedSize() int  { b, _ := encodeJSON(c); return 4 + len(b) }
func (c *AppendCmd) Encode(buf []byte) (int, error) {
	b, err := encodeJSON(c)
	if err != nil {
		return 0, err
	}
	return writeLenPrefixed(buf, b), nil
}

// --- Delete ---

type DeleteCmd struct {
	DatabaseName string          `json:"database_name"`
	TableName    string          `json:"table_name"`
	Ranges       []types.RowRange `json:"ranges"`
}

func (c *DeleteCmd) Type() CommandType { return CmdDelete }
func (c *DeleteCmd) EncodedSize() int  { b, _ := encodeJSON(c); return 4 + len(b) }
func (c *DeleteCmd) Encode(buf []byte) (int, error) {
	b, err := encodeJSON(c)
	if err != nil {
		return 0, err
	}
	return writeLenPrefixed(buf, b), nil
}

// --- Import ---

type ImportCmd struct {
	DatabaseName string           `json:"database_name"`
	TableName    string           `json:"table_name"`
	Segment      types.SegmentInfo `json:"segment"`
}

func (c *ImportCmd) Type() CommandType { return CmdImport }
func (c *ImportCmd) EncodedSize() int  { b, _ := encodeJSON(c); return 4 + len(b) }
func (c *ImportCmd) Encode(buf []byte) (int, error) {
	b, err := encodeJSON(c)
	if err != nil {
		return 0, err
	}
	return writeLenPrefixed(buf, b), nil
}

// --- Compact ---

type CompactCmd struct {
	DatabaseName string           `json:"database_name"`
	TableName    string           `json:"table_name"`
	Result       types.SegmentInfo `json:"result"`
}

func (c *CompactCmd) Type() CommandType { return CmdCompact }
func (c *CompactCmd) EncodedSize() int  { b, _ := encodeJSON(c); return 4 + len(b) }
func (c *CompactCmd) Encode(buf []byte) (int, error) {
	b, err := encodeJSON(c)
	if err != nil {
		return 0, err
	}
	return writeLenPrefixed(buf, b), nil
}

// --- Checkpoint ---

// CheckpointKind selects whether a Checkpoint command records a full
// catalog snapshot or a delta since the last full one.
type CheckpointKind string

const (
	CheckpointFull  CheckpointKind = "full"
	CheckpointDelta CheckpointKind = "delta"
)

type CheckpointCmd struct {
	Kind        CheckpointKind `json:"kind"`
	MaxCommitTS uint64         `json:"max_commit_ts"`
	CatalogPath string         `json:"catalog_path"`
}

func (c *CheckpointCmd) Type() CommandType { return CmdCheckpoint }
func (c *CheckpointCmd) EncodedSize() int  { b, _ := encodeJSON(c); return 4 + len(b) }
func (c *CheckpointCmd) Encode(buf []byte) (int, error) {
	b, err := encodeJSON(c)
	if err != nil {
		return 0, err
	}
	return writeLenPrefixed(buf, b), nil
}

// --- AlterInfo ---

// AlterInfoCmd records a schema-preserving catalog metadata change (e.g.
// comment, storage option) that doesn't fit CreateTable/CreateIndex.
type AlterInfoCmd struct {
	DatabaseName string            `json:"database_name"`
	TableName    string            `json:"table_name"`
	Info         map[string]string `json:"info"`
}

func (c *AlterInfoCmd) Type() CommandType { return CmdAlterInfo }
func (c *AlterInfoCmd) EncodedSize() int  { b, _ := encodeJSON(c); return 4 + len(b) }
func (c *AlterInfoCmd) Encode(buf []byte) (int, error) {
	b, err := encodeJSON(c)
	if err != nil {
		return 0, err
	}
	return writeLenPrefixed(buf, b), nil
}

// DecodeCommand reads one length-prefixed JSON command body from r and
// unmarshals it into the concrete type identified by tag.
func DecodeCommand(tag CommandType, r *bytes.Reader) (Command, error) {
	body, err := readLenPrefixed(r)
	if err != nil {
		return nil, err
	}

	var cmd Command
	switch tag {
	case CmdCreateDatabase:
		cmd = &CreateDatabaseCmd{}
	case CmdDropDatabase:
		cmd = &DropDatabaseCmd{}
	case CmdCreateTable:
		cmd = &CreateTableCmd{}
	case CmdDropTable:
		cmd = &DropTableCmd{}
	case CmdCreateIndex:
		cmd = &CreateIndexCmd{}
	case CmdDropIndex:
		cmd = &DropIndexCmd{}
	case CmdAppend:
		cmd = &AppendCmd{}
	case CmdDelete:
		cmd = &DeleteCmd{}
	case CmdImport:
		cmd = &ImportCmd{}
	case CmdCompact:
		cmd = &CompactCmd{}
	case CmdCheckpoint:
		cmd = &CheckpointCmd{}
	case CmdAlterInfo:
		cmd = &AlterInfoCmd{}
	default:
		return nil, ErrUnknownCommand
	}

	if err := json.Unmarshal(body, cmd); err != nil {
		return nil, ErrTornFrame
	}
	return cmd, nil
}
