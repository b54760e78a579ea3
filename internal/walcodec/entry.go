// Package walcodec encodes and decodes WAL entries: the self-describing,
// checksummed frames that make up a WAL file. It has no knowledge of file
// naming, rotation, or replay ordering — those live in internal/wal.
package walcodec

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/coredb/coredb/internal/errors"
)

// Entry is a single WAL record: an ordered, nonempty sequence of commands
// committed atomically at CommitTS by transaction TxnID.
type Entry struct {
	TxnID    uint64
	CommitTS uint64
	Commands []Command
}

// SizeInBytes returns the exact number of bytes Encode will write for this
// entry, including the frame's length prefix and trailing checksum. The WAL
// writer computes this before encoding and treats any mismatch against the
// actual bytes written as a fatal invariant violation.
func (e *Entry) SizeInBytes() int {
	payload := e.payloadSize()
	return 4 + payload + 4 // size prefix + payload + crc32
}

func (e *Entry) payloadSize() int {
	size := 8 + 8 + 4 // txn_id + commit_ts + cmd_count
	for _, cmd := range e.Commands {
		size += 1 + cmd.EncodedSize() // type tag + fields
	}
	return size
}

// Encode serializes the entry as a single frame:
// [u32 size_le][payload][u32 crc32_le over payload], and returns the exact
// number of bytes written. It returns a Fatal error if Commands is empty —
// read-only transactions must never reach the WAL.
func (e *Entry) Encode(w io.Writer) (int, error) {
	if len(e.Commands) == 0 {
		return 0, errors.NewFatal(errors.CategoryWAL, errors.CodeEmptyEntry,
			"WAL entry has zero commands; read-only transactions must not enter the WAL")
	}

	payload := make([]byte, e.payloadSize())
	off := 0
	binary.LittleEndian.PutUint64(payload[off:], e.TxnID)
	off += 8
	binary.LittleEndian.PutUint64(payload[off:], e.CommitTS)
	off += 8
	binary.LittleEndian.PutUint32(payload[off:], uint32(len(e.Commands)))
	off += 4
	for _, cmd := range e.Commands {
		payload[off] = byte(cmd.Type())
		off++
		n, err := cmd.Encode(payload[off:])
		if err != nil {
			return 0, errors.WrapFatal(errors.CategoryWAL, errors.CodeIOFailure, "encode command", err)
		}
		off += n
	}

	crc := crc32.ChecksumIEEE(payload)

	var sizeBuf [4]byte
	binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(payload)))
	written := 0

	n, err := w.Write(sizeBuf[:])
	written += n
	if err != nil {
		return written, errors.WrapFatal(errors.CategoryWAL, errors.CodeIOFailure, "write frame size", err)
	}

	n, err = w.Write(payload)
	written += n
	if err != nil {
		return written, errors.WrapFatal(errors.CategoryWAL, errors.CodeIOFailure, "write frame payload", err)
	}

	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc)
	n, err = w.Write(crcBuf[:])
	written += n
	if err != nil {
		return written, errors.WrapFatal(errors.CategoryWAL, errors.CodeIOFailure, "write frame checksum", err)
	}

	return written, nil
}

// ErrTornFrame is returned by Decode when a frame's checksum fails or the
// file ends before a complete frame could be read. Callers scanning
// forward always treat this as fatal corruption; callers reverse-scanning
// the current file's tail treat it as an interrupted write and discard it.
var ErrTornFrame = errors.New(errors.CategoryWAL, errors.CodeTornWrite, "WAL frame is truncated or fails its checksum")

// Decode reads one frame from r and returns the decoded entry along with
// the total number of bytes consumed (including the length prefix and
// checksum). It returns io.EOF when r has no more data at all, and
// ErrTornFrame when a frame starts but cannot be fully read or fails its
// checksum.
func Decode(r io.Reader) (*Entry, int, error) {
	var sizeBuf [4]byte
	n, err := io.ReadFull(r, sizeBuf[:])
	if err != nil {
		if n == 0 && err == io.EOF {
			return nil, 0, io.EOF
		}
		return nil, n, ErrTornFrame
	}
	size := int(binary.LittleEndian.Uint32(sizeBuf[:]))
	consumed := 4

	payload := make([]byte, size)
	pn, err := io.ReadFull(r, payload)
	consumed += pn
	if err != nil {
		return nil, consumed, ErrTornFrame
	}

	var crcBuf [4]byte
	cn, err := io.ReadFull(r, crcBuf[:])
	consumed += cn
	if err != nil {
		return nil, consumed, ErrTornFrame
	}

	wantCRC := binary.LittleEndian.Uint32(crcBuf[:])
	if crc32.ChecksumIEEE(payload) != wantCRC {
		return nil, consumed, ErrTornFrame
	}

	entry, err := decodePayload(payload)
	if err != nil {
		return nil, consumed, err
	}
	return entry, consumed, nil
}

func decodePayload(payload []byte) (*Entry, error) {
	if len(payload) < 20 {
		return nil, ErrTornFrame
	}
	r := bytes.NewReader(payload)

	var txnID, commitTS uint64
	var cmdCount uint32
	if err := binary.Read(r, binary.LittleEndian, &txnID); err != nil {
		return nil, ErrTornFrame
	}
	if err := binary.Read(r, binary.LittleEndian, &commitTS); err != nil {
		return nil, ErrTornFrame
	}
	if err := binary.Read(r, binary.LittleEndian, &cmdCount); err != nil {
		return nil, ErrTornFrame
	}

	cmds := make([]Command, 0, cmdCount)
	for i := uint32(0); i < cmdCount; i++ {
		tagByte, err := r.ReadByte()
		if err != nil {
			return nil, ErrTornFrame
		}
		cmd, err := DecodeCommand(CommandType(tagByte), r)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}

	return &Entry{TxnID: txnID, CommitTS: commitTS, Commands: cmds}, nil
}
