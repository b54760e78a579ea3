// Package wal implements the write-ahead log manager: file naming and
// enumeration, the group-commit writer, checkpoint coordination, and
// crash-recovery replay. It depends on internal/walcodec for the frame
// format; the catalog that replay mutates is reached only through the
// ReplayHandler and CatalogLoader interfaces.
package wal

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/coredb/coredb/internal/errors"
)

// CurrentWalFilename is the name of the file entries are currently being
// appended to.
const CurrentWalFilename = "wal.log"

// RotatedFile describes a sealed WAL file, named wal.log.<max_commit_ts>
// once the writer stops appending to it.
type RotatedFile struct {
	Path        string
	MaxCommitTS uint64
}

// WalFilename returns the on-disk name for a rotated file sealed at
// maxCommitTS.
func WalFilename(maxCommitTS uint64) string {
	return CurrentWalFilename + "." + strconv.FormatUint(maxCommitTS, 10)
}

// Registry enumerates and manages WAL files inside a single directory.
type Registry struct {
	dir string
}

// NewRegistry returns a Registry rooted at dir. dir must already exist.
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir}
}

// Dir returns the WAL directory this registry manages.
func (r *Registry) Dir() string { return r.dir }

// CurrentPath returns the path of the file currently being appended to.
func (r *Registry) CurrentPath() string {
	return filepath.Join(r.dir, CurrentWalFilename)
}

// List returns the rotated files sorted ascending by MaxCommitTS, and
// whether a current (unrotated) file exists.
func (r *Registry) List() ([]RotatedFile, bool, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, false, errors.WrapFatal(errors.CategoryWAL, errors.CodeIOFailure,
			"list WAL directory", err)
	}

	var rotated []RotatedFile
	hasCurrent := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == CurrentWalFilename {
			hasCurrent = true
			continue
		}
		prefix := CurrentWalFilename + "."
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		tsStr := strings.TrimPrefix(name, prefix)
		ts, err := strconv.ParseUint(tsStr, 10, 64)
		if err != nil {
			continue // not a WAL file we recognize, ignore
		}
		rotated = append(rotated, RotatedFile{Path: filepath.Join(r.dir, name), MaxCommitTS: ts})
	}

	sort.Slice(rotated, func(i, j int) bool { return rotated[i].MaxCommitTS < rotated[j].MaxCommitTS })
	return rotated, hasCurrent, nil
}

// Rotate seals the current file under a name carrying maxCommitTS and
// leaves the directory ready for a fresh current file to be created by
// the writer.
func (r *Registry) Rotate(maxCommitTS uint64) error {
	from := r.CurrentPath()
	to := filepath.Join(r.dir, WalFilename(maxCommitTS))
	if err := os.Rename(from, to); err != nil {
		return errors.WrapFatal(errors.CategoryWAL, errors.CodeIOFailure, "rotate WAL file", err)
	}
	return nil
}

// RecycleWalFile removes a rotated WAL file whose MaxCommitTS is at or
// below a completed full checkpoint's max_commit_ts. Callers must never
// call this for a file still needed by replay.
func RecycleWalFile(f RotatedFile) error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.CategoryWAL, errors.CodeIOFailure, "recycle WAL file", err)
	}
	return nil
}
