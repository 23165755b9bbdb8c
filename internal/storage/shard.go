package storage

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/zeebo/blake3"

	"github.com/tuannm99/shardb/internal/alias/util"
	"github.com/tuannm99/shardb/internal/dberr"
	"github.com/tuannm99/shardb/internal/record"
)

// Shard is one headerless CSV file holding a contiguous slice of a table.
//
// A persistent shard wraps shard_<n>.csv inside a table directory and is
// never removed by the handle. An ephemeral shard owns a uniquely named
// temp file that is removed once the last reference is released.
type Shard struct {
	fs        afero.Fs
	path      string
	ephemeral bool
	refs      atomic.Int32
}

// OpenShard wraps an existing persistent shard file.
func OpenShard(fsys afero.Fs, path string) *Shard {
	s := &Shard{fs: fsys, path: path}
	s.refs.Store(1)
	return s
}

// CreateShard creates an empty persistent shard file at path.
func CreateShard(fsys afero.Fs, path string) (*Shard, error) {
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, FileMode0644)
	if err != nil {
		return nil, dberr.IO("create shard", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, dberr.IO("close shard", path, err)
	}
	return OpenShard(fsys, path), nil
}

// NewEphemeralShard creates an empty file named
// shardb_<unix-nanos>_<uuid>.csv in dir (os.TempDir() when dir is empty).
func NewEphemeralShard(fsys afero.Fs, dir string) (*Shard, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := fsys.MkdirAll(dir, FileMode0755); err != nil {
		return nil, dberr.IO("mkdir", dir, err)
	}

	name := fmt.Sprintf("%s%d_%s%s", EphemeralPrefix, time.Now().UnixNano(), uuid.NewString(), ShardExt)
	path := filepath.Join(dir, name)

	s, err := CreateShard(fsys, path)
	if err != nil {
		return nil, err
	}
	s.ephemeral = true
	return s, nil
}

func (s *Shard) Path() string    { return s.path }
func (s *Shard) Ephemeral() bool { return s.ephemeral }
func (s *Shard) Refs() int32     { return s.refs.Load() }

// Retain registers one more owner.
func (s *Shard) Retain() *Shard {
	s.refs.Add(1)
	return s
}

// Release drops one owner. The last release of an ephemeral shard removes
// its file if it still exists.
func (s *Shard) Release() error {
	n := s.refs.Add(-1)
	if n < 0 {
		return fmt.Errorf("%w: %s", ErrShardReleased, s.path)
	}
	if n > 0 || !s.ephemeral {
		return nil
	}
	if err := s.fs.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return dberr.IO("remove ephemeral shard", s.path, err)
	}
	slog.Debug("storage: ephemeral shard removed", "path", s.path)
	return nil
}

// Size returns the file size in bytes.
func (s *Shard) Size() (int64, error) {
	info, err := s.fs.Stat(s.path)
	if err != nil {
		return 0, dberr.IO("stat", s.path, err)
	}
	return info.Size(), nil
}

// Append writes each line followed by '\n' at the end of the shard.
func (s *Shard) Append(lines ...string) error {
	f, err := s.fs.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, FileMode0644)
	if err != nil {
		return dberr.IO("open for append", s.path, err)
	}
	w := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := w.WriteString(l); err != nil {
			_ = f.Close()
			return dberr.IO("append", s.path, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			_ = f.Close()
			return dberr.IO("append", s.path, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return dberr.IO("append", s.path, err)
	}
	return dberr.IO("close", s.path, f.Close())
}

// Scan calls fn for every line in file order. Returning an error from fn
// stops the scan and is returned unchanged.
func (s *Shard) Scan(fn func(line string) error) error {
	f, err := s.fs.Open(s.path)
	if err != nil {
		return dberr.IO("open", s.path, err)
	}
	defer util.CloseFileFunc(f)

	return record.ScanLines(f, fn)
}

// CountRecords returns the number of lines Scan would visit.
func (s *Shard) CountRecords() (int, error) {
	n := 0
	err := s.Scan(func(string) error {
		n++
		return nil
	})
	return n, err
}

// Checksum is the hex blake3 digest of the shard bytes.
func (s *Shard) Checksum() (string, error) {
	f, err := s.fs.Open(s.path)
	if err != nil {
		return "", dberr.IO("open", s.path, err)
	}
	defer util.CloseFileFunc(f)

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", dberr.IO("read", s.path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CopyTo streams the raw shard bytes into w.
func (s *Shard) CopyTo(w io.Writer) (int64, error) {
	f, err := s.fs.Open(s.path)
	if err != nil {
		return 0, dberr.IO("open", s.path, err)
	}
	defer util.CloseFileFunc(f)

	n, err := io.Copy(w, f)
	if err != nil {
		return n, dberr.IO("copy", s.path, err)
	}
	return n, nil
}
