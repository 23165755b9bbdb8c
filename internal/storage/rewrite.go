package storage

import (
	"bufio"
	"errors"
	"os"

	"github.com/tuannm99/shardb/internal/dberr"
	"github.com/tuannm99/shardb/internal/record"
)

// RewriteFunc maps one line (with its 0-based offset in the shard) to its
// replacement. keep=false drops the line.
type RewriteFunc func(local int, line string) (out string, keep bool, err error)

// Rewrite streams the shard through fn into "<path>.tmp" and renames the
// temp file over the shard. When fn changes nothing the temp file is
// discarded and the shard is left untouched. A failed rename leaves the
// .tmp file on disk; RemoveStaleTemps cleans it up on the next load.
func (s *Shard) Rewrite(fn RewriteFunc) (changed bool, err error) {
	tmp := s.path + TmpSuffix

	in, err := s.fs.Open(s.path)
	if err != nil {
		return false, dberr.IO("open", s.path, err)
	}
	defer func() { _ = in.Close() }()

	out, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, FileMode0644)
	if err != nil {
		return false, dberr.IO("create", tmp, err)
	}

	discard := func() {
		_ = out.Close()
		if rmErr := s.fs.Remove(tmp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, dberr.IO("remove", tmp, rmErr))
		}
	}

	w := bufio.NewWriter(out)
	local := 0
	scanErr := record.ScanLines(in, func(line string) error {
		repl, keep, ferr := fn(local, line)
		local++
		if ferr != nil {
			return ferr
		}
		if !keep {
			changed = true
			return nil
		}
		if repl != line {
			changed = true
		}
		if _, werr := w.WriteString(repl); werr != nil {
			return dberr.IO("write", tmp, werr)
		}
		if werr := w.WriteByte('\n'); werr != nil {
			return dberr.IO("write", tmp, werr)
		}
		return nil
	})
	_ = in.Close()
	if scanErr != nil {
		err = scanErr
		if dberr.Kind(err) == nil {
			err = dberr.IO("read", s.path, scanErr)
		}
		discard()
		return false, err
	}
	if !changed {
		discard()
		return false, err
	}

	if err = w.Flush(); err != nil {
		err = dberr.IO("flush", tmp, err)
		discard()
		return false, err
	}
	if err = out.Sync(); err != nil {
		err = dberr.IO("sync", tmp, err)
		discard()
		return false, err
	}
	if err = out.Close(); err != nil {
		return false, dberr.IO("close", tmp, err)
	}
	if err = s.fs.Rename(tmp, s.path); err != nil {
		return false, dberr.IO("rename", tmp, err)
	}
	return true, nil
}
