package storage

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/exp/slices"
)

// ShardFileName returns "shard_<n>.csv".
func ShardFileName(n int) string {
	return fmt.Sprintf("%s%d%s", ShardPrefix, n, ShardExt)
}

// ParseShardNo extracts n from "shard_<n>.csv".
func ParseShardNo(name string) (int, error) {
	if !strings.HasPrefix(name, ShardPrefix) || !strings.HasSuffix(name, ShardExt) {
		return 0, ErrNotAShardName
	}
	mid := strings.TrimSuffix(strings.TrimPrefix(name, ShardPrefix), ShardExt)
	n, err := strconv.Atoi(mid)
	if err != nil || n < 0 || strconv.Itoa(n) != mid {
		return 0, ErrNotAShardName
	}
	return n, nil
}

// ShardEntry is one persistent shard file found in a table directory.
type ShardEntry struct {
	No   int
	Path string
}

// ListShards scans dir and returns its shard files ordered by shard
// number. Directory enumeration order is never used for ordering, so
// logical record indices are stable across filesystems. Other .csv files
// are ignored with a warning.
func ListShards(fsys afero.Fs, dir string) ([]ShardEntry, error) {
	ents, err := afero.ReadDir(fsys, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]ShardEntry, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != ShardExt {
			continue
		}
		n, err := ParseShardNo(name)
		if err != nil {
			slog.Warn("storage: ignoring csv file with non-shard name", "dir", dir, "file", name)
			continue
		}
		out = append(out, ShardEntry{No: n, Path: filepath.Join(dir, name)})
	}

	slices.SortFunc(out, func(a, b ShardEntry) int { return cmp.Compare(a.No, b.No) })
	return out, nil
}

// RemoveStaleTemps deletes "<shard>.tmp" files left behind by a rewrite
// whose rename never happened. The original shard is still intact in that
// case, so the temp copy is discarded.
func RemoveStaleTemps(fsys afero.Fs, dir string) ([]string, error) {
	ents, err := afero.ReadDir(fsys, dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var removed []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ShardExt+TmpSuffix) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := fsys.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, err
		}
		slog.Warn("storage: removed stale rewrite file", "path", path)
		removed = append(removed, path)
	}
	return removed, nil
}
