package heap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"golang.org/x/exp/slices"

	"github.com/tuannm99/shardb/internal/alias/util"
	"github.com/tuannm99/shardb/internal/dberr"
	"github.com/tuannm99/shardb/internal/record"
	"github.com/tuannm99/shardb/internal/storage"
)

// Options are the per-table knobs shared by every table of one database.
type Options struct {
	// MaxShardSize is the byte size at which inserts roll over to a new
	// shard. Zero means storage.DefaultMaxShardSize.
	MaxShardSize int64
	// TempDir holds ephemeral join shards; empty means os.TempDir().
	TempDir string
	// MergeSkipLeadingLine drops the first line of every join output after
	// the first while merging. Join outputs are headerless, so enabling it
	// loses rows; it exists to reproduce older merge output.
	MergeSkipLeadingLine bool
	// MaxJoinWorkers caps concurrent shard join tasks; zero means one task
	// per left-hand shard, all at once.
	MaxJoinWorkers int
}

func (o Options) maxShardSize() int64 {
	if o.MaxShardSize <= 0 {
		return storage.DefaultMaxShardSize
	}
	return o.MaxShardSize
}

// Table is the logical record space over an ordered list of CSV shards.
// Record index i is the i-th line of the concatenation of all shards.
//
// Mutating calls on one Table must be serialized by the caller.
type Table struct {
	Name string
	Dir  string

	fs          afero.Fs
	meta        record.Metadata
	shards      []*storage.Shard
	nextShardNo int
	temp        bool
	opts        Options
}

// Stats is a snapshot of a table's physical size.
type Stats struct {
	Shards  int
	Records int
	Bytes   int64
}

// CreateTable makes <baseDir>/<name>/ with a metadata file and no shards.
func CreateTable(fsys afero.Fs, baseDir, name string, meta record.Metadata, opts Options) (*Table, error) {
	if err := record.ValidateName(name); err != nil {
		return nil, fmt.Errorf("table name: %w", err)
	}
	dir := filepath.Join(baseDir, name)

	exists, err := afero.Exists(fsys, dir)
	if err != nil {
		return nil, dberr.IO("stat", dir, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: table directory %s", dberr.ErrExists, dir)
	}
	if err := fsys.MkdirAll(dir, storage.FileMode0755); err != nil {
		return nil, dberr.IO("mkdir", dir, err)
	}

	path := filepath.Join(dir, record.MetadataFile)
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, storage.FileMode0644)
	if err != nil {
		return nil, dberr.IO("create metadata", path, err)
	}
	if _, err := meta.WriteTo(f); err != nil {
		_ = f.Close()
		return nil, dberr.IO("write metadata", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, dberr.IO("close metadata", path, err)
	}

	return &Table{Name: name, Dir: dir, fs: fsys, meta: meta, opts: opts}, nil
}

// OpenTable loads <baseDir>/<name>/: metadata first, then the shard list in
// shard-number order. A missing directory or metadata file is ErrNotFound.
func OpenTable(fsys afero.Fs, baseDir, name string, opts Options) (*Table, error) {
	dir := filepath.Join(baseDir, name)
	if ok, err := afero.DirExists(fsys, dir); err != nil {
		return nil, dberr.IO("stat", dir, err)
	} else if !ok {
		return nil, fmt.Errorf("%w: table directory %s", dberr.ErrNotFound, dir)
	}

	meta, err := readMetadata(fsys, filepath.Join(dir, record.MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", name, err)
	}

	if _, err := storage.RemoveStaleTemps(fsys, dir); err != nil {
		return nil, dberr.IO("clean temp files", dir, err)
	}

	entries, err := storage.ListShards(fsys, dir)
	if err != nil {
		return nil, dberr.IO("list shards", dir, err)
	}

	t := &Table{Name: name, Dir: dir, fs: fsys, meta: meta, opts: opts}
	for _, e := range entries {
		t.shards = append(t.shards, storage.OpenShard(fsys, e.Path))
		t.nextShardNo = e.No + 1
	}

	slog.Debug("heap: table loaded", "table", name, "shards", len(t.shards), "columns", meta.Width())
	return t, nil
}

// NewTempTable wraps join output. It is never cataloged and owns shards.
func NewTempTable(fsys afero.Fs, name string, meta record.Metadata, shards []*storage.Shard, opts Options) *Table {
	return &Table{Name: name, fs: fsys, meta: meta, shards: shards, temp: true, opts: opts}
}

func readMetadata(fsys afero.Fs, path string) (record.Metadata, error) {
	f, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return record.Metadata{}, fmt.Errorf("%w: metadata file %s", dberr.ErrNotFound, path)
		}
		return record.Metadata{}, dberr.IO("open metadata", path, err)
	}
	defer util.CloseFileFunc(f)

	meta, err := record.ParseMetadata(f)
	if err != nil {
		return record.Metadata{}, err
	}
	if meta.Width() == 0 {
		return record.Metadata{}, fmt.Errorf("%w: empty metadata file %s", dberr.ErrInvalid, path)
	}
	return meta, nil
}

func (t *Table) Metadata() record.Metadata { return t.meta }
func (t *Table) IsTemp() bool              { return t.temp }

// Shards returns the shard list in logical order.
func (t *Table) Shards() []*storage.Shard {
	return slices.Clone(t.shards)
}

// Insert appends one record. Columns not named in attrs are left empty.
// Any name outside the metadata fails the insert before anything is
// written.
func (t *Table) Insert(attrs map[string]string) error {
	if t.temp {
		return fmt.Errorf("%w: insert into temporary table %q", dberr.ErrInvalid, t.Name)
	}
	if err := t.meta.Validate(sortedKeys(attrs)); err != nil {
		return fmt.Errorf("insert into %q: %w", t.Name, err)
	}

	target, err := t.targetShard()
	if err != nil {
		return err
	}
	return target.Append(record.Build(t.meta, attrs).Line())
}

// targetShard returns the last shard unless there is none or it reached
// the size cap, in which case shard_<last+1>.csv is created.
func (t *Table) targetShard() (*storage.Shard, error) {
	if n := len(t.shards); n > 0 {
		last := t.shards[n-1]
		size, err := last.Size()
		if err != nil {
			return nil, err
		}
		if size < t.opts.maxShardSize() {
			return last, nil
		}
	}

	path := filepath.Join(t.Dir, storage.ShardFileName(t.nextShardNo))
	s, err := storage.CreateShard(t.fs, path)
	if err != nil {
		return nil, err
	}
	t.shards = append(t.shards, s)
	t.nextShardNo++

	slog.Info("heap: new shard", "table", t.Name, "path", path, "shards", len(t.shards))
	return s, nil
}

var errStopScan = errors.New("heap: stop scan")

// Scan visits every record with its logical index, shard by shard.
func (t *Table) Scan(fn func(idx int, rec record.Record) error) error {
	idx := 0
	for _, s := range t.shards {
		err := s.Scan(func(line string) error {
			i := idx
			idx++
			return fn(i, record.Split(line))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Read writes records to w, one comma-joined line each. An empty lines
// slice selects every record; otherwise only those logical indices are
// written, in storage order. Indices out of range are ignored.
func (t *Table) Read(w io.Writer, lines []int) error {
	want := make(map[int]struct{}, len(lines))
	maxWanted := -1
	for _, l := range lines {
		if l < 0 {
			continue
		}
		want[l] = struct{}{}
		if l > maxWanted {
			maxWanted = l
		}
	}
	if len(lines) > 0 && len(want) == 0 {
		return nil
	}

	bw := bufio.NewWriter(w)
	idx := 0
	for _, s := range t.shards {
		err := s.Scan(func(line string) error {
			i := idx
			idx++
			if len(want) > 0 {
				if i > maxWanted {
					return errStopScan
				}
				if _, ok := want[i]; !ok {
					return nil
				}
			}
			if _, err := bw.WriteString(line); err != nil {
				return err
			}
			return bw.WriteByte('\n')
		})
		if errors.Is(err, errStopScan) {
			break
		}
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Len counts the records over all shards.
func (t *Table) Len() (int, error) {
	total := 0
	for _, s := range t.shards {
		n, err := s.CountRecords()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Stats reports shard count, record count and total bytes.
func (t *Table) Stats() (Stats, error) {
	st := Stats{Shards: len(t.shards)}
	for _, s := range t.shards {
		n, err := s.CountRecords()
		if err != nil {
			return Stats{}, err
		}
		size, err := s.Size()
		if err != nil {
			return Stats{}, err
		}
		st.Records += n
		st.Bytes += size
	}
	return st, nil
}

// Checksums maps each shard file name to its blake3 digest.
func (t *Table) Checksums() (map[string]string, error) {
	out := make(map[string]string, len(t.shards))
	for _, s := range t.shards {
		sum, err := s.Checksum()
		if err != nil {
			return nil, err
		}
		out[filepath.Base(s.Path())] = sum
	}
	return out, nil
}

// Close drops the table's shard references. Ephemeral shards of a
// temporary table are deleted here.
func (t *Table) Close() error {
	var errs error
	for _, s := range t.shards {
		errs = multierr.Append(errs, s.Release())
	}
	t.shards = nil
	return errs
}

// Drop deletes the table directory and everything in it.
func (t *Table) Drop() error {
	if t.temp {
		return t.Close()
	}
	errs := t.Close()
	if err := t.fs.RemoveAll(t.Dir); err != nil {
		errs = multierr.Append(errs, dberr.IO("remove", t.Dir, err))
	}
	return errs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
