package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tuannm99/shardb/internal/catalog"
	"github.com/tuannm99/shardb/internal/dberr"
	"github.com/tuannm99/shardb/internal/heap"
	"github.com/tuannm99/shardb/internal/record"
)

var ErrDatabaseClosed = errors.New("shardb: database is closed")

// Options configure a DBManager.
type Options struct {
	// Root is the database directory; one subdirectory per table.
	Root string
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// Table is applied to every table opened or created.
	Table heap.Options
	// LoadConcurrency bounds parallel table loads in Open; zero means
	// GOMAXPROCS.
	LoadConcurrency int
}

// DBManager owns the catalog of one database root and dispatches every
// table operation to the right table.
type DBManager struct {
	root   string
	fs     afero.Fs
	opts   heap.Options
	tables *catalog.Catalog
	closed bool
}

// Open creates root if needed and loads every table found in it.
// Directories without a metadata file are skipped with a warning.
func Open(opts Options) (*DBManager, error) {
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if opts.Root == "" {
		return nil, fmt.Errorf("%w: empty database root", dberr.ErrInvalid)
	}
	if err := fsys.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, dberr.IO("mkdir", opts.Root, err)
	}

	db := &DBManager{
		root:   opts.Root,
		fs:     fsys,
		opts:   opts.Table,
		tables: catalog.New(),
	}
	if err := db.load(opts.LoadConcurrency); err != nil {
		return nil, err
	}

	slog.Info("engine: database opened", "root", db.root, "tables", db.tables.Len())
	return db, nil
}

func (db *DBManager) load(limit int) error {
	entries, err := afero.ReadDir(db.fs, db.root)
	if err != nil {
		return dberr.IO("read dir", db.root, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		metaPath := filepath.Join(db.root, e.Name(), record.MetadataFile)
		ok, err := afero.Exists(db.fs, metaPath)
		if err != nil {
			return dberr.IO("stat", metaPath, err)
		}
		if !ok {
			slog.Warn("engine: skipping directory without metadata", "dir", e.Name())
			continue
		}
		names = append(names, e.Name())
	}

	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	loaded := make([]*heap.Table, len(names))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, name := range names {
		g.Go(func() error {
			tbl, err := heap.OpenTable(db.fs, db.root, name, db.opts)
			if err != nil {
				return err
			}
			loaded[i] = tbl
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, tbl := range loaded {
			if tbl != nil {
				_ = tbl.Close()
			}
		}
		return fmt.Errorf("load tables: %w", err)
	}

	for _, tbl := range loaded {
		if err := db.tables.Put(tbl); err != nil {
			return err
		}
	}
	return nil
}

func (db *DBManager) Root() string { return db.root }

func (db *DBManager) table(name string) (*heap.Table, error) {
	if db.closed {
		return nil, ErrDatabaseClosed
	}
	return db.tables.Get(name)
}

// CreateTable makes an empty table. Creating a name that already exists
// fails and leaves the existing table untouched.
func (db *DBManager) CreateTable(name string, attrs []string) error {
	if db.closed {
		return ErrDatabaseClosed
	}
	if db.tables.Has(name) {
		return fmt.Errorf("%w: table %q", dberr.ErrExists, name)
	}
	meta, err := record.NewMetadata(attrs)
	if err != nil {
		return fmt.Errorf("create table %q: %w", name, err)
	}

	tbl, err := heap.CreateTable(db.fs, db.root, name, meta, db.opts)
	if err != nil {
		return fmt.Errorf("create table %q: %w", name, err)
	}
	if err := db.tables.Put(tbl); err != nil {
		return err
	}

	slog.Info("engine: table created", "table", name, "columns", len(attrs))
	return nil
}

// DeleteTable removes the table directory and its catalog entry.
func (db *DBManager) DeleteTable(name string) error {
	if db.closed {
		return ErrDatabaseClosed
	}
	tbl, err := db.tables.Remove(name)
	if err != nil {
		return err
	}
	if err := tbl.Drop(); err != nil {
		return fmt.Errorf("delete table %q: %w", name, err)
	}

	slog.Info("engine: table deleted", "table", name)
	return nil
}

func (db *DBManager) InsertRecord(name string, attrs map[string]string) error {
	tbl, err := db.table(name)
	if err != nil {
		return err
	}
	return tbl.Insert(attrs)
}

// ReadTable writes the selected records of name to w; no lines means all.
func (db *DBManager) ReadTable(w io.Writer, name string, lines []int) error {
	tbl, err := db.table(name)
	if err != nil {
		return err
	}
	return tbl.Read(w, lines)
}

func (db *DBManager) UpdateRecord(name string, id int, updates map[string]string) error {
	tbl, err := db.table(name)
	if err != nil {
		return err
	}
	return tbl.Update(id, updates)
}

// DeleteByIndex removes record id, or with nullAttrs set only clears those
// fields to NULL.
func (db *DBManager) DeleteByIndex(name string, id int, nullAttrs []string) error {
	tbl, err := db.table(name)
	if err != nil {
		return err
	}
	if len(nullAttrs) > 0 {
		return tbl.NullifyByIndex(id, nullAttrs)
	}
	return tbl.DeleteByIndex(id)
}

func (db *DBManager) DeleteByAttributes(name string, attrs map[string]string) (int, error) {
	tbl, err := db.table(name)
	if err != nil {
		return 0, err
	}
	return tbl.DeleteByAttributes(attrs)
}

// Join chains names left to right: names[0] ⋈ names[1], then that result
// ⋈ names[2], and so on. attrMap gives each table's join attribute; at
// stage i the left side joins on attrMap[names[i-1]]. The caller owns the
// returned temporary table and must Close it.
func (db *DBManager) Join(ctx context.Context, names []string, attrMap map[string]string) (*heap.Table, error) {
	if len(names) < 2 {
		return nil, fmt.Errorf("%w: join needs at least two tables, got %d", dberr.ErrInvalid, len(names))
	}

	tables := make([]*heap.Table, len(names))
	for i, name := range names {
		tbl, err := db.table(name)
		if err != nil {
			return nil, err
		}
		attr, ok := attrMap[name]
		if !ok {
			return nil, fmt.Errorf("%w: no join attribute for table %q", dberr.ErrInvalid, name)
		}
		if !tbl.Metadata().Has(attr) {
			return nil, fmt.Errorf("%w: table %q has no attribute %q", dberr.ErrJoin, name, attr)
		}
		tables[i] = tbl
	}

	cur := tables[0]
	for i := 1; i < len(tables); i++ {
		next, err := cur.Join(ctx, tables[i], attrMap[names[i-1]], attrMap[names[i]])
		if cur.IsTemp() {
			if cerr := cur.Close(); cerr != nil {
				err = multierr.Append(err, cerr)
			}
		}
		if err != nil {
			if next != nil {
				_ = next.Close()
			}
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// JoinTables runs Join and writes the merged result to w.
func (db *DBManager) JoinTables(ctx context.Context, w io.Writer, names []string, attrMap map[string]string) (err error) {
	res, err := db.Join(ctx, names, attrMap)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, res.Close()) }()

	for _, s := range res.Shards() {
		if _, err := s.CopyTo(w); err != nil {
			return err
		}
	}
	return nil
}

func (db *DBManager) ListTables() []string {
	return db.tables.Names()
}

func (db *DBManager) Describe(name string) (catalog.TableInfo, error) {
	tbl, err := db.table(name)
	if err != nil {
		return catalog.TableInfo{}, err
	}
	return catalog.NewTableInfo(tbl)
}

// Checksums maps each shard file of name to its blake3 digest.
func (db *DBManager) Checksums(name string) (map[string]string, error) {
	tbl, err := db.table(name)
	if err != nil {
		return nil, err
	}
	return tbl.Checksums()
}

// Close releases every table. The manager is unusable afterwards.
func (db *DBManager) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true

	var errs error
	for _, name := range db.tables.Names() {
		tbl, err := db.tables.Remove(name)
		if err != nil {
			continue
		}
		errs = multierr.Append(errs, tbl.Close())
	}
	return errs
}
