package engine

import (
	"bytes"
	"context"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/shardb/internal/dberr"
	"github.com/tuannm99/shardb/internal/heap"
	"github.com/tuannm99/shardb/internal/record"
	"github.com/tuannm99/shardb/internal/storage"
)

func newTestDB(t *testing.T, root string, tableOpts heap.Options) *DBManager {
	t.Helper()
	if tableOpts.TempDir == "" {
		tableOpts.TempDir = t.TempDir()
	}
	db, err := Open(Options{Root: root, Table: tableOpts})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func lines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func readTable(t *testing.T, db *DBManager, name string, ids ...int) []string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, db.ReadTable(&buf, name, ids))
	return lines(buf.String())
}

func seedCities(t *testing.T, db *DBManager) {
	t.Helper()
	require.NoError(t, db.CreateTable("a", []string{"id", "city"}))
	require.NoError(t, db.CreateTable("b", []string{"city", "pop"}))
	for _, r := range []map[string]string{
		{"id": "1", "city": "NY"},
		{"id": "2", "city": "LA"},
	} {
		require.NoError(t, db.InsertRecord("a", r))
	}
	for _, r := range []map[string]string{
		{"city": "NY", "pop": "8M"},
		{"city": "LA", "pop": "4M"},
		{"city": "SF", "pop": "1M"},
	} {
		require.NoError(t, db.InsertRecord("b", r))
	}
}

func TestDBManager_CreateInsertRead(t *testing.T) {
	root := t.TempDir()
	db := newTestDB(t, root, heap.Options{})

	require.NoError(t, db.CreateTable("users", []string{"id", "name"}))
	require.NoError(t, db.InsertRecord("users", map[string]string{"id": "1", "name": "ann"}))
	require.NoError(t, db.InsertRecord("users", map[string]string{"name": "bob"}))

	assert.Equal(t, []string{"1,ann", ",bob"}, readTable(t, db, "users"))
	assert.Equal(t, []string{",bob"}, readTable(t, db, "users", 1))
	assert.Equal(t, []string{"users"}, db.ListTables())

	meta, err := afero.ReadFile(afero.NewOsFs(), filepath.Join(root, "users", record.MetadataFile))
	require.NoError(t, err)
	assert.Equal(t, "id,0\nname,1\n", string(meta))
}

func TestDBManager_CreateTable_Errors(t *testing.T) {
	db := newTestDB(t, t.TempDir(), heap.Options{})

	require.ErrorIs(t, db.CreateTable("t", nil), dberr.ErrInvalid)
	require.ErrorIs(t, db.CreateTable("t", []string{"a", "a"}), dberr.ErrInvalid)
	require.ErrorIs(t, db.CreateTable("bad name", []string{"a"}), dberr.ErrInvalid)
	assert.Empty(t, db.ListTables())
}

func TestDBManager_CreateTable_ExistingIsUntouched(t *testing.T) {
	db := newTestDB(t, t.TempDir(), heap.Options{})
	require.NoError(t, db.CreateTable("users", []string{"id", "name"}))
	require.NoError(t, db.InsertRecord("users", map[string]string{"id": "1", "name": "ann"}))

	before, err := db.Checksums("users")
	require.NoError(t, err)

	require.ErrorIs(t, db.CreateTable("users", []string{"other"}), dberr.ErrExists)

	after, err := db.Checksums("users")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	info, err := db.Describe("users")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, info.Columns)
}

func TestDBManager_UnknownTable(t *testing.T) {
	db := newTestDB(t, t.TempDir(), heap.Options{})

	require.ErrorIs(t, db.InsertRecord("ghost", map[string]string{"a": "1"}), dberr.ErrNotFound)
	require.ErrorIs(t, db.ReadTable(&bytes.Buffer{}, "ghost", nil), dberr.ErrNotFound)
	require.ErrorIs(t, db.UpdateRecord("ghost", 0, nil), dberr.ErrNotFound)
	require.ErrorIs(t, db.DeleteByIndex("ghost", 0, nil), dberr.ErrNotFound)
	_, err := db.DeleteByAttributes("ghost", nil)
	require.ErrorIs(t, err, dberr.ErrNotFound)
	require.ErrorIs(t, db.DeleteTable("ghost"), dberr.ErrNotFound)
	_, err = db.Describe("ghost")
	require.ErrorIs(t, err, dberr.ErrNotFound)
}

func TestDBManager_UnknownAttributeLeavesShardsUnchanged(t *testing.T) {
	db := newTestDB(t, t.TempDir(), heap.Options{})
	seedCities(t, db)

	before, err := db.Checksums("a")
	require.NoError(t, err)

	require.ErrorIs(t, db.InsertRecord("a", map[string]string{"zip": "1"}), dberr.ErrSchema)
	require.ErrorIs(t, db.UpdateRecord("a", 0, map[string]string{"zip": "1"}), dberr.ErrSchema)
	_, err = db.DeleteByAttributes("a", map[string]string{"zip": "1"})
	require.ErrorIs(t, err, dberr.ErrSchema)
	require.ErrorIs(t, db.DeleteByIndex("a", 0, []string{"zip"}), dberr.ErrSchema)

	after, err := db.Checksums("a")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDBManager_UpdateAndDelete(t *testing.T) {
	db := newTestDB(t, t.TempDir(), heap.Options{})
	seedCities(t, db)

	require.NoError(t, db.UpdateRecord("b", 2, map[string]string{"pop": "900K"}))
	require.NoError(t, db.DeleteByIndex("b", 0, []string{"pop"}))
	assert.Equal(t, []string{"NY,NULL", "LA,4M", "SF,900K"}, readTable(t, db, "b"))

	require.NoError(t, db.DeleteByIndex("b", 0, nil))
	assert.Equal(t, []string{"LA,4M", "SF,900K"}, readTable(t, db, "b"))

	n, err := db.DeleteByAttributes("b", map[string]string{"city": "SF"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"LA,4M"}, readTable(t, db, "b"))
}

func TestDBManager_DeleteTable(t *testing.T) {
	root := t.TempDir()
	db := newTestDB(t, root, heap.Options{})
	seedCities(t, db)

	require.NoError(t, db.DeleteTable("a"))
	assert.Equal(t, []string{"b"}, db.ListTables())

	ok, err := afero.DirExists(afero.NewOsFs(), filepath.Join(root, "a"))
	require.NoError(t, err)
	assert.False(t, ok)

	// the name is free again
	require.NoError(t, db.CreateTable("a", []string{"x"}))
}

func TestDBManager_Reopen(t *testing.T) {
	root := t.TempDir()
	fsys := afero.NewOsFs()

	db, err := Open(Options{Root: root, Table: heap.Options{MaxShardSize: 8}})
	require.NoError(t, err)
	seedCities(t, db)
	require.NoError(t, db.Close())

	// noise the loader must skip
	require.NoError(t, fsys.MkdirAll(filepath.Join(root, "scratch"), storage.FileMode0755))
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(root, "README"), []byte("x"), storage.FileMode0644))

	re, err := Open(Options{Root: root, Table: heap.Options{MaxShardSize: 8}, LoadConcurrency: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = re.Close() })

	assert.Equal(t, []string{"a", "b"}, re.ListTables())
	assert.Equal(t, []string{"1,NY", "2,LA"}, readTable(t, re, "a"))
	assert.Equal(t, []string{"NY,8M", "LA,4M", "SF,1M"}, readTable(t, re, "b"))

	info, err := re.Describe("b")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Records)
	assert.Equal(t, 2, info.Shards)
}

func TestDBManager_Open_BadMetadata(t *testing.T) {
	root := t.TempDir()
	fsys := afero.NewOsFs()
	require.NoError(t, fsys.MkdirAll(filepath.Join(root, "broken"), storage.FileMode0755))
	require.NoError(t, afero.WriteFile(fsys,
		filepath.Join(root, "broken", record.MetadataFile), []byte("id,x\n"), storage.FileMode0644))

	_, err := Open(Options{Root: root})
	require.ErrorIs(t, err, dberr.ErrInvalid)
}

func TestDBManager_JoinTables(t *testing.T) {
	db := newTestDB(t, t.TempDir(), heap.Options{})
	seedCities(t, db)

	var buf bytes.Buffer
	err := db.JoinTables(context.Background(), &buf, []string{"a", "b"}, map[string]string{"a": "city", "b": "city"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1,NY,NY,8M", "2,LA,LA,4M"}, lines(buf.String()))
}

func TestDBManager_Join_FanOutSameMultiset(t *testing.T) {
	attrs := map[string]string{"a": "city", "b": "city"}
	run := func(maxShard int64) []string {
		db := newTestDB(t, t.TempDir(), heap.Options{MaxShardSize: maxShard})
		seedCities(t, db)
		require.NoError(t, db.InsertRecord("a", map[string]string{"id": "3", "city": "NY"}))

		var buf bytes.Buffer
		require.NoError(t, db.JoinTables(context.Background(), &buf, []string{"a", "b"}, attrs))
		out := lines(buf.String())
		sort.Strings(out)
		return out
	}

	one := run(0)
	three := run(1)
	assert.Equal(t, []string{"1,NY,NY,8M", "2,LA,LA,4M", "3,NY,NY,8M"}, one)
	assert.Equal(t, one, three)
}

func TestDBManager_Join_ThreeTables(t *testing.T) {
	tempDir := t.TempDir()
	db := newTestDB(t, t.TempDir(), heap.Options{TempDir: tempDir})
	seedCities(t, db)
	require.NoError(t, db.CreateTable("c", []string{"city", "mayor"}))
	require.NoError(t, db.InsertRecord("c", map[string]string{"city": "LA", "mayor": "kb"}))

	var buf bytes.Buffer
	err := db.JoinTables(context.Background(), &buf,
		[]string{"a", "b", "c"}, map[string]string{"a": "city", "b": "city", "c": "city"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2,LA,LA,4M,LA,kb"}, lines(buf.String()))

	entries, err := afero.ReadDir(afero.NewOsFs(), tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDBManager_Join_Validation(t *testing.T) {
	db := newTestDB(t, t.TempDir(), heap.Options{})
	seedCities(t, db)
	ctx := context.Background()

	_, err := db.Join(ctx, []string{"a"}, map[string]string{"a": "city"})
	require.ErrorIs(t, err, dberr.ErrInvalid)

	_, err = db.Join(ctx, []string{"a", "ghost"}, map[string]string{"a": "city", "ghost": "city"})
	require.ErrorIs(t, err, dberr.ErrNotFound)

	_, err = db.Join(ctx, []string{"a", "b"}, map[string]string{"a": "city"})
	require.ErrorIs(t, err, dberr.ErrInvalid)

	_, err = db.Join(ctx, []string{"a", "b"}, map[string]string{"a": "city", "b": "zip"})
	require.ErrorIs(t, err, dberr.ErrJoin)
}

func TestDBManager_Closed(t *testing.T) {
	db, err := Open(Options{Root: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, db.CreateTable("t", []string{"a"}))
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	require.ErrorIs(t, db.CreateTable("u", []string{"a"}), ErrDatabaseClosed)
	require.ErrorIs(t, db.InsertRecord("t", map[string]string{"a": "1"}), ErrDatabaseClosed)
	require.ErrorIs(t, db.DeleteTable("t"), ErrDatabaseClosed)
}
