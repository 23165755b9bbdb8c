package storage

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShardNo(t *testing.T) {
	n, err := ParseShardNo("shard_12.csv")
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, "shard_12.csv", ShardFileName(12))

	for _, bad := range []string{"shard_.csv", "shard_01.csv", "shard_-1.csv", "shard_1.txt", "temp_join.csv", "shard_1_x.csv"} {
		_, err := ParseShardNo(bad)
		assert.ErrorIs(t, err, ErrNotAShardName, bad)
	}
}

func TestListShards_NumericOrder(t *testing.T) {
	fsys := afero.NewMemMapFs()
	dir := "/db/users"
	for _, name := range []string{"shard_10.csv", "shard_2.csv", "shard_0.csv", "shard_1.csv", "metadata.txt", "temp_join.csv"} {
		require.NoError(t, afero.WriteFile(fsys, filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, fsys.MkdirAll(filepath.Join(dir, "shard_3.csv"), 0o755))

	got, err := ListShards(fsys, dir)
	require.NoError(t, err)

	var nos []int
	for _, e := range got {
		nos = append(nos, e.No)
		assert.Equal(t, filepath.Join(dir, ShardFileName(e.No)), e.Path)
	}
	assert.Equal(t, []int{0, 1, 2, 10}, nos)
}

func TestListShards_MissingDir(t *testing.T) {
	got, err := ListShards(afero.NewMemMapFs(), "/nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRemoveStaleTemps(t *testing.T) {
	fsys := afero.NewMemMapFs()
	dir := "/db/users"
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(dir, "shard_0.csv"), []byte("1\n"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(dir, "shard_0.csv.tmp"), []byte("half"), 0o644))

	removed, err := RemoveStaleTemps(fsys, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "shard_0.csv.tmp")}, removed)

	ok, err := afero.Exists(fsys, filepath.Join(dir, "shard_0.csv"))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = afero.Exists(fsys, filepath.Join(dir, "shard_0.csv.tmp"))
	require.NoError(t, err)
	assert.False(t, ok)
}
