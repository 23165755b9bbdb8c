package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "shardb", cfg.AppName)
	assert.Equal(t, "./database", cfg.Storage.Root)
	assert.False(t, cfg.Join.MergeSkipLeadingLine)
	assert.Equal(t, 2000, cfg.Shell.HistoryMax)

	n, err := cfg.MaxShardBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<30), n)
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shardb.yaml")
	data := []byte(`
app_name: test
storage:
  root: /var/lib/shardb
  max_shard_size: 64KiB
join:
  merge_skip_leading_line: true
log:
  level: debug
  format: json
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.AppName)
	assert.Equal(t, "/var/lib/shardb", cfg.Storage.Root)
	assert.True(t, cfg.Join.MergeSkipLeadingLine)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	n, err := cfg.MaxShardBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(64*1024), n)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("SHARDB_STORAGE_ROOT", "/from/env")
	t.Setenv("SHARDB_STORAGE_MAX_SHARD_SIZE", "4096")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.Storage.Root)

	n, err := cfg.MaxShardBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(4096), n)
}

func TestLoadConfig_BadShardSize(t *testing.T) {
	t.Setenv("SHARDB_STORAGE_MAX_SHARD_SIZE", "lots")
	_, err := LoadConfig("")
	require.Error(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
