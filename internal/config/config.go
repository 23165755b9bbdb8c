package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const EnvPrefix = "SHARDB"

type ShardbConfig struct {
	AppName string `mapstructure:"app_name"`

	Storage struct {
		Root         string `mapstructure:"root"`
		MaxShardSize string `mapstructure:"max_shard_size"`
		TempDir      string `mapstructure:"temp_dir"`
	} `mapstructure:"storage"`

	Join struct {
		MergeSkipLeadingLine bool `mapstructure:"merge_skip_leading_line"`
		MaxWorkers           int  `mapstructure:"max_workers"`
	} `mapstructure:"join"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Shell struct {
		Prompt     string `mapstructure:"prompt"`
		History    string `mapstructure:"history"`
		HistoryMax int    `mapstructure:"history_max"`
	} `mapstructure:"shell"`
}

// MaxShardBytes parses storage.max_shard_size ("1GiB", "64MB", "4096").
func (c *ShardbConfig) MaxShardBytes() (int64, error) {
	s := strings.TrimSpace(c.Storage.MaxShardSize)
	if s == "" {
		return 0, nil
	}
	if n, err := cast.ToInt64E(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("config: negative storage.max_shard_size %q", s)
		}
		return n, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("config: storage.max_shard_size: %w", err)
	}
	return int64(n), nil
}

// SetDefaults registers every key so env overrides and Unmarshal see them
// even without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "shardb")
	v.SetDefault("storage.root", "./database")
	v.SetDefault("storage.max_shard_size", "1GiB")
	v.SetDefault("storage.temp_dir", "")
	v.SetDefault("join.merge_skip_leading_line", false)
	v.SetDefault("join.max_workers", 0)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("shell.prompt", "shardb> ")
	v.SetDefault("shell.history", defaultHistoryPath())
	v.SetDefault("shell.history_max", 2000)
}

// New returns a viper instance with defaults and SHARDB_* env binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads path (YAML, TOML or JSON by extension) on top of the
// defaults. An empty path loads defaults and environment only.
func LoadConfig(path string) (*ShardbConfig, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return Decode(v)
}

// Decode unmarshals an already prepared viper instance (flags bound, file read).
func Decode(v *viper.Viper) (*ShardbConfig, error) {
	var cfg ShardbConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if _, err := cfg.MaxShardBytes(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".shardb_history"
	}
	return filepath.Join(home, ".shardb_history")
}
