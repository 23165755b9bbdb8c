package storage

import "errors"

const (
	OneB  = 1 << 0  // 1
	OneKB = 1 << 10 // 1,024
	OneMB = 1 << 20 // 1,048,576
	OneGB = 1 << 30 // 1,073,741,824

	// DefaultMaxShardSize caps one persistent shard file (1 GiB).
	DefaultMaxShardSize = OneGB
)

const (
	FileMode0644 = 0o644
	FileMode0755 = 0o755
)

const (
	ShardPrefix     = "shard_"
	ShardExt        = ".csv"
	TmpSuffix       = ".tmp"
	EphemeralPrefix = "shardb_"
)

var (
	ErrShardReleased = errors.New("storage: shard already released")
	ErrNotAShardName = errors.New("storage: not a shard file name")
)
