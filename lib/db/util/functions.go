package util

import (
	"github.com/cespare/xxhash/v2"
)

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// HashKey returns the 64-bit xxhash of a key.
func HashKey(key string) uint64 {
	return xxhash.Sum64String(key)
}

// ShardIndex maps a key to one of n partitions.
// The low bits of the hash are used by xsync internally, so the
// higher bits decide the partition.
func ShardIndex(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int((HashKey(key) >> 7) % uint64(n))
}
