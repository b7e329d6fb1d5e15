// Package util provides helpers for storage engines implementing db.KVDB.
//
// The package contains:
//   - functions: key hashing (xxhash) and shard selection
//   - mapheap: a generic priority queue with key-based access, used for
//     expiry and deletion scheduling
//   - statistics: a size histogram and shard distribution statistics
//     reported through GetInfo
package util
