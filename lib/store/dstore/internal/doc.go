// Package internal provides the command and query structures of the dstore
// state machine.
//
// Commands are the write operations proposed to raft and stored in the raft
// log, so they use a compact binary encoding:
//
//   - 1 byte: Command type (Set, SetE, SetIfUnset, Append, Expire, Delete, Tick)
//   - 8 bytes: Stamp (uint64, big endian), clock time of the proposing Seed
//   - 8 bytes: ExpireIn (uint64, big endian)
//   - 8 bytes: DeleteIn (uint64, big endian)
//   - 4 bytes: number of keys (uint32, big endian)
//   - per key: 4 bytes key length and the key data
//   - M bytes: Value data (optional, the rest of the entry)
//
// Queries are executed locally on the state machine and are never serialized.
//
// The types in this package are not thread-safe.
package internal
