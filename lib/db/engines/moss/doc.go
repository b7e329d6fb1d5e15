// Package moss implements db.KVDB as a sharded in-memory engine with background
// garbage collection, tombstones for replicated deletes and binary snapshots.
//
// Key Components:
//
//   - mossImpl: manages the shards, the write-index clock and the collectors.
//     The engine never generates write indices itself; the caller provides them
//     (a hybrid logical clock for quorum Fields, the raft log for raft Fields).
//
//   - Shard: a partition of the key space holding an xsync.MapOf of entries,
//     the expire and delete heaps and an xsync.MPMCQueueOf of GC events.
//     Keys are assigned to shards by the high bits of their xxhash.
//
//   - Entry: value, expiry mark, deletion mark, write index and tombstone flag.
//
// Internal Mechanisms:
//
//   - Stale Write Prevention: a write is applied only if its index is not older
//     than the index of the stored entry. Merge is stricter and requires a newer
//     index, so re-delivering a record is a no-op. Together this makes every key a
//     last-writer-wins register.
//
//   - Time-based Operations: expireIn and deleteIn are offsets from the write index.
//     Expired entries keep their key (Has is true, Get is false), deleted entries
//     are gone. Delete writes a tombstone that is due for deletion TombstoneTTL
//     ticks later; until then it shadows older writes arriving from replicas.
//
//   - Garbage Collection: every write that carries TTL marks queues an event on
//     its shard. One goroutine per shard drains the queue into its heaps every
//     GCInterval, frees expired values and removes due entries. Only that goroutine
//     touches the heaps, so they need no locking. Writers never block on the queue:
//     when it is full the shard is flagged and the collector rebuilds its heaps from
//     the data map. Get, Has, Lookup and Range check the marks themselves, so results
//     never depend on how far the collector got.
//
//   - Persistence Format: "MOSSDB\x00\x00", version, entry count, then for each entry
//     key length, key, expireAt, deleteAt, index, flags, value length and value.
//     Snapshots are fuzzy: writes continue while Save runs. Load must not run
//     concurrently with anything else.
package moss
