// Package db defines the storage engine interface a Seed keeps the data of its
// Field in, and the raw Record type that replication and Merkle verification
// work on.
//
// Key Components:
//
//   - KVDB Interface: Basic operations (Set, Get, Has, Delete, Append), time-based
//     operations (SetE, Expire), conditional writes (SetEIfUnset), replica
//     operations (Lookup, Merge, Range) and persistence (Save, Load).
//
//   - Record: the replicable state of a key. Deletes leave tombstone records
//     behind which carry the index of the delete, so that last-writer-wins
//     merging between replicas never resurrects a deleted key.
//
//   - Feature Flags: implementations advertise their capabilities through
//     SupportsFeature.
//
//   - Database Information: DatabaseInfo reports size estimates, the
//     implementation type and implementation-specific metadata.
//
// Note on Time-Based Operations:
//   - Every write takes a write index. It records when an entry was written,
//     is the base of expiry and deletion offsets, and advances the engine clock.
//   - Reads always operate against the current clock of the engine.
//   - SetWriteIdx advances the clock without writing (a Seed does so
//     periodically from its hybrid logical clock so that TTLs run in wall time).
//   - The clock is monotonic: lower indices are ignored.
//
// Note on Garbage Collection:
//   - Get() must never return an entry that has logically expired.
//   - Has() must never return true for an entry that is deleted or a tombstone.
//   - Physically removing such entries is left to background collection.
//
// Related Packages:
//
// The engines/moss package provides a sharded in-memory implementation with
// background garbage collection and binary persistence.
//
// The util package provides helpers used by engines (hash functions, size
// histograms, the MapHeap priority queue).
//
// The testing package provides the conformance suite (RunKVDBTests) and
// benchmarks (RunKVDBBenchmarks) every engine runs.
package db
