// Package store defines IStore, the interface of a Field replica, together with
// the error type every store operation reports.
//
// Key Components:
//
//   - IStore: the operations a Seed executes for its Field (Set, SetE,
//     SetEIfUnset, Append, Expire, Delete, Exists, Get, Has, Scan, GetDBInfo).
//     TTL offsets are given in write-index ticks.
//
//   - Error: a return code plus message. Codes survive the wire: the rpc layer
//     sends Error() texts and ParseError restores the code on the client.
//
//   - DBFactory: creates the db.KVDB a store keeps its data in.
//
// Implementations:
//
//   - lstore: a replica of a quorum Field. Writes are stamped with the hybrid
//     logical clock of the Seed and replicated by the Seed itself.
//
//   - dstore: a replica of a raft Field, built on Dragonboat.
package store
