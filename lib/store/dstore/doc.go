// Package dstore implements the store.IStore of a raft Field: all Seeds of the
// Field form one Dragonboat raft shard, and every write is ordered by the raft log.
//
// Architecture:
//
//   - DistributedStore implements store.IStore. It stamps every write with the
//     hybrid logical clock of the Seed, serializes it into an internal.Command and
//     proposes it with SyncPropose.
//
//   - KVStateMachine is a Dragonboat IConcurrentStateMachine holding the db.KVDB of
//     the replica. It applies commands in log order and answers queries.
//
//   - The internal package defines the binary Command format and the Query types.
//
// Write Index:
//
//	Write indices of a raft Field are derived from the clock stamp of a command
//	inside the state machine:
//
//	  index = max(stamp, database.WriteIdx() + 1)
//
//	Every replica applies the log in the same order, so every replica derives the
//	same indices. Since indices stay close to wall time, TTL offsets are given in
//	the same ticks as on quorum Fields (see hlc.Ticks). The Seed proposes a Tick
//	command periodically to move the database clock forward without writes, which
//	makes expiry and deletion take effect at the same log position everywhere.
//
// Reads:
//
//	Get, Has, Exists and Scan use SyncRead and are linearizable. GetDBInfo uses
//	StaleRead. Reads and writes are retried when Dragonboat reports ErrSystemBusy.
//
// Snapshots:
//
//	The state machine uses fuzzy snapshots built on db.KVDB.Save and recovers with
//	db.KVDB.Load, after which the remaining log entries are replayed.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	dbFactory := func() db.KVDB { return moss.NewMossDB(nil) }
//	err = nh.StartConcurrentReplica(members, false, dstore.CreateStateMachineFactory(dbFactory), shardConfig)
//	if err != nil { ... }
//
//	s := dstore.NewDistributedStore(nh, ring.FieldID(field), replicaID, 5*time.Second, clock)
package dstore
