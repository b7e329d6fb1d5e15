// Package seed implements a Seed, the storage node of SphagnumDB.
//
// Every Seed belongs to exactly one Field and holds a full replica of it. Keys
// are placed on Fields by the consistent hash ring of package ring, which each
// Seed rebuilds from the passports gossiped by the mesh.
//
// A Seed serves two shard ids on its RPC server:
//
//   - ring.RoutedShardID (0): client requests. Key operations are executed
//     locally when the key belongs to the Field of the Seed and forwarded to a
//     live Seed of the owning Field otherwise. Multi key operations are split
//     per Field.
//   - ring.FieldID(field): requests of other Seeds. Forwarded key operations
//     are checked for ownership and never forwarded again; replication traffic
//     (replicate, fetch, digest, leaves, syncBuckets) is served from the replica.
//
// Quorum Fields replicate every write to all live replicas and acknowledge it
// once the write quorum is reached. Concurrent versions are resolved by
// last-writer-wins on the write index. Reads may consult more replicas and
// repair stale ones. A periodic anti-entropy round compares Merkle trees with
// a random replica and exchanges the records of differing buckets.
//
// Raft Fields replicate through their dragonboat group; the Seed only routes.
package seed
