// Package ring assigns keys to Fields with a consistent hash ring (xxhash, with
// virtual nodes per Field), and derives the shard ids Fields are addressed by
// on the wire.
//
// Every Seed builds its ring from the Fields announced in gossip, so all Seeds
// that agree on the set of Fields agree on the owner of every key.
package ring
