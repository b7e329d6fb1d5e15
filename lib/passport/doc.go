// Package passport implements the identity card of a Seed: its ID, the Field it
// belongs to, the address its RPC server listens on and the replication mode of
// its Field. Passports travel as gossip metadata, so every Seed knows which
// Seeds serve which Field without asking.
package passport
