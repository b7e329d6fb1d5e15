// Package path implements the links between Seeds.
//
// A Mesh is the gossip membership of the cluster, built on hashicorp/memberlist.
// Every Seed gossips its passport as node metadata, so each Seed knows the
// Field, RPC address and replication mode of every live Seed. Subscribers are
// told when Seeds join, leave or change their passport.
//
// A Pool holds the RPC clients used to talk to other Seeds, one per RPC
// address, opened on first use.
package path
