// Package cmd implements the command-line interface of SphagnumDB. It provides
// a hierarchical command structure for running a Seed and talking to one as a
// client.
//
// The package is organized into several subpackages:
//
//   - serve: starts a Seed and joins it to the cluster
//   - kv: key-value operations plus root, proof, verify and perf
//   - cluster: membership inspection (passport, members)
//   - util: shared flag, config and client helpers (internal use)
//
// Every flag can also be set as an environment variable SPHAGNUM_<FLAG>, or
// in a .env file in the working directory.
//
// See sphagnum -help for a list of all commands.
package cmd
