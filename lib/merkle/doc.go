// Package merkle implements the Merkle trees Seeds use to verify the integrity
// of their Field data and to find divergent data between replicas.
//
// Keys are spread over 2^depth buckets by the leading bits of their blake2s hash.
// A bucket hash covers the sorted (key hash, record digest) pairs of the bucket,
// and inner nodes hash their two children:
//
//	bucket = H(0x00 || kh1 || d1 || kh2 || d2 ...)
//	inner  = H(0x01 || left || right)
//
// Record digests cover value, tombstone flag, TTL marks and write index, so two
// replicas share a root exactly when they hold the same records.
//
// Anti-entropy compares roots first, then bucket hashes (DiffLeaves or the
// top-down Diff), and only exchanges the records of differing buckets.
//
// A Proof carries the leaves of one bucket plus the sibling hashes up to the
// root; it proves both that a key with a given digest is present and that a key
// is absent.
package merkle
