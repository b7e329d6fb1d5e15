// Package common holds the types every rpc package shares.
//
// Message is the single request and response type. Its MessageType selects
// the operation: key-value operations (set, get, delete, ...), peer operations
// Seeds of a Field exchange for replication and anti-entropy (replicate, fetch,
// digest, leaves, sync buckets) and Seed operations (root, proof, verify,
// passport, members). The New*Request and New*Response constructors build the
// messages for each operation.
//
// ServerConfig and ClientConfig configure transports. RaftConfig carries the
// settings of raft Fields and converts them for dragonboat.
//
// InitLoggers installs the logger factory all packages obtain their loggers
// from through dragonboat's logger.GetLogger.
package common
