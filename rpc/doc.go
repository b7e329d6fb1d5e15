// Package rpc is the request/response layer between clients and Seeds and
// between Seeds themselves.
//
// Subpackages:
//
//   - common: the Message protocol, client and server configuration, logging
//   - serializer: binary, json and gob encodings of Message
//   - transport: framed tcp and unix sockets, and http
//   - server: dispatches decoded requests to the handler registered for their shard id
//   - client: typed calls for the key-value, peer and Seed operations
//
// Shard id 0 addresses the receiving Seed as a router. Any other shard id
// addresses a Field directly (see ring.FieldID).
package rpc
