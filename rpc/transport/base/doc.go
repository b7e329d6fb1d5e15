// Package base implements the framed transport shared by the tcp and unix
// transports. Protocol specific code is plugged in through connectors.
//
// Every frame is a 20 byte header followed by the payload:
//
//	| shard id (8) | request id (8) | payload length (4) | payload |
//
// The request id correlates responses with requests, so a single connection
// carries many requests at once and responses may arrive out of order.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: protocol specific dialing and listening.
//
//   - clientTransport: keeps ConnectionsPerEndpoint connections to every endpoint,
//     picks them round-robin and retries failed requests with exponential backoff.
//     A broken connection fails its pending requests and is re-established.
//
//   - serverTransport: accepts connections and runs up to WorkersPerConn requests
//     of a connection concurrently. Frame buffers come from a sync.Pool.
//     Close stops the accept loop and closes all open connections.
//
// Thread Safety:
//
//	All public methods are thread-safe.
package base
