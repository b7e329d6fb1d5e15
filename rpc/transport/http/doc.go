// Package http implements the HTTP transport of the RPC system. Each request is a
// POST to /{shardId} whose body is the serialized message; the response body is
// the serialized reply.
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. Endpoints are used
//     round-robin and failed requests are retried up to RetryCount times.
//
//   - httpServerTransport: Implements IRPCServerTransport on top of net/http.
//     Close shuts the server down gracefully.
//
// Thread Safety:
//
//	The client transport is safe for concurrent use once Connect returned.
package http
