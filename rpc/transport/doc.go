// Package transport defines the interfaces for moving framed requests between
// Seeds and clients. Every request carries a shard id: 0 asks the receiving
// Seed to route the request itself, any other id addresses a Field directly.
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and routes them to appropriate handlers.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
//
// Implementations live in the tcp, unix and http sub packages; tcp and unix share
// the framing code of the base package.
package transport
