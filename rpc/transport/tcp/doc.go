// Package tcp implements the TCP socket transport of the RPC system. It provides
// the TCP connectors for the framed transport of the base package, which does
// the connection pooling, buffer reuse and request correlation.
//
// Both connectors apply the socket options of common.SocketConf (no delay,
// keep-alive, linger, socket buffer sizes) to every connection.
package tcp
