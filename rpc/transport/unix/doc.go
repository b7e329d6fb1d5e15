// Package unix implements the RPC transport over Unix domain sockets, for
// clients running on the same machine as their Seed. It only provides
// connectors; framing and connection handling come from the base package.
package unix
