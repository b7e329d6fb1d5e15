// Package server implements the RPC server of a Seed. It decodes the frames a
// transport receives and dispatches them by shard id to registered handlers.
//
// Key Components:
//
//   - RPCServer: owns a transport and a serializer. Handlers are registered per
//     shard id with Register, or RegisterStore for a store.IStore behind an adapter.
//     Unknown shard ids and undecodable requests are answered with error messages.
//
//   - IRPCServerAdapter: translates request messages into calls on a store.IStore.
//     NewIStoreServerAdapter covers all client key operations.
//
// Usage Example:
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	s.RegisterStore(ring.FieldID("lawn"), localStore, server.NewIStoreServerAdapter())
//	go s.Serve()
//	defer s.Close()
//
// Thread Safety:
//
//	Handlers may be registered and removed while the server is running.
//	Requests are handled concurrently.
package server
